// Package snowbridge implements the bridge adapter for Snowbridge
// transfers between Polkadot Asset Hub and Ethereum. A transfer has two
// legs: inclusion of the outbound message on the source chain and
// settlement of the delivered funds on the destination chain.
package snowbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/bridgeflow/transfer_engine/internal/adapter"
	"github.com/bridgeflow/transfer_engine/internal/chainid"
	"github.com/bridgeflow/transfer_engine/internal/signer"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

const (
	methodSubmit            = "bridge_submitTransfer"
	methodSourceStatus      = "bridge_sourceStatus"
	methodDestinationStatus = "bridge_destinationStatus"
)

// Adapter talks to a Snowbridge gateway RPC endpoint.
type Adapter struct {
	client *adapter.RPCClient
	mapper *chainid.Mapper
	signer signer.Signer

	sourceDeadline      time.Duration
	destinationDeadline time.Duration
}

// Config holds adapter configuration.
type Config struct {
	RPC                 adapter.RPCConfig
	SourceDeadline      time.Duration
	DestinationDeadline time.Duration
}

// New creates a Snowbridge adapter.
func New(cfg Config, mapper *chainid.Mapper, sg signer.Signer) (*Adapter, error) {
	client, err := adapter.NewRPCClient(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("snowbridge: %w", err)
	}

	sourceDeadline := cfg.SourceDeadline
	if sourceDeadline == 0 {
		sourceDeadline = 15 * time.Minute
	}
	destinationDeadline := cfg.DestinationDeadline
	if destinationDeadline == 0 {
		// Destination settlement waits for an Ethereum finality proof.
		destinationDeadline = 45 * time.Minute
	}

	return &Adapter{
		client:              client,
		mapper:              mapper,
		signer:              sg,
		sourceDeadline:      sourceDeadline,
		destinationDeadline: destinationDeadline,
	}, nil
}

// Protocol implements adapter.Adapter.
func (a *Adapter) Protocol() transfer.ProtocolID { return transfer.ProtocolSnowbridge }

// LegDeadline implements adapter.Adapter.
func (a *Adapter) LegDeadline(role transfer.LegRole) time.Duration {
	if role == transfer.LegRoleDestination {
		return a.destinationDeadline
	}
	return a.sourceDeadline
}

type submitParams struct {
	RequestID   string `json:"request_id"`
	SourceChain string `json:"source_chain"`
	DestChain   string `json:"dest_chain"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Signature   string `json:"signature"`
}

type submitResult struct {
	MessageID string `json:"message_id"`
}

// Submit implements adapter.Adapter. On success it returns the source and
// destination leg handles, in that order, both keyed by the gateway's
// message id.
func (a *Adapter) Submit(ctx context.Context, req transfer.Request) ([]transfer.LegHandle, error) {
	sourceName, err := a.mapper.ToProtocolName(transfer.ProtocolSnowbridge, req.From)
	if err != nil {
		return nil, err
	}
	destName, err := a.mapper.ToProtocolName(transfer.ProtocolSnowbridge, req.To)
	if err != nil {
		return nil, err
	}

	params := submitParams{
		RequestID:   req.ID,
		SourceChain: sourceName,
		DestChain:   destName,
		Token:       req.Token,
		Amount:      req.Amount.String(),
		Sender:      req.Sender,
		Recipient:   req.Recipient,
	}

	unsigned, err := json.Marshal(params)
	if err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: err}
	}
	signed, err := a.signer.Sign(ctx, unsigned)
	if err != nil {
		return nil, err
	}
	params.Signature = string(signed[len(unsigned):])

	result, err := a.client.Call(ctx, methodSubmit, []interface{}{params})
	if err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: err}
	}

	var res submitResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: fmt.Errorf("decode submit result: %w", err)}
	}
	if res.MessageID == "" {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: fmt.Errorf("gateway returned no message id")}
	}

	return []transfer.LegHandle{
		{Protocol: a.Protocol(), Role: transfer.LegRoleSource, Ref: res.MessageID},
		{Protocol: a.Protocol(), Role: transfer.LegRoleDestination, Ref: res.MessageID},
	}, nil
}

type statusResult struct {
	Status string `json:"status"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// Submit-side statuses reported by the gateway.
const (
	wireStatusPending    = "pending"
	wireStatusIncluded   = "included"
	wireStatusDispatched = "dispatched"
	wireStatusExecuted   = "executed"
	wireStatusFailed     = "failed"
)

// PollStatus implements adapter.Adapter.
func (a *Adapter) PollStatus(ctx context.Context, handle transfer.LegHandle) (transfer.Observation, error) {
	method := methodSourceStatus
	if handle.Role == transfer.LegRoleDestination {
		method = methodDestinationStatus
	}

	result, err := a.client.Call(ctx, method, []interface{}{handle.Ref})
	if err != nil {
		return transfer.Observation{}, err
	}

	var res statusResult
	if err := json.Unmarshal(result, &res); err != nil {
		return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("decode status: %w", err)}
	}

	return decodeObservation(res)
}

func decodeObservation(res statusResult) (transfer.Observation, error) {
	switch res.Status {
	case wireStatusPending, wireStatusDispatched:
		return transfer.Observation{State: transfer.LegSubmitted}, nil
	case wireStatusIncluded, wireStatusExecuted:
		obs := transfer.Observation{State: transfer.LegConfirmed}
		if res.Amount != "" {
			amount, ok := new(big.Int).SetString(res.Amount, 10)
			if !ok {
				return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("bad amount %q", res.Amount)}
			}
			obs.Amount = amount
		}
		return obs, nil
	case wireStatusFailed:
		reason := res.Reason
		if reason == "" {
			reason = "rejected by bridge"
		}
		return transfer.Observation{State: transfer.LegFailed, Reason: reason}, nil
	default:
		return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("unknown status %q", res.Status)}
	}
}
