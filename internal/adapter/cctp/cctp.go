// Package cctp implements the bridge adapter for Circle's cross-chain
// transfer protocol. USDC moves through a burn on the source domain and an
// attested mint on the destination domain, observed as two legs.
package cctp

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
	methodInitiate   = "cctp_initiateTransfer"
	methodBurnStatus = "cctp_burnStatus"
	methodMintStatus = "cctp_mintStatus"
)

// Adapter talks to a CCTP relayer RPC endpoint.
type Adapter struct {
	client       *adapter.RPCClient
	mapper       *chainid.Mapper
	signer       signer.Signer
	burnDeadline time.Duration
	mintDeadline time.Duration
}

// Config holds adapter configuration.
type Config struct {
	RPC          adapter.RPCConfig
	BurnDeadline time.Duration
	MintDeadline time.Duration
}

// New creates a CCTP adapter.
func New(cfg Config, mapper *chainid.Mapper, sg signer.Signer) (*Adapter, error) {
	client, err := adapter.NewRPCClient(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("cctp: %w", err)
	}

	burnDeadline := cfg.BurnDeadline
	if burnDeadline == 0 {
		burnDeadline = 10 * time.Minute
	}
	mintDeadline := cfg.MintDeadline
	if mintDeadline == 0 {
		// Attestation plus destination finality.
		mintDeadline = 30 * time.Minute
	}

	return &Adapter{
		client:       client,
		mapper:       mapper,
		signer:       sg,
		burnDeadline: burnDeadline,
		mintDeadline: mintDeadline,
	}, nil
}

// Protocol implements adapter.Adapter.
func (a *Adapter) Protocol() transfer.ProtocolID { return transfer.ProtocolCCTP }

// LegDeadline implements adapter.Adapter.
func (a *Adapter) LegDeadline(role transfer.LegRole) time.Duration {
	if role == transfer.LegRoleDestination {
		return a.mintDeadline
	}
	return a.burnDeadline
}

// Submit implements adapter.Adapter. The relayer returns the burn
// transaction hash and the attestation message id; the burn hash keys the
// source leg, the message id the destination leg.
func (a *Adapter) Submit(ctx context.Context, req transfer.Request) ([]transfer.LegHandle, error) {
	// CCTP names chains by numeric domain id.
	sourceDomain, err := a.mapper.ToProtocolName(transfer.ProtocolCCTP, req.From)
	if err != nil {
		return nil, err
	}
	destDomain, err := a.mapper.ToProtocolName(transfer.ProtocolCCTP, req.To)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{
		"request_id":    req.ID,
		"source_domain": sourceDomain,
		"dest_domain":   destDomain,
		"amount":        req.Amount.String(),
		"sender":        req.Sender,
		"recipient":     req.Recipient,
	})
	if err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: err}
	}

	signed, err := a.signer.Sign(ctx, payload)
	if err != nil {
		return nil, err
	}

	result, err := a.client.Call(ctx, methodInitiate, []interface{}{string(signed)})
	if err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: err}
	}

	var res struct {
		BurnTxHash string `json:"burn_tx_hash"`
		MessageID  string `json:"message_id"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: fmt.Errorf("decode initiate result: %w", err)}
	}
	if res.BurnTxHash == "" {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: fmt.Errorf("relayer returned no burn tx hash")}
	}
	if res.MessageID == "" {
		// The burn went out but no attestation handle came back: report
		// the partially-created leg set so the caller knows what exists.
		return nil, &adapter.SubmissionError{
			Protocol: a.Protocol(),
			CreatedLegs: []transfer.LegHandle{
				{Protocol: a.Protocol(), Role: transfer.LegRoleSource, Ref: res.BurnTxHash},
			},
			Err: fmt.Errorf("relayer returned no attestation message id"),
		}
	}

	return []transfer.LegHandle{
		{Protocol: a.Protocol(), Role: transfer.LegRoleSource, Ref: res.BurnTxHash},
		{Protocol: a.Protocol(), Role: transfer.LegRoleDestination, Ref: res.MessageID},
	}, nil
}

// PollStatus implements adapter.Adapter.
func (a *Adapter) PollStatus(ctx context.Context, handle transfer.LegHandle) (transfer.Observation, error) {
	method := methodBurnStatus
	if handle.Role == transfer.LegRoleDestination {
		method = methodMintStatus
	}

	result, err := a.client.Call(ctx, method, []interface{}{handle.Ref})
	if err != nil {
		return transfer.Observation{}, err
	}

	var res struct {
		State  string `json:"state"` // pending_confirmations|complete|failed
		Amount string `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("decode status: %w", err)}
	}

	switch res.State {
	case "pending_confirmations":
		return transfer.Observation{State: transfer.LegSubmitted}, nil
	case "complete":
		obs := transfer.Observation{State: transfer.LegConfirmed}
		if res.Amount != "" {
			amount, ok := new(big.Int).SetString(res.Amount, 10)
			if !ok {
				return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("bad amount %q", res.Amount)}
			}
			obs.Amount = amount
		}
		return obs, nil
	case "failed":
		reason := res.Reason
		if reason == "" {
			reason = "cctp transfer failed"
		}
		return transfer.Observation{State: transfer.LegFailed, Reason: reason}, nil
	default:
		return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("unknown state %q", res.State)}
	}
}
