// Package xcm implements the bridge adapter for XCM transfers between
// parachains. XCM delivery is observed as a single leg: once the message
// executes on the destination parachain the transfer is settled.
package xcm

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
	methodSubmit = "xcm_submitTransfer"
	methodStatus = "xcm_messageStatus"
)

// Adapter talks to a parachain RPC node exposing the XCM transfer API.
type Adapter struct {
	client   *adapter.RPCClient
	mapper   *chainid.Mapper
	signer   signer.Signer
	deadline time.Duration
}

// Config holds adapter configuration.
type Config struct {
	RPC      adapter.RPCConfig
	Deadline time.Duration
}

// New creates an XCM adapter.
func New(cfg Config, mapper *chainid.Mapper, sg signer.Signer) (*Adapter, error) {
	client, err := adapter.NewRPCClient(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("xcm: %w", err)
	}

	deadline := cfg.Deadline
	if deadline == 0 {
		deadline = 10 * time.Minute
	}

	return &Adapter{client: client, mapper: mapper, signer: sg, deadline: deadline}, nil
}

// Protocol implements adapter.Adapter.
func (a *Adapter) Protocol() transfer.ProtocolID { return transfer.ProtocolXCM }

// LegDeadline implements adapter.Adapter.
func (a *Adapter) LegDeadline(transfer.LegRole) time.Duration { return a.deadline }

// Submit implements adapter.Adapter. XCM transfers produce one leg keyed
// by the message hash.
func (a *Adapter) Submit(ctx context.Context, req transfer.Request) ([]transfer.LegHandle, error) {
	// XCM names chains by parachain id.
	sourcePara, err := a.mapper.ToProtocolName(transfer.ProtocolXCM, req.From)
	if err != nil {
		return nil, err
	}
	destPara, err := a.mapper.ToProtocolName(transfer.ProtocolXCM, req.To)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{
		"request_id": req.ID,
		"from_para":  sourcePara,
		"to_para":    destPara,
		"asset":      req.Token,
		"amount":     req.Amount.String(),
		"sender":     req.Sender,
		"recipient":  req.Recipient,
	})
	if err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: err}
	}

	signed, err := a.signer.Sign(ctx, payload)
	if err != nil {
		return nil, err
	}

	result, err := a.client.Call(ctx, methodSubmit, []interface{}{string(signed)})
	if err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: err}
	}

	var res struct {
		MessageHash string `json:"message_hash"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: fmt.Errorf("decode submit result: %w", err)}
	}
	if res.MessageHash == "" {
		return nil, &adapter.SubmissionError{Protocol: a.Protocol(), Err: fmt.Errorf("node returned no message hash")}
	}

	return []transfer.LegHandle{
		{Protocol: a.Protocol(), Role: transfer.LegRoleSource, Ref: res.MessageHash},
	}, nil
}

// PollStatus implements adapter.Adapter.
func (a *Adapter) PollStatus(ctx context.Context, handle transfer.LegHandle) (transfer.Observation, error) {
	result, err := a.client.Call(ctx, methodStatus, []interface{}{handle.Ref})
	if err != nil {
		return transfer.Observation{}, err
	}

	var res struct {
		Outcome string `json:"outcome"` // sent|executed|error
		Amount  string `json:"amount"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("decode status: %w", err)}
	}

	switch res.Outcome {
	case "sent":
		return transfer.Observation{State: transfer.LegSubmitted}, nil
	case "executed":
		obs := transfer.Observation{State: transfer.LegConfirmed}
		if res.Amount != "" {
			amount, ok := new(big.Int).SetString(res.Amount, 10)
			if !ok {
				return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("bad amount %q", res.Amount)}
			}
			obs.Amount = amount
		}
		return obs, nil
	case "error":
		reason := res.Error
		if reason == "" {
			reason = "xcm execution error"
		}
		return transfer.Observation{State: transfer.LegFailed, Reason: reason}, nil
	default:
		return transfer.Observation{}, &adapter.TransientError{Err: fmt.Errorf("unknown outcome %q", res.Outcome)}
	}
}
