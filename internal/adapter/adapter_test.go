package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

type stubAdapter struct {
	protocol transfer.ProtocolID
}

func (s *stubAdapter) Protocol() transfer.ProtocolID { return s.protocol }

func (s *stubAdapter) Submit(context.Context, transfer.Request) ([]transfer.LegHandle, error) {
	return nil, nil
}

func (s *stubAdapter) PollStatus(context.Context, transfer.LegHandle) (transfer.Observation, error) {
	return transfer.Observation{}, nil
}

func (s *stubAdapter) LegDeadline(transfer.LegRole) time.Duration { return time.Minute }

func TestRegistry_GetRegistered(t *testing.T) {
	reg, err := NewRegistry(
		&stubAdapter{protocol: transfer.ProtocolSnowbridge},
		&stubAdapter{protocol: transfer.ProtocolXCM},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	a, err := reg.Get(transfer.ProtocolXCM)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Protocol() != transfer.ProtocolXCM {
		t.Errorf("Get returned adapter for %s", a.Protocol())
	}

	if _, err := reg.Get(transfer.ProtocolCCTP); err == nil {
		t.Error("Get for unregistered protocol succeeded")
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		&stubAdapter{protocol: transfer.ProtocolCCTP},
		&stubAdapter{protocol: transfer.ProtocolCCTP},
	)
	if err == nil {
		t.Fatal("duplicate registration accepted")
	}
	if !strings.Contains(err.Error(), "cctp") {
		t.Errorf("error does not name the protocol: %v", err)
	}
}

func TestRPCClient_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" || req.Method != "bridge_sourceStatus" {
			t.Errorf("unexpected request envelope: %+v", req)
		}
		json.NewEncoder(w).Encode(RPCResponse{
			JSONRPC: "2.0",
			Result:  json.RawMessage(`{"status":"included"}`),
			ID:      req.ID,
		})
	}))
	defer srv.Close()

	client, err := NewRPCClient(RPCConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewRPCClient: %v", err)
	}

	result, err := client.Call(context.Background(), "bridge_sourceStatus", []interface{}{"msg-1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(result) != `{"status":"included"}` {
		t.Errorf("result = %s", result)
	}
}

func TestRPCClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewRPCClient(RPCConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewRPCClient: %v", err)
	}

	_, err = client.Call(context.Background(), "xcm_messageStatus", nil)
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Errorf("5xx response not classified as transient: %v", err)
	}
}

func TestRPCClient_NetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	client, err := NewRPCClient(RPCConfig{URL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewRPCClient: %v", err)
	}

	_, err = client.Call(context.Background(), "cctp_burnStatus", nil)
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Errorf("connection failure not classified as transient: %v", err)
	}
}

func TestRPCClient_RPCErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RPCResponse{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: -32601, Message: "method not found"},
			ID:      1,
		})
	}))
	defer srv.Close()

	client, err := NewRPCClient(RPCConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewRPCClient: %v", err)
	}

	_, err = client.Call(context.Background(), "bridge_unknown", nil)
	var transient *TransientError
	if errors.As(err, &transient) {
		t.Errorf("application-level RPC error classified as transient: %v", err)
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
		t.Errorf("err = %v, want RPCError -32601", err)
	}
}

func TestNewRPCClient_RequiresURL(t *testing.T) {
	if _, err := NewRPCClient(RPCConfig{}); err == nil {
		t.Error("empty URL accepted")
	}
}
