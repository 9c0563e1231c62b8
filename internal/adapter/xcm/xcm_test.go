package xcm

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bridgeflow/transfer_engine/internal/adapter"
	"github.com/bridgeflow/transfer_engine/internal/chainid"
	"github.com/bridgeflow/transfer_engine/internal/signer"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

func node(t *testing.T, handle func(method string) (interface{}, *adapter.RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int    `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		result, rpcErr := handle(req.Method)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestAdapter(t *testing.T, url string) *Adapter {
	t.Helper()
	m, err := chainid.NewMapper([]chainid.Mapping{
		{Protocol: transfer.ProtocolXCM, Canonical: "assethub", Name: "1000"},
		{Protocol: transfer.ProtocolXCM, Canonical: "hydration", Name: "2034"},
	})
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	sg, err := signer.NewHMACSigner([]byte("test-key"))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	a, err := New(Config{RPC: adapter.RPCConfig{URL: url}}, m, sg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSubmit_SingleLeg(t *testing.T) {
	srv := node(t, func(method string) (interface{}, *adapter.RPCError) {
		if method != methodSubmit {
			t.Errorf("method = %s, want %s", method, methodSubmit)
		}
		return map[string]string{"message_hash": "0xmsg"}, nil
	})
	defer srv.Close()

	handles, err := newTestAdapter(t, srv.URL).Submit(context.Background(), transfer.Request{
		ID:     "tx-1",
		From:   "assethub",
		To:     "hydration",
		Token:  "DOT",
		Amount: big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(handles) != 1 {
		t.Fatalf("got %d handles, want 1", len(handles))
	}
	if handles[0].Role != transfer.LegRoleSource || handles[0].Ref != "0xmsg" {
		t.Errorf("handle = %+v", handles[0])
	}
}

func TestSubmit_MissingMessageHash(t *testing.T) {
	srv := node(t, func(string) (interface{}, *adapter.RPCError) {
		return map[string]string{}, nil
	})
	defer srv.Close()

	_, err := newTestAdapter(t, srv.URL).Submit(context.Background(), transfer.Request{
		ID: "tx-1", From: "assethub", To: "hydration", Token: "DOT", Amount: big.NewInt(1000),
	})
	var subErr *adapter.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
}

func TestPollStatus_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		wire      map[string]string
		wantState transfer.LegState
		transient bool
	}{
		{"sent stays submitted", map[string]string{"outcome": "sent"}, transfer.LegSubmitted, false},
		{"executed confirms", map[string]string{"outcome": "executed", "amount": "1000"}, transfer.LegConfirmed, false},
		{"error fails", map[string]string{"outcome": "error", "error": "asset trap"}, transfer.LegFailed, false},
		{"unknown is transient", map[string]string{"outcome": "limbo"}, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := node(t, func(method string) (interface{}, *adapter.RPCError) {
				if method != methodStatus {
					t.Errorf("method = %s, want %s", method, methodStatus)
				}
				return tc.wire, nil
			})
			defer srv.Close()

			obs, err := newTestAdapter(t, srv.URL).PollStatus(context.Background(),
				transfer.LegHandle{Protocol: transfer.ProtocolXCM, Role: transfer.LegRoleSource, Ref: "0xmsg"})

			if tc.transient {
				var transient *adapter.TransientError
				if !errors.As(err, &transient) {
					t.Fatalf("err = %v, want TransientError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PollStatus: %v", err)
			}
			if obs.State != tc.wantState {
				t.Errorf("state = %v, want %v", obs.State, tc.wantState)
			}
		})
	}
}
