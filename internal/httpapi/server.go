// Package httpapi exposes the engine over HTTP: transfer submission, the
// normalized transaction records consumed by the analytics and UI layers,
// the leg-transition audit trail, health and Prometheus metrics.
//
// The read surface is a contract boundary: a transaction's status is
// always serialized as one of pending, succeeded or failed, and consumers
// never observe a value outside that enumeration.
package httpapi

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bridgeflow/transfer_engine/internal/chainid"
	"github.com/bridgeflow/transfer_engine/internal/events"
	"github.com/bridgeflow/transfer_engine/internal/logging"
	"github.com/bridgeflow/transfer_engine/internal/metrics"
	"github.com/bridgeflow/transfer_engine/internal/orchestrator"
	"github.com/bridgeflow/transfer_engine/internal/route"
	"github.com/bridgeflow/transfer_engine/internal/storage"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// Server is the HTTP API server.
type Server struct {
	orch    *orchestrator.Orchestrator
	store   storage.TransactionStore
	events  events.Log
	metrics *metrics.Collector
	logger  *logging.Logger
	router  *mux.Router
}

// Config holds server configuration.
type Config struct {
	JWTSecret []byte
}

// NewServer builds the router with all routes registered.
func NewServer(cfg Config, orch *orchestrator.Orchestrator, store storage.TransactionStore,
	evts events.Log, collector *metrics.Collector, logger *logging.Logger) *Server {
	s := &Server{
		orch:    orch,
		store:   store,
		events:  evts,
		metrics: collector,
		logger:  logger,
		router:  mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if collector != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/transfers", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/transfers", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/transfers/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/transfers/{id}/audit", s.handleAudit).Methods(http.MethodGet)
	api.HandleFunc("/transfers/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{id}/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	if len(cfg.JWTSecret) > 0 {
		// Health and metrics live on the root router and are never routed
		// through this subrouter, so no paths are exempted here.
		auth := NewAuthMiddleware(cfg.JWTSecret, logger, nil)
		api.Use(mux.MiddlewareFunc(auth.Handler))
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

type submitRequest struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer string")
		return
	}

	tx, err := s.orch.Submit(r.Context(), transfer.Request{
		ID:        req.ID,
		From:      transfer.CanonicalChainID(req.From),
		To:        transfer.CanonicalChainID(req.To),
		Token:     req.Token,
		Amount:    amount,
		Sender:    req.Sender,
		Recipient: req.Recipient,
	})
	if err != nil {
		var notFound route.NotFoundError
		var unknownID chainid.UnknownIdentityError
		switch {
		case errors.As(err, &notFound):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.As(err, &unknownID):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			// Adapter rejections still produced a terminal failed record.
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":       err.Error(),
				"transaction": tx,
			})
		}
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tx, err := s.orch.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transfer not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.ListTransactions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transfers": txs})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	trail, err := s.store.ListAudit(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit": trail})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orch.Cancel(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transfer not tracked")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orch.Resume(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transfer not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := 100
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.events.Recent(n)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
