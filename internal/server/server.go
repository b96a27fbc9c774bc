// Package server assembles the HTTP API: routes, middleware, and the wiring
// between the store, ledger, reconciliation engine, sync orchestrator, and
// file importer.
package server

import (
	"net/http"

	"github.com/rumor-ml/commons.systems/envelopes/internal/handlers"
	"github.com/rumor-ml/commons.systems/envelopes/internal/importer"
	"github.com/rumor-ml/commons.systems/envelopes/internal/ledger"
	"github.com/rumor-ml/commons.systems/envelopes/internal/middleware"
	"github.com/rumor-ml/commons.systems/envelopes/internal/progress"
	"github.com/rumor-ml/commons.systems/envelopes/internal/provider"
	"github.com/rumor-ml/commons.systems/envelopes/internal/reconcile"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
	accountsync "github.com/rumor-ml/commons.systems/envelopes/internal/sync"
)

// Server is the budget API server.
type Server struct {
	store *store.Store
	mux   *http.ServeMux
}

// Config carries the server's collaborators. Store is required; a nil
// Provider disables sync routes at the orchestrator level (they answer, but
// every sync is a credential-less no-op).
type Config struct {
	Store      *store.Store
	Provider   provider.Client
	Credential accountsync.CredentialFunc
}

// New creates a server over an open store.
func New(cfg Config) *Server {
	s := &Server{
		store: cfg.Store,
		mux:   http.NewServeMux(),
	}

	if cfg.Credential == nil {
		cfg.Credential = func(int64, string) string { return "" }
	}

	ledg := ledger.New(cfg.Store)
	engine := reconcile.New(cfg.Store)
	tracker := progress.NewMemoryTracker()
	orchestrator := accountsync.New(cfg.Store, cfg.Provider, engine, tracker, cfg.Credential)
	imp := importer.New(engine, importer.Builtin())

	s.setupRoutes(ledg, orchestrator, tracker, imp)
	return s
}

func (s *Server) setupRoutes(ledg *ledger.Ledger, orchestrator *accountsync.Orchestrator, tracker progress.Tracker, imp *importer.Importer) {
	// Health check (no auth required)
	s.mux.HandleFunc("/health", handlers.HealthCheck)

	api := handlers.NewAPIHandler(s.store, ledg)
	syncHandlers := handlers.NewSyncHandlers(orchestrator, tracker)
	importHandlers := handlers.NewImportHandlers(imp)

	protected := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, middleware.RequireUser(h))
	}

	protected("GET /api/accounts", api.GetAccounts)
	protected("POST /api/accounts/{id}/unlink", api.UnlinkAccount)

	protected("GET /api/envelopes", api.GetEnvelopes)
	protected("POST /api/envelopes", api.CreateEnvelope)
	protected("POST /api/envelopes/{id}/adjust", api.AdjustEnvelope)
	protected("POST /api/envelopes/transfer", api.TransferEnvelopes)

	protected("GET /api/transactions", api.GetTransactions)
	protected("POST /api/transactions/{id}/envelope", api.ReassignTransaction)
	protected("POST /api/transactions/{id}/duplicate", api.SetDuplicate)
	protected("POST /api/transactions/{id}/visible", api.SetVisible)
	protected("POST /api/transactions/{id}/split", api.SplitTransaction)

	protected("GET /api/keywords", api.GetKeywords)
	protected("POST /api/keywords", api.SaveKeyword)

	protected("POST /api/sync/cursor", syncHandlers.StartCursorSync)
	protected("POST /api/sync/range", syncHandlers.StartBulkSync)
	// The progress stream is keyed by an unguessable session ID and carries
	// only a percentage; it stays outside the user scope so the frontend's
	// EventSource, which cannot set headers, can subscribe.
	s.mux.HandleFunc("GET /api/sync/{id}/progress", syncHandlers.Progress)

	protected("POST /api/import", importHandlers.Import)
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.mux)
}

// Close closes the server resources.
func (s *Server) Close() error {
	return s.store.Close()
}
