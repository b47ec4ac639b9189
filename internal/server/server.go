// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: every dependency is built here,
// once, and handed down. Nothing below it constructs its own collaborators.
//
// DEPENDENCY GRAPH:
//
//	sqlite.DB ──┬─ SnippetService ── SnippetHandler
//	            ├─ Tracker ── Recorder (async history writes)
//	            └─ search.Service ── SearchHandler
//	TextIndex: sqlite.DB (fts5) or bleveindex.Index (bleve)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/snippet-catalog/internal/auth"
	"github.com/sakif/snippet-catalog/internal/config"
	"github.com/sakif/snippet-catalog/internal/handler"
	"github.com/sakif/snippet-catalog/internal/middleware"
	"github.com/sakif/snippet-catalog/internal/repository"
	"github.com/sakif/snippet-catalog/internal/repository/bleveindex"
	sqliteRepo "github.com/sakif/snippet-catalog/internal/repository/sqlite"
	"github.com/sakif/snippet-catalog/internal/search"
	"github.com/sakif/snippet-catalog/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database, the optional bleve index and the history
// recorder. Close releases them in reverse order of creation.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	bleve    *bleveindex.Index // nil with the fts5 backend
	recorder *search.Recorder
}

// New creates a Server from cfg. The recorder is started here; Close (or
// Start's shutdown path) stops it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	index, indexer, err := s.openIndex(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	tracker := search.NewTracker(db, logger)
	s.recorder = search.NewRecorder(tracker, cfg.Search.HistoryQueueSize, logger)
	s.recorder.Start()

	searchService := search.NewService(
		db,
		search.NewEngine(index, cfg.Search.Timeout, cfg.Search.MaxHits),
		search.NewHighlighter(cfg.Search.HighlightOpenTag, cfg.Search.HighlightCloseTag),
		s.recorder,
		logger,
	)
	snippetService := service.NewSnippetService(db, indexer, logger)

	ownerAuth, tokens, err := s.ownerAuth()
	if err != nil {
		s.Close()
		return nil, err
	}

	s.setupRoutes(
		handler.NewSearchHandler(searchService, tracker, logger),
		handler.NewSnippetHandler(snippetService, searchService, logger),
		handler.NewAuthHandler(ownerAuth, cfg.Server.SecureCookie, logger),
		tokens,
	)
	return s, nil
}

// openIndex picks the full-text backend.
//
// fts5: SQLite keeps its own index current through triggers, so writes need
// no extra indexing step.
//
// bleve: a separate index that the snippet service updates on every write.
// It is rebuilt from the store at startup, so a crash between a store write
// and an index write heals on the next boot.
func (s *Server) openIndex(ctx context.Context) (repository.TextIndex, repository.SnippetIndexer, error) {
	if s.config.Search.Backend != config.BackendBleve {
		return s.db, nil, nil
	}

	idx, err := bleveindex.Open(s.config.Search.IndexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening search index: %w", err)
	}

	start := time.Now()
	all, err := s.db.FindSnippets(ctx, repository.SnippetQuery{})
	if err == nil {
		err = idx.Rebuild(ctx, all)
	}
	if err != nil {
		idx.Close()
		return nil, nil, fmt.Errorf("rebuilding search index: %w", err)
	}
	s.logger.Info("search index rebuilt",
		slog.String("backend", config.BackendBleve),
		slog.Int("snippets", len(all)),
		slog.Duration("took", time.Since(start)),
	)

	s.bleve = idx
	return idx, idx, nil
}

// ownerAuth builds the login service. Without an owner password, tokens is
// nil and RequireAuth lets every write through.
func (s *Server) ownerAuth() (*service.OwnerAuth, *auth.TokenService, error) {
	if !s.config.AuthEnabled() {
		s.logger.Warn("owner password not set: snippet writes are unauthenticated")
		return service.NewOwnerAuth("", nil, nil, s.logger), nil, nil
	}

	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("creating token service: %w", err)
	}
	owner := service.NewOwnerAuth(s.config.Auth.OwnerPasswordHash, tokens, auth.NewPasswordService(), s.logger)
	return owner, tokens, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                   → liveness + database ping
//	GET    /api/search                → full search
//	GET    /api/search/suggestions    → type-ahead
//	GET    /api/search/stats          → popular queries
//	GET    /api/search/history        → recent searches
//	POST   /api/search/history        → record a search
//	DELETE /api/search/history[?id=]  → forget one / all
//	GET    /api/metadata              → languages + tags
//	GET    /api/snippets              → list (legacy ?q=&tag=)
//	GET    /api/snippets/{id}         → one snippet
//	POST   /api/snippets              → create        [owner]
//	PUT    /api/snippets/{id}         → update        [owner]
//	DELETE /api/snippets/{id}         → delete        [owner]
//	POST   /auth/login, /auth/logout
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can print it; Recoverer last so a panic
// still gets logged as a 500.
func (s *Server) setupRoutes(sh *handler.SearchHandler, nh *handler.SnippetHandler, ah *handler.AuthHandler, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/search", func(r chi.Router) {
			r.Get("/", sh.HandleSearch)
			r.Get("/suggestions", sh.HandleSuggestions)
			r.Get("/stats", sh.HandleStats)
			r.Get("/history", sh.HandleHistory)
			r.Post("/history", sh.HandleRecordHistory)
			r.Delete("/history", sh.HandleDeleteHistory)
		})
		r.Get("/metadata", sh.HandleMetadata)

		r.Get("/snippets", nh.HandleList)
		r.Get("/snippets/{id}", nh.HandleGet)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Post("/snippets", nh.HandleCreate)
			r.Put("/snippets/{id}", nh.HandleUpdate)
			r.Delete("/snippets/{id}", nh.HandleDelete)
		})
	})

	s.router.Post("/auth/login", ah.HandleLogin)
	s.router.Post("/auth/logout", ah.HandleLogout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the recorder (draining queued history writes) and releases
// the index and the database. Safe to call more than once.
func (s *Server) Close() error {
	if s.recorder != nil {
		s.recorder.Stop()
	}
	var errs []error
	if s.bleve != nil {
		if err := s.bleve.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing search index: %w", err))
		}
		s.bleve = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
		s.db = nil
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Drain the history queue, then close the index and database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Path),
			slog.String("search_backend", s.config.Search.Backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
