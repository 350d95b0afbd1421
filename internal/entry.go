// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/hashtrack"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/syncer"
	"github.com/starford/ansuz/internal/vecindex"
)

// stack holds the wired application components shared by the HTTP server
// and the MCP stdio server.
type stack struct {
	store        storage.Provider
	tracker      *hashtrack.Tracker
	graph        *graph.Graph
	vec          vecindex.Index
	engine       *syncer.Engine
	svc          *noteservice.Service
	snapshotPath string
}

func (s *stack) close() {
	_ = s.vec.Close()
}

// buildStack initializes storage, tracking, graph, vector index, sync
// engine, and the note service from configuration.
func buildStack(cfg *Config, logger *slog.Logger, engineOpts ...syncer.Option) (*stack, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	store, err := storage.NewVault(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	tracker, err := hashtrack.Open(cfg.State.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("init hash tracker: %w", err)
	}

	// Restore the knowledge graph from its last snapshot, if any.
	snapshotPath := filepath.Join(cfg.State.Dir, "graph.json")
	kg := graph.New()
	if err := kg.Load(snapshotPath); err != nil {
		logger.Warn("graph snapshot load failed, starting empty",
			slog.String("path", snapshotPath),
			slog.String("error", err.Error()))
	}

	embedder := vecindex.NewLocalEmbedder(cfg.Vector.Dimensions)
	var vec vecindex.Index
	switch cfg.Vector.Backend {
	case VectorBackendMemory:
		vec = vecindex.NewMemory(embedder)
	default:
		vec, err = vecindex.NewSQLite(filepath.Join(cfg.State.Dir, "vectors.db"), embedder, logger)
		if err != nil {
			return nil, fmt.Errorf("init vector index: %w", err)
		}
	}

	engine := syncer.New(store, tracker, kg, vec, snapshotPath, logger, engineOpts...)
	svc := noteservice.NewService(store, kg, tracker, engine, vec, snapshotPath)

	return &stack{
		store:        store,
		tracker:      tracker,
		graph:        kg,
		vec:          vec,
		engine:       engine,
		svc:          svc,
		snapshotPath: snapshotPath,
	}, nil
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("state_dir", cfg.State.Dir),
		slog.String("vector_backend", cfg.Vector.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Sync engine publishes lifecycle events to connected clients.
	st, err := buildStack(cfg, logger,
		syncer.WithEvents(func(kind string, payload any) {
			broker.Publish(sse.Event{Type: kind, Data: payload})
		}))
	if err != nil {
		return err
	}
	defer st.close()

	// Run initial sync.
	if _, err := st.engine.Sync(ctx, false); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// Build API service and router.
	st.svc.SetEvents(broker.PublishNoteEvent)
	apiRouter := api.NewRouter(st.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher.
	if cfg.Watcher.Enabled {
		g.Go(func() error {
			if err := syncer.Watch(gCtx, st.engine, cfg.Vault.Path, cfg.Watcher.Debounce, logger); err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server with the given options. Logs go to
// stderr because stdout carries the MCP protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	st, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	if _, err := st.engine.Sync(ctx, false); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio",
		slog.String("vault_path", cfg.Vault.Path))

	return mcpserver.New(st.svc).ServeStdio()
}
