// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/linker"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/organizer"
	"github.com/starford/ansuz/internal/registry"
	"github.com/starford/ansuz/internal/retrieval"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/watcher"
	"github.com/starford/ansuz/internal/zettelid"
	"github.com/starford/ansuz/internal/zkindex"
)

// core bundles the wired application components shared by the serve, mcp,
// and reindex entry points.
type core struct {
	cfg       *Config
	logger    *slog.Logger
	store     storage.Provider
	index     *noteindex.Index
	db        search.NoteSearch
	broker    *sse.Broker
	registry  *registry.Registry
	searcher  *retrieval.Searcher
	structure *zkindex.StructureIndex
	organizer *organizer.Service
	svc       *noteservice.Service
}

func buildCore(ctx context.Context, app *application, logOut io.Writer) (*core, error) {
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	ix := noteindex.New(store, logger)
	if err := ix.Rebuild(); err != nil {
		return nil, fmt.Errorf("build note index: %w", err)
	}

	db, err := search.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init search db: %w", err)
	}
	if err := search.Sync(db, store, logger); err != nil {
		logger.Warn("initial search sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(2 * time.Second)
	broker.Notify("index_synced", map[string]string{
		"notes": fmt.Sprintf("%d", ix.Len()),
	})

	client := app.classifier
	if client == nil {
		client, err = classifier.NewGemini(ctx, cfg.Classifier.APIKey, cfg.Classifier.Model)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init classifier: %w", err)
		}
	}
	retry := classifier.DefaultRetryConfig()
	if cfg.Classifier.MaxRetries > 0 {
		retry.MaxRetries = cfg.Classifier.MaxRetries
	}
	gateway := classifier.NewGateway(client, cfg.Classifier.MinInterval, retry, logger)

	reg := registry.New(store, ix, gateway, logger)
	reg.Scan()

	alloc := zettelid.New(cfg.Organizer.Scheme())
	seedAllocator(alloc, ix)

	searcher := retrieval.NewSearcher(ix, gateway, logger)

	// Merge proposals are surfaced to SSE subscribers before the engine
	// proceeds, so a UI can show what happened and why.
	resolver := linker.ResolverFunc(func(_ context.Context, cand classifier.ZkCandidate, target retrieval.Result) (bool, error) {
		broker.Notify("merge_pending", map[string]string{
			"title":     cand.Title,
			"target":    target.Record.Path,
			"relevance": fmt.Sprintf("%.2f", target.Relevance),
		})
		return true, nil
	})

	engine := linker.NewEngine(linker.Config{
		Store:          store,
		Index:          ix,
		Searcher:       searcher,
		Allocator:      alloc,
		Resolver:       resolver,
		Logger:         logger,
		ZettelFolder:   cfg.Organizer.ZettelFolder,
		MergeThreshold: cfg.Organizer.MergeThreshold,
	})

	structure := zkindex.New(store, ix, "", logger)

	org := organizer.New(organizer.Config{
		Store:          store,
		Index:          ix,
		Gateway:        gateway,
		Registry:       reg,
		Engine:         engine,
		Structure:      structure,
		Notifier:       broker,
		Logger:         logger,
		InboxFolder:    cfg.Organizer.InboxFolder,
		NotesFolder:    cfg.Organizer.NotesFolder,
		ProjectsFolder: cfg.Organizer.ProjectsFolder,
		Quiescence:     cfg.Organizer.Quiescence,
		Pacing:         cfg.Organizer.Pacing,
	})

	svc := noteservice.NewService(store, ix, db)

	return &core{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		index:     ix,
		db:        db,
		broker:    broker,
		registry:  reg,
		searcher:  searcher,
		structure: structure,
		organizer: org,
		svc:       svc,
	}, nil
}

// seedAllocator initialises the ID allocator from the identifiers already
// present in the vault.
func seedAllocator(alloc *zettelid.Allocator, ix *noteindex.Index) {
	var ids []string
	for rec := range ix.Query(func(rec noteindex.Record) bool {
		return rec.Kind == note.KindZettel
	}) {
		ids = append(ids, zettelid.IDFromPath(rec.Path))
	}
	alloc.Seed(ids, len(ids))
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	c, err := buildCore(ctx, app, os.Stdout)
	if err != nil {
		return err
	}
	defer c.db.Close()

	cfg := c.cfg
	logger := c.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	handler := api.NewHandler(c.svc, c.organizer, c.registry, c.searcher, c.structure)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

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

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Organizer worker: drains the debounced inbox queue.
	g.Go(func() error {
		return c.organizer.Run(gCtx)
	})

	// File watcher: keeps both indexes current and feeds the organizer.
	g.Go(func() error {
		return watchVault(gCtx, c)
	})

	// HTTP server.
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
		c.broker.Close()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server with the given options. The HTTP
// server and file watcher are not started; stdin/stdout belong to the MCP
// transport.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	c, err := buildCore(ctx, app, os.Stderr)
	if err != nil {
		return err
	}
	defer c.db.Close()

	srv := mcpserver.New(c.svc, c.organizer, c.registry, c.searcher)
	return srv.ServeStdio()
}

// Reindex rebuilds the search database and the structure index document,
// then exits.
func Reindex(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	c, err := buildCore(ctx, app, os.Stdout)
	if err != nil {
		return err
	}
	defer c.db.Close()

	if err := search.Sync(c.db, c.store, c.logger); err != nil {
		return fmt.Errorf("search sync: %w", err)
	}
	if err := c.structure.Rebuild(); err != nil {
		return fmt.Errorf("structure rebuild: %w", err)
	}
	c.logger.Info("Reindex complete", slog.Int("notes", c.index.Len()))
	return nil
}

func watchVault(ctx context.Context, c *core) error {
	return watcher.Watch(ctx, watcher.Config{
		Store:       c.store,
		Index:       c.index,
		Search:      c.db,
		VaultRoot:   c.cfg.Vault.Path,
		Logger:      c.logger,
		OnEvent:     c.broker.PublishNoteEvent,
		InboxFolder: c.cfg.Organizer.InboxFolder,
		Enqueue:     c.organizer.Enqueue,
	})
}
