package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/axion-mining/fleet-optimizer/internal/api"
	"github.com/axion-mining/fleet-optimizer/internal/config"
	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
	"github.com/axion-mining/fleet-optimizer/internal/routes"
	"github.com/axion-mining/fleet-optimizer/internal/solver"
	"github.com/axion-mining/fleet-optimizer/internal/storage"
)

const (
	connectTimeout = 10 * time.Second
	redisPrefix    = "fleetopt"

	// maxResponseMargin is the time reserved after an optimization deadline
	// for writing the error response.
	maxResponseMargin = 5 * time.Second
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	catalog    *routes.Catalog
	optimizer  optimizer.Optimizer
	parameters storage.ParameterStore
	runs       storage.RunStore
	handler    *api.Handler
	router     http.Handler
	logger     *zap.Logger
	server     *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	params := storage.NewMemoryParameterStore()
	if err := params.SetParameters(cfg.InitialParameters); err != nil {
		return nil, fmt.Errorf("failed to apply initial parameters: %w", err)
	}

	catalog := routes.Default()
	opt, err := NewOptimizer(cfg, catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build optimizer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	runs, err := NewRunStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	handler := api.NewHandler(opt, catalog, params, runs,
		api.WithMode(cfg.Solver.Mode),
		api.WithLogger(logger),
		api.WithOptimizeTimeout(OptimizeDeadline(cfg.WriteTimeout)),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	rootHandler, err := BuildRootHandler(apiRouter)
	if err != nil {
		_ = runs.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		catalog:    catalog,
		optimizer:  opt,
		parameters: params,
		runs:       runs,
		handler:    handler,
		router:     apiRouter,
		logger:     logger,
		server:     NewServer(cfg, rootHandler),
	}, nil
}

// OptimizeDeadline returns how long one optimization may run so the handler
// can still answer before the server's write timeout closes the connection.
// Zero means the server has no write timeout.
func OptimizeDeadline(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return 0
	}
	margin := writeTimeout / 10
	if margin > maxResponseMargin {
		margin = maxResponseMargin
	}
	return writeTimeout - margin
}

// NewOptimizer returns the single optimizer selected by cfg.Solver.Mode.
// Remote mode never falls back to the local engine.
func NewOptimizer(cfg config.Config, catalog *routes.Catalog, logger *zap.Logger) (optimizer.Optimizer, error) {
	switch cfg.Solver.Mode {
	case config.SolverLocal, "":
		strategy, err := optimizer.ParseStrategy(cfg.Engine.Strategy)
		if err != nil {
			return nil, err
		}
		opts := []optimizer.Option{
			optimizer.WithStrategy(strategy),
			optimizer.WithLogger(logger),
		}
		if cfg.Engine.Jitter > 0 {
			opts = append(opts, optimizer.WithJitter(cfg.Engine.Jitter, cfg.Engine.Seed))
		}
		engine, err := optimizer.New(catalog, opts...)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case config.SolverRemote:
		client, err := solver.NewClient(cfg.Solver.URL,
			solver.WithHTTPClient(&http.Client{Timeout: cfg.Solver.Timeout}),
			solver.WithMaxAttempts(cfg.Solver.MaxAttempts),
			solver.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown solver mode %q", optimizer.ErrConfiguration, cfg.Solver.Mode)
	}
}

// NewRunStore opens the run history backend named by cfg.Backend.
func NewRunStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.RunStore, error) {
	switch cfg.Backend {
	case config.StorageMemory, "":
		return storage.NewMemoryRunStore(cfg.HistoryLimit), nil
	case config.StorageRedis:
		store, err := storage.OpenRedisRunStore(ctx, cfg.RedisURL, storage.RedisOptions{
			Prefix: redisPrefix,
			TTL:    cfg.TTL,
			Limit:  cfg.HistoryLimit,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("run history backed by redis")
		return store, nil
	case config.StoragePostgres:
		store, err := storage.OpenPostgresRunStore(ctx, cfg.PostgresDSN, cfg.HistoryLimit)
		if err != nil {
			return nil, err
		}
		logger.Info("run history backed by postgres")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// BuildRootHandler constructs the root HTTP handler that serves static files and routes API requests.
func BuildRootHandler(apiHandler http.Handler) (http.Handler, error) {
	mux := http.NewServeMux()

	staticPath, err := resolveProjectPath(filepath.Join("web", "static"))
	if err != nil {
		return nil, err
	}
	staticDir := http.Dir(staticPath)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(staticDir)))
	mux.Handle("/api/", apiHandler)
	mux.Handle("/optimize", apiHandler)
	mux.Handle("/metrics", apiHandler)

	indexPath, err := resolveProjectPath(filepath.Join("web", "templates", "index.html"))
	if err != nil {
		return nil, err
	}
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, indexPath)
	}))

	return mux, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Close releases the run store. Call it after the server has shut down.
func (a *App) Close() error {
	return a.runs.Close()
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
