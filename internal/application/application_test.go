package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/axion-mining/fleet-optimizer/internal/config"
	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
	"github.com/axion-mining/fleet-optimizer/internal/routes"
	"github.com/axion-mining/fleet-optimizer/internal/solver"
	"github.com/axion-mining/fleet-optimizer/internal/storage"
)

func TestNewInitializesDependencies(t *testing.T) {
	cfg := baseTestConfig(":8085")
	cfg.InitialParameters.NumDays = 7
	logger := zaptest.NewLogger(t)

	app, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	params, err := app.parameters.GetParameters()
	if err != nil {
		t.Fatalf("GetParameters returned error: %v", err)
	}
	if params.NumDays != 7 {
		t.Fatalf("expected initial parameters to be applied, got %+v", params)
	}
	if _, ok := app.optimizer.(*optimizer.Engine); !ok {
		t.Fatalf("expected local engine, got %T", app.optimizer)
	}
	if _, ok := app.runs.(*storage.MemoryRunStore); !ok {
		t.Fatalf("expected memory run store, got %T", app.runs)
	}
	if app.server == nil || app.router == nil || app.handler == nil || app.catalog == nil {
		t.Fatalf("expected server, router, handler, and catalog to be initialized")
	}
	if app.Server() != app.server {
		t.Fatalf("Server accessor did not return underlying instance")
	}
}

func TestRootHandlerRoutesAPIAndSolverEndpoint(t *testing.T) {
	app, err := New(baseTestConfig(":0"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	for _, tc := range []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/optimize", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	} {
		rec := httptest.NewRecorder()
		app.server.Handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, rec.Code)
		}
	}
}

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := baseTestConfig("9090")
	handler := http.NewServeMux()

	server := NewServer(cfg, handler)
	if server.Addr != ":9090" {
		t.Fatalf("expected address :9090, got %s", server.Addr)
	}
	if server.Handler != handler {
		t.Fatalf("expected handler to be applied")
	}
	if server.ReadHeaderTimeout != cfg.ReadHeaderTimeout ||
		server.WriteTimeout != cfg.WriteTimeout ||
		server.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("server timeouts do not match configuration")
	}
}

func TestOptimizeDeadlineLeavesRoomForResponse(t *testing.T) {
	tests := []struct {
		name  string
		write time.Duration
		want  time.Duration
	}{
		{name: "disabled", write: 0, want: 0},
		{name: "short", write: 30 * time.Millisecond, want: 27 * time.Millisecond},
		{name: "default", write: 120 * time.Second, want: 115 * time.Second},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := OptimizeDeadline(tc.write); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRemoteSolverAnswersBeforeWriteTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	cfg := baseTestConfig(":0")
	cfg.WriteTimeout = 200 * time.Millisecond
	cfg.Solver = config.SolverConfig{Mode: config.SolverRemote, URL: slow.URL, Timeout: time.Minute, MaxAttempts: 3}

	app, err := New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	rec := httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/optimize", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 once the optimize deadline passes, got %d", rec.Code)
	}
}

func TestNewOptimizerSelectsMode(t *testing.T) {
	catalog := routes.Default()
	logger := zaptest.NewLogger(t)

	cfg := baseTestConfig(":0")
	cfg.Engine.Jitter = 0.05
	cfg.Engine.Seed = 9
	opt, err := NewOptimizer(cfg, catalog, logger)
	if err != nil {
		t.Fatalf("local: unexpected error: %v", err)
	}
	if _, ok := opt.(*optimizer.Engine); !ok {
		t.Fatalf("local: expected *optimizer.Engine, got %T", opt)
	}

	cfg.Solver = config.SolverConfig{Mode: config.SolverRemote, URL: "http://solver:5000", Timeout: time.Second, MaxAttempts: 2}
	opt, err = NewOptimizer(cfg, catalog, logger)
	if err != nil {
		t.Fatalf("remote: unexpected error: %v", err)
	}
	if _, ok := opt.(*solver.Client); !ok {
		t.Fatalf("remote: expected *solver.Client, got %T", opt)
	}

	cfg.Solver.URL = "solver:5000"
	if _, err := NewOptimizer(cfg, catalog, logger); err == nil {
		t.Fatalf("remote: expected error for URL without scheme")
	}

	cfg.Solver.Mode = "hybrid"
	if _, err := NewOptimizer(cfg, catalog, logger); err == nil {
		t.Fatalf("expected error for unknown mode")
	}

	cfg = baseTestConfig(":0")
	cfg.Engine.Strategy = "random"
	if _, err := NewOptimizer(cfg, catalog, logger); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestNewRunStoreBackends(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	store, err := NewRunStore(ctx, config.StorageConfig{Backend: config.StorageMemory, HistoryLimit: 5}, logger)
	if err != nil {
		t.Fatalf("memory: unexpected error: %v", err)
	}
	if _, ok := store.(*storage.MemoryRunStore); !ok {
		t.Fatalf("memory: got %T", store)
	}

	mr := miniredis.RunT(t)
	store, err = NewRunStore(ctx, config.StorageConfig{Backend: config.StorageRedis, RedisURL: "redis://" + mr.Addr(), HistoryLimit: 5}, logger)
	if err != nil {
		t.Fatalf("redis: unexpected error: %v", err)
	}
	if _, ok := store.(*storage.RedisRunStore); !ok {
		t.Fatalf("redis: got %T", store)
	}
	_ = store.Close()

	if _, err := NewRunStore(ctx, config.StorageConfig{Backend: "s3"}, logger); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestResolveProjectPathFindsGoMod(t *testing.T) {
	path, err := resolveProjectPath("go.mod")
	if err != nil {
		t.Fatalf("resolveProjectPath returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected go.mod to exist at %s: %v", path, err)
	}
}

func TestNewReturnsErrorForInvalidParameters(t *testing.T) {
	cfg := baseTestConfig(":0")
	cfg.InitialParameters.NumTrucks = 0

	if _, err := New(cfg, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error for invalid parameters")
	}
}

func TestResolveProjectPathUnknownTarget(t *testing.T) {
	if _, err := resolveProjectPath("definitely-not-a-real-file"); err == nil {
		t.Fatalf("expected error for missing resource")
	}
}

func baseTestConfig(port string) config.Config {
	params := optimizer.DefaultParameters()
	params.NumDays = 3

	return config.Config{
		Port:                 port,
		LogLevel:             "info",
		InitialParameters:    params,
		ShutdownGracePeriod:  50 * time.Millisecond,
		ReadHeaderTimeout:    20 * time.Millisecond,
		WriteTimeout:         30 * time.Millisecond,
		IdleTimeout:          40 * time.Millisecond,
		EnableRequestLogging: false,
		RateLimitRPS:         0,
		RateLimitBurst:       0,
		Solver:               config.SolverConfig{Mode: config.SolverLocal},
		Engine:               config.EngineConfig{Strategy: string(optimizer.StrategyBlend)},
		Storage:              config.StorageConfig{Backend: config.StorageMemory, HistoryLimit: 10},
	}
}
