package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lcalzada-xor/presenced/internal/adapters/evidence"
	"github.com/lcalzada-xor/presenced/internal/adapters/storage"
	"github.com/lcalzada-xor/presenced/internal/adapters/web"
	"github.com/lcalzada-xor/presenced/internal/config"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
	"github.com/lcalzada-xor/presenced/internal/core/services/engine"
	"github.com/lcalzada-xor/presenced/internal/mock"
	"github.com/lcalzada-xor/presenced/internal/telemetry"
)

// App wires the engine, its stores and the HTTP surface together for one
// process lifetime.
type App struct {
	cfg     *config.Config
	engine  *engine.Engine
	records *storage.SQLiteAdapter
	server  *web.Server

	// set when the in-memory store is used; nil with redis
	memStore *evidence.MemoryStore
	// non-nil only in mock mode
	generator *mock.Generator
}

// New constructs the application from loaded configuration. The returned
// App owns the engine's key material; call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	telemetry.InitMetrics()

	clock := ports.SystemClock{}

	var store ports.EvidenceStore
	var memStore *evidence.MemoryStore
	if cfg.RedisAddr != "" {
		rs, err := evidence.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connecting evidence store: %w", err)
		}
		store = rs
		slog.Info("evidence store ready", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		memStore = evidence.NewMemoryStore(clock)
		store = memStore
		slog.Info("evidence store ready", "backend", "memory")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	records, err := storage.NewSQLiteAdapter(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening attendance database: %w", err)
	}

	ec, err := cfg.Engine()
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(ec, store, records, clock, actorAllowlist(cfg.OverrideActors))
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		engine:   eng,
		records:  records,
		memStore: memStore,
		server:   web.NewServer(cfg.Addr, eng, records),
	}

	if cfg.MockMode {
		app.generator = mock.NewGenerator(eng, clock)
	}

	return app, nil
}

// actorAllowlist builds the default override authorisation predicate. An
// empty allowlist means overrides are disabled.
func actorAllowlist(actors []string) ports.OverrideAuthorizer {
	allowed := make(map[string]struct{}, len(actors))
	for _, a := range actors {
		allowed[a] = struct{}{}
	}
	return func(_ context.Context, actorID, _ string) bool {
		_, ok := allowed[actorID]
		return ok
	}
}

// Run blocks serving HTTP until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.memStore != nil {
		a.memStore.StartJanitor(ctx, time.Minute)
	}
	if a.generator != nil {
		slog.Warn("mock mode enabled, feeding synthetic responses")
		a.generator.Start(ctx)
	}

	slog.Info("server listening", "addr", a.cfg.Addr, "mock", a.cfg.MockMode)
	return a.server.Run(ctx)
}

// Close releases key material and storage handles.
func (a *App) Close() {
	a.engine.Close()
	a.cfg.Zeroize()
	if err := a.records.Close(); err != nil {
		slog.Warn("closing attendance database", "error", err)
	}
}
