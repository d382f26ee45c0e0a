package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scrypster/relgraph/internal/config"
	"github.com/scrypster/relgraph/internal/embedding"
	"github.com/scrypster/relgraph/internal/intro"
	"github.com/scrypster/relgraph/internal/snapshot"
	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/internal/storage/memory"
	neo4jstore "github.com/scrypster/relgraph/internal/storage/neo4j"
	"github.com/scrypster/relgraph/internal/storage/postgres"
	"github.com/scrypster/relgraph/internal/storage/sqlite"
)

// backend bundles the stores selected by the storage engine.
type backend struct {
	source  storage.GraphSource
	writer  storage.GraphWriter
	results storage.ResultStore
	fixture *memory.Store // set by the file engine
	closers []func() error
}

// Close releases every store in reverse opening order.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackend opens the graph source of the configured engine. Engines that
// cannot store results (neo4j) publish into the SQLite database; the file
// engine keeps results in memory.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	switch cfg.Storage.Engine {
	case config.EngineSQLite:
		s, err := openSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.source, b.writer, b.results = s, s, s
		b.closers = append(b.closers, s.Close)

	case config.EnginePostgres:
		s, err := postgres.NewStore(cfg.Storage.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		b.source, b.writer, b.results = s, s, s
		b.closers = append(b.closers, s.Close)

	case config.EngineNeo4j:
		d, err := neo4jstore.Connect(ctx, cfg.Storage.Neo4jURI, cfg.Storage.Neo4jUser, cfg.Storage.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { return d.Close(context.Background()) })
		src := neo4jstore.NewSource(d, logger)
		src.BuildIndices(ctx)
		b.source, b.writer = src, src

		results, err := openSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("open result store: %w", err)
		}
		b.results = results
		b.closers = append(b.closers, results.Close)

	case config.EngineFile:
		s, err := memory.NewStoreFromFixture(ctx, cfg.Storage.FixturePath)
		if err != nil {
			return nil, err
		}
		logger.Warn("file engine keeps published results in memory only", "fixture", cfg.Storage.FixturePath)
		b.source, b.writer, b.results = s, s, s
		b.fixture = s

	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}

	logger.Info("storage opened", "engine", cfg.Storage.Engine)
	return b, nil
}

func openSQLite(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return sqlite.NewStore(path)
}

// newService builds the introduction service over b. The snapshot is not
// loaded yet.
func newService(cfg *config.Config, b *backend, logger *slog.Logger) (*intro.Service, error) {
	loader := snapshot.NewLoader(b.source,
		snapshot.WithPageSize(cfg.Snapshot.PageSize),
		snapshot.WithMaxParallel(cfg.Snapshot.MaxParallel),
		snapshot.WithLogger(logger),
	)

	opts := []intro.Option{intro.WithLogger(logger)}
	if cfg.Embedding.OpenAIAPIKey != "" {
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIConfig())
		if err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		opts = append(opts, intro.WithEmbedder(embedding.NewGuardedProvider(p, cfg.BreakerConfig(), logger)))
		logger.Info("semantic scoring enabled", "model", p.GetModel())
	}
	return intro.NewService(loader, cfg.IntroConfig(), opts...), nil
}

// session bundles what a one-shot command needs.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend *backend
	svc     *intro.Service
}

// openSession loads config, opens storage, and loads the first snapshot
// unless lazy is set.
func openSession(ctx context.Context, opts *rootOptions, lazy bool) (*session, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc, err := newService(cfg, b, logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if !lazy {
		if _, err := svc.Reload(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	return &session{cfg: cfg, logger: logger, backend: b, svc: svc}, nil
}

func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Warn("failed to close storage", "error", err)
	}
}
