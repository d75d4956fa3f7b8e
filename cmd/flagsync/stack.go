package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/flagsync/pkg/cache"
	"github.com/dmitrymomot/flagsync/pkg/config"
	"github.com/dmitrymomot/flagsync/pkg/kv"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/metrics"
	"github.com/dmitrymomot/flagsync/pkg/pg"
	"github.com/dmitrymomot/flagsync/pkg/redis"
	"github.com/dmitrymomot/flagsync/pkg/repository"
	"github.com/dmitrymomot/flagsync/pkg/snapshot"
	"github.com/dmitrymomot/flagsync/pkg/transport"
)

// stack is the wired engine for one namespace.
type stack struct {
	repo      *repository.Repository
	snapshots snapshot.Store
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	checks    map[string]func(context.Context) error
	closers   []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (a *app) buildStack(ctx context.Context) (*stack, error) {
	s := &stack{
		registry: prometheus.NewRegistry(),
		checks:   make(map[string]func(context.Context) error),
	}
	s.metrics = metrics.New(s.registry, prometheus.Labels{"namespace": a.cfg.Namespace})

	tr, err := a.buildTransport(ctx)
	if err != nil {
		return nil, err
	}

	persistent, err := a.buildCache(ctx, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	snaps, err := a.buildSnapshots(ctx, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.snapshots = snaps

	repo, err := repository.New(tr, snaps, persistent,
		repository.WithNamespace(a.cfg.Namespace),
		repository.WithLogger(a.log),
		repository.WithMetrics(s.metrics),
		repository.WithResultCacheSize(a.cfg.ResultCacheSize),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.repo = repo
	return s, nil
}

func (a *app) buildTransport(ctx context.Context) (transport.Transport, error) {
	switch a.cfg.Source {
	case config.SourceHTTP:
		return transport.NewHTTPTransport(a.cfg.HTTPConfig(),
			transport.WithLogger(a.log),
			transport.WithUserAgent("flagsync-cli"),
		)
	case config.SourceS3:
		return transport.NewS3Transport(ctx, a.cfg.S3Config())
	case config.SourceFile:
		return transport.NewFileTransport(a.cfg.FilePath)
	default:
		return nil, fmt.Errorf("unknown source %q", a.cfg.Source)
	}
}

func (a *app) buildCache(ctx context.Context, s *stack) (cache.Cache, error) {
	if a.cfg.CacheBackend != config.BackendRedis {
		return cache.NewMemoryCache(a.cfg.Namespace), nil
	}

	client, err := redis.Connect(ctx, a.cfg.Redis, a.log)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = client.Close() })
	s.checks["redis"] = redis.Healthcheck(client)

	var opts []cache.PersistentOption
	if a.cfg.NativeDoubles {
		opts = append(opts, cache.WithNativeDoubles())
	}
	store := kv.NewRedisStore(client, kv.WithScanBatchSize(a.cfg.Redis.ScanBatchSize))
	return cache.NewPersistentCache(a.cfg.Namespace, store, opts...), nil
}

func (a *app) buildSnapshots(ctx context.Context, s *stack) (snapshot.Store, error) {
	opts := []snapshot.Option{
		snapshot.WithRetention(a.cfg.SnapshotRetention),
		snapshot.WithLogger(a.log.With(logger.Component("snapshots"))),
	}
	if a.cfg.SnapshotBackend != config.BackendPostgres {
		return snapshot.NewMemoryStore(opts...), nil
	}

	pool, err := pg.Connect(ctx, a.cfg.Postgres, a.log)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, pool.Close)
	s.checks["postgres"] = pg.Healthcheck(pool)

	if err := snapshot.Migrate(ctx, pool, a.cfg.Postgres, a.log); err != nil {
		return nil, fmt.Errorf("snapshot migrations: %w", err)
	}
	return snapshot.NewPostgresStore(pool, opts...), nil
}
