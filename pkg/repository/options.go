package repository

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/metrics"
)

const DefaultResultCacheSize = 1024

// Option configures a Repository.
type Option func(*Repository)

// WithNamespace sets the snapshot namespace. It defaults to the namespace of
// the persistent cache.
func WithNamespace(ns string) Option {
	return func(r *Repository) {
		if ns != "" {
			r.namespace = ns
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithResultCacheSize bounds the evaluation result cache. Values below 1 are ignored.
func WithResultCacheSize(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.resultCacheSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}
