package snapshot

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultNamespace = "default"
	DefaultRetention = 3
)

// ConfigSnapshot is one persisted copy of a flag configuration payload.
type ConfigSnapshot struct {
	ID        int64
	Namespace string
	Version   *string
	ETag      *string
	CreatedAt time.Time
	IsActive  bool
	JSON      []byte
}

// Store persists snapshots. Each namespace has at most one active snapshot.
type Store interface {
	// Current returns the active snapshot, or nil when the namespace has none.
	Current(ctx context.Context, namespace string) (*ConfigSnapshot, error)

	// Replace stores s as the new active snapshot of s.Namespace and trims the
	// namespace to the retention limit. It either fully succeeds or leaves the
	// previous state untouched. Returns the new snapshot id.
	Replace(ctx context.Context, s ConfigSnapshot) (int64, error)

	// History lists the retained snapshots of namespace, newest first.
	History(ctx context.Context, namespace string) ([]ConfigSnapshot, error)
}

// Option configures a store.
type Option func(*options)

type options struct {
	retention int
	now       func() time.Time
	logger    *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		retention: DefaultRetention,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRetention keeps the n most recent snapshots per namespace. Values
// below 1 are ignored.
func WithRetention(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.retention = n
		}
	}
}

// WithClock sets the time source used for snapshots without CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func prepare(s ConfigSnapshot, o options) (ConfigSnapshot, error) {
	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
	}
	if len(s.JSON) == 0 {
		return s, ErrEmptyPayload
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = o.now()
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.IsActive = true
	return s, nil
}

func namespaceOrDefault(ns string) string {
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}
