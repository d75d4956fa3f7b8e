package poller

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/metrics"
)

const DefaultInterval = 30 * time.Second

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the delay between successful runs.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBackoff adds d to the delay for every consecutive failure.
func WithBackoff(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithMaxFailures stops the scheduler after n consecutive failures.
// Zero means unlimited.
func WithMaxFailures(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.maxFailures = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithOnExhausted registers a hook called with the terminal error when the
// scheduler stops itself after too many failures.
func WithOnExhausted(fn func(err error)) Option {
	return func(s *Scheduler) { s.onExhausted = fn }
}
