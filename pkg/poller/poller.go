package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/async"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/metrics"
)

// State is the lifecycle state of a Scheduler.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Scheduler runs an operation periodically. A failed run delays the next one
// by an extra backoff step per consecutive failure; a success resets the
// count.
//
// Stopping cancels the pending delay but never the operation itself: an
// in-flight run completes, and the loop exits right after it.
type Scheduler struct {
	op          func(ctx context.Context) error
	interval    time.Duration
	backoff     time.Duration
	maxFailures int
	log         *slog.Logger
	metrics     *metrics.Metrics
	onExhausted func(err error)

	mu       sync.Mutex
	state    State
	active   *run
	failures atomic.Int32
}

// Result completes when a polling run ends. Its value is the number of
// operation runs. Its error tells why the run ended: nil after Stop or
// context cancellation, ErrKilled after Kill, ErrMaxFailures (joined with the
// last operation error) after too many consecutive failures.
type Result = async.Future[int]

type run struct {
	cancel context.CancelFunc
	result *Result
	reason error // set under Scheduler.mu before cancel
}

// New creates an idle scheduler for op.
func New(op func(ctx context.Context) error, opts ...Option) (*Scheduler, error) {
	if op == nil {
		return nil, ErrNilOperation
	}
	s := &Scheduler{
		op:       op,
		interval: DefaultInterval,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("poller"))
	return s, nil
}

// Start begins polling and returns the Result of this run. The operation
// runs immediately. Calling Start while running returns the current Result;
// after Kill it returns a completed Result with ErrKilled.
//
// Cancelling ctx behaves like Stop.
func (s *Scheduler) Start(ctx context.Context) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateKilled:
		return async.Completed(0, ErrKilled)
	case StateRunning:
		return s.active.result
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	s.active = r
	s.state = StateRunning
	s.failures.Store(0)
	s.metrics.PollerFailures(0)

	r.result = async.Async(loopCtx, r, s.loop)
	s.log.DebugContext(ctx, "poller started", slog.Duration("interval", s.interval))
	return r.result
}

// Stop ends the current run and waits for the loop to exit. The scheduler
// returns to idle and can be started again.
func (s *Scheduler) Stop() {
	s.halt(nil)
}

// Kill ends the current run for good. Later Start calls fail with ErrKilled.
func (s *Scheduler) Kill() {
	s.halt(ErrKilled)
}

func (s *Scheduler) halt(reason error) {
	s.mu.Lock()
	if reason != nil {
		s.state = StateKilled
	}
	r := s.active
	if r != nil {
		r.reason = reason
		r.cancel()
	}
	s.mu.Unlock()

	if r != nil {
		<-r.result.Done()
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failures returns the number of consecutive failed runs.
func (s *Scheduler) Failures() int {
	return int(s.failures.Load())
}

func (s *Scheduler) loop(ctx context.Context, r *run) (int, error) {
	defer r.cancel()

	for runs := 1; ; runs++ {
		err := s.op(context.WithoutCancel(ctx))

		var failures int
		if err == nil {
			s.failures.Store(0)
		} else {
			failures = int(s.failures.Add(1))
			s.log.WarnContext(ctx, "poll failed", logger.RetryCount(failures), logger.Error(err))
		}
		s.metrics.PollerFailures(failures)

		if ctx.Err() != nil {
			return runs, s.finish(r, nil)
		}

		if err != nil && s.maxFailures > 0 && failures >= s.maxFailures {
			terminal := s.finish(r, errors.Join(ErrMaxFailures, err))
			s.log.ErrorContext(ctx, "poller stopped after consecutive failures", logger.RetryCount(failures), logger.Error(err))
			if s.onExhausted != nil {
				s.onExhausted(terminal)
			}
			return runs, terminal
		}

		timer := time.NewTimer(s.delay(failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			return runs, s.finish(r, nil)
		case <-timer.C:
		}
	}
}

func (s *Scheduler) delay(failures int) time.Duration {
	return s.interval + time.Duration(failures)*s.backoff
}

// finish detaches r and returns the error its Result completes with. A
// non-nil err wins over the stop reason.
func (s *Scheduler) finish(r *run, err error) error {
	s.mu.Lock()
	if err == nil {
		err = r.reason
	}
	if s.active == r {
		s.active = nil
		if s.state == StateRunning {
			s.state = StateIdle
		}
	}
	s.mu.Unlock()

	s.log.Debug("poller stopped", logger.Error(err))
	return err
}
