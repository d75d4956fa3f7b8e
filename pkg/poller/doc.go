// Package poller runs an operation on a fixed interval with linear backoff
// on failure.
//
// A Scheduler is Idle, Running or Killed. Start moves it to Running and runs
// the operation immediately; each following run waits for the interval plus
// one backoff step per consecutive failure. When WithMaxFailures is set and
// that many runs fail in a row, the scheduler returns to Idle on its own and
// the Result of the run completes with ErrMaxFailures. Stop also returns it
// to Idle; Kill is final.
//
//	s, err := poller.New(repo.SyncFlags,
//	    poller.WithInterval(30*time.Second),
//	    poller.WithBackoff(5*time.Second),
//	    poller.WithMaxFailures(10),
//	)
//	res := s.Start(ctx)
//	...
//	s.Stop()
//	runs, err := res.Await()
//
// The operation receives a context that is not cancelled by Stop or Kill, so
// a run in progress always completes and its effects are kept.
package poller
