// Package async runs a function in its own goroutine and hands back a Future
// for its result.
//
//	f := async.Async(ctx, cfg, func(ctx context.Context, cfg Config) (int, error) {
//		return run(ctx, cfg)
//	})
//	n, err := f.AwaitWithTimeout(5 * time.Second)
//	if errors.Is(err, async.ErrTimeout) {
//		// still running
//	}
//
// The poller package uses a Future as the completion handle of a polling
// run. Completed builds a Future that is already resolved, for calls that
// are rejected before any goroutine starts.
package async
