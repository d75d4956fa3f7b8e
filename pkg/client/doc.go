// Package client is the evaluation facade of flagsync.
//
// A Client wraps a repository.Repository and exposes typed getters. Each
// getter converts the caller's attributes into a feature.EvaluationContext,
// looks the flag up in the repository's result cache, evaluates it on a
// miss, and applies the caller's default:
//
//	c := client.New("checkout", repo, client.WithPolling(poller.WithInterval(30*time.Second)))
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	defer c.ShutDown(ctx)
//
//	res := c.GetBoolean("new-ui", false, user.ID, map[string]any{"country": user.Country})
//	if res.Value {
//	    ...
//	}
//
// Results always carry a value: failures are reported through Reason and
// ErrorCode and fall back to the default. A Registry keeps one client per
// domain for applications that evaluate several configurations.
package client
