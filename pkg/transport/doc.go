// Package transport fetches flag configuration from remote or local sources.
//
// Every Transport supports two fetch modes. ModeFull returns the parsed
// configuration together with its raw bytes. ModeTimeOnly is a cheap probe
// that only reports when the configuration last changed. Both carry the
// change time in the Updated-At header (seconds, integer or fractional), which
// UpdatedAtMillis converts to milliseconds:
//
//	resp, err := t.FetchConfig(ctx, transport.ModeTimeOnly)
//	if err != nil {
//		return err
//	}
//	if ts, ok := resp.UpdatedAtMillis(); ok && ts != lastSeen {
//		resp, err = t.FetchConfig(ctx, transport.ModeFull)
//	}
//
// Implementations:
//
//   - HTTPTransport talks to the flag API (GET /v1/flags and
//     GET /v1/flags/updated-at) with bearer authentication.
//   - S3Transport reads one object with GetObject and probes it with
//     HeadObject. The timestamp comes from the "updated-at" object metadata or
//     from LastModified.
//   - FileTransport reads a JSON or YAML file and uses its modification time.
//   - Func adapts a plain function, which is handy in tests.
package transport
