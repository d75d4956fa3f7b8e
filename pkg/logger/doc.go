// Package logger builds *slog.Logger values for flagsync components and
// provides attribute helpers that keep key names consistent across packages.
//
// New creates a JSON or text handler, applies static attributes, and wraps
// the handler so that attributes carried by the context (see AppendCtx and
// WithContextExtractors) are added to records logged with the *Context
// methods.
//
// Usage:
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "flagsync"),
//	    logger.WithLevel(cfg.LogLevel),
//	)
//	log.InfoContext(ctx, "flags synced",
//	    logger.Namespace("default"),
//	    logger.SyncMode("full"),
//	    logger.Duration(time.Since(start)),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
