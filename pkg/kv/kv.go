// Package kv defines the string key-value boundary used by the persistent
// flag cache, with an in-memory implementation for tests and embedded use
// and a Redis implementation for durable storage.
package kv

import (
	"context"
	"errors"
)

// ErrStoreFailed wraps errors from the underlying storage engine.
var ErrStoreFailed = errors.New("kv: store operation failed")

// Store is a flat string key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value of key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists every key starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
