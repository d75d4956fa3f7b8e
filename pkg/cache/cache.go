package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Cache is a key-value cache partitioned by namespace. Every key a Cache
// writes is prefixed with its namespace, and InvalidateNamespace removes
// exactly those keys.
type Cache interface {
	Namespace() string

	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) (any, bool, error)

	// Put stores value under key. A nil value removes the key.
	Put(ctx context.Context, key string, value any) error

	// PutAll stores every entry. It is not atomic across keys.
	PutAll(ctx context.Context, entries map[string]any) error

	Delete(ctx context.Context, key string) error

	// InvalidateNamespace removes every key of this namespace. It is idempotent.
	InvalidateNamespace(ctx context.Context) error
}

const separator = ":"

// Key builds the storage key of key within namespace.
func Key(namespace, key string) string {
	return namespace + separator + key
}

func prefix(namespace string) string {
	return namespace + separator
}

func hasNamespace(storageKey, namespace string) bool {
	return strings.HasPrefix(storageKey, prefix(namespace))
}

// GetAs reads key and converts the value to T. Values of another Go type are
// converted through their JSON form, which covers numeric widening and
// structs stored by a persistent cache.
func GetAs[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var zero T

	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if v, ok := raw.(T); ok {
		return v, true, nil
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return zero, false, errors.Join(ErrTypeMismatch, err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, false, errors.Join(ErrTypeMismatch, fmt.Errorf("key %q: %w", key, err))
	}
	return out, true, nil
}
