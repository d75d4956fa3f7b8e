package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrymomot/flagsync/pkg/kv"
)

// Type tags stored next to every persistent value.
const (
	TagString = "string"
	TagInt    = "int"
	TagBool   = "bool"
	TagLong   = "long"
	TagFloat  = "float"
	TagDouble = "double"
	TagJSON   = "json"
)

const typeSuffix = ":type"

// PersistentCache is a Cache over a kv.Store that survives restarts. Each
// value key has a side-car "<key>:type" entry recording how to decode it, so
// keys ending in ":type" are rejected with ErrReservedKey.
//
// Scalars round-trip to their original Go type: string, int, bool, int64,
// float32. float64 is narrowed to float32 and tagged "float" unless the cache
// is created WithNativeDoubles, so doubles lose precision by default. Any
// other value is stored as JSON and read back as the generic encoding/json
// representation; use GetAs to decode it into a concrete type.
type PersistentCache struct {
	namespace     string
	store         kv.Store
	nativeDoubles bool
}

// PersistentOption configures a PersistentCache.
type PersistentOption func(*PersistentCache)

// WithNativeDoubles stores float64 values without narrowing.
func WithNativeDoubles() PersistentOption {
	return func(c *PersistentCache) { c.nativeDoubles = true }
}

func NewPersistentCache(namespace string, store kv.Store, opts ...PersistentOption) *PersistentCache {
	c := &PersistentCache{namespace: namespace, store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithNamespace returns a cache for another namespace over the same store.
func (c *PersistentCache) WithNamespace(namespace string) *PersistentCache {
	return &PersistentCache{namespace: namespace, store: c.store, nativeDoubles: c.nativeDoubles}
}

func (c *PersistentCache) Namespace() string { return c.namespace }

func (c *PersistentCache) Get(ctx context.Context, key string) (any, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	k := Key(c.namespace, key)

	raw, ok, err := c.store.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	tag, ok, err := c.store.Get(ctx, k+typeSuffix)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrMissingTypeTag, k)
	}

	v, err := decode(raw, tag)
	if err != nil {
		return nil, false, fmt.Errorf("key %q: %w", k, err)
	}
	return v, true, nil
}

// Put writes the value before its tag. A crash in between leaves a value
// without a tag, which Get reports as ErrMissingTypeTag.
func (c *PersistentCache) Put(ctx context.Context, key string, value any) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if value == nil {
		return c.Delete(ctx, key)
	}

	raw, tag, err := c.encode(value)
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}

	k := Key(c.namespace, key)
	if err := c.store.Set(ctx, k, raw); err != nil {
		return err
	}
	return c.store.Set(ctx, k+typeSuffix, tag)
}

func (c *PersistentCache) PutAll(ctx context.Context, entries map[string]any) error {
	var errs []error
	for k, v := range entries {
		if err := c.Put(ctx, k, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *PersistentCache) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	k := Key(c.namespace, key)
	return c.store.Delete(ctx, k, k+typeSuffix)
}

func (c *PersistentCache) InvalidateNamespace(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, prefix(c.namespace))
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, keys...)
}

func checkKey(key string) error {
	if strings.HasSuffix(key, typeSuffix) {
		return fmt.Errorf("%w: %q", ErrReservedKey, key)
	}
	return nil
}

func (c *PersistentCache) encode(value any) (string, string, error) {
	switch v := value.(type) {
	case string:
		return v, TagString, nil
	case bool:
		return strconv.FormatBool(v), TagBool, nil
	case int:
		return strconv.Itoa(v), TagInt, nil
	case int32:
		return strconv.FormatInt(int64(v), 10), TagInt, nil
	case int64:
		return strconv.FormatInt(v, 10), TagLong, nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), TagFloat, nil
	case float64:
		if c.nativeDoubles {
			return strconv.FormatFloat(v, 'g', -1, 64), TagDouble, nil
		}
		return strconv.FormatFloat(float64(float32(v)), 'g', -1, 32), TagFloat, nil
	case json.RawMessage:
		if !json.Valid(v) {
			return "", "", fmt.Errorf("%w: invalid raw json", ErrEncode)
		}
		return string(v), TagJSON, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", "", errors.Join(ErrEncode, err)
		}
		return string(b), TagJSON, nil
	}
}

func decode(raw, tag string) (any, error) {
	switch tag {
	case TagString:
		return raw, nil
	case TagBool:
		b, err := strconv.ParseBool(raw)
		return wrapDecode(b, err)
	case TagInt:
		n, err := strconv.Atoi(raw)
		return wrapDecode(n, err)
	case TagLong:
		n, err := strconv.ParseInt(raw, 10, 64)
		return wrapDecode(n, err)
	case TagFloat:
		f, err := strconv.ParseFloat(raw, 32)
		return wrapDecode(float32(f), err)
	case TagDouble:
		f, err := strconv.ParseFloat(raw, 64)
		return wrapDecode(f, err)
	case TagJSON:
		var v any
		err := json.Unmarshal([]byte(raw), &v)
		return wrapDecode(v, err)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTypeTag, tag)
	}
}

func wrapDecode(v any, err error) (any, error) {
	if err != nil {
		return nil, errors.Join(ErrDecode, err)
	}
	return v, nil
}
