package cache

import "errors"

var (
	ErrEmptyNamespace = errors.New("cache: namespace cannot be empty")
	ErrUnknownTypeTag = errors.New("cache: unknown type tag")
	ErrMissingTypeTag = errors.New("cache: value stored without type tag")
	ErrEncode         = errors.New("cache: failed to encode value")
	ErrDecode         = errors.New("cache: failed to decode value")
	ErrTypeMismatch   = errors.New("cache: cached value has a different type")
	ErrReservedKey    = errors.New("cache: key is reserved for type tags")
)
