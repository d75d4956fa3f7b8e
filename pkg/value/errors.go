package value

import "errors"

var (
	// ErrUnsupportedType is returned by FromAny for Go values that have no JSON shape.
	ErrUnsupportedType = errors.New("value: unsupported type")

	// ErrInvalidJSON is returned when a JSON document cannot be decoded into a Value.
	ErrInvalidJSON = errors.New("value: invalid json")
)
