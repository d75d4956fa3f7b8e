package feature

import "errors"

// Predefined errors for the feature package.
var (
	// ErrInvalidSchema indicates that a flag configuration payload is malformed
	// or violates a structural invariant.
	ErrInvalidSchema = errors.New("invalid feature flags schema")

	// ErrInvalidFlag indicates that a single flag definition is invalid.
	ErrInvalidFlag = errors.New("invalid feature flag")

	// ErrInvalidContext indicates that evaluation attributes could not be converted.
	ErrInvalidContext = errors.New("invalid evaluation context")
)
