package repository

import "errors"

var (
	ErrNilDependency  = errors.New("repository: transport, snapshot store and cache are required")
	ErrFetchFailed    = errors.New("repository: failed to fetch configuration")
	ErrInvalidPayload = errors.New("repository: fetched configuration is invalid")
	ErrPersistFailed  = errors.New("repository: failed to persist configuration")
	ErrClosed         = errors.New("repository: shut down")
)
