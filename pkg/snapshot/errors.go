package snapshot

import "errors"

var (
	ErrEmptyPayload  = errors.New("snapshot: empty payload")
	ErrReplaceFailed = errors.New("snapshot: replace failed")
	ErrQueryFailed   = errors.New("snapshot: query failed")
)
