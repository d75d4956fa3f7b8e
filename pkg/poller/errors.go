package poller

import "errors"

var (
	ErrNilOperation = errors.New("poller: operation is required")
	ErrKilled       = errors.New("poller: scheduler killed")
	ErrMaxFailures  = errors.New("poller: maximum consecutive failures reached")
)
