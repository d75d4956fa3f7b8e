package client

import "errors"

var (
	ErrNoRepository = errors.New("client: no repository configured")
	ErrDomainTaken  = errors.New("client: domain already registered")
	ErrNotFound     = errors.New("client: domain not registered")
)
