package transport

import "errors"

var (
	ErrInvalidConfig    = errors.New("transport: invalid configuration")
	ErrUnknownMode      = errors.New("transport: unknown fetch mode")
	ErrRequestFailed    = errors.New("transport: request failed")
	ErrUnexpectedStatus = errors.New("transport: unexpected response status")
	ErrPayloadTooLarge  = errors.New("transport: payload exceeds size limit")
	ErrDecodePayload    = errors.New("transport: failed to decode payload")
	ErrConfigNotFound   = errors.New("transport: configuration object not found")
	ErrAccessDenied     = errors.New("transport: access denied")
	ErrFailedToLoadAWS  = errors.New("transport: failed to load aws configuration")
)
