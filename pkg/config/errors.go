package config

import "errors"

var (
	ErrParsingConfig   = errors.New("failed to parse environment variables into config")
	ErrLoadingEnvFile  = errors.New("failed to load env file")
	ErrConfigNotLoaded = errors.New("configuration has not been loaded")
	ErrNilPointer      = errors.New("nil pointer provided to config loader")
	ErrInvalidConfig   = errors.New("invalid flagsync configuration")
)
