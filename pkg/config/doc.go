// Package config loads flagsync settings from the environment.
//
// Parsing is done by github.com/caarlos0/env/v11 from struct tags; an
// optional .env file is read with github.com/joho/godotenv. Load caches one
// parsed value per type for the life of the process, Parse does not cache and
// accepts an explicit environment, which keeps tests independent of the
// process environment:
//
//	cfg, err := config.Parse[config.Config](config.WithEnvironment(map[string]string{
//	    "FLAGSYNC_BASE_URL": "https://flags.example.com",
//	}))
//
// Types implementing Validator are validated after parsing. Config.Validate
// reports all problems at once, joined with ErrInvalidConfig.
package config
