// Package redis connects to the Redis server that backs the persistent flag
// cache (see kv.RedisStore).
//
// Connect parses a redis:// URL, pings the server and retries according to
// Config, which is populated from REDIS_* environment variables by the config
// package. Healthcheck returns a probe suitable for readiness checks.
//
//	client, err := redis.Connect(ctx, cfg, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	store := kv.NewRedisStore(client, kv.WithScanBatchSize(cfg.ScanBatchSize))
package redis
