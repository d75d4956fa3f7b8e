package kv

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultScanBatchSize = 500

// RedisStore implements Store on top of a go-redis client.
type RedisStore struct {
	db            redis.UniversalClient
	scanBatchSize int64
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithScanBatchSize sets the COUNT hint passed to SCAN when listing keys.
func WithScanBatchSize(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.scanBatchSize = int64(n)
		}
	}
}

// NewRedisStore wraps client. The caller keeps ownership of the client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{db: client, scanBatchSize: defaultScanBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrStoreFailed, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.db.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.Del(ctx, keys...).Err(); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

// Keys walks the keyspace with SCAN so large databases are never blocked.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(prefix) + "*"

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.db.Scan(ctx, cursor, match, s.scanBatchSize).Result()
		if err != nil {
			return nil, errors.Join(ErrStoreFailed, err)
		}
		keys = append(keys, batch...)
		if cursor = next; cursor == 0 {
			break
		}
	}
	return keys, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
