package kv_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/kv"
)

func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]kv.Store{
		"memory": kv.NewMemoryStore(),
		"redis":  kv.NewRedisStore(client, kv.WithScanBatchSize(2)),
	}
}

func TestStore(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "app:a", "1"))
			require.NoError(t, store.Set(ctx, "app:b", ""))
			require.NoError(t, store.Set(ctx, "other:a", "4"))

			v, ok, err := store.Get(ctx, "app:b")
			require.NoError(t, err)
			assert.True(t, ok, "empty values are still present")
			assert.Empty(t, v)

			keys, err := store.Keys(ctx, "app:")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"app:a", "app:b"}, keys)

			require.NoError(t, store.Delete(ctx, "app:a", "app:b", "never-set"))
			require.NoError(t, store.Delete(ctx))

			keys, err = store.Keys(ctx, "app:")
			require.NoError(t, err)
			assert.Empty(t, keys)

			v, ok, err = store.Get(ctx, "other:a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "4", v)
		})
	}
}
