package broadcast_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/broadcast"
)

func TestMemoryBroadcaster_Broadcast(t *testing.T) {
	t.Parallel()

	t.Run("delivers to every subscriber", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[string](4)
		t.Cleanup(func() { _ = b.Close() })

		first := b.Subscribe(context.Background())
		second := b.Subscribe(context.Background())

		assert.Zero(t, b.Broadcast(context.Background(), "hello"))
		assert.Equal(t, "hello", <-first.Receive())
		assert.Equal(t, "hello", <-second.Receive())
	})

	t.Run("full buffer misses the message but keeps the subscriber", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[int](1)
		t.Cleanup(func() { _ = b.Close() })

		sub := b.Subscribe(context.Background())
		assert.Zero(t, b.Broadcast(context.Background(), 1))
		assert.Equal(t, 1, b.Broadcast(context.Background(), 2))

		assert.Equal(t, 1, <-sub.Receive())
		assert.Equal(t, 1, b.Len())

		assert.Zero(t, b.Broadcast(context.Background(), 3))
		assert.Equal(t, 3, <-sub.Receive())
	})

	t.Run("buffer holds at least one message", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[int](0)
		t.Cleanup(func() { _ = b.Close() })

		sub := b.Subscribe(context.Background())
		assert.Zero(t, b.Broadcast(context.Background(), 7))
		assert.Equal(t, 7, <-sub.Receive())
	})

	t.Run("concurrent broadcasts", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[int](100)
		t.Cleanup(func() { _ = b.Close() })
		sub := b.Subscribe(context.Background())

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Broadcast(context.Background(), i)
			}()
		}
		wg.Wait()
		assert.Len(t, sub.Receive(), 50)
	})
}

func TestMemoryBroadcaster_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("close unsubscribes", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[string](4)
		t.Cleanup(func() { _ = b.Close() })

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		sub := b.Subscribe(ctx)
		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())

		_, ok := <-sub.Receive()
		assert.False(t, ok)
		assert.Zero(t, b.Len())
	})

	t.Run("context cancellation unsubscribes", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[string](4)
		t.Cleanup(func() { _ = b.Close() })

		ctx, cancel := context.WithCancel(context.Background())
		sub := b.Subscribe(ctx)
		cancel()

		select {
		case _, ok := <-sub.Receive():
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("subscriber was not closed after context cancellation")
		}
		assert.Zero(t, b.Len())
	})

	t.Run("broadcaster close ends live subscriptions", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[string](4)

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		sub := b.Subscribe(ctx)

		require.NoError(t, b.Close())
		require.NoError(t, b.Close())

		_, ok := <-sub.Receive()
		assert.False(t, ok)
		assert.Zero(t, b.Broadcast(context.Background(), "late"))
	})

	t.Run("subscribe after close returns a closed subscriber", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemoryBroadcaster[string](4)
		require.NoError(t, b.Close())

		sub := b.Subscribe(context.Background())
		_, ok := <-sub.Receive()
		assert.False(t, ok)
		require.NoError(t, sub.Close())
	})
}
