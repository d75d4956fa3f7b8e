package repository_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/cache"
	"github.com/dmitrymomot/flagsync/pkg/feature"
	"github.com/dmitrymomot/flagsync/pkg/repository"
	"github.com/dmitrymomot/flagsync/pkg/snapshot"
	"github.com/dmitrymomot/flagsync/pkg/transport"
)

const payloadV1 = `{
  "updated_at": 1700000000,
  "features": [
    {
      "key": "new-ui",
      "enabled": true,
      "default_rule": {"allocations": [{"variant_key": "on", "percentage": 100}]},
      "variants": {"on": {"value": true}}
    }
  ]
}`

const payloadV2 = `{
  "updated_at": 1700000060,
  "features": [
    {
      "key": "checkout-v2",
      "enabled": true,
      "default_rule": {"allocations": [{"variant_key": "b", "percentage": 100}]},
      "variants": {"b": {"value": "blue"}}
    }
  ]
}`

// fakeSource serves a configuration payload with a fixed updated-at header
// and counts requests per mode.
type fakeSource struct {
	mu        sync.Mutex
	body      string
	updatedAt string
	err       error

	full   atomic.Int32
	probes atomic.Int32
}

func newFakeSource(body, updatedAt string) *fakeSource {
	return &fakeSource{body: body, updatedAt: updatedAt}
}

func (s *fakeSource) set(body, updatedAt string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body, s.updatedAt, s.err = body, updatedAt, err
}

func (s *fakeSource) FetchConfig(_ context.Context, mode transport.Mode) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == transport.ModeFull {
		s.full.Add(1)
	} else {
		s.probes.Add(1)
	}
	if s.err != nil {
		return nil, s.err
	}

	resp := &transport.Response{Header: map[string][]string{}}
	if s.updatedAt != "" {
		resp.Header.Set(transport.HeaderUpdatedAt, s.updatedAt)
	}
	if mode == transport.ModeFull {
		schema, err := feature.ParseSchema([]byte(s.body))
		if err != nil {
			return nil, err
		}
		resp.Schema = schema
		resp.Raw = []byte(s.body)
	}
	return resp, nil
}

// flakySnapshots fails Replace while failing is set.
type flakySnapshots struct {
	*snapshot.MemoryStore
	failing atomic.Bool
}

func (f *flakySnapshots) Replace(ctx context.Context, s snapshot.ConfigSnapshot) (int64, error) {
	if f.failing.Load() {
		return 0, snapshot.ErrReplaceFailed
	}
	return f.MemoryStore.Replace(ctx, s)
}

// pinnedSnapshots always reports the same current snapshot.
type pinnedSnapshots struct {
	*snapshot.MemoryStore
	current *snapshot.ConfigSnapshot
}

func (p *pinnedSnapshots) Current(context.Context, string) (*snapshot.ConfigSnapshot, error) {
	return p.current, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRepo(t *testing.T, tr transport.Transport, snaps snapshot.Store, persistent cache.Cache) *repository.Repository {
	t.Helper()
	repo, err := repository.New(tr, snaps, persistent, repository.WithLogger(discard()))
	require.NoError(t, err)
	return repo
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := repository.New(nil, snapshot.NewMemoryStore(), cache.NewMemoryCache("ns"))
	require.ErrorIs(t, err, repository.ErrNilDependency)

	repo, err := repository.New(newFakeSource(payloadV1, ""), snapshot.NewMemoryStore(), cache.NewMemoryCache("checkout"))
	require.NoError(t, err)
	assert.Equal(t, "checkout", repo.Namespace())

	repo, err = repository.New(newFakeSource(payloadV1, ""), snapshot.NewMemoryStore(), cache.NewMemoryCache("checkout"),
		repository.WithNamespace("billing"))
	require.NoError(t, err)
	assert.Equal(t, "billing", repo.Namespace())
}

func TestSyncFlags(t *testing.T) {
	t.Parallel()

	t.Run("first sync fetches full configuration and stores millis", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(payloadV1, "1700000000")
		snaps := snapshot.NewMemoryStore()
		persistent := cache.NewMemoryCache("ns")
		repo := newRepo(t, src, snaps, persistent)

		require.NoError(t, repo.SyncFlags(context.Background()))

		assert.Equal(t, int32(1), src.full.Load())
		assert.Equal(t, int32(0), src.probes.Load())

		f, ok := repo.GetFlagConfig("new-ui")
		require.True(t, ok)
		assert.True(t, f.Enabled)

		ts, ok, err := cache.GetAs[int64](context.Background(), persistent, repository.LastSyncKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1700000000000), ts)

		last, ok := repo.LastSync(context.Background())
		require.True(t, ok)
		assert.Equal(t, time.UnixMilli(1700000000000).UTC(), last)

		snap, err := snaps.Current(context.Background(), "ns")
		require.NoError(t, err)
		require.NotNil(t, snap)
		require.NotNil(t, snap.ETag)
		assert.Equal(t, "1700000000000", *snap.ETag)
		require.NotNil(t, snap.Version)
		assert.Equal(t, "1700000000", *snap.Version)
		assert.JSONEq(t, payloadV1, string(snap.JSON))
	})

	t.Run("unchanged timestamp only probes", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(payloadV1, "1700000000")
		repo := newRepo(t, src, snapshot.NewMemoryStore(), cache.NewMemoryCache("ns"))

		require.NoError(t, repo.SyncFlags(context.Background()))
		require.NoError(t, repo.SyncFlags(context.Background()))
		require.NoError(t, repo.SyncFlags(context.Background()))

		assert.Equal(t, int32(1), src.full.Load())
		assert.Equal(t, int32(2), src.probes.Load())
	})

	t.Run("changed timestamp escalates to full fetch", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(payloadV1, "1700000000")
		persistent := cache.NewMemoryCache("ns")
		repo := newRepo(t, src, snapshot.NewMemoryStore(), persistent)
		require.NoError(t, repo.SyncFlags(context.Background()))

		src.set(payloadV2, "1700000060.5", nil)
		require.NoError(t, repo.SyncFlags(context.Background()))

		assert.Equal(t, int32(2), src.full.Load())
		assert.Equal(t, int32(1), src.probes.Load())

		_, ok := repo.GetFlagConfig("new-ui")
		assert.False(t, ok)
		_, ok = repo.GetFlagConfig("checkout-v2")
		assert.True(t, ok)

		ts, _, err := cache.GetAs[int64](context.Background(), persistent, repository.LastSyncKey)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000060500), ts)
	})

	t.Run("missing updated-at applies nothing", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(payloadV1, "")
		snaps := snapshot.NewMemoryStore()
		persistent := cache.NewMemoryCache("ns")
		repo := newRepo(t, src, snaps, persistent)

		require.NoError(t, repo.SyncFlags(context.Background()))

		assert.Nil(t, repo.Flags())
		_, ok := repo.LastSync(context.Background())
		assert.False(t, ok)
		snap, err := snaps.Current(context.Background(), "ns")
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("fetch failure keeps previous flags", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(payloadV1, "1700000000")
		repo := newRepo(t, src, snapshot.NewMemoryStore(), cache.NewMemoryCache("ns"))
		require.NoError(t, repo.SyncFlags(context.Background()))

		src.set(payloadV2, "1700000060", errors.New("connection reset"))
		err := repo.SyncFlags(context.Background())
		require.ErrorIs(t, err, repository.ErrFetchFailed)

		_, ok := repo.GetFlagConfig("new-ui")
		assert.True(t, ok)
	})

	t.Run("snapshot failure does not advance timestamp", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(payloadV1, "1700000000")
		snaps := &flakySnapshots{MemoryStore: snapshot.NewMemoryStore()}
		snaps.failing.Store(true)
		repo := newRepo(t, src, snaps, cache.NewMemoryCache("ns"))

		err := repo.SyncFlags(context.Background())
		require.ErrorIs(t, err, repository.ErrPersistFailed)

		_, ok := repo.GetFlagConfig("new-ui")
		assert.True(t, ok, "fetched flags are applied even when persisting fails")
		_, ok = repo.LastSync(context.Background())
		assert.False(t, ok)

		snaps.failing.Store(false)
		require.NoError(t, repo.SyncFlags(context.Background()))
		assert.Equal(t, int32(2), src.full.Load(), "next cycle retries the full sync")
		assert.Equal(t, int32(0), src.probes.Load())
	})

	t.Run("sync purges cached results", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(payloadV1, "1700000000")
		repo := newRepo(t, src, snapshot.NewMemoryStore(), cache.NewMemoryCache("ns"))

		repo.Results().Put(cache.ResultKey{FlagKey: "new-ui", Fingerprint: 1}, feature.Resolution{Reason: feature.ReasonDefault})
		require.Equal(t, 1, repo.Results().Len())

		require.NoError(t, repo.SyncFlags(context.Background()))
		assert.Equal(t, 0, repo.Results().Len())
	})

	t.Run("concurrent calls share a cycle", func(t *testing.T) {
		t.Parallel()
		started := make(chan struct{})
		release := make(chan struct{})
		var calls atomic.Int32
		src := transport.Func(func(ctx context.Context, mode transport.Mode) (*transport.Response, error) {
			if calls.Add(1) == 1 {
				close(started)
			}
			<-release
			schema, err := feature.ParseSchema([]byte(payloadV1))
			if err != nil {
				return nil, err
			}
			return &transport.Response{Schema: schema, Header: transport.UpdatedAtHeader(1700000000)}, nil
		})
		repo := newRepo(t, src, snapshot.NewMemoryStore(), cache.NewMemoryCache("ns"))

		var wg sync.WaitGroup
		errs := make(chan error, 5)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.SyncFlags(context.Background())
		}()
		<-started
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.SyncFlags(context.Background())
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		assert.Less(t, calls.Load(), int32(5))
	})
}

func TestInit(t *testing.T) {
	t.Parallel()

	t.Run("warms up from active snapshot", func(t *testing.T) {
		t.Parallel()
		snaps := snapshot.NewMemoryStore()
		etag := "1700000000000"
		_, err := snaps.Replace(context.Background(), snapshot.ConfigSnapshot{Namespace: "ns", ETag: &etag, JSON: []byte(payloadV1)})
		require.NoError(t, err)

		persistent := cache.NewMemoryCache("ns")
		require.NoError(t, persistent.Put(context.Background(), repository.LastSyncKey, int64(1700000000000)))

		src := newFakeSource(payloadV1, "1700000000")
		repo := newRepo(t, src, snaps, persistent)
		sub := repo.Subscribe(context.Background())
		defer sub.Close()

		<-repo.Init(context.Background())

		_, ok := repo.GetFlagConfig("new-ui")
		require.True(t, ok)

		ev := <-sub.Receive()
		assert.Equal(t, repository.SourceSnapshot, ev.Source)
		assert.Equal(t, []string{"new-ui"}, ev.Changes.Added)
		assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ev.UpdatedAt)

		require.NoError(t, repo.SyncFlags(context.Background()))
		assert.Equal(t, int32(0), src.full.Load(), "restored timestamp matches, no download")
		assert.Equal(t, int32(1), src.probes.Load())
	})

	t.Run("malformed snapshot is treated as absent", func(t *testing.T) {
		t.Parallel()
		snaps := snapshot.NewMemoryStore()
		_, err := snaps.Replace(context.Background(), snapshot.ConfigSnapshot{Namespace: "ns", JSON: []byte(`{"features": [`)})
		require.NoError(t, err)

		persistent := cache.NewMemoryCache("ns")
		require.NoError(t, persistent.Put(context.Background(), repository.LastSyncKey, int64(1700000000000)))

		src := newFakeSource(payloadV1, "1700000000")
		repo := newRepo(t, src, snaps, persistent)
		<-repo.Init(context.Background())

		assert.Nil(t, repo.Flags())
		_, ok := repo.LastSync(context.Background())
		assert.False(t, ok, "stale timestamp is cleared")

		require.NoError(t, repo.SyncFlags(context.Background()))
		assert.Equal(t, int32(1), src.full.Load())
		_, ok = repo.GetFlagConfig("new-ui")
		assert.True(t, ok)
	})

	t.Run("snapshot never replaces synced flags", func(t *testing.T) {
		t.Parallel()
		snaps := &pinnedSnapshots{
			MemoryStore: snapshot.NewMemoryStore(),
			current:     &snapshot.ConfigSnapshot{ID: 1, Namespace: "ns", IsActive: true, JSON: []byte(payloadV1)},
		}
		src := newFakeSource(payloadV2, "1700000060")
		repo := newRepo(t, src, snaps, cache.NewMemoryCache("ns"))

		require.NoError(t, repo.SyncFlags(context.Background()))
		<-repo.Init(context.Background())

		_, ok := repo.GetFlagConfig("checkout-v2")
		assert.True(t, ok)
		_, ok = repo.GetFlagConfig("new-ui")
		assert.False(t, ok)
	})

	t.Run("returns the same channel", func(t *testing.T) {
		t.Parallel()
		repo := newRepo(t, newFakeSource(payloadV1, ""), snapshot.NewMemoryStore(), cache.NewMemoryCache("ns"))
		first := repo.Init(context.Background())
		assert.Equal(t, first, repo.Init(context.Background()))
		<-first
	})
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	src := newFakeSource(payloadV1, "1700000000")
	repo := newRepo(t, src, snapshot.NewMemoryStore(), cache.NewMemoryCache("ns"))

	sub := repo.Subscribe(context.Background())
	require.NoError(t, repo.SyncFlags(context.Background()))

	ev := <-sub.Receive()
	assert.Equal(t, repository.SourceSync, ev.Source)
	assert.Equal(t, []string{"new-ui"}, ev.Changes.Added)

	src.set(payloadV2, "1700000060", nil)
	require.NoError(t, repo.SyncFlags(context.Background()))
	ev = <-sub.Receive()
	assert.Equal(t, []string{"checkout-v2"}, ev.Changes.Added)
	assert.Equal(t, []string{"new-ui"}, ev.Changes.Removed)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, open := <-sub.Receive()
	assert.False(t, open)

	ctx, cancel := context.WithCancel(context.Background())
	scoped := repo.Subscribe(ctx)
	cancel()
	_, open = <-scoped.Receive()
	assert.False(t, open, "subscription ends with its context")
}

func TestOnContextChanged(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, newFakeSource(payloadV1, ""), snapshot.NewMemoryStore(), cache.NewMemoryCache("ns"))
	key := cache.ResultKey{FlagKey: "new-ui", Fingerprint: 42}
	repo.Results().Put(key, feature.Resolution{Reason: feature.ReasonDefault})

	same := feature.EvaluationContext{TargetingKey: "user-1"}
	repo.OnContextChanged(same, same)
	assert.Equal(t, 1, repo.Results().Len())

	repo.OnContextChanged(same, feature.EvaluationContext{TargetingKey: "user-2"})
	assert.Equal(t, 0, repo.Results().Len())
}

func TestShutDown(t *testing.T) {
	t.Parallel()

	src := newFakeSource(payloadV1, "1700000000")
	persistent := cache.NewMemoryCache("ns")
	repo := newRepo(t, src, snapshot.NewMemoryStore(), persistent)
	sub := repo.Subscribe(context.Background())
	require.NoError(t, repo.SyncFlags(context.Background()))
	<-sub.Receive()

	require.NoError(t, repo.ShutDown(context.Background()))
	require.NoError(t, repo.ShutDown(context.Background()))

	assert.Nil(t, repo.Flags())
	assert.Equal(t, 0, persistent.Len())
	_, open := <-sub.Receive()
	assert.False(t, open)

	require.ErrorIs(t, repo.SyncFlags(context.Background()), repository.ErrClosed)

	late := repo.Subscribe(context.Background())
	_, open = <-late.Receive()
	assert.False(t, open)
}

func TestShutDownDuringSync(t *testing.T) {
	t.Parallel()

	src := newFakeSource(payloadV1, "1700000000")
	snaps := snapshot.NewMemoryStore()
	persistent := cache.NewMemoryCache("ns")

	// The clock is read right after the new flag set is installed; shutting
	// down from there lands between install and persistence.
	var (
		repo *repository.Repository
		once sync.Once
	)
	clock := func() time.Time {
		if repo != nil && repo.Flags() != nil {
			once.Do(func() { require.NoError(t, repo.ShutDown(context.Background())) })
		}
		return time.Now()
	}
	repo, err := repository.New(src, snaps, persistent, repository.WithLogger(discard()), repository.WithClock(clock))
	require.NoError(t, err)

	require.ErrorIs(t, repo.SyncFlags(context.Background()), repository.ErrClosed)

	history, err := snaps.History(context.Background(), "ns")
	require.NoError(t, err)
	assert.Empty(t, history, "no snapshot written after shutdown")
	assert.Equal(t, 0, persistent.Len(), "no timestamp written after shutdown")
	assert.Nil(t, repo.Flags())
}
