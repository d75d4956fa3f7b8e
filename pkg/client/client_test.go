package client_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/cache"
	"github.com/dmitrymomot/flagsync/pkg/client"
	"github.com/dmitrymomot/flagsync/pkg/feature"
	"github.com/dmitrymomot/flagsync/pkg/poller"
	"github.com/dmitrymomot/flagsync/pkg/repository"
	"github.com/dmitrymomot/flagsync/pkg/snapshot"
	"github.com/dmitrymomot/flagsync/pkg/transport"
	"github.com/dmitrymomot/flagsync/pkg/value"
)

const flags = `{
  "updated_at": 1700000000,
  "features": [
    {
      "key": "new-ui",
      "enabled": true,
      "default_rule": {"allocations": [{"variant_key": "on", "percentage": 100}]},
      "variants": {"on": {"value": true}}
    },
    {
      "key": "banner",
      "enabled": true,
      "rules": [
        {
          "constraints": [{"context_field": "country", "operator": "eq", "value": "US"}],
          "allocations": [{"variant_key": "us", "percentage": 100}]
        }
      ],
      "default_rule": {"allocations": [{"variant_key": "global", "percentage": 100}]},
      "variants": {
        "us": {"value": "Happy 4th"},
        "global": {"value": "Welcome"}
      }
    },
    {
      "key": "max-items",
      "enabled": true,
      "default_rule": {"allocations": [{"variant_key": "ten", "percentage": 100}]},
      "variants": {"ten": {"value": 10}}
    },
    {
      "key": "ratio",
      "enabled": true,
      "default_rule": {"allocations": [{"variant_key": "half", "percentage": 100}]},
      "variants": {"half": {"value": 0.5}}
    },
    {
      "key": "theme",
      "enabled": true,
      "default_rule": {"allocations": [{"variant_key": "dark", "percentage": 100}]},
      "variants": {"dark": {"value": {"bg": "black", "size": 12}}}
    },
    {
      "key": "legacy",
      "enabled": false,
      "default_rule": {"allocations": [{"variant_key": "on", "percentage": 100}]},
      "variants": {"on": {"value": true}}
    }
  ]
}`

func staticSource(body string, updatedAt float64) transport.Func {
	return func(_ context.Context, mode transport.Mode) (*transport.Response, error) {
		resp := &transport.Response{Header: transport.UpdatedAtHeader(updatedAt)}
		if mode == transport.ModeTimeOnly {
			return resp, nil
		}
		schema, err := feature.ParseSchema([]byte(body))
		if err != nil {
			return nil, err
		}
		resp.Schema = schema
		resp.Raw = []byte(body)
		return resp, nil
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRepo(t *testing.T, tr transport.Transport) *repository.Repository {
	t.Helper()
	repo, err := repository.New(tr, snapshot.NewMemoryStore(), cache.NewMemoryCache("test"), repository.WithLogger(discard()))
	require.NoError(t, err)
	return repo
}

func syncedClient(t *testing.T) (*client.Client, *repository.Repository) {
	t.Helper()
	repo := newRepo(t, staticSource(flags, 1700000000))
	require.NoError(t, repo.SyncFlags(context.Background()))
	return client.New("test", repo, client.WithLogger(discard())), repo
}

func TestClient_Getters(t *testing.T) {
	t.Parallel()
	c, _ := syncedClient(t)

	b := c.GetBoolean("new-ui", false, "user-1", nil)
	assert.True(t, b.Value)
	assert.Equal(t, feature.ReasonDefault, b.Reason)
	assert.Equal(t, "on", b.Variant)

	s := c.GetString("banner", "", "user-1", map[string]any{"country": "US"})
	assert.Equal(t, "Happy 4th", s.Value)
	assert.Equal(t, feature.ReasonTargetingMatch, s.Reason)

	i := c.GetInt("max-items", 1, "user-1", nil)
	assert.Equal(t, int64(10), i.Value)

	d := c.GetDouble("ratio", 0, "user-1", nil)
	assert.InDelta(t, 0.5, d.Value, 0)

	o := c.GetObject("theme", nil, "user-1", nil)
	assert.Equal(t, "black", o.Value["bg"])

	v := c.GetValue("theme", value.Null(), "user-1", nil)
	assert.Equal(t, value.KindMap, v.Value.Kind())
}

func TestClient_NonMatchingRuleFallsBackToDefaultRule(t *testing.T) {
	t.Parallel()
	c, _ := syncedClient(t)

	res := c.GetString("banner", "fallback", "user-1", map[string]any{"country": "IN"})
	assert.Equal(t, "Welcome", res.Value)
	assert.Equal(t, feature.ReasonDefault, res.Reason)
	assert.Equal(t, "global", res.Variant)
}

func TestClient_ErrorResults(t *testing.T) {
	t.Parallel()
	c, _ := syncedClient(t)

	t.Run("unknown flag", func(t *testing.T) {
		t.Parallel()
		res := c.GetBoolean("missing", true, "user-1", nil)
		assert.True(t, res.Value)
		assert.Equal(t, feature.ReasonUnknown, res.Reason)
		assert.Equal(t, feature.ErrorFlagNotFound, res.ErrorCode)
	})

	t.Run("disabled flag", func(t *testing.T) {
		t.Parallel()
		for _, key := range []string{"user-1", "user-2", ""} {
			res := c.GetBoolean("legacy", false, key, map[string]any{"country": "US"})
			assert.False(t, res.Value)
			assert.Equal(t, feature.ReasonDisabled, res.Reason)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		t.Parallel()
		res := c.GetString("new-ui", "def", "user-1", nil)
		assert.Equal(t, "def", res.Value)
		assert.Equal(t, feature.ReasonError, res.Reason)
		assert.Equal(t, feature.ErrorTypeMismatch, res.ErrorCode)
	})

	t.Run("unsupported attribute", func(t *testing.T) {
		t.Parallel()
		res := c.GetBoolean("new-ui", false, "user-1", map[string]any{"ch": make(chan int)})
		assert.False(t, res.Value)
		assert.Equal(t, feature.ReasonError, res.Reason)
		assert.Equal(t, feature.ErrorParse, res.ErrorCode)
	})

	t.Run("no repository", func(t *testing.T) {
		t.Parallel()
		empty := client.New("", nil, client.WithLogger(discard()))
		assert.Equal(t, client.DefaultDomain, empty.Domain())

		res := empty.GetInt("max-items", 3, "user-1", nil)
		assert.Equal(t, int64(3), res.Value)
		assert.Equal(t, feature.ReasonUnknown, res.Reason)
		require.ErrorIs(t, empty.Start(context.Background()), client.ErrNoRepository)
	})
}

func TestClient_ResultCache(t *testing.T) {
	t.Parallel()
	c, repo := syncedClient(t)

	first := c.GetBoolean("new-ui", false, "user-1", map[string]any{"plan": "pro"})
	second := c.GetBoolean("new-ui", false, "user-1", map[string]any{"plan": "pro"})
	assert.Equal(t, first, second)

	hits, misses := repo.Results().Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	withOtherDefault := c.GetString("new-ui", "x", "user-1", map[string]any{"plan": "pro"})
	assert.Equal(t, feature.ErrorTypeMismatch, withOtherDefault.ErrorCode, "cached resolutions do not carry defaults")

	c.OnContextChange(
		feature.EvaluationContext{TargetingKey: "user-1"},
		feature.EvaluationContext{TargetingKey: "user-2"},
	)
	assert.Equal(t, 0, repo.Results().Len())
}

func TestClient_StartWithPolling(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, staticSource(flags, 1700000000))
	c := client.New("poll", repo,
		client.WithLogger(discard()),
		client.WithPolling(poller.WithInterval(5*time.Millisecond)),
	)
	require.NotNil(t, c.Scheduler())
	require.NotEmpty(t, c.ID())

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return c.GetBoolean("new-ui", false, "user-1", nil).Value
	}, time.Second, time.Millisecond)

	require.NoError(t, c.ShutDown(context.Background()))
	require.NoError(t, c.ShutDown(context.Background()))

	assert.Equal(t, poller.StateKilled, c.Scheduler().State())
	runs, err := c.PollResult().Await()
	require.ErrorIs(t, err, poller.ErrKilled)
	assert.Positive(t, runs)

	res := c.GetBoolean("new-ui", false, "user-1", nil)
	assert.Equal(t, feature.ReasonUnknown, res.Reason)
}

func TestClient_StopDuringFetchAppliesResult(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	inner := staticSource(flags, 1700000000)
	tr := transport.Func(func(ctx context.Context, mode transport.Mode) (*transport.Response, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return inner(ctx, mode)
	})

	repo := newRepo(t, tr)
	c := client.New("stop", repo,
		client.WithLogger(discard()),
		client.WithPolling(poller.WithInterval(time.Hour)),
	)
	require.NoError(t, c.Start(context.Background()))
	<-started

	stopped := make(chan struct{})
	go func() {
		c.Scheduler().Stop()
		close(stopped)
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)
	<-stopped

	_, ok := repo.GetFlagConfig("new-ui")
	assert.True(t, ok, "fetch in flight at stop time is applied")
	assert.Equal(t, poller.StateIdle, c.Scheduler().State())
}
