package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/transport"
)

const payload = `{
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

type fakeAPI struct {
	fullCalls atomic.Int32
	probes    atomic.Int32
	status    atomic.Int32
	body      atomic.Value // string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{}
	api.status.Store(http.StatusOK)
	api.body.Store(payload)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer secret" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/v1/flags", func(w http.ResponseWriter, req *http.Request) {
		api.fullCalls.Add(1)
		w.Header().Set("updated-at", "1700000000")
		w.Header().Set("X-Seen-Tenant", req.Header.Get("X-Tenant"))
		w.WriteHeader(int(api.status.Load()))
		_, _ = w.Write([]byte(api.body.Load().(string)))
	})
	r.Get("/v1/flags/updated-at", func(w http.ResponseWriter, _ *http.Request) {
		api.probes.Add(1)
		w.Header().Set("updated-at", "1700000000")
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return api, srv
}

func TestHTTPTransport(t *testing.T) {
	t.Parallel()

	t.Run("full fetch", func(t *testing.T) {
		t.Parallel()
		api, srv := newFakeAPI(t)
		tr, err := transport.NewHTTPTransport(transport.HTTPConfig{
			BaseURL: srv.URL + "/",
			APIKey:  "secret",
			Tenant:  "acme",
			Timeout: time.Second,
		})
		require.NoError(t, err)

		resp, err := tr.FetchConfig(context.Background(), transport.ModeFull)
		require.NoError(t, err)
		require.NotNil(t, resp.Schema)
		assert.Len(t, resp.Schema.Features, 1)
		assert.JSONEq(t, payload, string(resp.Raw))
		assert.Equal(t, "acme", resp.Header.Get("X-Seen-Tenant"))

		ms, ok := resp.UpdatedAtMillis()
		require.True(t, ok)
		assert.Equal(t, int64(1700000000000), ms)
		assert.Equal(t, int32(1), api.fullCalls.Load())
	})

	t.Run("time-only probe does not download the payload", func(t *testing.T) {
		t.Parallel()
		api, srv := newFakeAPI(t)
		tr, err := transport.NewHTTPTransport(transport.HTTPConfig{BaseURL: srv.URL, APIKey: "secret"})
		require.NoError(t, err)

		resp, err := tr.FetchConfig(context.Background(), transport.ModeTimeOnly)
		require.NoError(t, err)
		assert.Nil(t, resp.Schema)
		ms, ok := resp.UpdatedAtMillis()
		require.True(t, ok)
		assert.Equal(t, int64(1700000000000), ms)
		assert.Equal(t, int32(0), api.fullCalls.Load())
		assert.Equal(t, int32(1), api.probes.Load())
	})

	t.Run("non-2xx status", func(t *testing.T) {
		t.Parallel()
		api, srv := newFakeAPI(t)
		api.status.Store(http.StatusBadGateway)
		tr, err := transport.NewHTTPTransport(transport.HTTPConfig{BaseURL: srv.URL, APIKey: "secret"})
		require.NoError(t, err)

		_, err = tr.FetchConfig(context.Background(), transport.ModeFull)
		require.ErrorIs(t, err, transport.ErrUnexpectedStatus)
	})

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		_, srv := newFakeAPI(t)
		tr, err := transport.NewHTTPTransport(transport.HTTPConfig{BaseURL: srv.URL, APIKey: "wrong"})
		require.NoError(t, err)

		_, err = tr.FetchConfig(context.Background(), transport.ModeFull)
		require.ErrorIs(t, err, transport.ErrUnexpectedStatus)
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()
		api, srv := newFakeAPI(t)
		api.body.Store(`{"features": "nope"}`)
		tr, err := transport.NewHTTPTransport(transport.HTTPConfig{BaseURL: srv.URL, APIKey: "secret"})
		require.NoError(t, err)

		_, err = tr.FetchConfig(context.Background(), transport.ModeFull)
		require.ErrorIs(t, err, transport.ErrDecodePayload)
	})

	t.Run("payload size limit", func(t *testing.T) {
		t.Parallel()
		api, srv := newFakeAPI(t)
		api.body.Store(strings.Repeat(" ", 64) + payload)
		tr, err := transport.NewHTTPTransport(
			transport.HTTPConfig{BaseURL: srv.URL, APIKey: "secret"},
			transport.WithMaxBodySize(32),
		)
		require.NoError(t, err)

		_, err = tr.FetchConfig(context.Background(), transport.ModeFull)
		require.ErrorIs(t, err, transport.ErrPayloadTooLarge)
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Parallel()
		_, srv := newFakeAPI(t)
		tr, err := transport.NewHTTPTransport(transport.HTTPConfig{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = tr.FetchConfig(context.Background(), transport.Mode("delta"))
		require.ErrorIs(t, err, transport.ErrUnknownMode)
	})

	t.Run("connection failure", func(t *testing.T) {
		t.Parallel()
		_, srv := newFakeAPI(t)
		url := srv.URL
		srv.Close()

		tr, err := transport.NewHTTPTransport(transport.HTTPConfig{BaseURL: url, Timeout: time.Second})
		require.NoError(t, err)
		_, err = tr.FetchConfig(context.Background(), transport.ModeTimeOnly)
		require.ErrorIs(t, err, transport.ErrRequestFailed)
	})

	t.Run("invalid base url", func(t *testing.T) {
		t.Parallel()
		for _, u := range []string{"", "ftp://example.com", "/relative"} {
			_, err := transport.NewHTTPTransport(transport.HTTPConfig{BaseURL: u})
			require.ErrorIs(t, err, transport.ErrInvalidConfig, u)
		}
	})
}

func TestHTTPTransportProbeBodyFallback(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/v1/flags/updated-at", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"updated_at": 1700000001}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tr, err := transport.NewHTTPTransport(transport.HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := tr.FetchConfig(context.Background(), transport.ModeTimeOnly)
	require.NoError(t, err)
	ms, ok := resp.UpdatedAtMillis()
	require.True(t, ok)
	assert.Equal(t, int64(1700000001000), ms)
}
