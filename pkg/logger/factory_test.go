package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")

		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithFormat(logger.FormatText))
		log.Info("hello")
		assert.Contains(t, buf.String(), "level=INFO")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("level filters records", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithLevel(slog.LevelWarn))
		log.Info("dropped")
		assert.Empty(t, buf.String())
	})

	t.Run("static attributes", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(logger.Component("poller")))
		log.Info("msg")
		assert.Equal(t, "poller", decode(t, buf)["component"])
	})

	t.Run("context values", func(t *testing.T) {
		t.Parallel()
		type key struct{}
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithContextValue("run_id", key{}))

		log.InfoContext(context.WithValue(context.Background(), key{}, "r-1"), "with")
		assert.Equal(t, "r-1", decode(t, buf)["run_id"])

		buf.Reset()
		log.InfoContext(context.Background(), "without")
		assert.NotContains(t, decode(t, buf), "run_id")
	})

	t.Run("appended context attributes", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))

		ctx := logger.AppendCtx(context.Background(), logger.Namespace("checkout"))
		ctx = logger.AppendCtx(ctx, logger.SyncMode("full"))
		log.With(logger.Component("repository")).InfoContext(ctx, "synced")

		entry := decode(t, buf)
		assert.Equal(t, "checkout", entry["namespace"])
		assert.Equal(t, "full", entry["sync_mode"])
		assert.Equal(t, "repository", entry["component"])
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			logger.New(logger.WithFormat(logger.Format("xml")))
		})
	})
}

func TestAppendCtx(t *testing.T) {
	t.Parallel()

	base := logger.AppendCtx(context.Background(), logger.Component("a"))
	left := logger.AppendCtx(base, logger.FlagKey("x"))
	right := logger.AppendCtx(base, logger.FlagKey("y"))

	require.Len(t, logger.AttrsFromCtx(left), 2)
	require.Len(t, logger.AttrsFromCtx(right), 2)
	assert.Equal(t, "x", logger.AttrsFromCtx(left)[1].Value.String())
	assert.Equal(t, "y", logger.AttrsFromCtx(right)[1].Value.String())
	assert.Same(t, base, logger.AppendCtx(base))
	assert.Empty(t, logger.AttrsFromCtx(context.Background()))
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	t.Run("development", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("dev", "flagsync"), logger.WithOutput(buf))
		log.Debug("msg")
		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "service=flagsync")
		assert.Contains(t, buf.String(), "env=development")
	})

	t.Run("production", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("prod", "flagsync"), logger.WithOutput(buf))
		log.Debug("dropped")
		log.Info("msg")

		entry := decode(t, buf)
		assert.Equal(t, "flagsync", entry["service"])
		assert.Equal(t, "production", entry["env"])
	})

	t.Run("later options override", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithEnvironment("production", ""),
			logger.WithLevel(slog.LevelDebug),
			logger.WithOutput(buf),
		)
		log.Debug("msg")
		assert.Equal(t, "DEBUG", decode(t, buf)["level"])
	})
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := logger.ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, logger.FormatJSON, f)

	f, err = logger.ParseFormat("text")
	require.NoError(t, err)
	assert.Equal(t, logger.FormatText, f)

	_, err = logger.ParseFormat("xml")
	require.Error(t, err)
}
