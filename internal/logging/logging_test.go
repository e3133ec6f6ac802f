package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chatrooms/internal/logging"
)

func TestContextLogger(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := logging.ContextWithLogger(context.Background(), logger)

	assert.Same(t, logger, logging.FromContext(ctx))
	assert.Nil(t, logging.FromContext(context.Background()))
	assert.Same(t, logger, logging.FromContextOr(ctx, slog.Default()))

	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, fallback, logging.FromContextOr(context.Background(), fallback))

	assert.Equal(t, context.Background(), logging.ContextWithLogger(context.Background(), nil))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
	}
	for input, want := range cases {
		got, err := logging.ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := logging.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := logging.NewJSON(&buf, "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "room", "r-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "r-1", entry["room"])

	_, err = logging.NewJSON(&buf, "loud")
	assert.Error(t, err)
}
