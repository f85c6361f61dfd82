package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTraceID(t *testing.T) {
	ctx := NewCtx()
	id := TraceID(ctx)
	require.NotEmpty(t, id)

	t.Run("KeepsExisting", func(t *testing.T) {
		assert.Equal(t, id, TraceID(WithTrace(ctx)))
	})

	t.Run("NilContext", func(t *testing.T) {
		assert.Empty(t, TraceID(nil))
		//nolint:staticcheck
		assert.NotEmpty(t, TraceID(WithTrace(nil)))
	})
}

func TestLoggerAttachesTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))
	ctx := NewCtx()

	l.Info(ctx, "submitted", zap.Int("status", 200))
	l.Warn(context.Background(), "redirect")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, TraceID(ctx), entries[0].ContextMap()[TraceIDKey])
	assert.EqualValues(t, 200, entries[0].ContextMap()["status"])
	_, ok := entries[1].ContextMap()[TraceIDKey]
	assert.False(t, ok)
}

func TestDefaultReplaceable(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { std.Store(prev) })

	core, logs := observer.New(zapcore.InfoLevel)
	SetDefault(zap.New(core))
	Error(nil, "boom")
	Debug(nil, "hidden")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].Message)
}
