package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLogger_AddsIdentityFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := NewContextLogger(zap.New(core).Sugar())

	ctx := WithIdentity(context.Background(), "alice", "room-1", "ch-1")
	ctx = WithRequestID(ctx, "req-9")
	cl.WithContext(ctx).Info("connected")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "alice", fields["username"])
	assert.Equal(t, "room-1", fields["room_id"])
	assert.Equal(t, "ch-1", fields["channel_id"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestContextLogger_EmptyContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := NewContextLogger(zap.New(core).Sugar())

	cl.WithContext(context.Background()).Info("plain")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := NewWithFormat("chatty", "console")
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}
