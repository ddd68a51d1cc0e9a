package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_AllHealthy(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("redis", time.Second, func(ctx context.Context) error { return nil })

	status := h.CheckAll(context.Background())
	assert.True(t, status.Healthy())
	assert.Equal(t, "healthy", status.Checks["redis"])
}

func TestHealthChecker_FailureMarksUnhealthy(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", time.Second, func(ctx context.Context) error { return nil })
	h.AddCheck("redis", time.Second, func(ctx context.Context) error { return errors.New("connection refused") })

	status := h.CheckAll(context.Background())
	assert.False(t, status.Healthy())
	assert.Equal(t, "connection refused", status.Checks["redis"])
	assert.Equal(t, "healthy", status.Checks["ok"])
}

func TestHealthChecker_TimeoutApplies(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := h.CheckAll(context.Background())
	assert.False(t, status.Healthy())
}
