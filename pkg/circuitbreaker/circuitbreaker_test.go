package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("dependency down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := New(cfg)
	b.now = c.now
	return b, c
}

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, Cooldown: time.Second})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	}
	assert.Equal(t, StateClosed, b.State())

	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2, Cooldown: time.Second})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, ok))
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("success closes", func(t *testing.T) {
		b, c := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})
		_ = b.Execute(ctx, fail)
		require.Equal(t, StateOpen, b.State())

		c.advance(time.Second)
		require.NoError(t, b.Execute(ctx, ok))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		b, c := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})
		_ = b.Execute(ctx, fail)

		c.advance(time.Second)
		assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
		assert.Equal(t, StateOpen, b.State())
		assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen)
	})

	t.Run("one probe at a time", func(t *testing.T) {
		b, c := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})
		_ = b.Execute(ctx, fail)
		c.advance(time.Second)

		var nested error
		err := b.Execute(ctx, func(ctx context.Context) error {
			nested = b.Execute(ctx, ok)
			return nil
		})
		require.NoError(t, err)
		assert.ErrorIs(t, nested, ErrOpen)
	})
}

func TestBreaker_IgnoresContextErrors(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	b, c := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})
	var transitions []string
	b.OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	c.advance(time.Second)
	_ = b.Execute(ctx, ok)
	_ = b.Execute(ctx, fail)
	b.Reset()

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->closed",
		"closed->open",
		"open->closed",
	}, transitions)
}
