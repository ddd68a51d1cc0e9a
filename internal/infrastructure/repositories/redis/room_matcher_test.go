package redis

import (
	"context"
	"os"
	"testing"

	"duocall/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to DUOCALL_TEST_REDIS_ADDR; tests skip without it.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("DUOCALL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DUOCALL_TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(ClientOptions{Address: addr, PoolSize: 4}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testRoom() domain.RoomID {
	return domain.RoomID("test-" + uuid.NewString())
}

func TestRoomMatcher_TwoSeat(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	m := NewRoomMatcher(client, domain.PolicyTwoSeat)
	room := testRoom()
	t.Cleanup(func() { _ = m.Clear(ctx, room) })

	match, err := m.Announce(ctx, room, "A")
	require.NoError(t, err)
	assert.False(t, match.IsPaired())

	match, err = m.Announce(ctx, room, "A")
	require.NoError(t, err)
	assert.False(t, match.IsPaired())

	match, err = m.Announce(ctx, room, "B")
	require.NoError(t, err)
	assert.Equal(t, domain.PairedWith("A"), match)

	_, err = m.Announce(ctx, room, "C")
	assert.ErrorIs(t, err, domain.ErrRoomFull)

	counterpart, ok, err := m.Counterpart(ctx, room, "B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Username("A"), counterpart)

	require.NoError(t, m.Release(ctx, room, "A"))
	match, err = m.Announce(ctx, room, "C")
	require.NoError(t, err)
	assert.Equal(t, domain.PairedWith("B"), match)

	require.NoError(t, m.Clear(ctx, room))
	_, ok, err = m.Counterpart(ctx, room, "B")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoomMatcher_SingleSlot(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	m := NewRoomMatcher(client, domain.PolicySingleSlot)
	room := testRoom()
	t.Cleanup(func() { _ = m.Clear(ctx, room) })

	match, err := m.Announce(ctx, room, "A")
	require.NoError(t, err)
	assert.False(t, match.IsPaired())

	match, err = m.Announce(ctx, room, "B")
	require.NoError(t, err)
	assert.Equal(t, domain.PairedWith("A"), match)

	match, err = m.Announce(ctx, room, "C")
	require.NoError(t, err)
	assert.Equal(t, domain.PairedWith("B"), match)

	require.NoError(t, m.Clear(ctx, room))
	match, err = m.Announce(ctx, room, "D")
	require.NoError(t, err)
	assert.False(t, match.IsPaired())
}
