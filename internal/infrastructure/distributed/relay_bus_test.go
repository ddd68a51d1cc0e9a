package distributed

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"duocall/internal/core/domain"
	"duocall/pkg/circuitbreaker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type delivered struct {
	to  domain.Username
	msg *domain.SignalMessage
}

type recordingDelivery struct {
	mu     sync.Mutex
	online map[domain.Username]bool
	got    []delivered
	notify chan struct{}
}

func newRecordingDelivery(online ...domain.Username) *recordingDelivery {
	r := &recordingDelivery{online: map[domain.Username]bool{}, notify: make(chan struct{}, 8)}
	for _, u := range online {
		r.online[u] = true
	}
	return r
}

func (r *recordingDelivery) DeliverLocal(_ context.Context, to domain.Username, msg *domain.SignalMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[to] {
		return false
	}
	r.got = append(r.got, delivered{to: to, msg: msg})
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return true
}

func (r *recordingDelivery) deliveries() []delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivered(nil), r.got...)
}

func envelopeJSON(t *testing.T, instanceID string, to domain.Username, msg *domain.SignalMessage) string {
	t.Helper()
	data, err := json.Marshal(&Envelope{InstanceID: instanceID, To: to, Message: msg})
	require.NoError(t, err)
	return string(data)
}

func TestRelayBus_Handle(t *testing.T) {
	bus := NewRelayBus(nil, "instance-a", "", zap.NewNop().Sugar())
	roomFull := domain.NewErrorMessage(domain.ErrorCodeRoomFull, "room is full")
	ctx := context.Background()

	t.Run("delivers envelopes from other instances", func(t *testing.T) {
		local := newRecordingDelivery("bob")
		bus.handle(ctx, envelopeJSON(t, "instance-b", "bob", roomFull), local)

		got := local.deliveries()
		require.Len(t, got, 1)
		assert.Equal(t, domain.Username("bob"), got[0].to)
		assert.Equal(t, domain.MessageError, got[0].msg.Type)
	})

	t.Run("skips own envelopes", func(t *testing.T) {
		local := newRecordingDelivery("bob")
		bus.handle(ctx, envelopeJSON(t, "instance-a", "bob", roomFull), local)
		assert.Empty(t, local.deliveries())
	})

	t.Run("ignores malformed payloads", func(t *testing.T) {
		local := newRecordingDelivery("bob")
		bus.handle(ctx, "{not json", local)
		bus.handle(ctx, envelopeJSON(t, "instance-b", "bob", nil), local)
		assert.Empty(t, local.deliveries())
	})

	t.Run("recipient not connected here", func(t *testing.T) {
		local := newRecordingDelivery()
		bus.handle(ctx, envelopeJSON(t, "instance-b", "bob", roomFull), local)
		assert.Empty(t, local.deliveries())
	})
}

func TestRelayBus_AcrossInstances(t *testing.T) {
	addr := os.Getenv("DUOCALL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DUOCALL_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	channel := "duocall:test:" + uuid.NewString()
	logger := zap.NewNop().Sugar()
	sender := NewRelayBus(client, "instance-a", channel, logger)
	receiver := NewRelayBus(client, "instance-b", channel, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := newRecordingDelivery("bob")
	go func() { _ = receiver.Subscribe(ctx, local) }()

	msg, err := domain.NewSignalMessage(domain.MessageSendOffer, nil)
	require.NoError(t, err)

	// The subscriber may not be attached yet; publish until it is.
	require.Eventually(t, func() bool {
		if err := sender.Deliver(ctx, "bob", msg); err != nil {
			return false
		}
		select {
		case <-local.notify:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	got := local.deliveries()
	require.NotEmpty(t, got)
	assert.Equal(t, domain.MessageSendOffer, got[0].msg.Type)

	assert.ErrorIs(t, receiver.Subscribe(ctx, local), ErrAlreadySubscribed)
}

func TestRelayBus_DeliverFailsFastWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRelayBus(client, "instance-a", "", zap.NewNop().Sugar())
	bus.SetBreaker(circuitbreaker.Config{FailureThreshold: 2, Cooldown: time.Minute})

	msg, err := domain.NewSignalMessage(domain.MessageSendOffer, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := bus.Deliver(ctx, "bob", msg)
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}
	assert.ErrorIs(t, bus.Deliver(ctx, "bob", msg), circuitbreaker.ErrOpen)
}
