package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"duocall/internal/core/domain"
	"duocall/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultRelayChannel = "duocall:relay"

var ErrAlreadySubscribed = errors.New("relay bus already subscribed")

// Envelope carries one signaling message addressed to a username that is
// not connected to the publishing instance.
type Envelope struct {
	InstanceID string                `json:"instance_id"`
	Timestamp  time.Time             `json:"timestamp"`
	To         domain.Username       `json:"to"`
	Message    *domain.SignalMessage `json:"message"`
}

// LocalDelivery hands an envelope to a channel held by this instance.
type LocalDelivery interface {
	DeliverLocal(ctx context.Context, to domain.Username, msg *domain.SignalMessage) bool
}

// RelayBus fans signaling messages out to every instance over Redis
// pub/sub. Only the instance holding the recipient's channel delivers.
type RelayBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
	breaker    *circuitbreaker.Breaker

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewRelayBus(client *redis.Client, instanceID, channel string, logger *zap.SugaredLogger) *RelayBus {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	b := &RelayBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
	}
	b.SetBreaker(circuitbreaker.DefaultConfig())
	return b
}

// SetBreaker replaces the breaker guarding Publish. While it is open,
// Deliver fails fast with circuitbreaker.ErrOpen.
func (b *RelayBus) SetBreaker(cfg circuitbreaker.Config) {
	breaker := circuitbreaker.New(cfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		b.logger.Warnw("relay publish breaker changed state", "from", from, "to", to)
	})
	b.breaker = breaker
}

// Deliver publishes msg for whichever instance holds to.
func (b *RelayBus) Deliver(ctx context.Context, to domain.Username, msg *domain.SignalMessage) error {
	data, err := json.Marshal(&Envelope{
		InstanceID: b.instanceID,
		Timestamp:  time.Now(),
		To:         to,
		Message:    msg,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.client.Publish(ctx, b.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}

	b.logger.Debugw("published envelope", "to", to, "type", msg.Type)
	return nil
}

// Subscribe blocks, handing envelopes from other instances to local
// until ctx is done or the bus is closed.
func (b *RelayBus) Subscribe(ctx context.Context, local LocalDelivery) error {
	b.mu.Lock()
	if b.pubsub != nil {
		b.mu.Unlock()
		return ErrAlreadySubscribed
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	b.pubsub = pubsub
	b.mu.Unlock()
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so nothing published
	// after Subscribe returns control is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(ctx, msg.Payload, local)
		}
	}
}

func (b *RelayBus) handle(ctx context.Context, payload string, local LocalDelivery) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warnw("failed to unmarshal envelope", "error", err)
		return
	}
	if env.InstanceID == b.instanceID || env.Message == nil {
		return
	}

	if local.DeliverLocal(ctx, env.To, env.Message) {
		b.logger.Debugw("delivered remote envelope",
			"to", env.To,
			"type", env.Message.Type,
			"from_instance", env.InstanceID,
		)
	}
}

func (b *RelayBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
