package memory

import (
	"context"
	"sync"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"
)

// IdentityRegistry maps each username to its single live channel.
// Channels are process-local, so there is no Redis rendition.
type IdentityRegistry struct {
	channels map[domain.Username]ports.Channel
	mu       sync.RWMutex
}

func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{
		channels: make(map[domain.Username]ports.Channel),
	}
}

func (r *IdentityRegistry) Register(ctx context.Context, username domain.Username, channel ports.Channel) ports.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.channels[username]
	r.channels[username] = channel
	if previous == nil || previous.ID() == channel.ID() {
		return nil
	}
	return previous
}

func (r *IdentityRegistry) Lookup(ctx context.Context, username domain.Username) (ports.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channel, ok := r.channels[username]
	return channel, ok
}

func (r *IdentityRegistry) Remove(ctx context.Context, username domain.Username) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.channels, username)
}

func (r *IdentityRegistry) Release(ctx context.Context, username domain.Username, channelID domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	channel, ok := r.channels[username]
	if !ok || channel.ID() != channelID {
		return false
	}
	delete(r.channels, username)
	return true
}

func (r *IdentityRegistry) Owns(ctx context.Context, username domain.Username, channelID domain.ChannelID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channel, ok := r.channels[username]
	return ok && channel.ID() == channelID
}

func (r *IdentityRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.channels)
}

var _ ports.IdentityRegistry = (*IdentityRegistry)(nil)
