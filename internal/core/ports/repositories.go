package ports

import (
	"context"

	"duocall/internal/core/domain"
)

// Channel is the server side of one live signaling connection.
type Channel interface {
	ID() domain.ChannelID
	// Send queues msg for delivery without blocking. It reports false when
	// the message was dropped because the channel is closed or backed up.
	Send(msg *domain.SignalMessage) bool
	Close()
}

type IdentityRegistry interface {
	// Register binds username to channel and returns the channel it replaced, if any.
	Register(ctx context.Context, username domain.Username, channel Channel) Channel
	Lookup(ctx context.Context, username domain.Username) (Channel, bool)
	Remove(ctx context.Context, username domain.Username)
	// Release removes username only while channelID is still its live channel.
	Release(ctx context.Context, username domain.Username, channelID domain.ChannelID) bool
	Owns(ctx context.Context, username domain.Username, channelID domain.ChannelID) bool
	Count() int
}

type RoomMatcher interface {
	Announce(ctx context.Context, roomID domain.RoomID, username domain.Username) (domain.Match, error)
	Counterpart(ctx context.Context, roomID domain.RoomID, username domain.Username) (domain.Username, bool, error)
	Clear(ctx context.Context, roomID domain.RoomID) error
	Release(ctx context.Context, roomID domain.RoomID, username domain.Username) error
	Policy() domain.MatchPolicy
}
