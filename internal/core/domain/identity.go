package domain

import "time"

type Username string
type RoomID string
type ChannelID string

// Identity is a connected user bound to one room for the lifetime of its channel.
type Identity struct {
	Username    Username
	Room        RoomID
	ChannelID   ChannelID
	ConnectedAt time.Time
}
