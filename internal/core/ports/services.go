package ports

import (
	"context"

	"duocall/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// RemoteDelivery hands a message to another instance that may hold the
// recipient's channel.
type RemoteDelivery interface {
	Deliver(ctx context.Context, to domain.Username, msg *domain.SignalMessage) error
}

type SignalMetrics interface {
	IdentityConnected()
	IdentityDisconnected()
	MessageReceived(t domain.MessageType)
	MessageForwarded(t domain.MessageType)
	MessageDropped(t domain.MessageType, reason string)
	RoomPaired()
	RoomFull()
}

// SignalTransport is the client side of a signaling channel.
type SignalTransport interface {
	Send(msg *domain.SignalMessage) error
	Incoming() <-chan *domain.SignalMessage
	Close() error
}

type NegotiationEngine interface {
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error
	AddRemoteCandidate(ctx context.Context, candidate webrtc.ICECandidateInit) error
	OnLocalCandidate(cb func(webrtc.ICECandidateInit))
	Close() error
}
