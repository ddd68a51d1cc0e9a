package domain

import "errors"

var (
	ErrRoomFull            = errors.New("room full")
	ErrUnknownMessageType  = errors.New("unknown message type")
	ErrInvalidPayload      = errors.New("invalid message payload")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrMediaAccessDenied   = errors.New("media access denied")
	ErrDeviceUnavailable   = errors.New("capture device unavailable")
	ErrNegotiation         = errors.New("negotiation error")
	ErrInvalidDescription  = errors.New("invalid session description")
	ErrNoActiveVideoSender = errors.New("no active video sender")
	ErrSessionClosed       = errors.New("negotiation session closed")
)
