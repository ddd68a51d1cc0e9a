package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	MessageJoinRoom     MessageType = "join-room"
	MessageSendOffer    MessageType = "send-offer"
	MessageOffer        MessageType = "offer"
	MessageSendAnswer   MessageType = "send-answer"
	MessageAnswer       MessageType = "answer"
	MessageConnectPeer  MessageType = "connect-peer"
	MessageICECandidate MessageType = "ice-candidate"
	MessageError        MessageType = "error"
)

// SignalMessage is the wire envelope exchanged over a signaling channel.
type SignalMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OfferPayload struct {
	Offer string `json:"offer"`
}

type SendAnswerPayload struct {
	Offer          string   `json:"offer"`
	SenderUsername Username `json:"senderUsername"`
}

type AnswerPayload struct {
	Answer string `json:"answer"`
}

type ConnectPeerPayload struct {
	Answer         string   `json:"answer"`
	SenderUsername Username `json:"senderUsername"`
}

// ICECandidatePayload carries an opaque candidate; the server never looks
// inside Candidate.
type ICECandidatePayload struct {
	Candidate      json.RawMessage `json:"candidate"`
	SenderUsername Username        `json:"senderUsername,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrorCodeRoomFull       = "room_full"
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeRateLimited    = "rate_limited"
)

// NewSignalMessage builds a message, encoding payload when it is non-nil.
func NewSignalMessage(t MessageType, payload interface{}) (*SignalMessage, error) {
	msg := &SignalMessage{Type: t}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	msg.Payload = data
	return msg, nil
}

// DecodePayload unmarshals the payload into v.
func (m *SignalMessage) DecodePayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s payload is required", ErrInvalidPayload, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Type, err)
	}
	return nil
}

func NewErrorMessage(code, message string) *SignalMessage {
	msg, _ := NewSignalMessage(MessageError, ErrorPayload{Code: code, Message: message})
	return msg
}

// ErrorMessageFor maps a relay error to the error message sent back to
// the client that caused it.
func ErrorMessageFor(err error) *SignalMessage {
	switch {
	case errors.Is(err, ErrRoomFull):
		return NewErrorMessage(ErrorCodeRoomFull, "room already holds two participants")
	case errors.Is(err, ErrUnknownMessageType), errors.Is(err, ErrInvalidPayload):
		return NewErrorMessage(ErrorCodeInvalidMessage, err.Error())
	default:
		return NewErrorMessage("internal", "failed to process message")
	}
}
