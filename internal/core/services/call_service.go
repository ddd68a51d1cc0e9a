package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

var ErrSignalingClosed = errors.New("signaling channel closed")

// EncodeDescription serializes a session description into the string form
// carried by offer and answer messages.
func EncodeDescription(desc webrtc.SessionDescription) (string, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("failed to encode session description: %w", err)
	}
	return string(data), nil
}

func DecodeDescription(s string) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(s), &desc); err != nil {
		return desc, fmt.Errorf("%w: %v", domain.ErrInvalidDescription, err)
	}
	if desc.SDP == "" {
		return desc, fmt.Errorf("%w: empty sdp", domain.ErrInvalidDescription)
	}
	return desc, nil
}

func DecodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return candidate, fmt.Errorf("%w: candidate: %v", domain.ErrInvalidPayload, err)
	}
	return candidate, nil
}

// CallService drives one call attempt from the client side: it joins the
// room and answers the server's negotiation prompts with the engine.
type CallService struct {
	transport ports.SignalTransport
	engine    ports.NegotiationEngine
	logger    *zap.SugaredLogger
}

func NewCallService(transport ports.SignalTransport, engine ports.NegotiationEngine, logger *zap.SugaredLogger) *CallService {
	return &CallService{
		transport: transport,
		engine:    engine,
		logger:    logger,
	}
}

// Run joins the room and processes signaling messages in arrival order
// until ctx is done, the channel closes or the call has to be abandoned.
func (c *CallService) Run(ctx context.Context) error {
	c.engine.OnLocalCandidate(c.sendCandidate)

	join, err := domain.NewSignalMessage(domain.MessageJoinRoom, nil)
	if err != nil {
		return err
	}
	if err := c.transport.Send(join); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.transport.Incoming():
			if !ok {
				return ErrSignalingClosed
			}
			if err := c.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (c *CallService) handle(ctx context.Context, msg *domain.SignalMessage) error {
	switch msg.Type {
	case domain.MessageSendOffer:
		return c.handleSendOffer(ctx)
	case domain.MessageSendAnswer:
		return c.handleSendAnswer(ctx, msg)
	case domain.MessageConnectPeer:
		return c.handleConnectPeer(ctx, msg)
	case domain.MessageICECandidate:
		c.handleRemoteCandidate(ctx, msg)
		return nil
	case domain.MessageError:
		return c.handleError(msg)
	default:
		c.logger.Debugw("ignoring unexpected message", "type", msg.Type)
		return nil
	}
}

func (c *CallService) handleSendOffer(ctx context.Context) error {
	offer, err := c.engine.CreateOffer(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNegotiation) {
			c.logger.Warnw("cannot create offer now", "error", err)
			return nil
		}
		return err
	}
	return c.sendDescription(domain.MessageOffer, offer)
}

func (c *CallService) handleSendAnswer(ctx context.Context, msg *domain.SignalMessage) error {
	var payload domain.SendAnswerPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidDescription, err)
	}
	offer, err := DecodeDescription(payload.Offer)
	if err != nil {
		return err
	}
	c.logger.Infow("received offer", "from", payload.SenderUsername)

	if err := c.engine.SetRemoteDescription(ctx, offer); err != nil {
		return err
	}
	answer, err := c.engine.CreateAnswer(ctx)
	if err != nil {
		return err
	}
	return c.sendDescription(domain.MessageAnswer, answer)
}

func (c *CallService) handleConnectPeer(ctx context.Context, msg *domain.SignalMessage) error {
	var payload domain.ConnectPeerPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidDescription, err)
	}
	answer, err := DecodeDescription(payload.Answer)
	if err != nil {
		return err
	}
	c.logger.Infow("received answer", "from", payload.SenderUsername)
	return c.engine.SetRemoteDescription(ctx, answer)
}

func (c *CallService) handleRemoteCandidate(ctx context.Context, msg *domain.SignalMessage) {
	var payload domain.ICECandidatePayload
	if err := msg.DecodePayload(&payload); err != nil {
		c.logger.Warnw("dropping malformed candidate", "error", err)
		return
	}
	candidate, err := DecodeCandidate(payload.Candidate)
	if err != nil {
		c.logger.Warnw("dropping malformed candidate", "error", err)
		return
	}
	if err := c.engine.AddRemoteCandidate(ctx, candidate); err != nil {
		c.logger.Warnw("failed to add remote candidate", "error", err)
	}
}

func (c *CallService) handleError(msg *domain.SignalMessage) error {
	var payload domain.ErrorPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	if payload.Code == domain.ErrorCodeRoomFull {
		return domain.ErrRoomFull
	}
	c.logger.Warnw("server rejected message", "code", payload.Code, "message", payload.Message)
	return nil
}

func (c *CallService) sendDescription(t domain.MessageType, desc webrtc.SessionDescription) error {
	encoded, err := EncodeDescription(desc)
	if err != nil {
		return err
	}

	var payload interface{}
	if t == domain.MessageOffer {
		payload = domain.OfferPayload{Offer: encoded}
	} else {
		payload = domain.AnswerPayload{Answer: encoded}
	}
	msg, err := domain.NewSignalMessage(t, payload)
	if err != nil {
		return err
	}
	return c.transport.Send(msg)
}

func (c *CallService) sendCandidate(candidate webrtc.ICECandidateInit) {
	raw, err := json.Marshal(candidate)
	if err != nil {
		c.logger.Warnw("failed to encode local candidate", "error", err)
		return
	}
	msg, err := domain.NewSignalMessage(domain.MessageICECandidate, domain.ICECandidatePayload{Candidate: raw})
	if err != nil {
		c.logger.Warnw("failed to build candidate message", "error", err)
		return
	}
	if err := c.transport.Send(msg); err != nil {
		c.logger.Warnw("failed to send local candidate", "error", err)
	}
}
