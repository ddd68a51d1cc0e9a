package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"

	"go.uber.org/zap"
)

const (
	dropNoCounterpart = "no_counterpart"
	dropBackpressure  = "backpressure"
	dropSuperseded    = "superseded"
	dropRemoteError   = "remote_error"
)

// RelayService interprets signaling messages from connected identities and
// forwards them to the identity they are meant for. Forwarding is best
// effort: a message whose recipient is not connected is dropped.
type RelayService struct {
	registry ports.IdentityRegistry
	matcher  ports.RoomMatcher
	remote   ports.RemoteDelivery
	metrics  ports.SignalMetrics
	logger   *zap.SugaredLogger

	// links remembers who each identity last exchanged an offer with, so
	// candidates still reach the counterpart after the room was cleared.
	links   map[domain.Username]domain.Username
	linksMu sync.Mutex
}

type RelayOption func(*RelayService)

func WithRemoteDelivery(remote ports.RemoteDelivery) RelayOption {
	return func(s *RelayService) { s.remote = remote }
}

func WithSignalMetrics(metrics ports.SignalMetrics) RelayOption {
	return func(s *RelayService) { s.metrics = metrics }
}

func NewRelayService(
	registry ports.IdentityRegistry,
	matcher ports.RoomMatcher,
	logger *zap.SugaredLogger,
	opts ...RelayOption,
) *RelayService {
	s := &RelayService{
		registry: registry,
		matcher:  matcher,
		metrics:  noopMetrics{},
		logger:   logger,
		links:    make(map[domain.Username]domain.Username),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect binds identity to channel. A channel previously bound to the same
// username is closed, its later messages are ignored and its pairing is
// forgotten.
func (s *RelayService) Connect(ctx context.Context, identity domain.Identity, channel ports.Channel) {
	superseded := s.registry.Register(ctx, identity.Username, channel)
	if superseded != nil {
		s.logger.Infow("identity reconnected, closing previous channel",
			"username", identity.Username,
			"previous_channel", superseded.ID(),
			"channel_id", channel.ID(),
		)
		superseded.Close()
		s.unlink(identity.Username)
		return
	}

	s.metrics.IdentityConnected()
	s.logger.Infow("identity connected",
		"username", identity.Username,
		"room_id", identity.Room,
		"channel_id", channel.ID(),
	)
}

// Disconnect forgets identity if channelID is still its live channel.
// The counterpart is not notified.
func (s *RelayService) Disconnect(ctx context.Context, identity domain.Identity, channelID domain.ChannelID) {
	if !s.registry.Release(ctx, identity.Username, channelID) {
		s.logger.Debugw("ignoring disconnect of superseded channel",
			"username", identity.Username,
			"channel_id", channelID,
		)
		return
	}

	s.metrics.IdentityDisconnected()
	s.unlink(identity.Username)
	if err := s.matcher.Release(ctx, identity.Room, identity.Username); err != nil {
		s.logger.Warnw("failed to release seat",
			"username", identity.Username,
			"room_id", identity.Room,
			"error", err,
		)
	}

	s.logger.Infow("identity disconnected",
		"username", identity.Username,
		"room_id", identity.Room,
		"channel_id", channelID,
	)
}

// HandleMessage processes one message received on channelID. The returned
// error is meant for the sender; drops are not errors.
func (s *RelayService) HandleMessage(ctx context.Context, identity domain.Identity, channelID domain.ChannelID, msg *domain.SignalMessage) error {
	if !s.registry.Owns(ctx, identity.Username, channelID) {
		s.metrics.MessageDropped(msg.Type, dropSuperseded)
		return nil
	}
	s.metrics.MessageReceived(msg.Type)

	switch msg.Type {
	case domain.MessageJoinRoom:
		return s.handleJoinRoom(ctx, identity)
	case domain.MessageOffer:
		return s.handleOffer(ctx, identity, msg)
	case domain.MessageAnswer:
		return s.handleAnswer(ctx, identity, msg)
	case domain.MessageICECandidate:
		return s.handleICECandidate(ctx, identity, msg)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownMessageType, msg.Type)
	}
}

func (s *RelayService) announce(ctx context.Context, identity domain.Identity) (domain.Match, error) {
	match, err := s.matcher.Announce(ctx, identity.Room, identity.Username)
	if errors.Is(err, domain.ErrRoomFull) {
		s.metrics.RoomFull()
		s.logger.Infow("room full, rejecting identity",
			"username", identity.Username,
			"room_id", identity.Room,
		)
		return match, err
	}
	if err != nil {
		return match, fmt.Errorf("announce: %w", err)
	}
	if match.IsPaired() {
		s.metrics.RoomPaired()
	}
	return match, nil
}

// handleJoinRoom asks the identity already waiting in the room, if any, to
// originate the offer. Joining starts a new negotiation, so pairings from
// earlier calls no longer route candidates.
func (s *RelayService) handleJoinRoom(ctx context.Context, identity domain.Identity) error {
	match, err := s.announce(ctx, identity)
	if err != nil {
		return err
	}
	s.unlink(identity.Username)

	offerer, ok := match.Offerer()
	if !ok {
		s.logger.Debugw("identity waiting for counterpart",
			"username", identity.Username,
			"room_id", identity.Room,
		)
		return nil
	}

	s.unlink(offerer)

	msg, err := domain.NewSignalMessage(domain.MessageSendOffer, nil)
	if err != nil {
		return err
	}
	s.forward(ctx, offerer, msg)
	return nil
}

func (s *RelayService) handleOffer(ctx context.Context, identity domain.Identity, in *domain.SignalMessage) error {
	var payload domain.OfferPayload
	if err := in.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.Offer == "" {
		return fmt.Errorf("%w: offer is empty", domain.ErrInvalidPayload)
	}

	match, err := s.announce(ctx, identity)
	if err != nil {
		return err
	}
	if !match.IsPaired() {
		s.drop(in.Type, identity.Username, dropNoCounterpart)
		return nil
	}

	out, err := domain.NewSignalMessage(domain.MessageSendAnswer, domain.SendAnswerPayload{
		Offer:          payload.Offer,
		SenderUsername: identity.Username,
	})
	if err != nil {
		return err
	}
	s.link(identity.Username, match.Counterpart)
	s.forward(ctx, match.Counterpart, out)
	return nil
}

// handleAnswer completes the round trip and clears the room so later
// joins start fresh.
func (s *RelayService) handleAnswer(ctx context.Context, identity domain.Identity, in *domain.SignalMessage) error {
	var payload domain.AnswerPayload
	if err := in.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.Answer == "" {
		return fmt.Errorf("%w: answer is empty", domain.ErrInvalidPayload)
	}

	target, ok, err := s.counterpart(ctx, identity)
	if err != nil {
		return err
	}
	if ok {
		out, err := domain.NewSignalMessage(domain.MessageConnectPeer, domain.ConnectPeerPayload{
			Answer:         payload.Answer,
			SenderUsername: identity.Username,
		})
		if err != nil {
			return err
		}
		s.forward(ctx, target, out)
	} else {
		s.drop(in.Type, identity.Username, dropNoCounterpart)
	}

	if err := s.matcher.Clear(ctx, identity.Room); err != nil {
		return fmt.Errorf("clear room: %w", err)
	}
	return nil
}

func (s *RelayService) handleICECandidate(ctx context.Context, identity domain.Identity, in *domain.SignalMessage) error {
	var payload domain.ICECandidatePayload
	if err := in.DecodePayload(&payload); err != nil {
		return err
	}
	if len(payload.Candidate) == 0 || string(payload.Candidate) == "null" {
		return fmt.Errorf("%w: candidate is empty", domain.ErrInvalidPayload)
	}

	target, ok := s.linked(identity.Username)
	if !ok {
		var err error
		target, ok, err = s.counterpart(ctx, identity)
		if err != nil {
			return err
		}
	}
	if !ok {
		s.drop(in.Type, identity.Username, dropNoCounterpart)
		return nil
	}

	out, err := domain.NewSignalMessage(domain.MessageICECandidate, domain.ICECandidatePayload{
		Candidate:      payload.Candidate,
		SenderUsername: identity.Username,
	})
	if err != nil {
		return err
	}
	s.forward(ctx, target, out)
	return nil
}

func (s *RelayService) counterpart(ctx context.Context, identity domain.Identity) (domain.Username, bool, error) {
	target, ok, err := s.matcher.Counterpart(ctx, identity.Room, identity.Username)
	if err != nil {
		return "", false, fmt.Errorf("counterpart lookup: %w", err)
	}
	if ok {
		return target, true, nil
	}
	target, ok = s.linked(identity.Username)
	return target, ok, nil
}

// DeliverLocal hands msg to a recipient connected to this instance. It is
// the receiving end of cross-instance delivery and never republishes.
func (s *RelayService) DeliverLocal(ctx context.Context, to domain.Username, msg *domain.SignalMessage) bool {
	channel, ok := s.registry.Lookup(ctx, to)
	if !ok {
		return false
	}
	if msg.Type == domain.MessageSendAnswer {
		var payload domain.SendAnswerPayload
		if err := msg.DecodePayload(&payload); err == nil && payload.SenderUsername != "" {
			s.link(to, payload.SenderUsername)
		}
	}
	if !channel.Send(msg) {
		s.drop(msg.Type, to, dropBackpressure)
		return false
	}
	s.metrics.MessageForwarded(msg.Type)
	return true
}

func (s *RelayService) forward(ctx context.Context, to domain.Username, msg *domain.SignalMessage) {
	channel, ok := s.registry.Lookup(ctx, to)
	switch {
	case ok:
		if !channel.Send(msg) {
			s.drop(msg.Type, to, dropBackpressure)
			return
		}
		s.metrics.MessageForwarded(msg.Type)
	case s.remote != nil:
		if err := s.remote.Deliver(ctx, to, msg); err != nil {
			s.logger.Warnw("remote delivery failed", "to", to, "type", msg.Type, "error", err)
			s.drop(msg.Type, to, dropRemoteError)
			return
		}
		s.metrics.MessageForwarded(msg.Type)
	default:
		s.drop(msg.Type, to, dropNoCounterpart)
	}
}

func (s *RelayService) drop(t domain.MessageType, username domain.Username, reason string) {
	s.metrics.MessageDropped(t, reason)
	s.logger.Debugw("dropping signaling message",
		"type", t,
		"username", username,
		"reason", reason,
	)
}

func (s *RelayService) link(a, b domain.Username) {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()

	s.links[a] = b
	s.links[b] = a
}

func (s *RelayService) linked(username domain.Username) (domain.Username, bool) {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()

	other, ok := s.links[username]
	return other, ok
}

func (s *RelayService) unlink(username domain.Username) {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()

	other, ok := s.links[username]
	if !ok {
		return
	}
	delete(s.links, username)
	if s.links[other] == username {
		delete(s.links, other)
	}
}

type noopMetrics struct{}

func (noopMetrics) IdentityConnected() {}
func (noopMetrics) IdentityDisconnected() {}
func (noopMetrics) MessageReceived(domain.MessageType) {}
func (noopMetrics) MessageForwarded(domain.MessageType) {}
func (noopMetrics) MessageDropped(domain.MessageType, string) {}
func (noopMetrics) RoomPaired() {}
func (noopMetrics) RoomFull() {}
