package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"
	"duocall/pkg/config"
	"duocall/pkg/tracing"

	"github.com/pion/rtcp"
	"github.com/pion/transport/v2"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

var _ ports.NegotiationEngine = (*Engine)(nil)

var ErrTrackAlreadyAttached = errors.New("a track of this kind is already attached")

type State string

const (
	StateNew             State = "new"
	StateHaveLocalOffer  State = "have-local-offer"
	StateHaveRemoteOffer State = "have-remote-offer"
	// StateStable means negotiated, transport not yet up.
	StateStable       State = "stable"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

const defaultPLIInterval = 3 * time.Second

type EngineConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// Net replaces the OS network, e.g. with a vnet in tests.
	Net         transport.Net
	Media       MediaSource
	PLIInterval time.Duration
}

func EngineConfigFromConfig(cfg *config.Config, media MediaSource) EngineConfig {
	ec := EngineConfig{Media: media}
	for _, s := range cfg.WebRTC.ICEServers {
		ec.ICEServers = append(ec.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	ec.PortRange.Min = cfg.WebRTC.PortRange.Min
	ec.PortRange.Max = cfg.WebRTC.PortRange.Max
	return ec
}

// Engine owns one peer connection for the duration of a call.
type Engine struct {
	pc          *webrtc.PeerConnection
	media       MediaSource
	pliInterval time.Duration

	// opMu serializes everything that touches negotiation state.
	opMu      sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	mu               sync.Mutex
	senders          map[webrtc.RTPCodecType]*webrtc.RTPSender
	active           map[webrtc.RTPCodecType]*LocalTrack
	streams          []*LocalStream
	state            State
	onLocalCandidate func(webrtc.ICECandidateInit)
	onRemoteTrack    func(*webrtc.TrackRemote)
	onStateChange    func(State)

	// cbMu is held for reading while a callback runs. Close takes it for
	// writing to wait out callbacks already in flight.
	cbMu sync.RWMutex

	keyframeRequests atomic.Uint64
	closed           atomic.Bool
	done             chan struct{}

	logger *zap.SugaredLogger
}

func NewEngine(cfg EngineConfig, logger *zap.SugaredLogger) (*Engine, error) {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}
	if cfg.Net != nil {
		settingEngine.SetNet(cfg.Net)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithMediaEngine(mediaEngine),
	)
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	pliInterval := cfg.PLIInterval
	if pliInterval <= 0 {
		pliInterval = defaultPLIInterval
	}

	e := &Engine{
		pc:          pc,
		media:       cfg.Media,
		pliInterval: pliInterval,
		senders:     make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
		active:      make(map[webrtc.RTPCodecType]*LocalTrack),
		state:       StateNew,
		done:        make(chan struct{}),
		logger:      logger,
	}

	pc.OnICECandidate(e.handleLocalCandidate)
	pc.OnTrack(e.handleRemoteTrack)
	pc.OnSignalingStateChange(func(webrtc.SignalingState) { e.refreshState() })
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.logger.Infow("peer connection state changed", "connection_state", state)
		e.refreshState()
	})

	return e, nil
}

// AcquireLocalMedia opens the configured media source and attaches every
// track it yields. Nothing is attached when the source fails.
func (e *Engine) AcquireLocalMedia(ctx context.Context) (*LocalStream, error) {
	if e.closed.Load() {
		return nil, domain.ErrSessionClosed
	}
	if e.media == nil {
		return nil, domain.ErrDeviceUnavailable
	}

	stream, err := e.media.Open(ctx)
	if err != nil {
		return nil, err
	}

	var attached []webrtc.RTPCodecType
	for _, track := range stream.Tracks() {
		if err := e.AttachTrack(track, stream); err != nil {
			e.detach(stream, attached)
			stream.Stop()
			return nil, err
		}
		attached = append(attached, track.Kind())
	}
	return stream, nil
}

// AttachTrack adds track to the connection. The engine keeps one sender
// per kind; use ReplaceOutboundVideoTrack to swap video.
func (e *Engine) AttachTrack(track *LocalTrack, stream *LocalStream) error {
	if e.closed.Load() {
		return domain.ErrSessionClosed
	}

	e.mu.Lock()
	if e.senders[track.Kind()] != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTrackAlreadyAttached, track.Kind())
	}
	sender, err := e.pc.AddTrack(track.track)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
	}
	e.senders[track.Kind()] = sender
	e.active[track.Kind()] = track
	if stream != nil && !e.hasStream(stream) {
		e.streams = append(e.streams, stream)
	}
	e.mu.Unlock()

	go e.readSenderRTCP(track.Kind(), sender)
	return nil
}

// detach undoes AttachTrack for kinds, leaving no sender behind.
func (e *Engine) detach(stream *LocalStream, kinds []webrtc.RTPCodecType) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, kind := range kinds {
		sender := e.senders[kind]
		if sender == nil {
			continue
		}
		if err := e.pc.RemoveTrack(sender); err != nil {
			e.logger.Warnw("failed to remove sender", "kind", kind, "error", err)
		}
		delete(e.senders, kind)
		delete(e.active, kind)
	}

	streams := e.streams[:0]
	for _, s := range e.streams {
		if s != stream {
			streams = append(streams, s)
		}
	}
	e.streams = streams
}

func (e *Engine) hasStream(stream *LocalStream) bool {
	for _, s := range e.streams {
		if s == stream {
			return true
		}
	}
	return false
}

func (e *Engine) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	ctx, span := tracing.TraceNegotiation(ctx, "create_offer")
	defer span.End()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed.Load() {
		return webrtc.SessionDescription{}, domain.ErrSessionClosed
	}
	if ss := e.pc.SignalingState(); ss != webrtc.SignalingStateStable {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: cannot offer in state %s", domain.ErrNegotiation, ss)
	}

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		tracing.RecordError(ctx, err)
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		tracing.RecordError(ctx, err)
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
	}
	e.refreshState()
	return offer, nil
}

func (e *Engine) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	ctx, span := tracing.TraceNegotiation(ctx, "create_answer")
	defer span.End()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed.Load() {
		return webrtc.SessionDescription{}, domain.ErrSessionClosed
	}
	if ss := e.pc.SignalingState(); ss != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: cannot answer in state %s", domain.ErrNegotiation, ss)
	}

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		tracing.RecordError(ctx, err)
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		tracing.RecordError(ctx, err)
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
	}
	e.refreshState()
	return answer, nil
}

// SetRemoteDescription applies desc and then every candidate that arrived
// before it, in arrival order.
func (e *Engine) SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error {
	ctx, span := tracing.TraceNegotiation(ctx, "set_remote_description")
	defer span.End()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed.Load() {
		return domain.ErrSessionClosed
	}
	if _, err := desc.Unmarshal(); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("%w: %v", domain.ErrInvalidDescription, err)
	}
	if err := e.pc.SetRemoteDescription(desc); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("%w: %v", domain.ErrInvalidDescription, err)
	}

	e.remoteSet = true
	pending := e.pending
	e.pending = nil
	for _, candidate := range pending {
		if err := e.pc.AddICECandidate(candidate); err != nil {
			e.logger.Warnw("failed to apply buffered candidate", "error", err)
		}
	}
	if len(pending) > 0 {
		e.logger.Debugw("applied buffered candidates", "count", len(pending))
	}

	e.refreshState()
	return nil
}

// AddRemoteCandidate applies candidate, or queues it until a remote
// description exists.
func (e *Engine) AddRemoteCandidate(ctx context.Context, candidate webrtc.ICECandidateInit) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed.Load() {
		return domain.ErrSessionClosed
	}
	if !e.remoteSet {
		e.pending = append(e.pending, candidate)
		return nil
	}
	if err := e.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add candidate: %w", err)
	}
	return nil
}

func (e *Engine) pendingCandidates() int {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return len(e.pending)
}

func (e *Engine) OnLocalCandidate(cb func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	e.onLocalCandidate = cb
	e.mu.Unlock()
}

func (e *Engine) OnRemoteTrack(cb func(*webrtc.TrackRemote)) {
	e.mu.Lock()
	e.onRemoteTrack = cb
	e.mu.Unlock()
}

func (e *Engine) OnStateChange(cb func(State)) {
	e.mu.Lock()
	e.onStateChange = cb
	e.mu.Unlock()
}

// invoke runs fn unless the engine is closed. Callbacks must not call Close.
func (e *Engine) invoke(fn func()) {
	e.cbMu.RLock()
	defer e.cbMu.RUnlock()
	if e.closed.Load() {
		return
	}
	fn()
}

func (e *Engine) handleLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil || e.closed.Load() {
		return
	}
	e.mu.Lock()
	cb := e.onLocalCandidate
	e.mu.Unlock()
	if cb != nil {
		e.invoke(func() { cb(c.ToJSON()) })
	}
}

func (e *Engine) handleRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if e.closed.Load() {
		return
	}
	e.logger.Infow("remote track started",
		"track_id", track.ID(),
		"kind", track.Kind(),
		"codec", track.Codec().MimeType,
	)

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go e.requestKeyframes(track)
	}

	e.mu.Lock()
	cb := e.onRemoteTrack
	e.mu.Unlock()
	if cb != nil {
		e.invoke(func() { cb(track) })
	}
}

// ReplaceOutboundVideoTrack swaps what the video sender transmits without
// renegotiating.
func (e *Engine) ReplaceOutboundVideoTrack(track *LocalTrack) error {
	if e.closed.Load() {
		return domain.ErrSessionClosed
	}

	e.mu.Lock()
	sender := e.senders[webrtc.RTPCodecTypeVideo]
	e.mu.Unlock()
	if sender == nil {
		return domain.ErrNoActiveVideoSender
	}

	if err := sender.ReplaceTrack(track.track); err != nil {
		return fmt.Errorf("failed to replace video track: %w", err)
	}

	e.mu.Lock()
	e.active[webrtc.RTPCodecTypeVideo] = track
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	if e.closed.Load() {
		return domain.ErrSessionClosed
	}

	e.mu.Lock()
	track := e.active[kind]
	e.mu.Unlock()
	if track == nil {
		return fmt.Errorf("no local %s track: %w", kind, domain.ErrDeviceUnavailable)
	}
	track.SetEnabled(enabled)
	return nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) KeyframeRequests() uint64 {
	return e.keyframeRequests.Load()
}

func (e *Engine) refreshState() {
	if e.closed.Load() {
		return
	}
	next := e.deriveState()

	e.mu.Lock()
	if next == e.state {
		e.mu.Unlock()
		return
	}
	e.state = next
	cb := e.onStateChange
	e.mu.Unlock()

	if cb != nil {
		e.invoke(func() { cb(next) })
	}
}

func (e *Engine) deriveState() State {
	switch e.pc.ConnectionState() {
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	}

	switch e.pc.SignalingState() {
	case webrtc.SignalingStateHaveLocalOffer:
		return StateHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return StateHaveRemoteOffer
	case webrtc.SignalingStateClosed:
		return StateClosed
	}
	if e.pc.RemoteDescription() != nil {
		return StateStable
	}
	return StateNew
}

// Close stops local media and the peer connection. Callbacks already
// running finish before Close returns and none start afterwards.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.done)

	e.cbMu.Lock()
	e.cbMu.Unlock()

	e.mu.Lock()
	streams := e.streams
	active := make([]*LocalTrack, 0, len(e.active))
	for _, t := range e.active {
		active = append(active, t)
	}
	e.state = StateClosed
	e.onLocalCandidate = nil
	e.onRemoteTrack = nil
	e.onStateChange = nil
	e.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
	for _, t := range active {
		t.Stop()
	}

	if err := e.pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}

func (e *Engine) requestKeyframes(track *webrtc.TrackRemote) {
	ticker := time.NewTicker(e.pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			err := e.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			})
			if err != nil {
				e.logger.Debugw("stopped keyframe requests", "track_id", track.ID(), "error", err)
				return
			}
		}
	}
}
