package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"duocall/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSDP = "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

type mockEngine struct {
	mock.Mock
	mu          sync.Mutex
	onCandidate func(webrtc.ICECandidateInit)
}

func (m *mockEngine) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	args := m.Called(ctx)
	return args.Get(0).(webrtc.SessionDescription), args.Error(1)
}

func (m *mockEngine) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	args := m.Called(ctx)
	return args.Get(0).(webrtc.SessionDescription), args.Error(1)
}

func (m *mockEngine) SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error {
	return m.Called(ctx, desc).Error(0)
}

func (m *mockEngine) AddRemoteCandidate(ctx context.Context, candidate webrtc.ICECandidateInit) error {
	return m.Called(ctx, candidate).Error(0)
}

func (m *mockEngine) OnLocalCandidate(cb func(webrtc.ICECandidateInit)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCandidate = cb
}

func (m *mockEngine) Close() error {
	return nil
}

func (m *mockEngine) emitCandidate(c webrtc.ICECandidateInit) {
	m.mu.Lock()
	cb := m.onCandidate
	m.mu.Unlock()
	cb(c)
}

type chanTransport struct {
	incoming chan *domain.SignalMessage
	sent     chan *domain.SignalMessage
}

func newChanTransport() *chanTransport {
	return &chanTransport{
		incoming: make(chan *domain.SignalMessage, 8),
		sent:     make(chan *domain.SignalMessage, 8),
	}
}

func (t *chanTransport) Send(msg *domain.SignalMessage) error {
	t.sent <- msg
	return nil
}

func (t *chanTransport) Incoming() <-chan *domain.SignalMessage { return t.incoming }

func (t *chanTransport) Close() error { return nil }

func (t *chanTransport) push(tt *testing.T, mt domain.MessageType, payload interface{}) {
	msg, err := domain.NewSignalMessage(mt, payload)
	require.NoError(tt, err)
	t.incoming <- msg
}

func (t *chanTransport) next(tt *testing.T) *domain.SignalMessage {
	tt.Helper()
	select {
	case msg := <-t.sent:
		return msg
	case <-time.After(2 * time.Second):
		tt.Fatal("timed out waiting for outbound message")
		return nil
	}
}

func startCall(t *testing.T, engine *mockEngine, transport *chanTransport) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	call := NewCallService(transport, engine, zaptest.NewLogger(t).Sugar())
	go func() { done <- call.Run(ctx) }()

	join := transport.next(t)
	require.Equal(t, domain.MessageJoinRoom, join.Type)
	return cancel, done
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for engine call")
	}
}

func mustEncode(t *testing.T, desc webrtc.SessionDescription) string {
	s, err := EncodeDescription(desc)
	require.NoError(t, err)
	return s
}

func TestCallService_OffererFlow(t *testing.T) {
	engine := &mockEngine{}
	transport := newChanTransport()
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP}

	applied := make(chan struct{})
	engine.On("CreateOffer", mock.Anything).Return(offer, nil).Once()
	engine.On("SetRemoteDescription", mock.Anything, answer).Return(nil).Once().
		Run(func(mock.Arguments) { close(applied) })

	cancel, done := startCall(t, engine, transport)
	defer cancel()

	transport.push(t, domain.MessageSendOffer, nil)
	sent := transport.next(t)
	require.Equal(t, domain.MessageOffer, sent.Type)
	var payload domain.OfferPayload
	require.NoError(t, sent.DecodePayload(&payload))
	decoded, err := DecodeDescription(payload.Offer)
	require.NoError(t, err)
	assert.Equal(t, offer, decoded)

	transport.push(t, domain.MessageConnectPeer, domain.ConnectPeerPayload{Answer: mustEncode(t, answer), SenderUsername: "bob"})
	waitFor(t, applied)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	engine.AssertExpectations(t)
}

func TestCallService_AnswererFlow(t *testing.T) {
	engine := &mockEngine{}
	transport := newChanTransport()
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP}

	engine.On("SetRemoteDescription", mock.Anything, offer).Return(nil).Once()
	engine.On("CreateAnswer", mock.Anything).Return(answer, nil).Once()

	cancel, done := startCall(t, engine, transport)
	defer cancel()

	transport.push(t, domain.MessageSendAnswer, domain.SendAnswerPayload{Offer: mustEncode(t, offer), SenderUsername: "alice"})
	sent := transport.next(t)
	require.Equal(t, domain.MessageAnswer, sent.Type)

	cancel()
	<-done
	engine.AssertExpectations(t)
}

func TestCallService_CandidatesBothWays(t *testing.T) {
	engine := &mockEngine{}
	transport := newChanTransport()
	mid := "0"
	remote := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 10.0.0.2 5000 typ host", SDPMid: &mid}

	added := make(chan struct{})
	engine.On("AddRemoteCandidate", mock.Anything, remote).Return(nil).Once().
		Run(func(mock.Arguments) { close(added) })

	cancel, done := startCall(t, engine, transport)
	defer cancel()

	raw, err := json.Marshal(remote)
	require.NoError(t, err)
	transport.push(t, domain.MessageICECandidate, domain.ICECandidatePayload{Candidate: raw, SenderUsername: "bob"})

	engine.emitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:2 1 udp 2130706431 10.0.0.1 5001 typ host"})
	sent := transport.next(t)
	require.Equal(t, domain.MessageICECandidate, sent.Type)
	var payload domain.ICECandidatePayload
	require.NoError(t, sent.DecodePayload(&payload))
	local, err := DecodeCandidate(payload.Candidate)
	require.NoError(t, err)
	assert.Contains(t, local.Candidate, "10.0.0.1")

	waitFor(t, added)
	cancel()
	<-done
	engine.AssertExpectations(t)
}

func TestCallService_MalformedOfferAbandonsCall(t *testing.T) {
	engine := &mockEngine{}
	transport := newChanTransport()

	_, done := startCall(t, engine, transport)
	transport.push(t, domain.MessageSendAnswer, domain.SendAnswerPayload{Offer: "{not json", SenderUsername: "alice"})

	assert.ErrorIs(t, <-done, domain.ErrInvalidDescription)
	engine.AssertNotCalled(t, "SetRemoteDescription", mock.Anything, mock.Anything)
}

func TestCallService_RoomFull(t *testing.T) {
	engine := &mockEngine{}
	transport := newChanTransport()

	_, done := startCall(t, engine, transport)
	transport.incoming <- domain.NewErrorMessage(domain.ErrorCodeRoomFull, "full")

	assert.ErrorIs(t, <-done, domain.ErrRoomFull)
}

func TestCallService_ChannelClosed(t *testing.T) {
	engine := &mockEngine{}
	transport := newChanTransport()

	_, done := startCall(t, engine, transport)
	close(transport.incoming)

	assert.ErrorIs(t, <-done, ErrSignalingClosed)
}

func TestDecodeDescription(t *testing.T) {
	_, err := DecodeDescription(`{"type":"offer","sdp":""}`)
	assert.ErrorIs(t, err, domain.ErrInvalidDescription)

	desc, err := DecodeDescription(`{"type":"answer","sdp":"v=0\r\n"}`)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, desc.Type)
}
