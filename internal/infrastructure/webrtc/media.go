package webrtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"duocall/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

const (
	audioClockRate     = 48000
	videoClockRate     = 90000
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 33 * time.Millisecond
)

// MediaSource stands for the platform's capture capability.
type MediaSource interface {
	Open(ctx context.Context) (*LocalStream, error)
}

// LocalTrack is an outbound track fed by a packet pump. A disabled track
// keeps its sender but stops producing packets.
type LocalTrack struct {
	track    *webrtc.TrackLocalStaticRTP
	kind     webrtc.RTPCodecType
	enabled  atomic.Bool
	sent     atomic.Uint64
	stop     chan struct{}
	stopOnce sync.Once

	interval  time.Duration
	tsStep    uint32
	payload   []byte
	sequence  uint16
	timestamp uint32
}

func newLocalTrack(kind webrtc.RTPCodecType, mimeType, id, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mimeType}, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s track: %w", kind, err)
	}

	t := &LocalTrack{
		track: track,
		kind:  kind,
		stop:  make(chan struct{}),
	}
	if kind == webrtc.RTPCodecTypeAudio {
		t.interval = audioFrameInterval
		t.tsStep = uint32(audioClockRate * audioFrameInterval / time.Second)
		// Opus silence frame.
		t.payload = []byte{0xf8, 0xff, 0xfe}
	} else {
		t.interval = videoFrameInterval
		t.tsStep = uint32(videoClockRate * videoFrameInterval / time.Second)
		// VP8 descriptor with the start-of-partition bit, then filler.
		t.payload = []byte{0x10, 0x00, 0x9d, 0x01, 0x2a}
	}
	t.enabled.Store(true)
	go t.pump()
	return t, nil
}

func (t *LocalTrack) pump() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.timestamp += t.tsStep
			if !t.enabled.Load() {
				continue
			}
			t.sequence++
			packet := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         t.kind == webrtc.RTPCodecTypeVideo,
					SequenceNumber: t.sequence,
					Timestamp:      t.timestamp,
				},
				Payload: t.payload,
			}
			// Unbound tracks swallow writes.
			if err := t.track.WriteRTP(packet); err == nil {
				t.sent.Add(1)
			}
		}
	}
}

func (t *LocalTrack) ID() string {
	return t.track.ID()
}

func (t *LocalTrack) Kind() webrtc.RTPCodecType {
	return t.kind
}

func (t *LocalTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// PacketsSent counts packets handed to the track while enabled.
func (t *LocalTrack) PacketsSent() uint64 {
	return t.sent.Load()
}

func (t *LocalTrack) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

type LocalStream struct {
	ID     string
	tracks []*LocalTrack
}

func (s *LocalStream) Tracks() []*LocalTrack {
	return s.tracks
}

func (s *LocalStream) Audio() *LocalTrack {
	return s.first(webrtc.RTPCodecTypeAudio)
}

func (s *LocalStream) Video() *LocalTrack {
	return s.first(webrtc.RTPCodecTypeVideo)
}

func (s *LocalStream) first(kind webrtc.RTPCodecType) *LocalTrack {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

func (s *LocalStream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// SyntheticSource produces an Opus microphone and a VP8 camera track for
// headless peers. Like a browser capture request for both devices, it
// fails when either one is missing.
type SyntheticSource struct {
	HasMicrophone bool
	HasCamera     bool
	Denied        bool
}

func (s SyntheticSource) Open(ctx context.Context) (*LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Denied {
		return nil, domain.ErrMediaAccessDenied
	}
	if !s.HasMicrophone || !s.HasCamera {
		return nil, domain.ErrDeviceUnavailable
	}

	stream := &LocalStream{ID: "stream-" + uuid.NewString()}
	audio, err := newLocalTrack(webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus, "audio", stream.ID)
	if err != nil {
		return nil, err
	}
	video, err := newLocalTrack(webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8, "camera", stream.ID)
	if err != nil {
		audio.Stop()
		return nil, err
	}
	stream.tracks = []*LocalTrack{audio, video}
	return stream, nil
}

// ScreenSource yields a single VP8 track used to swap the outbound camera
// for a screen capture.
type ScreenSource struct {
	Denied bool
}

func (s ScreenSource) Open(ctx context.Context) (*LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Denied {
		return nil, domain.ErrMediaAccessDenied
	}

	stream := &LocalStream{ID: "screen-" + uuid.NewString()}
	video, err := newLocalTrack(webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8, "screen", stream.ID)
	if err != nil {
		return nil, err
	}
	stream.tracks = []*LocalTrack{video}
	return stream, nil
}
