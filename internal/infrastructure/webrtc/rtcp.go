package webrtc

import (
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// readSenderRTCP drains feedback for one outbound sender until the
// connection closes.
func (e *Engine) readSenderRTCP(kind webrtc.RTPCodecType, sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		e.processRTCPPackets(kind, packets)
	}
}

func (e *Engine) processRTCPPackets(kind webrtc.RTPCodecType, packets []rtcp.Packet) {
	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.PictureLossIndication:
			e.keyframeRequests.Add(1)
			e.logger.Debugw("received PLI", "kind", kind, "media_ssrc", p.MediaSSRC)

		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				e.logger.Debugw("received receiver report",
					"kind", kind,
					"fraction_lost", report.FractionLost,
					"jitter", report.Jitter,
				)
			}

		case *rtcp.TransportLayerNack:
			e.logger.Debugw("received NACK", "kind", kind, "nacks", len(p.Nacks))
		}
	}
}
