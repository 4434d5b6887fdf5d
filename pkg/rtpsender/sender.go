// Package rtpsender contains a utility to send RTP packets.
package rtpsender

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/pion/randutil"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/rtpmux/rtpmux/pkg/ntp"
	"github.com/rtpmux/rtpmux/pkg/rtpseq"
)

// SenderInfo is a snapshot of the sender statistics that feed an RTCP
// sender report.
type SenderInfo struct {
	NTPTime     uint64
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
}

// Sender is a utility to send RTP packets.
// It is in charge of:
// - validating outgoing packets against the configured stream
// - keeping a retransmission cache and building RTX packets on demand
// - collecting the statistics that feed RTCP sender reports
type Sender struct {
	// SSRC of the outgoing stream.
	LocalSSRC uint32

	// Clock rate of the outgoing stream.
	ClockRate uint32

	// Accepted payload types.
	PayloadTypes []uint8

	// Whether retransmissions are enabled.
	RTXEnabled bool

	// SSRC of the retransmission stream.
	RTXSSRC uint32

	// Map of RTX payload type -> protected payload type.
	RTXPayloadTypes map[uint8]uint8

	// Size of the retransmission cache, as a sequence number distance.
	MaxCacheSeqDifference uint16

	// time.Now function.
	TimeNow func() time.Time

	// Called with every packet ready for the wire.
	WritePacketRTP func(*rtp.Packet)

	Log zerolog.Logger

	mutex sync.Mutex

	cache []*rtp.Packet // ascending sequence order

	hasSent        bool
	lastSeq        uint16
	firstWallclock time.Time
	firstTimestamp uint32
	packetCount    uint32
	octetCount     uint32

	rtxHasSent bool
	rtxLastSeq uint16
	rand       randutil.MathRandomGenerator
}

// Initialize validates the configuration.
func (s *Sender) Initialize() error {
	if s.ClockRate == 0 {
		return fmt.Errorf("invalid clock rate")
	}
	if len(s.PayloadTypes) == 0 {
		return fmt.Errorf("no payload types configured")
	}
	for _, pt := range s.PayloadTypes {
		if pt > 0x7F {
			return fmt.Errorf("invalid payload type %d", pt)
		}
	}
	if s.RTXEnabled {
		if s.MaxCacheSeqDifference == 0 {
			return fmt.Errorf("retransmission cache size cannot be zero")
		}
		for rtxPT, pt := range s.RTXPayloadTypes {
			if rtxPT > 0x7F || pt > 0x7F {
				return fmt.Errorf("invalid RTX payload type mapping %d -> %d", rtxPT, pt)
			}
		}
	}
	if s.TimeNow == nil {
		s.TimeNow = time.Now
	}
	s.rand = randutil.NewMathRandomGenerator()
	return nil
}

// Send validates pkt, updates statistics, caches it for retransmission
// when applicable and hands it to the write callback.
func (s *Sender) Send(pkt *rtp.Packet) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if pkt.SSRC != s.LocalSSRC {
		return fmt.Errorf("packet SSRC %d does not match local SSRC %d", pkt.SSRC, s.LocalSSRC)
	}
	if !s.payloadTypeAllowed(pkt.PayloadType) {
		return fmt.Errorf("unknown payload type %d", pkt.PayloadType)
	}

	if s.hasSent && !rtpseq.IsNext(s.lastSeq, pkt.SequenceNumber) {
		return fmt.Errorf("sequence number %d does not follow %d", pkt.SequenceNumber, s.lastSeq)
	}

	if s.RTXEnabled {
		if _, ok := s.rtxPayloadTypeFor(pkt.PayloadType); ok {
			s.cachePacket(pkt.Clone())
		}
	}

	if !s.hasSent {
		s.firstWallclock = s.TimeNow()
		s.firstTimestamp = pkt.Timestamp
	}
	s.packetCount++
	s.octetCount += uint32(len(pkt.Payload))
	s.lastSeq = pkt.SequenceNumber
	s.hasSent = true

	s.WritePacketRTP(pkt)
	return nil
}

// SendRTX retransmits the cached packets with the given original
// sequence numbers. Missing cache entries are skipped silently.
func (s *Sender) SendRTX(seqs []uint16) {
	if !s.RTXEnabled || len(seqs) == 0 {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, seq := range seqs {
		cached := s.cachedPacket(seq)
		if cached == nil {
			continue
		}
		rtxPkt, err := s.buildRTX(cached)
		if err != nil {
			s.Log.Warn().Err(err).Uint16("seq", seq).Msg("unable to build RTX packet")
			continue
		}
		s.Log.Debug().
			Uint16("seq", seq).
			Uint16("rtx_seq", rtxPkt.SequenceNumber).
			Msg("retransmitting packet")
		s.WritePacketRTP(rtxPkt)
	}
}

// Info returns the statistics snapshot that feeds a sender report, or
// false if no packet was sent yet.
func (s *Sender) Info(now time.Time) (SenderInfo, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.hasSent {
		return SenderInfo{}, false
	}
	elapsed := now.Sub(s.firstWallclock)
	return SenderInfo{
		NTPTime:     ntp.Encode(now),
		RTPTime:     s.firstTimestamp + uint32(elapsed.Seconds()*float64(s.ClockRate)),
		PacketCount: s.packetCount,
		OctetCount:  s.octetCount,
	}, true
}

// HasSent reports whether any packet was sent.
func (s *Sender) HasSent() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.hasSent
}

func (s *Sender) payloadTypeAllowed(pt uint8) bool {
	for _, v := range s.PayloadTypes {
		if v == pt {
			return true
		}
	}
	return false
}

func (s *Sender) rtxPayloadTypeFor(pt uint8) (uint8, bool) {
	for rtxPT, associated := range s.RTXPayloadTypes {
		if associated == pt {
			return rtxPT, true
		}
	}
	return 0, false
}

// cachePacket inserts pkt and drops every entry that fell out of the
// retransmission window ending at pkt's sequence number.
func (s *Sender) cachePacket(pkt *rtp.Packet) {
	i := 0
	for ; i < len(s.cache); i++ {
		if rtpseq.IsAfterInRange(s.cache[i].SequenceNumber, pkt.SequenceNumber, s.MaxCacheSeqDifference) {
			break
		}
	}
	s.cache = append(s.cache[i:], pkt)
}

func (s *Sender) cachedPacket(seq uint16) *rtp.Packet {
	for _, pkt := range s.cache {
		if pkt.SequenceNumber == seq {
			return pkt
		}
	}
	return nil
}

// buildRTX wraps a cached media packet into a retransmission packet:
// same timestamp and extensions, RTX payload type and SSRC, fresh RTX
// sequence number, original sequence number prepended to the payload.
// Specification: RFC 4588, section 4
func (s *Sender) buildRTX(pkt *rtp.Packet) (*rtp.Packet, error) {
	rtxPT, ok := s.rtxPayloadTypeFor(pkt.PayloadType)
	if !ok {
		return nil, fmt.Errorf("no RTX payload type for payload type %d", pkt.PayloadType)
	}

	if !s.rtxHasSent {
		s.rtxLastSeq = uint16(s.rand.Intn(1 << 16))
		s.rtxHasSent = true
	} else {
		s.rtxLastSeq++
	}

	rtxPkt := pkt.Clone()
	rtxPkt.PayloadType = rtxPT
	rtxPkt.SSRC = s.RTXSSRC
	rtxPkt.SequenceNumber = s.rtxLastSeq

	payload := make([]byte, 2+len(pkt.Payload))
	binary.BigEndian.PutUint16(payload, pkt.SequenceNumber)
	copy(payload[2:], pkt.Payload)
	rtxPkt.Payload = payload

	return rtxPkt, nil
}
