// Package rtpreceiver contains a utility to receive RTP packets.
package rtpreceiver

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/rtpmux/rtpmux/pkg/rtpseq"
)

// nackRetryInterval is how long a lost packet stays quiet after being
// reported before it is reported again.
const nackRetryInterval = 50 * time.Millisecond

type cacheEntry struct {
	pkt      *rtp.Packet
	deadline time.Time
}

type lossRecord struct {
	notified   bool
	lastNotify time.Time
}

// ReceiverInfo is a snapshot of the receiver statistics that feed an
// RTCP report block.
type ReceiverInfo struct {
	FirstExtendedSeq   uint32
	ExtendedHighestSeq uint32
	CumulativeLoss     uint32
	Jitter             uint32
}

// Receiver is a utility to receive RTP packets.
// It is in charge of:
// - removing duplicate and late packets
// - reordering packets and releasing them in sequence order
// - tracking lost packets and surfacing NACK candidates
// - rebuilding media packets from retransmissions
// - collecting the statistics that feed RTCP report blocks
type Receiver struct {
	// SSRC of the incoming stream.
	RemoteSSRC uint32

	// Clock rate of the incoming stream.
	ClockRate uint32

	// Accepted payload types.
	PayloadTypes []uint8

	// Whether retransmissions are enabled.
	RTXEnabled bool

	// SSRC of the retransmission stream.
	RTXSSRC uint32

	// Map of RTX payload type -> protected payload type.
	RTXPayloadTypes map[uint8]uint8

	// How long a packet may wait in the cache for its predecessors.
	// Zero releases every packet on the next poll.
	MaxCacheDuration time.Duration

	// time.Now function.
	TimeNow func() time.Time

	Log zerolog.Logger

	mutex sync.Mutex

	cache []*cacheEntry // ascending sequence order
	loss  map[uint16]*lossRecord

	hasOutput bool
	cursor    uint16 // largest released sequence number

	ext            rtpseq.Extended
	cumulativeLoss uint32

	jitterInitialized bool
	lastTimestamp     uint32
	lastArrival       time.Time
	jitter            float64
}

// Initialize validates the configuration.
func (r *Receiver) Initialize() error {
	if r.ClockRate == 0 {
		return fmt.Errorf("invalid clock rate")
	}
	if len(r.PayloadTypes) == 0 {
		return fmt.Errorf("no payload types configured")
	}
	for _, pt := range r.PayloadTypes {
		if pt > 0x7F {
			return fmt.Errorf("invalid payload type %d", pt)
		}
	}
	if r.TimeNow == nil {
		r.TimeNow = time.Now
	}
	r.loss = make(map[uint16]*lossRecord)
	return nil
}

// ProcessPacket feeds an incoming packet into the cache. Packets on the
// retransmission SSRC are rebuilt into their original form first.
// Duplicate and late packets are dropped silently.
func (r *Receiver) ProcessPacket(pkt *rtp.Packet, arrival time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.RTXEnabled && pkt.SSRC == r.RTXSSRC {
		rebuilt, err := r.rebuildFromRTX(pkt)
		if err != nil {
			r.Log.Warn().Err(err).Msg("dropping retransmission packet")
			return
		}
		r.Log.Debug().
			Uint16("seq", rebuilt.SequenceNumber).
			Msg("rebuilt packet from retransmission")
		pkt = rebuilt
	} else if !r.payloadTypeAllowed(pkt.PayloadType) {
		r.Log.Warn().
			Uint8("pt", pkt.PayloadType).
			Msg("dropping packet with unexpected payload type")
		return
	}

	r.updateJitter(pkt, arrival)
	r.insert(pkt, arrival)
}

// ExpectsSSRC reports whether ssrc belongs to this receiver's media or
// retransmission stream.
func (r *Receiver) ExpectsSSRC(ssrc uint32) bool {
	return ssrc == r.RemoteSSRC || (r.RTXEnabled && ssrc == r.RTXSSRC)
}

// PollNACK returns the lost sequence numbers that should be reported
// now: the ones never reported, plus the ones whose retry interval
// elapsed. The returned list is ascending.
func (r *Receiver) PollNACK() []uint16 {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.TimeNow()
	var seqs []uint16
	for seq, rec := range r.loss {
		if !rec.notified || !now.Before(rec.lastNotify.Add(nackRetryInterval)) {
			rec.notified = true
			rec.lastNotify = now
			seqs = append(seqs, seq)
		}
	}

	// ascending wrap-aware order, oldest losses first
	base := r.cursor
	sort.Slice(seqs, func(i, j int) bool {
		return rtpseq.Diff(base, seqs[i]) < rtpseq.Diff(base, seqs[j])
	})
	return seqs
}

// Release returns the packets ready for output, in ascending sequence
// order: every packet whose cache deadline passed (together with the
// older packets before it) and, once an output cursor exists, the whole
// cache when it forms one contiguous run starting right after the
// cursor. A contiguous run followed by a gap is not released before a
// deadline passes.
func (r *Receiver) Release() []*rtp.Packet {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.cache) == 0 {
		return nil
	}

	now := r.TimeNow()
	releaseEnd := 0

	// contiguous run from cursor+1 through the newest cached packet
	if r.hasOutput && r.cache[0].pkt.SequenceNumber == r.cursor+1 {
		contiguous := true
		for i := 1; i < len(r.cache); i++ {
			if !rtpseq.IsNext(r.cache[i-1].pkt.SequenceNumber, r.cache[i].pkt.SequenceNumber) {
				contiguous = false
				break
			}
		}
		if contiguous {
			releaseEnd = len(r.cache)
		}
	}

	// expired packets release themselves and everything older
	for i := len(r.cache) - 1; i >= releaseEnd; i-- {
		if !r.cache[i].deadline.After(now) {
			releaseEnd = i + 1
			break
		}
	}

	if releaseEnd == 0 {
		return nil
	}

	out := make([]*rtp.Packet, releaseEnd)
	for i, e := range r.cache[:releaseEnd] {
		out[i] = e.pkt
	}
	r.cache = r.cache[releaseEnd:]
	r.cursor = out[len(out)-1].SequenceNumber
	r.hasOutput = true

	// records at or before the cursor can no longer be recovered
	for seq := range r.loss {
		if !rtpseq.IsAfter(r.cursor, seq) {
			delete(r.loss, seq)
		}
	}

	return out
}

// Info returns the statistics snapshot that feeds a report block, or
// false if no packet was received yet.
func (r *Receiver) Info() (ReceiverInfo, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.ext.Initialized() {
		return ReceiverInfo{}, false
	}
	return ReceiverInfo{
		FirstExtendedSeq:   r.ext.First(),
		ExtendedHighestSeq: r.ext.Value(),
		CumulativeLoss:     r.cumulativeLoss,
		Jitter:             uint32(r.jitter),
	}, true
}

// HasReceived reports whether any packet was received.
func (r *Receiver) HasReceived() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.ext.Initialized()
}

func (r *Receiver) payloadTypeAllowed(pt uint8) bool {
	for _, v := range r.PayloadTypes {
		if v == pt {
			return true
		}
	}
	return false
}

// rebuildFromRTX reverses the RFC 4588 encapsulation: the original
// sequence number is the first two bytes of the payload.
func (r *Receiver) rebuildFromRTX(pkt *rtp.Packet) (*rtp.Packet, error) {
	if len(pkt.Payload) <= 2 {
		return nil, fmt.Errorf("retransmission payload too short")
	}
	associated, ok := r.RTXPayloadTypes[pkt.PayloadType]
	if !ok {
		return nil, fmt.Errorf("no payload type associated with RTX payload type %d", pkt.PayloadType)
	}

	rebuilt := pkt.Clone()
	rebuilt.PayloadType = associated
	rebuilt.SequenceNumber = binary.BigEndian.Uint16(pkt.Payload[:2])
	rebuilt.SSRC = r.RemoteSSRC
	rebuilt.Payload = append([]byte(nil), pkt.Payload[2:]...)
	rebuilt.Padding = false
	rebuilt.PaddingSize = 0
	return rebuilt, nil
}

// updateJitter applies the RFC 3550 interarrival jitter recurrence.
func (r *Receiver) updateJitter(pkt *rtp.Packet, arrival time.Time) {
	if r.jitterInitialized {
		d := float64(pkt.Timestamp) - float64(r.lastTimestamp) -
			float64(r.ClockRate)/1000*float64(arrival.Sub(r.lastArrival).Milliseconds())
		if d < 0 {
			d = -d
		}
		r.jitter += (d - r.jitter) / 16
	}
	r.jitterInitialized = true
	r.lastTimestamp = pkt.Timestamp
	r.lastArrival = arrival
}

func (r *Receiver) insert(pkt *rtp.Packet, arrival time.Time) {
	seq := pkt.SequenceNumber

	if r.hasOutput && !rtpseq.IsAfter(r.cursor, seq) {
		return
	}

	r.ext.Update(seq)

	pos := len(r.cache)
	for i, e := range r.cache {
		cachedSeq := e.pkt.SequenceNumber
		if cachedSeq == seq {
			return
		}
		if rtpseq.IsAfter(seq, cachedSeq) {
			pos = i
			break
		}
	}

	e := &cacheEntry{
		pkt:      pkt,
		deadline: arrival.Add(r.MaxCacheDuration),
	}
	r.cache = append(r.cache, nil)
	copy(r.cache[pos+1:], r.cache[pos:])
	r.cache[pos] = e

	if _, ok := r.loss[seq]; ok {
		delete(r.loss, seq)
		r.cumulativeLoss--
		r.Log.Debug().Uint16("seq", seq).Msg("lost packet arrived")
	}

	r.supplementLossRecords()
}

// supplementLossRecords walks the cache and records every missing
// sequence number between adjacent entries, with the output cursor as
// the lower bound.
func (r *Receiver) supplementLossRecords() {
	last := r.cache[0].pkt.SequenceNumber

	if r.hasOutput {
		r.recordGap(r.cursor, last)
	}
	for _, e := range r.cache[1:] {
		seq := e.pkt.SequenceNumber
		r.recordGap(last, seq)
		last = seq
	}
}

// recordGap records every sequence number strictly between a and b.
func (r *Receiver) recordGap(a uint16, b uint16) {
	if !rtpseq.IsAfter(a, b) {
		return
	}
	for seq := a + 1; seq != b; seq++ {
		if _, ok := r.loss[seq]; ok {
			continue
		}
		r.loss[seq] = &lossRecord{}
		r.cumulativeLoss++
	}
}
