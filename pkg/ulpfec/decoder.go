package ulpfec

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/rtpmux/rtpmux/pkg/rtpseq"
)

type cachedPacket struct {
	pkt *rtp.Packet
	raw []byte

	isFec      bool
	invalidFec bool

	// protected sequence numbers, ascending
	protectedSeqs []uint16
}

// Decoder recovers lost media packets from a stream that interleaves
// media and ULP-FEC packets under a single SSRC.
//
// Decode feeds received packets in and returns the packets ready for
// output, in ascending sequence order; FEC packets are consumed, media
// packets are cached until the stream is contiguous or they leave the
// reordering window.
type Decoder struct {
	// SSRC of the protected media stream (FEC packets included).
	SSRC uint32

	// Payload type that identifies FEC packets within the stream.
	PayloadType uint8

	// Size of the reordering window, as a sequence number distance
	// from the newest cached packet.
	MaxCacheSeqDifference uint16

	Log zerolog.Logger

	cached     []*cachedPacket // ascending
	hasOutput  bool
	lastOutput uint16
}

// Initialize validates the configuration.
func (d *Decoder) Initialize() error {
	if d.PayloadType > 0x7F {
		return fmt.Errorf("invalid FEC payload type %d", d.PayloadType)
	}
	if d.MaxCacheSeqDifference == 0 || d.MaxCacheSeqDifference > rtpseq.MaxRange {
		return fmt.Errorf("invalid max cache sequence difference %d", d.MaxCacheSeqDifference)
	}
	return nil
}

// Decode processes incoming packets and returns the ones ready for
// output. Packets with a foreign SSRC are ignored; malformed FEC
// packets are dropped.
func (d *Decoder) Decode(received []*rtp.Packet) []*rtp.Packet {
	d.cachePackets(received)
	if len(d.cached) == 0 {
		return nil
	}
	d.recoverPackets()
	return d.releasePackets()
}

// Flush drains every cached media packet not yet output, in ascending
// sequence order.
func (d *Decoder) Flush() []*rtp.Packet {
	var out []*rtp.Packet
	for _, e := range d.cached {
		if e.isFec {
			continue
		}
		if d.hasOutput && !rtpseq.IsAfter(d.lastOutput, e.pkt.SequenceNumber) {
			continue
		}
		out = append(out, e.pkt)
	}
	d.cached = nil
	if len(out) > 0 {
		d.hasOutput = true
		d.lastOutput = out[len(out)-1].SequenceNumber
	}
	return out
}

func (d *Decoder) cachePackets(received []*rtp.Packet) {
	for _, pkt := range received {
		if pkt.SSRC != d.SSRC {
			continue
		}
		seq := pkt.SequenceNumber
		if d.hasOutput && !rtpseq.IsAfter(d.lastOutput, seq) {
			continue
		}

		pos := len(d.cached)
		duplicate := false
		for i, e := range d.cached {
			cachedSeq := e.pkt.SequenceNumber
			if cachedSeq == seq {
				duplicate = true
				break
			}
			if rtpseq.IsAfter(seq, cachedSeq) {
				pos = i
				break
			}
		}
		if duplicate {
			continue
		}

		e, err := d.newCachedPacket(pkt)
		if err != nil {
			d.Log.Debug().Err(err).Uint16("seq", seq).Msg("dropping malformed FEC packet")
			continue
		}
		d.cached = append(d.cached, nil)
		copy(d.cached[pos+1:], d.cached[pos:])
		d.cached[pos] = e
	}
}

func (d *Decoder) newCachedPacket(pkt *rtp.Packet) (*cachedPacket, error) {
	raw, err := pkt.Marshal()
	if err != nil {
		return nil, err
	}
	e := &cachedPacket{
		pkt: pkt,
		raw: raw,
	}
	if pkt.PayloadType != d.PayloadType {
		return e, nil
	}

	e.isFec = true
	payload := raw[fixedRTPHeaderLength:]
	if len(payload) < headerLength+2+maskSizeLBitClear {
		return nil, fmt.Errorf("FEC payload too short (%d bytes)", len(payload))
	}
	maskSize := maskSizeLBitClear
	if payload[0]&0x40 != 0 {
		maskSize = maskSizeLBitSet
	}
	if len(payload) < headerLength+2+maskSize {
		return nil, fmt.Errorf("FEC payload too short (%d bytes)", len(payload))
	}

	snBase := binary.BigEndian.Uint16(payload[2:4])
	mask := payload[headerLength+2 : headerLength+2+maskSize]
	for i := 0; i < maskSize*8; i++ {
		if mask[i/8]&(0x80>>(i%8)) != 0 {
			e.protectedSeqs = append(e.protectedSeqs, snBase+uint16(i))
		}
	}
	if len(e.protectedSeqs) == 0 {
		return nil, fmt.Errorf("FEC packet protects nothing")
	}
	return e, nil
}

func (d *Decoder) findCached(seq uint16) *cachedPacket {
	for _, e := range d.cached {
		if e.pkt.SequenceNumber == seq {
			return e
		}
	}
	return nil
}

func (d *Decoder) recoverPackets() {
	newestSeq := d.cached[len(d.cached)-1].pkt.SequenceNumber

	var fecs []*cachedPacket
	for _, e := range d.cached {
		if e.isFec && !e.invalidFec {
			fecs = append(fecs, e)
		}
	}

	for _, fec := range fecs {
		var missing []uint16
		var refs []*cachedPacket
		usable := true

		for _, seq := range fec.protectedSeqs {
			if d.hasOutput && !rtpseq.IsAfter(d.lastOutput, seq) {
				// a protected packet is already past the output
				// cursor; this FEC can never recover anything.
				fec.invalidFec = true
				usable = false
				break
			}
			if rtpseq.IsAfter(newestSeq, seq) {
				// protected packet not yet due; retry on a later call
				usable = false
				break
			}
			if e := d.findCached(seq); e != nil {
				refs = append(refs, e)
			} else {
				missing = append(missing, seq)
			}
		}

		if !usable || len(missing) != 1 {
			continue
		}

		recovered := d.recoverPacket(fec, missing[0], refs)
		if recovered == nil {
			continue
		}

		d.Log.Debug().
			Uint16("seq", recovered.pkt.SequenceNumber).
			Msg("recovered packet from FEC")

		pos := len(d.cached)
		for i, e := range d.cached {
			if e.pkt.SequenceNumber == recovered.pkt.SequenceNumber {
				pos = -1
				break
			}
			if rtpseq.IsAfter(recovered.pkt.SequenceNumber, e.pkt.SequenceNumber) {
				pos = i
				break
			}
		}
		if pos >= 0 {
			d.cached = append(d.cached, nil)
			copy(d.cached[pos+1:], d.cached[pos:])
			d.cached[pos] = recovered
		}
		fec.invalidFec = true
	}
}

// recoverPacket rebuilds the packet with sequence number recoveredSeq by
// XOR-ing the FEC shell with every received packet it protects.
func (d *Decoder) recoverPacket(fec *cachedPacket, recoveredSeq uint16, refs []*cachedPacket) *cachedPacket {
	fecPayload := fec.raw[fixedRTPHeaderLength:]
	maskSize := maskSizeLBitClear
	if fecPayload[0]&0x40 != 0 {
		maskSize = maskSizeLBitSet
	}
	levelPayload := fecPayload[headerLength+2+maskSize:]
	protectionLength := int(binary.BigEndian.Uint16(fecPayload[headerLength : headerLength+2]))
	if protectionLength < len(levelPayload) {
		d.Log.Debug().Msg("FEC protection length shorter than carried payload")
		return nil
	}

	buf := make([]byte, fixedRTPHeaderLength+protectionLength)
	copy(buf[:8], fecPayload[:8])
	copy(buf[fixedRTPHeaderLength:], levelPayload)

	var lengthRecovery [2]byte
	copy(lengthRecovery[:], fecPayload[8:10])

	for _, ref := range refs {
		src := ref.raw
		buf[0] ^= src[0]
		buf[1] ^= src[1]
		buf[4] ^= src[4]
		buf[5] ^= src[5]
		buf[6] ^= src[6]
		buf[7] ^= src[7]

		payloadSize := len(src) - fixedRTPHeaderLength
		lengthRecovery[0] ^= byte(payloadSize >> 8)
		lengthRecovery[1] ^= byte(payloadSize)

		xorLength := payloadSize
		if xorLength > protectionLength {
			xorLength = protectionLength
		}
		for i := 0; i < xorLength; i++ {
			buf[fixedRTPHeaderLength+i] ^= src[fixedRTPHeaderLength+i]
		}
	}

	// synthesize version 2, clear the padding bit, keep X and CC
	buf[0] = buf[0]&0x1F | 0x80
	binary.BigEndian.PutUint16(buf[2:4], recoveredSeq)
	binary.BigEndian.PutUint32(buf[8:12], d.SSRC)

	recoveredLength := int(binary.BigEndian.Uint16(lengthRecovery[:]))
	if recoveredLength > protectionLength {
		d.Log.Debug().Msg("recovered length exceeds protection length")
		return nil
	}
	buf = buf[:fixedRTPHeaderLength+recoveredLength]

	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		d.Log.Warn().Err(err).Msg("failed to parse recovered packet")
		return nil
	}
	if pkt.SequenceNumber != recoveredSeq {
		return nil
	}

	return &cachedPacket{
		pkt: &pkt,
		raw: buf,
	}
}

// releasePackets outputs packets that left the reordering window and the
// contiguous chain following the last output. Chained packets stay
// cached so later FEC packets can still reference them.
func (d *Decoder) releasePackets() []*rtp.Packet {
	var out []*rtp.Packet
	newestSeq := d.cached[len(d.cached)-1].pkt.SequenceNumber

	// past the reordering window; FEC packets advance the cursor but
	// are never output.
	i := 0
	for ; i < len(d.cached); i++ {
		e := d.cached[i]
		seq := e.pkt.SequenceNumber
		if rtpseq.IsAfterInRange(seq, newestSeq, d.MaxCacheSeqDifference) {
			break
		}
		if !d.hasOutput || rtpseq.IsAfter(d.lastOutput, seq) {
			if !e.isFec {
				out = append(out, e.pkt)
			}
			d.hasOutput = true
			d.lastOutput = seq
		}
	}
	d.cached = d.cached[i:]

	// contiguous chain after the output cursor
	for _, e := range d.cached {
		seq := e.pkt.SequenceNumber
		if d.hasOutput {
			if !rtpseq.IsAfter(d.lastOutput, seq) {
				continue
			}
			if !rtpseq.IsNext(d.lastOutput, seq) {
				break
			}
		}
		if !e.isFec {
			out = append(out, e.pkt)
		}
		d.hasOutput = true
		d.lastOutput = seq
	}

	return out
}
