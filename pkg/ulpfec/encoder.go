package ulpfec

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/rtpmux/rtpmux/pkg/rtpseq"
)

// Encoder generates ULP-FEC packets that protect groups of media packets.
type Encoder struct {
	// SSRC of the protected media stream.
	SSRC uint32

	// Payload type of generated FEC packets.
	PayloadType uint8

	Log zerolog.Logger
}

// Initialize validates the configuration.
func (e *Encoder) Initialize() error {
	if e.PayloadType > 0x7F {
		return fmt.Errorf("invalid FEC payload type %d", e.PayloadType)
	}
	return nil
}

// Encode returns the FEC packets that protect mediaPackets.
//
// mediaPackets must be non-empty, at most MaxMediaPackets long, carry
// the encoder's SSRC and have contiguously increasing sequence numbers.
// The first numImportant packets may receive stronger protection
// depending on mode. protectionFactor is the overhead in the [0, 255]
// domain, 255 meaning one FEC packet per media packet.
//
// Generated packets carry sequence number 0 and timestamp 0; the caller
// assigns real values before sending.
func (e *Encoder) Encode(mediaPackets []*rtp.Packet, numImportant int,
	mode ImportantMode, protectionFactor uint8, maskType MaskType,
) ([]*rtp.Packet, error) {
	numMedia := len(mediaPackets)
	if numMedia == 0 {
		return nil, fmt.Errorf("no media packets to protect")
	}
	if numMedia > MaxMediaPackets {
		return nil, fmt.Errorf("protected group too large: %d > %d", numMedia, MaxMediaPackets)
	}
	if numImportant > numMedia {
		return nil, fmt.Errorf("important packet count %d exceeds group size %d", numImportant, numMedia)
	}

	buffers := make([][]byte, numMedia)
	var lastSeq uint16
	for i, pkt := range mediaPackets {
		if pkt.SSRC != e.SSRC {
			return nil, fmt.Errorf("packet SSRC %d does not match configured SSRC %d", pkt.SSRC, e.SSRC)
		}
		if i != 0 && !rtpseq.IsNext(lastSeq, pkt.SequenceNumber) {
			return nil, fmt.Errorf("sequence numbers are not contiguously increasing")
		}
		lastSeq = pkt.SequenceNumber

		buf, err := pkt.Marshal()
		if err != nil {
			return nil, err
		}
		buffers[i] = buf
	}

	maskSize := packetMaskSize(numMedia)
	numFec := NumFecPackets(numMedia, protectionFactor)
	if numFec == 0 {
		return nil, nil
	}

	mask := make([]byte, numFec*maskSize)
	generatePacketMasks(numMedia, numFec, numImportant, mode, maskType, maskSize, mask)

	fecPackets := make([]*rtp.Packet, 0, numFec)
	for row := 0; row < numFec; row++ {
		if pkt := e.buildFecPacket(mediaPackets, buffers, mask[row*maskSize:(row+1)*maskSize]); pkt != nil {
			fecPackets = append(fecPackets, pkt)
		}
	}
	return fecPackets, nil
}

// buildFecPacket XOR-combines the media packets selected by rowMask into
// a single FEC packet, per RFC 5109 section 7.3.
func (e *Encoder) buildFecPacket(mediaPackets []*rtp.Packet, buffers [][]byte, rowMask []byte) *rtp.Packet {
	var group []int
	maxLength := 0
	for i := 0; i < len(rowMask)*8 && i < len(mediaPackets); i++ {
		if rowMask[i/8]&(0x80>>(i%8)) == 0 {
			continue
		}
		group = append(group, i)
		if l := len(buffers[i]) - fixedRTPHeaderLength; l > maxLength {
			maxLength = l
		}
	}

	if len(group) == 0 {
		return nil
	}

	snBase := mediaPackets[group[0]].SequenceNumber
	snEnd := mediaPackets[group[len(group)-1]].SequenceNumber
	maskSize := maskSizeLBitClear
	lBit := false
	if int(rtpseq.Diff(snBase, snEnd))+1 > maskSizeLBitClear*8 {
		maskSize = maskSizeLBitSet
		lBit = true
	}

	payload := make([]byte, headerLength+2+maskSize+maxLength)
	level1 := payload[headerLength:]
	binary.BigEndian.PutUint16(level1, uint16(maxLength))
	level1Mask := level1[2:]
	level1Payload := level1[2+maskSize:]

	for _, i := range group {
		src := buffers[i]
		srcLength := len(src) - fixedRTPHeaderLength

		// V/P/X/CC and M/PT recovery
		payload[0] ^= src[0]
		payload[1] ^= src[1]

		// TS recovery
		payload[4] ^= src[4]
		payload[5] ^= src[5]
		payload[6] ^= src[6]
		payload[7] ^= src[7]

		// length recovery
		payload[8] ^= byte(srcLength >> 8)
		payload[9] ^= byte(srcLength)

		for pos, b := range src[fixedRTPHeaderLength:] {
			level1Payload[pos] ^= b
		}

		d := rtpseq.Diff(snBase, mediaPackets[i].SequenceNumber)
		level1Mask[d/8] |= 0x80 >> (d % 8)
	}

	// SN base; the version bits are synthesized again on recovery
	payload[2] ^= byte(snBase >> 8)
	payload[3] ^= byte(snBase)
	payload[0] &= 0x3F
	if lBit {
		payload[0] |= 0x40
	}

	return &rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: e.PayloadType,
			SSRC:        e.SSRC,
		},
		Payload: payload,
	}
}
