package rtpsender

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

const (
	testSSRC    = 0xAAAAAAAA
	testRTXSSRC = 0xDDDDDDDD
	testPT      = 96
	testRTXPT   = 97
)

func newTestSender(t *testing.T, out *[]*rtp.Packet) *Sender {
	t.Helper()
	s := &Sender{
		LocalSSRC:             testSSRC,
		ClockRate:             90000,
		PayloadTypes:          []uint8{testPT},
		RTXEnabled:            true,
		RTXSSRC:               testRTXSSRC,
		RTXPayloadTypes:       map[uint8]uint8{testRTXPT: testPT},
		MaxCacheSeqDifference: 50,
		WritePacketRTP: func(pkt *rtp.Packet) {
			*out = append(*out, pkt)
		},
	}
	require.NoError(t, s.Initialize())
	return s
}

func outgoingPacket(seq uint16) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    testPT,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 3000,
			SSRC:           testSSRC,
		},
		Payload: []byte{byte(seq >> 8), byte(seq), 0x42},
	}
}

func TestSendValidation(t *testing.T) {
	var out []*rtp.Packet
	s := newTestSender(t, &out)

	pkt := outgoingPacket(100)
	pkt.SSRC = 1
	require.Error(t, s.Send(pkt))

	pkt = outgoingPacket(100)
	pkt.PayloadType = 55
	require.Error(t, s.Send(pkt))

	require.NoError(t, s.Send(outgoingPacket(100)))
	require.Error(t, s.Send(outgoingPacket(102))) // not contiguous
	require.NoError(t, s.Send(outgoingPacket(101)))
	require.Len(t, out, 2)
}

func TestSenderInfo(t *testing.T) {
	var out []*rtp.Packet
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestSender(t, &out)
	s.TimeNow = func() time.Time { return now }

	_, ok := s.Info(now)
	require.False(t, ok)
	require.False(t, s.HasSent())

	require.NoError(t, s.Send(outgoingPacket(100)))
	require.NoError(t, s.Send(outgoingPacket(101)))

	info, ok := s.Info(now.Add(2 * time.Second))
	require.True(t, ok)
	require.Equal(t, uint32(2), info.PacketCount)
	require.Equal(t, uint32(6), info.OctetCount)
	require.Equal(t, uint32(100)*3000+2*90000, info.RTPTime)
}

func TestRTXConstruction(t *testing.T) {
	var out []*rtp.Packet
	s := newTestSender(t, &out)

	require.NoError(t, s.Send(outgoingPacket(100)))
	require.NoError(t, s.Send(outgoingPacket(101)))
	out = nil

	s.SendRTX([]uint16{100, 101})
	require.Len(t, out, 2)

	first := out[0]
	require.Equal(t, uint8(testRTXPT), first.PayloadType)
	require.Equal(t, uint32(testRTXSSRC), first.SSRC)
	require.Equal(t, uint32(100)*3000, first.Timestamp)
	require.True(t, first.Marker)

	// original sequence number prepended big-endian
	require.Equal(t, uint16(100), binary.BigEndian.Uint16(first.Payload[:2]))
	require.Equal(t, outgoingPacket(100).Payload, first.Payload[2:])

	// RTX sequence numbers increment
	require.Equal(t, first.SequenceNumber+1, out[1].SequenceNumber)
}

func TestRTXMissingEntriesSkipped(t *testing.T) {
	var out []*rtp.Packet
	s := newTestSender(t, &out)

	require.NoError(t, s.Send(outgoingPacket(100)))
	out = nil

	s.SendRTX([]uint16{600})
	require.Empty(t, out)
}

func TestCacheTrimming(t *testing.T) {
	var out []*rtp.Packet
	s := newTestSender(t, &out)

	seq := uint16(100)
	for i := 0; i < 80; i++ {
		require.NoError(t, s.Send(outgoingPacket(seq)))
		seq++
	}
	out = nil

	// 100 fell out of the 50-packet window ending at 179
	s.SendRTX([]uint16{100})
	require.Empty(t, out)

	s.SendRTX([]uint16{179})
	require.Len(t, out, 1)
}

func TestRTXDisabled(t *testing.T) {
	var out []*rtp.Packet
	s := &Sender{
		LocalSSRC:    testSSRC,
		ClockRate:    90000,
		PayloadTypes: []uint8{testPT},
		WritePacketRTP: func(pkt *rtp.Packet) {
			out = append(out, pkt)
		},
	}
	require.NoError(t, s.Initialize())

	require.NoError(t, s.Send(outgoingPacket(100)))
	out = nil
	s.SendRTX([]uint16{100})
	require.Empty(t, out)
}
