package rtpmux

import (
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/rtpmux/rtpmux/pkg/rtcpendpoint"
	"github.com/rtpmux/rtpmux/pkg/rtpreceiver"
	"github.com/rtpmux/rtpmux/pkg/rtpsender"
	"github.com/rtpmux/rtpmux/pkg/taskworker"
	"github.com/rtpmux/rtpmux/pkg/ulpfec"
)

// pollInterval is the cadence of the receive-side poll that releases
// timed-out packets and retries NACKs.
const pollInterval = 10 * time.Millisecond

// MediaSession is one media stream pair within a Session, identified by
// its local and remote SSRC.
type MediaSession struct {
	name string
	ses  *Session
	conf *MediaSessionConfig
	log  zerolog.Logger

	sender   *rtpsender.Sender     // nil on receive-only sessions
	receiver *rtpreceiver.Receiver // nil on send-only sessions
	rtcp     *rtcpendpoint.Endpoint

	fecEncoder   *ulpfec.Encoder
	fecGroup     []*rtp.Packet
	fecSeqOffset uint16

	fecDecoder *ulpfec.Decoder

	pollMutex sync.Mutex
	poll      taskworker.TaskHandle
	closed    bool
}

func (m *MediaSession) initialize() error {
	c := m.conf
	m.log = m.ses.Log.With().Str("media", m.name).Logger()

	if c.Direction != DirectionRecvOnly {
		payloadTypes := append([]uint8(nil), c.LocalPayloadTypes...)
		if c.LocalFEC != nil {
			payloadTypes = append(payloadTypes, c.LocalFEC.PayloadType)

			m.fecEncoder = &ulpfec.Encoder{
				SSRC:        c.LocalSSRC,
				PayloadType: c.LocalFEC.PayloadType,
				Log:         m.log,
			}
			if err := m.fecEncoder.Initialize(); err != nil {
				return ErrInvalidConfiguration{m.name + ".LocalFEC", err.Error()}
			}
		}

		m.sender = &rtpsender.Sender{
			LocalSSRC:      c.LocalSSRC,
			ClockRate:      c.LocalClockRate,
			PayloadTypes:   payloadTypes,
			WritePacketRTP: m.ses.transceiver.writeRTP,
			Log:            m.log,
		}
		if c.LocalRTX != nil {
			m.sender.RTXEnabled = true
			m.sender.RTXSSRC = c.LocalRTX.SSRC
			m.sender.RTXPayloadTypes = c.LocalRTX.PayloadTypes
			m.sender.MaxCacheSeqDifference = c.LocalRTX.MaxCacheSeqDifference
		}
		if err := m.sender.Initialize(); err != nil {
			return ErrInvalidConfiguration{m.name, err.Error()}
		}
	}

	if c.Direction != DirectionSendOnly {
		payloadTypes := append([]uint8(nil), c.RemotePayloadTypes...)
		if c.RemoteFEC != nil {
			payloadTypes = append(payloadTypes, c.RemoteFEC.PayloadType)

			m.fecDecoder = &ulpfec.Decoder{
				SSRC:                  c.RemoteSSRC,
				PayloadType:           c.RemoteFEC.PayloadType,
				MaxCacheSeqDifference: c.RemoteFEC.MaxCacheSeqDifference,
				Log:                   m.log,
			}
			if err := m.fecDecoder.Initialize(); err != nil {
				return ErrInvalidConfiguration{m.name + ".RemoteFEC", err.Error()}
			}
		}

		m.receiver = &rtpreceiver.Receiver{
			RemoteSSRC:       c.RemoteSSRC,
			ClockRate:        c.RemoteClockRate,
			PayloadTypes:     payloadTypes,
			MaxCacheDuration: c.MaxCacheDuration,
			Log:              m.log,
		}
		if c.RemoteRTX != nil {
			m.receiver.RTXEnabled = true
			m.receiver.RTXSSRC = c.RemoteRTX.SSRC
			m.receiver.RTXPayloadTypes = c.RemoteRTX.PayloadTypes
		}
		if err := m.receiver.Initialize(); err != nil {
			return ErrInvalidConfiguration{m.name, err.Error()}
		}
	}

	m.rtcp = &rtcpendpoint.Endpoint{
		LocalSSRC:       c.LocalSSRC,
		RemoteSSRC:      c.RemoteSSRC,
		CNAME:           m.ses.CNAME,
		ReportInterval:  c.RTCPReportInterval,
		Worker:          m.ses.protocolWorker,
		Sender:          m.sender,
		Receiver:        m.receiver,
		WritePacketRTCP: m.ses.transceiver.writeRTCP,
		Log:             m.log,
	}
	if m.sender != nil {
		m.rtcp.OnNACKReceived = m.sender.SendRTX
	}

	return nil
}

// start schedules the RTCP reports and the receive-side poll.
func (m *MediaSession) start() error {
	if err := m.rtcp.Initialize(); err != nil {
		return ErrInvalidConfiguration{m.name, err.Error()}
	}
	if m.receiver != nil {
		m.schedulePoll()
	}
	return nil
}

func (m *MediaSession) close() {
	m.rtcp.Close()

	m.pollMutex.Lock()
	defer m.pollMutex.Unlock()
	m.closed = true
	if m.poll != nil {
		m.poll.Cancel()
	}
}

func (m *MediaSession) schedulePoll() {
	m.pollMutex.Lock()
	defer m.pollMutex.Unlock()
	if m.closed {
		return
	}
	m.poll = m.ses.protocolWorker.PushDelayed(m.pollReceiver, pollInterval)
}

// SendRTP submits an outgoing packet. It may be called from any
// goroutine; the packet is handed over on the signalling worker and
// must not be reused by the caller afterwards.
func (m *MediaSession) SendRTP(pkt *rtp.Packet) error {
	if m.conf.Direction == DirectionRecvOnly {
		return ErrDirectionViolation{m.conf.Direction}
	}
	if !payloadTypeIn(m.conf.LocalPayloadTypes, pkt.PayloadType) {
		return ErrUnexpectedPayloadType{pkt.PayloadType}
	}
	if m.ses.ByeSent() {
		return ErrSessionTerminated{}
	}

	if !m.ses.signallingWorker.Push(func() {
		m.sendRTPInner(pkt)
	}) {
		return ErrSessionTerminated{}
	}
	return nil
}

// SendBye emits a RTCP compound carrying a BYE and stops scheduled
// reports.
func (m *MediaSession) SendBye() {
	m.rtcp.SendBye()
}

// sendRTPInner runs on the signalling worker: it renumbers the packet
// when FEC consumed part of the sequence space, forwards it, and closes
// protection groups.
func (m *MediaSession) sendRTPInner(pkt *rtp.Packet) {
	if m.fecEncoder != nil && m.fecSeqOffset != 0 {
		pkt.SequenceNumber += m.fecSeqOffset
	}

	if err := m.sender.Send(pkt); err != nil {
		m.log.Warn().Err(err).Msg("dropping outgoing packet")
		return
	}

	if m.fecEncoder == nil {
		return
	}

	m.fecGroup = append(m.fecGroup, pkt.Clone())
	if len(m.fecGroup) < m.conf.LocalFEC.GroupSize {
		return
	}
	m.protectGroup()
}

// protectGroup encodes the buffered group and sends the FEC packets in
// the media sequence space, right after the group.
func (m *MediaSession) protectGroup() {
	c := m.conf.LocalFEC
	fecPackets, err := m.fecEncoder.Encode(m.fecGroup, c.NumImportant, c.ImportantMode,
		c.ProtectionFactor, c.MaskType)
	if err != nil {
		m.log.Warn().Err(err).Msg("unable to protect outgoing group")
		m.fecGroup = nil
		return
	}

	last := m.fecGroup[len(m.fecGroup)-1]
	seq := last.SequenceNumber
	for _, fecPkt := range fecPackets {
		seq++
		fecPkt.SequenceNumber = seq
		fecPkt.Timestamp = last.Timestamp
		if err := m.sender.Send(fecPkt); err != nil {
			m.log.Warn().Err(err).Msg("dropping FEC packet")
		}
	}

	m.fecSeqOffset += uint16(len(fecPackets))
	m.fecGroup = nil
}

// expectsRemoteSSRC implements rtpDestination.
func (m *MediaSession) expectsRemoteSSRC(ssrc uint32) bool {
	return m.receiver != nil && m.receiver.ExpectsSSRC(ssrc)
}

// processRTP implements rtpDestination. Runs on the protocol worker.
func (m *MediaSession) processRTP(pkt *rtp.Packet, arrival time.Time) {
	m.receiver.ProcessPacket(pkt, arrival)
	m.pump()
}

// processRTCP implements rtcpDestination. Runs on the protocol worker.
func (m *MediaSession) processRTCP(buf []byte, arrival time.Time) {
	if err := m.rtcp.ProcessPacket(buf, arrival); err != nil {
		m.log.Warn().Err(ErrMalformedPacket{err}).Msg("discarding RTCP datagram")
	}
}

// pollReceiver runs on the protocol worker at a fixed cadence: it
// releases packets whose deadline passed and surfaces NACK candidates.
// Gaps that close before the next poll never generate a NACK.
func (m *MediaSession) pollReceiver() {
	m.pump()

	if seqs := m.receiver.PollNACK(); len(seqs) > 0 {
		m.rtcp.SendNACK(seqs)
	}

	m.schedulePoll()
}

// pump releases whatever the receiver has ready, runs FEC recovery and
// dispatches the output to the application callback.
func (m *MediaSession) pump() {
	out := m.receiver.Release()
	if m.fecDecoder != nil && len(out) > 0 {
		out = m.fecDecoder.Decode(out)
	}

	if m.conf.OnRTPPacket != nil {
		for _, pkt := range out {
			pkt := pkt
			m.ses.signallingWorker.Push(func() {
				m.conf.OnRTPPacket(pkt)
			})
		}
	}
}

func payloadTypeIn(list []uint8, pt uint8) bool {
	for _, v := range list {
		if v == pt {
			return true
		}
	}
	return false
}

// MediaSessionStats is a snapshot of the RTCP-facing counters of a
// media session.
type MediaSessionStats struct {
	Sender   *rtpsender.SenderInfo
	Receiver *rtpreceiver.ReceiverInfo
}

// Stats returns a snapshot of the sender and receiver statistics.
func (m *MediaSession) Stats() MediaSessionStats {
	var stats MediaSessionStats
	if m.sender != nil {
		if info, ok := m.sender.Info(time.Now()); ok {
			stats.Sender = &info
		}
	}
	if m.receiver != nil {
		if info, ok := m.receiver.Info(); ok {
			stats.Receiver = &info
		}
	}
	return stats
}
