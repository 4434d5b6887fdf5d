// Package rtcpendpoint contains the RTCP side of a media session: it
// periodically emits compound SR/RR+SDES packets, sends BYE and generic
// NACK on demand, and parses the control traffic of the remote peer.
package rtcpendpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/rs/zerolog"

	"github.com/rtpmux/rtpmux/pkg/ntp"
	"github.com/rtpmux/rtpmux/pkg/rtpreceiver"
	"github.com/rtpmux/rtpmux/pkg/rtpsender"
	"github.com/rtpmux/rtpmux/pkg/taskworker"
)

// Endpoint is the RTCP endpoint of one media session.
type Endpoint struct {
	// SSRC of the local stream.
	LocalSSRC uint32

	// SSRC of the remote stream; control traffic from any other
	// source is discarded.
	RemoteSSRC uint32

	// Canonical name carried in SDES chunks.
	CNAME string

	// Period of scheduled reports. The first report fires after half
	// of it.
	ReportInterval time.Duration

	// Worker that owns the report schedule.
	Worker *taskworker.Worker

	// Sender of the same media session, nil on receive-only sessions.
	Sender *rtpsender.Sender

	// Receiver of the same media session, nil on send-only sessions.
	Receiver *rtpreceiver.Receiver

	// time.Now function.
	TimeNow func() time.Time

	// Called with every compound ready for the wire; the flag marks
	// compounds that carry a BYE.
	WritePacketRTCP func([]rtcp.Packet, bool)

	// Called with the sequence numbers of a received generic NACK.
	OnNACKReceived func([]uint16)

	Log zerolog.Logger

	mutex sync.Mutex

	hasSentReport   bool
	lastReportEHSN  uint32
	lastReportLoss  uint32
	localByeSent    bool
	peerByeReceived bool
	nextSend        time.Time

	srReceived bool
	lastSRNTP  uint64
	lastSRTime time.Time

	tick taskworker.TaskHandle
}

// Initialize validates the configuration and schedules the first report
// at half the report interval.
func (e *Endpoint) Initialize() error {
	if e.ReportInterval <= 0 {
		return fmt.Errorf("invalid report interval")
	}
	if e.Worker == nil {
		return fmt.Errorf("worker not provided")
	}
	if e.TimeNow == nil {
		e.TimeNow = time.Now
	}

	e.nextSend = e.TimeNow().Add(e.ReportInterval / 2)
	e.tick = e.Worker.PushDelayed(e.scheduledSend, e.ReportInterval/2)
	return nil
}

// Close cancels the report schedule.
func (e *Endpoint) Close() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.tick != nil {
		e.tick.Cancel()
		e.tick = nil
	}
}

// SendBye emits a compound carrying a BYE and stops future reports.
func (e *Endpoint) SendBye() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.localByeSent {
		return
	}
	e.sendCompound(nil, true)
	e.localByeSent = true
}

// SendNACK emits a compound carrying a generic NACK for the given
// sequence numbers and pushes the next scheduled report out by a full
// interval. Suppressed once either side sent a BYE.
func (e *Endpoint) SendNACK(seqs []uint16) {
	if len(seqs) == 0 {
		return
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.localByeSent || e.peerByeReceived {
		return
	}

	e.Log.Debug().Uints16("seqs", seqs).Msg("sending NACK")
	e.sendCompound(seqs, false)
	e.nextSend = e.TimeNow().Add(e.ReportInterval)
}

// PeerByeReceived reports whether the remote peer sent a BYE.
func (e *Endpoint) PeerByeReceived() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.peerByeReceived
}

// ProcessPacket parses an incoming RTCP compound datagram.
func (e *Endpoint) ProcessPacket(buf []byte, arrival time.Time) error {
	pkts, err := rtcp.Unmarshal(buf)
	if err != nil {
		return err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.peerByeReceived {
		return nil
	}

	for _, pkt := range pkts {
		switch p := pkt.(type) {
		case *rtcp.SenderReport:
			if p.SSRC != e.RemoteSSRC {
				e.Log.Warn().Uint32("ssrc", p.SSRC).Msg("discarding sender report with unexpected SSRC")
				continue
			}
			e.srReceived = true
			e.lastSRNTP = p.NTPTime
			e.lastSRTime = arrival
			e.Log.Debug().
				Time("peer_clock", ntp.Decode(p.NTPTime)).
				Uint32("rtp_time", p.RTPTime).
				Msg("received sender report")

		case *rtcp.ReceiverReport:
			if p.SSRC != e.RemoteSSRC {
				e.Log.Warn().Uint32("ssrc", p.SSRC).Msg("discarding receiver report with unexpected SSRC")
				continue
			}

		case *rtcp.Goodbye:
			if len(p.Sources) == 0 || p.Sources[0] != e.RemoteSSRC {
				e.Log.Warn().Msg("discarding BYE with unexpected SSRC")
				continue
			}
			e.Log.Debug().Msg("peer sent BYE")
			e.peerByeReceived = true
			return nil

		case *rtcp.TransportLayerNack:
			if p.SenderSSRC != e.RemoteSSRC {
				e.Log.Warn().Uint32("ssrc", p.SenderSSRC).Msg("discarding NACK with unexpected SSRC")
				continue
			}
			var seqs []uint16
			for _, pair := range p.Nacks {
				pair.Range(func(seq uint16) bool {
					seqs = append(seqs, seq)
					return true
				})
			}
			if len(seqs) > 0 && e.OnNACKReceived != nil {
				e.OnNACKReceived(seqs)
			}
		}
	}
	return nil
}

// scheduledSend runs on the worker: it emits the periodic report unless
// a BYE ended the session, then reschedules itself.
func (e *Endpoint) scheduledSend() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	// a peer BYE silences parsing and NACKs but not our own reports;
	// only a local BYE ends the schedule.
	if e.localByeSent {
		return
	}

	now := e.TimeNow()
	if now.Before(e.nextSend) {
		e.tick = e.Worker.PushDelayed(e.scheduledSend, e.nextSend.Sub(now))
		return
	}

	e.sendCompound(nil, false)
	e.nextSend = now.Add(e.ReportInterval)
	e.tick = e.Worker.PushDelayed(e.scheduledSend, e.ReportInterval)
}

// sendCompound assembles and writes one compound packet: SR or RR with
// at most one report block, SDES, and optionally a BYE or a NACK.
// Must be called with the mutex held.
func (e *Endpoint) sendCompound(nackSeqs []uint16, bye bool) {
	now := e.TimeNow()

	var reports []rtcp.ReceptionReport
	if e.Receiver != nil {
		if info, ok := e.Receiver.Info(); ok {
			reports = append(reports, e.buildReceptionReport(info, now))
		}
	}

	var pkts []rtcp.Packet
	if e.Sender != nil && e.Sender.HasSent() {
		info, _ := e.Sender.Info(now)
		pkts = append(pkts, &rtcp.SenderReport{
			SSRC:        e.LocalSSRC,
			NTPTime:     info.NTPTime,
			RTPTime:     info.RTPTime,
			PacketCount: info.PacketCount,
			OctetCount:  info.OctetCount,
			Reports:     reports,
		})
	} else {
		pkts = append(pkts, &rtcp.ReceiverReport{
			SSRC:    e.LocalSSRC,
			Reports: reports,
		})
	}

	pkts = append(pkts, &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{{
			Source: e.LocalSSRC,
			Items: []rtcp.SourceDescriptionItem{{
				Type: rtcp.SDESCNAME,
				Text: e.CNAME,
			}},
		}},
	})

	switch {
	case bye:
		pkts = append(pkts, &rtcp.Goodbye{
			Sources: []uint32{e.LocalSSRC},
		})
	case len(nackSeqs) > 0:
		pkts = append(pkts, &rtcp.TransportLayerNack{
			SenderSSRC: e.LocalSSRC,
			MediaSSRC:  e.RemoteSSRC,
			Nacks:      rtcp.NackPairsFromSequenceNumbers(nackSeqs),
		})
	}

	if len(reports) > 0 {
		e.hasSentReport = true
	}

	e.WritePacketRTCP(pkts, bye)
}

func (e *Endpoint) buildReceptionReport(info rtpreceiver.ReceiverInfo, now time.Time) rtcp.ReceptionReport {
	expected := info.ExtendedHighestSeq - info.FirstExtendedSeq
	lost := int64(info.CumulativeLoss)
	if e.hasSentReport {
		expected = info.ExtendedHighestSeq - e.lastReportEHSN
		lost = int64(info.CumulativeLoss) - int64(e.lastReportLoss)
	}

	var fractionLost uint8
	if expected > 0 && lost > 0 {
		f := (lost << 8) / int64(expected)
		if f > 0xFF {
			f = 0xFF
		}
		fractionLost = uint8(f)
	}

	e.lastReportEHSN = info.ExtendedHighestSeq
	e.lastReportLoss = info.CumulativeLoss

	totalLost := info.CumulativeLoss
	if totalLost > 0xFFFFFF {
		totalLost = 0xFFFFFF
	}

	report := rtcp.ReceptionReport{
		SSRC:               e.RemoteSSRC,
		FractionLost:       fractionLost,
		TotalLost:          totalLost,
		LastSequenceNumber: info.ExtendedHighestSeq,
		Jitter:             info.Jitter,
	}
	if e.srReceived {
		report.LastSenderReport = ntp.Middle32(e.lastSRNTP)
		report.Delay = uint32(now.Sub(e.lastSRTime).Seconds() * 65536)
	}
	return report
}
