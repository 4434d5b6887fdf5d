package rtpmux

import (
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
)

// rtpDestination receives demultiplexed RTP traffic.
type rtpDestination interface {
	expectsRemoteSSRC(ssrc uint32) bool
	processRTP(pkt *rtp.Packet, arrival time.Time)
}

// rtcpDestination receives demultiplexed RTCP traffic. Every
// destination filters by SSRC on its own.
type rtcpDestination interface {
	processRTCP(buf []byte, arrival time.Time)
}

// router splits incoming datagrams into RTP and RTCP and dispatches
// them to the media sessions, on the protocol worker.
type router struct {
	ses *Session

	mutex     sync.Mutex
	rtpDests  []rtpDestination
	rtcpDests []rtcpDestination

	malformedDatagrams prometheus.Counter
	unroutablePackets  prometheus.Counter
}

func (r *router) initialize() {
	r.malformedDatagrams = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtpmux_malformed_datagrams_total",
		Help: "Datagrams discarded because they are not valid RTP or RTCP.",
	})
	r.unroutablePackets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtpmux_unroutable_packets_total",
		Help: "RTP packets discarded because no media session expects their SSRC.",
	})
	if r.ses.Metrics != nil {
		r.ses.Metrics.MustRegister(r.malformedDatagrams, r.unroutablePackets)
	}
}

func (r *router) addDestinations(rtpDest rtpDestination, rtcpDest rtcpDestination) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if rtpDest != nil {
		r.rtpDests = append(r.rtpDests, rtpDest)
	}
	if rtcpDest != nil {
		r.rtcpDests = append(r.rtcpDests, rtcpDest)
	}
}

// processDatagram classifies one datagram and dispatches it. It
// re-enqueues itself onto the protocol worker when called off it.
func (r *router) processDatagram(buf []byte, arrival time.Time) {
	if !r.ses.protocolWorker.IsCurrent() {
		r.ses.protocolWorker.Push(func() {
			r.processDatagram(buf, arrival)
		})
		return
	}

	if len(buf) < 4 || buf[0]>>6 != 2 {
		r.malformedDatagrams.Inc()
		r.ses.Log.Warn().Int("size", len(buf)).Msg("discarding malformed datagram")
		return
	}

	// the payload-type slot doubles as the RTCP packet-type low bits;
	// RTCP types 200..204 land in [64, 96)
	if pt := buf[1] & 0x7F; pt >= 64 && pt < 96 {
		r.dispatchRTCP(buf, arrival)
		return
	}
	r.dispatchRTP(buf, arrival)
}

func (r *router) dispatchRTP(buf []byte, arrival time.Time) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		r.malformedDatagrams.Inc()
		r.ses.Log.Warn().Err(ErrMalformedPacket{err}).Msg("discarding RTP packet")
		return
	}

	for _, dest := range r.destinationsRTP() {
		if dest.expectsRemoteSSRC(pkt.SSRC) {
			dest.processRTP(&pkt, arrival)
			return
		}
	}

	r.unroutablePackets.Inc()
	r.ses.Log.Warn().Err(ErrUnexpectedSSRC{pkt.SSRC}).Msg("discarding RTP packet")
}

func (r *router) dispatchRTCP(buf []byte, arrival time.Time) {
	for _, dest := range r.destinationsRTCP() {
		dest.processRTCP(buf, arrival)
	}
}

func (r *router) destinationsRTP() []rtpDestination {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]rtpDestination(nil), r.rtpDests...)
}

func (r *router) destinationsRTCP() []rtcpDestination {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]rtcpDestination(nil), r.rtcpDests...)
}
