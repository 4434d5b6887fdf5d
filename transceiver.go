package rtpmux

import (
	"net"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
)

// udpMaxDatagramSize is the maximum accepted datagram size.
const udpMaxDatagramSize = 2048

// transceiver is the single UDP endpoint of a Session. A dedicated
// goroutine drains the socket and hands datagrams to the router in
// arrival order; sends run on the network worker, best-effort.
type transceiver struct {
	ses *Session

	pc *net.UDPConn

	sendFailures prometheus.Counter

	readerDone chan struct{}
}

func (t *transceiver) initialize() {
	t.sendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtpmux_send_failures_total",
		Help: "Datagrams that could not be written to the socket.",
	})
	if t.ses.Metrics != nil {
		t.ses.Metrics.MustRegister(t.sendFailures)
	}
}

// start binds the local address and connects to the remote one, so the
// kernel filters foreign sources, then starts the read loop.
func (t *transceiver) start(localAddr *net.UDPAddr, remoteAddr *net.UDPAddr) error {
	pc, err := net.DialUDP("udp", localAddr, remoteAddr)
	if err != nil {
		return ErrResourceFailure{"udp bind", err}
	}
	t.pc = pc
	t.readerDone = make(chan struct{})

	go t.runReader()
	return nil
}

func (t *transceiver) close() {
	if t.pc == nil {
		return
	}
	t.pc.Close()
	<-t.readerDone
}

func (t *transceiver) runReader() {
	defer close(t.readerDone)

	buf := make([]byte, udpMaxDatagramSize)
	for {
		n, err := t.pc.Read(buf)
		if err != nil {
			// socket closed
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		t.ses.router.processDatagram(datagram, time.Now())
	}
}

// writeRTP serializes and sends one RTP packet on the network worker.
func (t *transceiver) writeRTP(pkt *rtp.Packet) {
	buf, err := pkt.Marshal()
	if err != nil {
		t.ses.Log.Error().Err(err).Msg("unable to serialize RTP packet")
		return
	}
	t.write(buf, false)
}

// writeRTCP serializes and sends one compound RTCP packet on the
// network worker. Compounds carrying a BYE flip the session-wide
// observable flag after the write.
func (t *transceiver) writeRTCP(pkts []rtcp.Packet, bye bool) {
	buf, err := rtcp.Marshal(pkts)
	if err != nil {
		t.ses.Log.Error().Err(err).Msg("unable to serialize RTCP compound")
		return
	}
	t.write(buf, bye)
}

func (t *transceiver) write(buf []byte, bye bool) {
	if !t.ses.networkWorker.IsCurrent() {
		t.ses.networkWorker.Push(func() {
			t.write(buf, bye)
		})
		return
	}

	if _, err := t.pc.Write(buf); err != nil {
		t.sendFailures.Inc()
		t.ses.Log.Error().Err(ErrResourceFailure{"udp send", err}).Msg("unable to send datagram")
		return
	}
	if bye {
		t.ses.signalByeSent()
	}
}
