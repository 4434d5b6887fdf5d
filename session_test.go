package rtpmux

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func testPacket(ssrc uint32, pt uint8, seq uint16) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pt,
			SequenceNumber: seq,
			Timestamp:      90000 + uint32(seq)*3000,
			SSRC:           ssrc,
		},
		Payload: []byte{byte(seq >> 8), byte(seq), 0x55},
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := pc.LocalAddr().(*net.UDPAddr).Port
	pc.Close()
	return port
}

// packetCollector gathers delivered packets across goroutines.
type packetCollector struct {
	mutex sync.Mutex
	seqs  []uint16
}

func (c *packetCollector) add(pkt *rtp.Packet) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.seqs = append(c.seqs, pkt.SequenceNumber)
}

func (c *packetCollector) snapshot() []uint16 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]uint16(nil), c.seqs...)
}

func (c *packetCollector) waitFor(t *testing.T, n int, timeout time.Duration) []uint16 {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := c.snapshot()
	require.GreaterOrEqual(t, len(got), n, "timed out waiting for packets: %v", got)
	return got
}

// lossyRelay forwards datagrams between two session endpoints and can
// drop selected RTP sequence numbers once.
type lossyRelay struct {
	aSide *net.UDPConn // socket the "a" session talks to
	bSide *net.UDPConn // socket the "b" session talks to

	mutex     sync.Mutex
	dropOnceA map[uint16]bool // dropped on the a -> b direction

	closed chan struct{}
}

func newLossyRelay(t *testing.T, aAddr string, bAddr string, dropSeqs ...uint16) *lossyRelay {
	t.Helper()

	r := &lossyRelay{
		dropOnceA: make(map[uint16]bool),
		closed:    make(chan struct{}),
	}
	for _, seq := range dropSeqs {
		r.dropOnceA[seq] = true
	}

	aUDP, err := net.ResolveUDPAddr("udp", aAddr)
	require.NoError(t, err)
	bUDP, err := net.ResolveUDPAddr("udp", bAddr)
	require.NoError(t, err)

	r.aSide, err = net.DialUDP("udp", nil, aUDP)
	require.NoError(t, err)
	r.bSide, err = net.DialUDP("udp", nil, bUDP)
	require.NoError(t, err)

	go r.forward(r.aSide, r.bSide, true)
	go r.forward(r.bSide, r.aSide, false)

	t.Cleanup(r.close)
	return r
}

// aAddrString returns the address the "a" session must use as remote.
func (r *lossyRelay) aAddrString() string {
	return r.aSide.LocalAddr().String()
}

func (r *lossyRelay) bAddrString() string {
	return r.bSide.LocalAddr().String()
}

func (r *lossyRelay) close() {
	select {
	case <-r.closed:
		return
	default:
	}
	close(r.closed)
	r.aSide.Close()
	r.bSide.Close()
}

func (r *lossyRelay) forward(from *net.UDPConn, to *net.UDPConn, filtered bool) {
	buf := make([]byte, 2048)
	for {
		n, err := from.Read(buf)
		if err != nil {
			return
		}
		if filtered && r.shouldDrop(buf[:n]) {
			continue
		}
		to.Write(buf[:n]) //nolint:errcheck
	}
}

func (r *lossyRelay) shouldDrop(buf []byte) bool {
	if len(buf) < 12 || buf[0]>>6 != 2 {
		return false
	}
	if pt := buf[1] & 0x7F; pt >= 64 && pt < 96 {
		return false // RTCP passes
	}
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.dropOnceA[pkt.SequenceNumber] {
		delete(r.dropOnceA, pkt.SequenceNumber)
		return true
	}
	return false
}

func startSessionPair(t *testing.T, senderConf *MediaSessionConfig, receiverConf *MediaSessionConfig,
	dropSeqs ...uint16,
) (*Session, *Session) {
	t.Helper()

	aPort := freePort(t)
	bPort := freePort(t)
	aLocal := net.JoinHostPort("127.0.0.1", strconv.Itoa(aPort))
	bLocal := net.JoinHostPort("127.0.0.1", strconv.Itoa(bPort))

	relay := newLossyRelay(t, aLocal, bLocal, dropSeqs...)

	a := &Session{
		LocalAddress:  aLocal,
		RemoteAddress: relay.aAddrString(),
		CNAME:         "a@test",
		Media:         map[string]*MediaSessionConfig{"main": senderConf},
	}
	require.NoError(t, a.Start())
	t.Cleanup(a.Close)

	b := &Session{
		LocalAddress:  bLocal,
		RemoteAddress: relay.bAddrString(),
		CNAME:         "b@test",
		Media:         map[string]*MediaSessionConfig{"main": receiverConf},
	}
	require.NoError(t, b.Start())
	t.Cleanup(b.Close)

	return a, b
}

func TestSessionPlainDelivery(t *testing.T) {
	collector := &packetCollector{}

	senderConf := &MediaSessionConfig{
		LocalSSRC:          0xA,
		RemoteSSRC:         0xB,
		LocalClockRate:     90000,
		RemoteClockRate:    90000,
		LocalPayloadTypes:  []uint8{96},
		RemotePayloadTypes: []uint8{96},
		Direction:          DirectionSendRecv,
		MaxCacheDuration:   100 * time.Millisecond,
		RTCPReportInterval: 200 * time.Millisecond,
	}
	receiverConf := &MediaSessionConfig{
		LocalSSRC:          0xB,
		RemoteSSRC:         0xA,
		LocalClockRate:     90000,
		RemoteClockRate:    90000,
		LocalPayloadTypes:  []uint8{96},
		RemotePayloadTypes: []uint8{96},
		Direction:          DirectionSendRecv,
		MaxCacheDuration:   100 * time.Millisecond,
		RTCPReportInterval: 200 * time.Millisecond,
		OnRTPPacket:        collector.add,
	}

	a, b := startSessionPair(t, senderConf, receiverConf)

	media := a.MediaSession("main")
	for seq := uint16(100); seq < 110; seq++ {
		require.NoError(t, media.SendRTP(testPacket(0xA, 96, seq)))
	}

	got := collector.waitFor(t, 10, 3*time.Second)
	require.Equal(t, []uint16{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}, got[:10])

	// receiver saw no loss
	stats := b.MediaSession("main").Stats()
	require.NotNil(t, stats.Receiver)
	require.Zero(t, stats.Receiver.CumulativeLoss)
}

func TestSessionLossNACKAndRTX(t *testing.T) {
	collector := &packetCollector{}

	rtxA := &RTXConfig{
		MaxCacheSeqDifference: 100,
		SSRC:                  0xC,
		PayloadTypes:          map[uint8]uint8{97: 96},
	}
	senderConf := &MediaSessionConfig{
		LocalSSRC:          0xA,
		RemoteSSRC:         0xB,
		LocalClockRate:     90000,
		RemoteClockRate:    90000,
		LocalPayloadTypes:  []uint8{96},
		RemotePayloadTypes: []uint8{96},
		LocalRTX:           rtxA,
		Direction:          DirectionSendRecv,
		MaxCacheDuration:   300 * time.Millisecond,
		RTCPReportInterval: 200 * time.Millisecond,
	}
	receiverConf := &MediaSessionConfig{
		LocalSSRC:          0xB,
		RemoteSSRC:         0xA,
		LocalClockRate:     90000,
		RemoteClockRate:    90000,
		LocalPayloadTypes:  []uint8{96},
		RemotePayloadTypes: []uint8{96},
		RemoteRTX:          rtxA,
		Direction:          DirectionSendRecv,
		MaxCacheDuration:   300 * time.Millisecond,
		RTCPReportInterval: 200 * time.Millisecond,
		OnRTPPacket:        collector.add,
	}

	a, b := startSessionPair(t, senderConf, receiverConf, 104)

	media := a.MediaSession("main")
	for seq := uint16(100); seq < 110; seq++ {
		require.NoError(t, media.SendRTP(testPacket(0xA, 96, seq)))
	}

	got := collector.waitFor(t, 10, 5*time.Second)
	require.Equal(t, []uint16{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}, got[:10])

	// the retransmission closed the gap before anything was released
	stats := b.MediaSession("main").Stats()
	require.NotNil(t, stats.Receiver)
	require.Zero(t, stats.Receiver.CumulativeLoss)
}

func TestSessionFECRecovery(t *testing.T) {
	collector := &packetCollector{}

	fec := &FECConfig{
		PayloadType:           100,
		GroupSize:             10,
		ProtectionFactor:      255,
		MaxCacheSeqDifference: 40,
	}
	senderConf := &MediaSessionConfig{
		LocalSSRC:          0xA,
		RemoteSSRC:         0xB,
		LocalClockRate:     90000,
		RemoteClockRate:    90000,
		LocalPayloadTypes:  []uint8{96},
		RemotePayloadTypes: []uint8{96},
		LocalFEC:           fec,
		Direction:          DirectionSendRecv,
		MaxCacheDuration:   100 * time.Millisecond,
		RTCPReportInterval: 200 * time.Millisecond,
	}
	receiverConf := &MediaSessionConfig{
		LocalSSRC:          0xB,
		RemoteSSRC:         0xA,
		LocalClockRate:     90000,
		RemoteClockRate:    90000,
		LocalPayloadTypes:  []uint8{96},
		RemotePayloadTypes: []uint8{96},
		RemoteFEC:          fec,
		Direction:          DirectionSendRecv,
		MaxCacheDuration:   100 * time.Millisecond,
		RTCPReportInterval: 200 * time.Millisecond,
		OnRTPPacket:        collector.add,
	}

	a, _ := startSessionPair(t, senderConf, receiverConf, 104)

	media := a.MediaSession("main")
	for seq := uint16(100); seq < 110; seq++ {
		require.NoError(t, media.SendRTP(testPacket(0xA, 96, seq)))
	}

	got := collector.waitFor(t, 10, 5*time.Second)
	require.Equal(t, []uint16{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}, got[:10])
}

func TestSessionBye(t *testing.T) {
	byeObserved := make(chan struct{})

	senderConf := &MediaSessionConfig{
		LocalSSRC:          0xA,
		RemoteSSRC:         0xB,
		LocalClockRate:     90000,
		RemoteClockRate:    90000,
		LocalPayloadTypes:  []uint8{96},
		RemotePayloadTypes: []uint8{96},
		Direction:          DirectionSendRecv,
		RTCPReportInterval: 100 * time.Millisecond,
	}
	receiverConf := &MediaSessionConfig{
		LocalSSRC:          0xB,
		RemoteSSRC:         0xA,
		LocalClockRate:     90000,
		RemoteClockRate:    90000,
		LocalPayloadTypes:  []uint8{96},
		RemotePayloadTypes: []uint8{96},
		Direction:          DirectionSendRecv,
		RTCPReportInterval: 100 * time.Millisecond,
	}

	a, b := startSessionPair(t, senderConf, receiverConf)

	a.OnByeSent = func() { close(byeObserved) }
	a.MediaSession("main").SendBye()

	select {
	case <-byeObserved:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the BYE flag")
	}
	require.True(t, a.ByeSent())

	// the peer latched the BYE
	require.Eventually(t, func() bool {
		return b.MediaSession("main").rtcp.PeerByeReceived()
	}, 3*time.Second, 10*time.Millisecond)
}
