// Package rtpmux implements a bidirectional RTP/RTCP session engine
// with retransmission (RFC 4588) and ULP-FEC (RFC 5109) loss recovery.
// Several media streams, each identified by a local/remote SSRC pair,
// are multiplexed over a single UDP flow.
package rtpmux

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/rtpmux/rtpmux/pkg/taskworker"
)

// Session is a bidirectional RTP/RTCP session over a single UDP flow.
type Session struct {
	// Local address, in "host:port" form. The host may be empty.
	LocalAddress string

	// Remote address, in "host:port" form. Its family must match the
	// local one.
	RemoteAddress string

	// Canonical name carried in RTCP SDES chunks. A random one is
	// generated when empty.
	CNAME string

	// Media sessions, by name. SSRCs must be unique across all of
	// them.
	Media map[string]*MediaSessionConfig

	Log zerolog.Logger

	// Registerer for the session counters. nil disables metrics.
	Metrics prometheus.Registerer

	// Called once, on the signalling worker, when the first RTCP
	// compound carrying a BYE left this session. Observability only.
	OnByeSent func()

	localAddr  *net.UDPAddr
	remoteAddr *net.UDPAddr

	signallingWorker *taskworker.Worker
	protocolWorker   *taskworker.Worker
	networkWorker    *taskworker.Worker

	router      *router
	transceiver *transceiver
	medias      map[string]*MediaSession

	initialized bool
	started     bool
	byeSent     atomic.Bool
}

// Initialize validates the configuration and builds the session
// components. The socket is not touched until Start.
func (s *Session) Initialize() error {
	if len(s.Media) == 0 {
		return ErrInvalidConfiguration{"Media", "at least one media session is required"}
	}

	var err error
	s.localAddr, err = net.ResolveUDPAddr("udp", s.LocalAddress)
	if err != nil {
		return ErrInvalidConfiguration{"LocalAddress", err.Error()}
	}
	s.remoteAddr, err = net.ResolveUDPAddr("udp", s.RemoteAddress)
	if err != nil {
		return ErrInvalidConfiguration{"RemoteAddress", err.Error()}
	}
	if s.remoteAddr.IP == nil {
		return ErrInvalidConfiguration{"RemoteAddress", "host is required"}
	}
	if s.localAddr.IP != nil &&
		(s.localAddr.IP.To4() != nil) != (s.remoteAddr.IP.To4() != nil) {
		return ErrInvalidConfiguration{"RemoteAddress", "address family does not match the local one"}
	}

	if s.CNAME == "" {
		s.CNAME = uuid.NewString()
	}

	seen := make(map[uint32]string)
	for name, conf := range s.Media {
		if err := conf.validate(name); err != nil {
			return err
		}
		for _, ssrc := range conf.ssrcs() {
			if other, ok := seen[ssrc]; ok {
				return ErrInvalidConfiguration{name,
					fmt.Sprintf("SSRC %d already used by %s", ssrc, other)}
			}
			seen[ssrc] = name
		}
	}

	s.signallingWorker = &taskworker.Worker{Name: "signalling", Log: s.Log}
	s.protocolWorker = &taskworker.Worker{Name: "worker", Log: s.Log}
	s.networkWorker = &taskworker.Worker{Name: "network", Log: s.Log}

	s.router = &router{ses: s}
	s.router.initialize()
	s.transceiver = &transceiver{ses: s}
	s.transceiver.initialize()

	s.medias = make(map[string]*MediaSession, len(s.Media))
	for name, conf := range s.Media {
		m := &MediaSession{
			name: name,
			ses:  s,
			conf: conf,
		}
		if err := m.initialize(); err != nil {
			return err
		}
		s.medias[name] = m
		s.router.addDestinations(routableMedia(m))
	}

	s.initialized = true
	return nil
}

// Start binds the UDP endpoint, starts the workers and schedules the
// RTCP reports.
func (s *Session) Start() error {
	if !s.initialized {
		if err := s.Initialize(); err != nil {
			return err
		}
	}
	if s.started {
		return nil
	}

	s.signallingWorker.Initialize()
	s.protocolWorker.Initialize()
	s.networkWorker.Initialize()

	if err := s.transceiver.start(s.localAddr, s.remoteAddr); err != nil {
		s.stopWorkers()
		return err
	}

	for _, m := range s.medias {
		if err := m.start(); err != nil {
			s.transceiver.close()
			s.stopWorkers()
			return err
		}
	}

	s.started = true
	s.Log.Debug().
		Str("local", s.localAddr.String()).
		Str("remote", s.remoteAddr.String()).
		Msg("session started")
	return nil
}

// Close sends a BYE on every media session, then stops the workers and
// releases the socket.
func (s *Session) Close() {
	if !s.started {
		return
	}
	s.started = false

	for _, m := range s.medias {
		m.SendBye()
	}

	// let the queued BYE datagrams leave before stopping the workers
	flushed := make(chan struct{})
	if s.networkWorker.Push(func() { close(flushed) }) {
		<-flushed
	}

	for _, m := range s.medias {
		m.close()
	}
	s.stopWorkers()
	s.transceiver.close()

	s.Log.Debug().Msg("session closed")
}

// MediaSession returns the media session with the given name, or nil.
func (s *Session) MediaSession(name string) *MediaSession {
	return s.medias[name]
}

// ByeSent reports whether a BYE already left this session.
func (s *Session) ByeSent() bool {
	return s.byeSent.Load()
}

func (s *Session) signalByeSent() {
	if s.byeSent.Swap(true) {
		return
	}
	s.Log.Debug().Msg("BYE sent")
	if s.OnByeSent != nil {
		s.signallingWorker.Push(s.OnByeSent)
	}
}

func (s *Session) stopWorkers() {
	s.signallingWorker.Stop()
	s.protocolWorker.Stop()
	s.networkWorker.Stop()
}

// routableMedia adapts a media session to the router interfaces,
// returning a nil RTP half for send-only sessions.
func routableMedia(m *MediaSession) (rtpDestination, rtcpDestination) {
	var rtpDest rtpDestination
	if m.receiver != nil {
		rtpDest = m
	}
	return rtpDest, m
}
