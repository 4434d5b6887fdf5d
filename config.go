package rtpmux

import (
	"time"

	"github.com/pion/rtp"

	"github.com/rtpmux/rtpmux/pkg/rtpseq"
	"github.com/rtpmux/rtpmux/pkg/ulpfec"
)

// Direction is the transmission policy of a media session.
type Direction int

// directions.
const (
	DirectionSendRecv Direction = iota
	DirectionSendOnly
	DirectionRecvOnly
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case DirectionSendOnly:
		return "send-only"
	case DirectionRecvOnly:
		return "receive-only"
	default:
		return "send-receive"
	}
}

// RTXConfig configures a RFC 4588 retransmission stream.
type RTXConfig struct {
	// Size of the retransmission cache, as a sequence number
	// distance. Must be at least 1.
	MaxCacheSeqDifference uint16

	// SSRC of the retransmission stream.
	SSRC uint32

	// Map of RTX payload type -> protected payload type.
	PayloadTypes map[uint8]uint8
}

func (c *RTXConfig) validate(field string) error {
	if c.MaxCacheSeqDifference == 0 || c.MaxCacheSeqDifference > rtpseq.MaxRange {
		return ErrInvalidConfiguration{field + ".MaxCacheSeqDifference", "must be between 1 and 32767"}
	}
	if len(c.PayloadTypes) == 0 {
		return ErrInvalidConfiguration{field + ".PayloadTypes", "must not be empty"}
	}
	for rtxPT, pt := range c.PayloadTypes {
		if rtxPT > 0x7F || pt > 0x7F {
			return ErrInvalidConfiguration{field + ".PayloadTypes", "payload types must fit in 7 bits"}
		}
	}
	return nil
}

// FECConfig configures RFC 5109 ULP-FEC protection or recovery on a
// media session. FEC packets travel in the media stream, under the
// media SSRC and a dedicated payload type.
type FECConfig struct {
	// Payload type of FEC packets.
	PayloadType uint8

	// Number of outgoing media packets protected as one group.
	// At most 48.
	GroupSize int

	// Protection overhead in the [0, 255] domain; 255 generates one
	// FEC packet per media packet.
	ProtectionFactor uint8

	// Number of leading packets of each group that receive stronger
	// protection.
	NumImportant int

	// How the FEC packets left after protecting the important prefix
	// are assigned.
	ImportantMode ulpfec.ImportantMode

	// Family of packet masks.
	MaskType ulpfec.MaskType

	// Size of the receive-side recovery window, as a sequence number
	// distance.
	MaxCacheSeqDifference uint16
}

func (c *FECConfig) validate(field string, receiving bool) error {
	if c.PayloadType > 0x7F {
		return ErrInvalidConfiguration{field + ".PayloadType", "must fit in 7 bits"}
	}
	if !receiving {
		if c.GroupSize <= 0 || c.GroupSize > ulpfec.MaxMediaPackets {
			return ErrInvalidConfiguration{field + ".GroupSize", "must be between 1 and 48"}
		}
		if c.NumImportant < 0 || c.NumImportant > c.GroupSize {
			return ErrInvalidConfiguration{field + ".NumImportant", "must not exceed GroupSize"}
		}
	} else if c.MaxCacheSeqDifference == 0 || c.MaxCacheSeqDifference > rtpseq.MaxRange {
		return ErrInvalidConfiguration{field + ".MaxCacheSeqDifference", "must be between 1 and 32767"}
	}
	return nil
}

// MediaSessionConfig configures one media stream pair within a Session.
type MediaSessionConfig struct {
	// SSRC of the outgoing stream.
	LocalSSRC uint32

	// SSRC of the incoming stream.
	RemoteSSRC uint32

	// Clock rate of the outgoing stream.
	LocalClockRate uint32

	// Clock rate of the incoming stream.
	RemoteClockRate uint32

	// Payload types accepted on the outgoing stream. Must not be
	// empty unless the session is receive-only.
	LocalPayloadTypes []uint8

	// Payload types accepted on the incoming stream. Must not be
	// empty unless the session is send-only.
	RemotePayloadTypes []uint8

	// Retransmissions of the outgoing stream. nil disables them.
	LocalRTX *RTXConfig

	// Retransmissions of the incoming stream. nil disables them.
	RemoteRTX *RTXConfig

	// FEC protection of the outgoing stream. nil disables it.
	LocalFEC *FECConfig

	// FEC recovery of the incoming stream. nil disables it.
	RemoteFEC *FECConfig

	// How long a received packet may wait for its predecessors before
	// being released anyway. Zero releases immediately.
	MaxCacheDuration time.Duration

	// Transmission policy.
	Direction Direction

	// Period of scheduled RTCP reports.
	RTCPReportInterval time.Duration

	// Called on the signalling worker with every received packet, in
	// ascending sequence order.
	OnRTPPacket func(*rtp.Packet)
}

func (c *MediaSessionConfig) validate(name string) error {
	sends := c.Direction != DirectionRecvOnly
	receives := c.Direction != DirectionSendOnly

	if c.RTCPReportInterval <= 0 {
		return ErrInvalidConfiguration{name + ".RTCPReportInterval", "must be positive"}
	}

	if sends {
		if c.LocalClockRate == 0 {
			return ErrInvalidConfiguration{name + ".LocalClockRate", "must be positive"}
		}
		if len(c.LocalPayloadTypes) == 0 {
			return ErrInvalidConfiguration{name + ".LocalPayloadTypes", "must not be empty on a sending session"}
		}
		for _, pt := range c.LocalPayloadTypes {
			if pt > 0x7F {
				return ErrInvalidConfiguration{name + ".LocalPayloadTypes", "payload types must fit in 7 bits"}
			}
		}
		if c.LocalRTX != nil {
			if err := c.LocalRTX.validate(name + ".LocalRTX"); err != nil {
				return err
			}
		}
		if c.LocalFEC != nil {
			if err := c.LocalFEC.validate(name+".LocalFEC", false); err != nil {
				return err
			}
		}
	}

	if receives {
		if c.RemoteClockRate == 0 {
			return ErrInvalidConfiguration{name + ".RemoteClockRate", "must be positive"}
		}
		if len(c.RemotePayloadTypes) == 0 {
			return ErrInvalidConfiguration{name + ".RemotePayloadTypes", "must not be empty on a receiving session"}
		}
		for _, pt := range c.RemotePayloadTypes {
			if pt > 0x7F {
				return ErrInvalidConfiguration{name + ".RemotePayloadTypes", "payload types must fit in 7 bits"}
			}
		}
		if c.RemoteRTX != nil {
			if err := c.RemoteRTX.validate(name + ".RemoteRTX"); err != nil {
				return err
			}
		}
		if c.RemoteFEC != nil {
			if err := c.RemoteFEC.validate(name+".RemoteFEC", true); err != nil {
				return err
			}
		}
	}

	return nil
}

// ssrcs returns every SSRC the config claims, for global uniqueness
// checks.
func (c *MediaSessionConfig) ssrcs() []uint32 {
	out := []uint32{c.LocalSSRC, c.RemoteSSRC}
	if c.LocalRTX != nil {
		out = append(out, c.LocalRTX.SSRC)
	}
	if c.RemoteRTX != nil {
		out = append(out, c.RemoteRTX.SSRC)
	}
	return out
}
