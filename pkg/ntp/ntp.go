// Package ntp contains functions to encode and decode timestamps to/from NTP format.
package ntp

import (
	"math"
	"time"
)

// seconds between the NTP epoch (1900) and the Unix epoch (1970).
const unixEpochOffset = 2208988800

// Encode encodes a timestamp in 64-bit NTP format.
// Specification: RFC 3550, section 4
func Encode(t time.Time) uint64 {
	n := uint64(t.UnixNano()) + unixEpochOffset*1000000000
	secs := n / 1000000000
	frac := uint64(math.Round(float64((n%1000000000)*(1<<32)) / 1000000000))
	return secs<<32 | frac
}

// Decode decodes a timestamp from 64-bit NTP format.
// Specification: RFC 3550, section 4
func Decode(v uint64) time.Time {
	secs := int64((v >> 32) - unixEpochOffset)
	nanos := int64(math.Round(float64(((v & 0xFFFFFFFF) * 1000000000) / (1 << 32))))
	return time.Unix(secs, nanos)
}

// Middle32 returns the middle 32 bits of a 64-bit NTP timestamp,
// the compact form carried in the LSR field of RTCP report blocks.
func Middle32(v uint64) uint32 {
	return uint32(v >> 16)
}
