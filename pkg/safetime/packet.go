package safetime

import (
	"encoding/binary"
	"fmt"
)

// PacketSize is the size of an NTP packet without extension fields
const PacketSize = 48

// ntpEpochOffset is the number of seconds between the NTP epoch (1900-01-01)
// and the Unix epoch (1970-01-01)
const ntpEpochOffset = 2208988800

// Leap indicator values
const (
	LeapNoWarning    = 0
	LeapLastMinute61 = 1
	LeapLastMinute59 = 2
	LeapAlarm        = 3 // clock not synchronized
)

// Mode values
const (
	ModeSymmetricActive  = 1
	ModeSymmetricPassive = 2
	ModeClient           = 3
	ModeServer           = 4
	ModeBroadcast        = 5
)

// VersionNTPv3 is the protocol version written into outgoing requests
const VersionNTPv3 = 3

// Packet is a parsed 48-byte NTP packet (RFC 5905 header layout).
// RootDelay and RootDispersion hold the raw 16.16 fixed-point field values;
// the four timestamps hold raw 64-bit NTP timestamps.
type Packet struct {
	LeapIndicator  uint8
	Version        uint8
	Mode           uint8
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    [4]byte
	ReferenceTime  uint64
	OriginateTime  uint64
	ReceiveTime    uint64
	TransmitTime   uint64
}

// NewRequest builds a mode-3 client request. The transmit timestamp is
// filled with the caller's wall clock so the server echoes it back in the
// originate field of its response.
func NewRequest(wallMs int64) []byte {
	buf := make([]byte, PacketSize)
	buf[0] = (LeapNoWarning << 6) | (VersionNTPv3 << 3) | ModeClient
	binary.BigEndian.PutUint64(buf[40:48], unixMsToNTP(wallMs))
	return buf
}

// ParsePacket parses a raw NTP response. Responses shorter than 48 bytes are
// rejected with ErrMalformedResponse.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < PacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedResponse, len(data))
	}

	p := &Packet{
		LeapIndicator:  data[0] >> 6,
		Version:        (data[0] >> 3) & 0x07,
		Mode:           data[0] & 0x07,
		Stratum:        data[1],
		Poll:           int8(data[2]),
		Precision:      int8(data[3]),
		RootDelay:      binary.BigEndian.Uint32(data[4:8]),
		RootDispersion: binary.BigEndian.Uint32(data[8:12]),
		ReferenceTime:  binary.BigEndian.Uint64(data[16:24]),
		OriginateTime:  binary.BigEndian.Uint64(data[24:32]),
		ReceiveTime:    binary.BigEndian.Uint64(data[32:40]),
		TransmitTime:   binary.BigEndian.Uint64(data[40:48]),
	}
	copy(p.ReferenceID[:], data[12:16])

	return p, nil
}

// Marshal encodes the packet back into its 48-byte wire form
func (p *Packet) Marshal() []byte {
	buf := make([]byte, PacketSize)
	buf[0] = (p.LeapIndicator&0x03)<<6 | (p.Version&0x07)<<3 | (p.Mode & 0x07)
	buf[1] = p.Stratum
	buf[2] = byte(p.Poll)
	buf[3] = byte(p.Precision)
	binary.BigEndian.PutUint32(buf[4:8], p.RootDelay)
	binary.BigEndian.PutUint32(buf[8:12], p.RootDispersion)
	copy(buf[12:16], p.ReferenceID[:])
	binary.BigEndian.PutUint64(buf[16:24], p.ReferenceTime)
	binary.BigEndian.PutUint64(buf[24:32], p.OriginateTime)
	binary.BigEndian.PutUint64(buf[32:40], p.ReceiveTime)
	binary.BigEndian.PutUint64(buf[40:48], p.TransmitTime)
	return buf
}

// OriginateMs returns the originate timestamp as Unix milliseconds
func (p *Packet) OriginateMs() int64 { return ntpToUnixMs(p.OriginateTime) }

// ReceiveMs returns the receive timestamp as Unix milliseconds
func (p *Packet) ReceiveMs() int64 { return ntpToUnixMs(p.ReceiveTime) }

// TransmitMs returns the transmit timestamp as Unix milliseconds
func (p *Packet) TransmitMs() int64 { return ntpToUnixMs(p.TransmitTime) }

// ReferenceMs returns the reference timestamp as Unix milliseconds
func (p *Packet) ReferenceMs() int64 { return ntpToUnixMs(p.ReferenceTime) }

// RootDelaySeconds converts the raw root delay field to seconds
func (p *Packet) RootDelaySeconds() float64 {
	return float64(int32(p.RootDelay)) / 65536.0
}

// RootDispersionSeconds converts the raw root dispersion field to seconds
func (p *Packet) RootDispersionSeconds() float64 {
	return float64(p.RootDispersion) / 65536.0
}

// ntpToUnixMs converts a 64-bit NTP timestamp to Unix milliseconds.
// An all-zero timestamp means "unset" and converts to 0. Seconds values
// with the top bit clear are read as NTP era 1 (from 2036-02-07 onwards).
func ntpToUnixMs(ts uint64) int64 {
	if ts == 0 {
		return 0
	}
	seconds := int64(ts >> 32)
	if seconds < 1<<31 {
		seconds += 1 << 32
	}
	fraction := ts & 0xFFFFFFFF
	return (seconds-ntpEpochOffset)*1000 + int64((fraction*1000)>>32)
}

// unixMsToNTP converts Unix milliseconds to a 64-bit NTP timestamp. The
// fraction rounds up so that converting back with ntpToUnixMs returns the
// original millisecond value.
func unixMsToNTP(ms int64) uint64 {
	seconds := uint64(ms/1000 + ntpEpochOffset)
	fraction := (uint64(ms%1000)<<32 + 999) / 1000
	return seconds<<32 | fraction
}
