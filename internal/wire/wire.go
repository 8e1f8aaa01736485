// Package wire encodes and decodes telemetry datagrams.
//
// A datagram is a one byte tag followed by the fields of the tagged sample,
// each an 8 byte big-endian IEEE-754 double. There is no version, length
// prefix or checksum beyond what UDP provides.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

type Tag byte

const (
	TagPosition Tag = 0
	TagPower    Tag = 1
	TagSignal   Tag = 2
)

func (t Tag) String() string {
	switch t {
	case TagPosition:
		return "position"
	case TagPower:
		return "power"
	case TagSignal:
		return "signal"
	default:
		return fmt.Sprintf("tag(0x%02X)", byte(t))
	}
}

const fieldLen = 8

// MaxDatagramLen is the size of the largest encoded sample (a Position).
const MaxDatagramLen = 1 + 4*fieldLen

// ErrDecode is wrapped by every Decode failure.
var ErrDecode = errors.New("wire: decode failed")

// Sample is one of Position, Power or Signal.
type Sample interface {
	Tag() Tag
	fields(dst *[4]float64) int
}

// Position is in degrees, degrees, metres and degrees clockwise from north.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Bearing   float64 `json:"bearing"`
}

type Power struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
}

// Signal carries the received signal strength in dB.
type Signal struct {
	RSSI float64 `json:"rssi"`
}

func (Position) Tag() Tag { return TagPosition }
func (Power) Tag() Tag    { return TagPower }
func (Signal) Tag() Tag   { return TagSignal }

func (p Position) fields(dst *[4]float64) int {
	dst[0], dst[1], dst[2], dst[3] = p.Latitude, p.Longitude, p.Altitude, p.Bearing
	return 4
}

func (p Power) fields(dst *[4]float64) int {
	dst[0], dst[1] = p.Voltage, p.Current
	return 2
}

func (s Signal) fields(dst *[4]float64) int {
	dst[0] = s.RSSI
	return 1
}

// PayloadLen returns the number of bytes following the tag, or -1 for an
// unknown tag.
func PayloadLen(t Tag) int {
	switch t {
	case TagPosition:
		return 4 * fieldLen
	case TagPower:
		return 2 * fieldLen
	case TagSignal:
		return fieldLen
	default:
		return -1
	}
}

// Encode returns the datagram for s. It panics if s is nil.
func Encode(s Sample) []byte {
	var buf [MaxDatagramLen]byte
	return AppendEncode(buf[:0], s)
}

// AppendEncode appends the datagram for s to dst. A dst with capacity
// MaxDatagramLen never reallocates.
func AppendEncode(dst []byte, s Sample) []byte {
	var vals [4]float64
	n := s.fields(&vals)
	dst = append(dst, byte(s.Tag()))
	for i := 0; i < n; i++ {
		dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(vals[i]))
	}
	return dst
}

// Decode parses one datagram. Bytes past the payload of the tag are ignored.
func Decode(b []byte) (Sample, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty datagram", ErrDecode)
	}
	tag := Tag(b[0])
	need := PayloadLen(tag)
	if need < 0 {
		return nil, fmt.Errorf("%w: unknown tag 0x%02X", ErrDecode, b[0])
	}
	p := b[1:]
	if len(p) < need {
		return nil, fmt.Errorf("%w: %s payload len=%d want %d", ErrDecode, tag, len(p), need)
	}

	f := func(i int) float64 {
		return math.Float64frombits(binary.BigEndian.Uint64(p[i*fieldLen:]))
	}
	switch tag {
	case TagPosition:
		return Position{Latitude: f(0), Longitude: f(1), Altitude: f(2), Bearing: f(3)}, nil
	case TagPower:
		return Power{Voltage: f(0), Current: f(1)}, nil
	default:
		return Signal{RSSI: f(0)}, nil
	}
}
