package gps

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"raspifpv/internal/geo"
)

const knotsToMS = 0.514444

var errNMEA = errors.New("nmea")

type nmeaSentence struct {
	Type string
	// Fields is the comma-split payload without '$' and checksum.
	Fields []string
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("%w: missing '$'", errNMEA)
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("%w: missing checksum", errNMEA)
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, fmt.Errorf("%w: short checksum", errNMEA)
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil {
		return nmeaSentence{}, fmt.Errorf("%w: bad checksum %q", errNMEA, ck[:2])
	}
	var got byte
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nmeaSentence{}, fmt.Errorf("%w: checksum mismatch got=%02X want=%02X", errNMEA, got, want[0])
	}

	parts := strings.Split(payload, ",")
	if len(parts[0]) < 3 {
		return nmeaSentence{}, fmt.Errorf("%w: short type", errNMEA)
	}
	// GP/GN/GL talkers all map to the last three characters.
	t := parts[0][len(parts[0])-3:]
	return nmeaSentence{Type: strings.ToUpper(t), Fields: parts}, nil
}

type nmeaState struct {
	device string
	baud   int

	lat, lon     float64
	latOK, lonOK bool

	altM  float64
	altOK bool

	speedMS float64
	speedOK bool

	courseDeg float64
	courseOK  bool

	fixQuality   int
	fixQualityOK bool
	satellites   int
	satsOK       bool
	hdop         float64
	hdopOK       bool

	lastFix time.Time
	valid   bool
}

// applyLine ignores receiver chatter that is not an NMEA sentence.
func (s *nmeaState) applyLine(nowUTC time.Time, line string) (bool, error) {
	if !strings.HasPrefix(line, "$") {
		return false, nil
	}
	sent, err := parseNMEASentence(line)
	if err != nil {
		return false, err
	}
	return s.apply(nowUTC, sent), nil
}

func (s *nmeaState) apply(nowUTC time.Time, sent nmeaSentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(nowUTC, sent.Fields)
	case "GGA":
		return s.applyGGA(nowUTC, sent.Fields)
	default:
		return false
	}
}

func (s *nmeaState) snapshot() Snapshot {
	out := Snapshot{
		Enabled: true,
		Valid:   s.valid,
		Source:  SourceNMEA,
		Device:  s.device,
		Baud:    s.baud,
		LatDeg:  s.lat,
		LonDeg:  s.lon,
		fixAt:   s.lastFix,
	}
	if s.altOK {
		out.AltM = ptr(s.altM)
	}
	if s.speedOK {
		out.SpeedMS = ptr(s.speedMS)
	}
	if s.courseOK {
		out.CourseDeg = ptr(s.courseDeg)
	}
	if s.fixQualityOK {
		out.FixQuality = ptr(s.fixQuality)
	}
	if s.satsOK {
		out.Satellites = ptr(s.satellites)
	}
	if s.hdopOK {
		out.HDOP = ptr(s.hdop)
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.Format(time.RFC3339Nano)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// applyRMC handles Recommended Minimum data:
//
//	1 time, 2 status (A/V), 3-4 latitude, 5-6 longitude,
//	7 speed over ground (kt), 8 course over ground (deg), 9 date
func (s *nmeaState) applyRMC(nowUTC time.Time, f []string) bool {
	if len(f) < 10 || strings.TrimSpace(f[2]) != "A" {
		return false
	}
	if lat, ok := parseNMEALatLon(f[3], f[4]); ok {
		s.lat, s.latOK = lat, true
	}
	if lon, ok := parseNMEALatLon(f[5], f[6]); ok {
		s.lon, s.lonOK = lon, true
	}
	if kt, ok := parseFloat(f[7]); ok {
		s.speedMS, s.speedOK = kt*knotsToMS, true
	}
	if trk, ok := parseFloat(f[8]); ok {
		s.courseDeg, s.courseOK = geo.NormalizeDeg(trk), true
	}
	return s.markFix(nowUTC)
}

// applyGGA handles fix data:
//
//	2-3 latitude, 4-5 longitude, 6 fix quality (0 invalid),
//	7 satellites, 8 HDOP, 9 altitude MSL, 10 units (M)
func (s *nmeaState) applyGGA(nowUTC time.Time, f []string) bool {
	if len(f) < 11 {
		return false
	}
	q, err := strconv.Atoi(strings.TrimSpace(f[6]))
	if err != nil || q == 0 {
		return false
	}
	s.fixQuality, s.fixQualityOK = q, true
	if n, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		s.satellites, s.satsOK = n, true
	}
	if h, ok := parseFloat(f[8]); ok {
		s.hdop, s.hdopOK = h, true
	}
	if lat, ok := parseNMEALatLon(f[2], f[3]); ok {
		s.lat, s.latOK = lat, true
	}
	if lon, ok := parseNMEALatLon(f[4], f[5]); ok {
		s.lon, s.lonOK = lon, true
	}
	if alt, ok := parseFloat(f[9]); ok {
		s.altM, s.altOK = alt, true
	}
	return s.markFix(nowUTC)
}

func (s *nmeaState) markFix(nowUTC time.Time) bool {
	if !s.latOK || !s.lonOK {
		return false
	}
	s.lastFix = nowUTC
	s.valid = true
	return true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNMEALatLon parses ddmm.mmmm (latitude) or dddmm.mmmm (longitude) with
// its hemisphere letter into signed decimal degrees.
func parseNMEALatLon(v, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.ToUpper(strings.TrimSpace(hemi))
	if v == "" || !strings.Contains("NSEW", hemi) || len(hemi) != 1 {
		return 0, false
	}
	intLen := strings.IndexByte(v, '.')
	if intLen == -1 {
		intLen = len(v)
	}
	if intLen < 3 {
		return 0, false
	}
	deg, err := strconv.Atoi(v[:intLen-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[intLen-2:], 64)
	if err != nil {
		return 0, false
	}
	dec := float64(deg) + mins/60
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
