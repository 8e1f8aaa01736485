package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch enables JSON streaming. scaled=true yields metres, m/s and degrees.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte(`?WATCH={"enable":true,"json":true,"scaled":true}` + "\n"))
	return err
}

type gpsdReport struct {
	Class string `json:"class"`

	// TPV
	Mode   *int     `json:"mode"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Alt    *float64 `json:"alt"`
	AltMSL *float64 `json:"altMSL"`
	Speed  *float64 `json:"speed"`
	Track  *float64 `json:"track"`

	// SKY
	HDOP       *float64 `json:"hdop"`
	Satellites []struct {
		Used bool `json:"used"`
	} `json:"satellites"`
}

type gpsdState struct {
	addr string

	lat, lon     float64
	latOK, lonOK bool

	mode int

	altM    *float64
	speedMS *float64
	course  *float64
	sats    *int
	hdop    *float64

	lastFix time.Time
	valid   bool
}

func newGPSDState(addr string) *gpsdState {
	return &gpsdState{addr: addr}
}

func (s *gpsdState) snapshot() Snapshot {
	out := Snapshot{
		Enabled:    true,
		Valid:      s.valid,
		Source:     SourceGPSD,
		Device:     "gpsd",
		GPSDAddr:   s.addr,
		LatDeg:     s.lat,
		LonDeg:     s.lon,
		AltM:       s.altM,
		SpeedMS:    s.speedMS,
		CourseDeg:  s.course,
		Satellites: s.sats,
		HDOP:       s.hdop,
		fixAt:      s.lastFix,
	}
	if s.mode != 0 {
		out.FixMode = ptr(s.mode)
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.Format(time.RFC3339Nano)
	}
	return out
}

// applyLine ignores gpsd classes other than TPV and SKY (VERSION, DEVICES, WATCH).
func (s *gpsdState) applyLine(nowUTC time.Time, line string) (bool, error) {
	var r gpsdReport
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return false, fmt.Errorf("gpsd json parse failed: %w", err)
	}
	switch strings.ToUpper(r.Class) {
	case "TPV":
		return s.applyTPV(nowUTC, r), nil
	case "SKY":
		return s.applySKY(r), nil
	default:
		return false, nil
	}
}

func (s *gpsdState) applyTPV(nowUTC time.Time, r gpsdReport) bool {
	updated := false
	if r.Mode != nil {
		s.mode = *r.Mode
		updated = true
	}
	if r.Lat != nil {
		s.lat, s.latOK = *r.Lat, true
		updated = true
	}
	if r.Lon != nil {
		s.lon, s.lonOK = *r.Lon, true
		updated = true
	}
	if alt := r.AltMSL; alt != nil || r.Alt != nil {
		if alt == nil {
			alt = r.Alt
		}
		s.altM = ptr(*alt)
		updated = true
	}
	if r.Speed != nil {
		s.speedMS = ptr(*r.Speed)
		updated = true
	}
	if r.Track != nil {
		s.course = ptr(math.Mod(*r.Track+360, 360))
		updated = true
	}

	// Fix age is measured on the local clock.
	if s.mode >= 2 && s.latOK && s.lonOK {
		s.valid = true
		s.lastFix = nowUTC
		updated = true
	}
	return updated
}

func (s *gpsdState) applySKY(r gpsdReport) bool {
	updated := false
	if r.HDOP != nil {
		s.hdop = ptr(*r.HDOP)
		updated = true
	}
	if len(r.Satellites) > 0 {
		used := 0
		for _, sat := range r.Satellites {
			if sat.Used {
				used++
			}
		}
		s.sats = ptr(used)
		updated = true
	}
	return updated
}
