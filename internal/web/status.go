package web

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"raspifpv/internal/flightlog"
	"raspifpv/internal/geo"
	"raspifpv/internal/telemetry"
)

// TelemetrySource is the receive side the status page reports on.
// *telemetry.Subscriber implements it.
type TelemetrySource interface {
	Snapshot() telemetry.Snapshot
	Stats() telemetry.SubscriberStats
}

type Status struct {
	startUnixNano int64
	rx            TelemetrySource
	mode          atomic.Value // string
	group         atomic.Value // string
	flightLog     atomic.Pointer[func() flightlog.RecorderStats]

	gridMu   sync.Mutex
	gridHome telemetry.Location
	gridMGRS string
	gridUTM  string
}

func NewStatus(rx TelemetrySource) *Status {
	s := &Status{rx: rx}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.mode.Store("")
	s.group.Store("")
	return s
}

func (s *Status) SetStatic(mode string, group string) {
	if mode != "" {
		s.mode.Store(mode)
	}
	if group != "" {
		s.group.Store(group)
	}
}

// SetFlightLog adds the recorder counters to the snapshot. nil removes them.
func (s *Status) SetFlightLog(fn func() flightlog.RecorderStats) {
	if fn == nil {
		s.flightLog.Store(nil)
		return
	}
	s.flightLog.Store(&fn)
}

// HomeStatus is the home fix with the vehicle's range and the bearing from
// the vehicle back to home.
type HomeStatus struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Altitude   float64 `json:"altitude"`
	MGRS       string  `json:"mgrs,omitempty"`
	UTM        string  `json:"utm,omitempty"`
	DistanceM  float64 `json:"distance_m"`
	BearingDeg float64 `json:"bearing_deg"`
}

type StatusSnapshot struct {
	Service       string                    `json:"service"`
	NowUTC        string                    `json:"now_utc"`
	UptimeSec     int64                     `json:"uptime_sec"`
	Mode          string                    `json:"mode"`
	Group         string                    `json:"group"`
	Receiver      telemetry.SubscriberStats `json:"receiver"`
	ReceivedHuman string                    `json:"received_human"`
	DroppedHuman  string                    `json:"dropped_human"`
	PowerHuman    string                    `json:"power_human,omitempty"`
	Telemetry     telemetry.Snapshot        `json:"telemetry"`
	Home          *HomeStatus               `json:"home,omitempty"`
	FlightLog     *flightlog.RecorderStats  `json:"flightlog,omitempty"`
	CPUTempC      *float64                  `json:"cpu_temp_c,omitempty"`
	LastError     string                    `json:"last_error,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "raspifpv",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Mode:      s.mode.Load().(string),
		Group:     s.group.Load().(string),
		CPUTempC:  hostCPUTempC(),
	}
	if s.rx != nil {
		snap.Receiver = s.rx.Stats()
		snap.Telemetry = s.rx.Snapshot()
		snap.LastError = snap.Receiver.LastError
	}
	snap.ReceivedHuman = humanize.Comma(int64(snap.Receiver.Received))
	snap.DroppedHuman = humanize.Comma(int64(snap.Receiver.Dropped))

	t := snap.Telemetry
	if t.Voltage > 0 && t.Current > 0 {
		snap.PowerHuman = humanize.SIWithDigits(t.Voltage*t.Current, 1, "W")
	}
	if t.HasHome() {
		snap.Home = s.home(t)
	}
	if fn := s.flightLog.Load(); fn != nil {
		st := (*fn)()
		snap.FlightLog = &st
		if snap.LastError == "" {
			snap.LastError = st.LastError
		}
	}
	return snap
}

func (s *Status) home(t telemetry.Snapshot) *HomeStatus {
	h := &HomeStatus{
		Latitude:   t.Home.Latitude,
		Longitude:  t.Home.Longitude,
		Altitude:   t.Home.Altitude,
		DistanceM:  geo.Distance(t.Location.Latitude, t.Location.Longitude, t.Home.Latitude, t.Home.Longitude),
		BearingDeg: geo.Bearing(t.Location.Latitude, t.Location.Longitude, t.Home.Latitude, t.Home.Longitude),
	}
	h.MGRS, h.UTM = s.grid(t.Home)
	return h
}

// grid converts the home fix once; home never moves after it is latched.
func (s *Status) grid(home telemetry.Location) (mgrs, utm string) {
	s.gridMu.Lock()
	defer s.gridMu.Unlock()
	if s.gridHome == home && (s.gridMGRS != "" || s.gridUTM != "") {
		return s.gridMGRS, s.gridUTM
	}
	s.gridHome = home
	s.gridMGRS, _ = geo.MGRS(home.Latitude, home.Longitude, 5)
	s.gridUTM, _ = geo.UTM(home.Latitude, home.Longitude)
	return s.gridMGRS, s.gridUTM
}
