// Package sim provides deterministic telemetry sources for bench runs
// without sensors.
package sim

import (
	"math"
	"time"

	"raspifpv/internal/geo"
	"raspifpv/internal/wire"
)

const (
	DefaultRadiusM = 150.0
	DefaultPeriod  = 120 * time.Second
	DefaultAltM    = 60.0
	DefaultVoltage = 16.8
	DefaultCurrent = 12.0
	DefaultRSSI    = -8.0

	// Pack voltage sags by this fraction over one hour of flight.
	dischargePerHour = 0.25
)

// FlightConfig describes a figure-eight flown through the home point.
type FlightConfig struct {
	HomeLatDeg float64
	HomeLonDeg float64
	AltM       float64
	RadiusM    float64
	Period     time.Duration
	Voltage    float64
	Current    float64
	RSSI       float64
}

// Flight implements the position, power and signal sources. Its first
// position is the home point, so a receiver latches home where the loop
// starts and returns every Period.
type Flight struct {
	cfg   FlightConfig
	start time.Time
	now   func() time.Time
}

func NewFlight(cfg FlightConfig) *Flight {
	if cfg.RadiusM <= 0 {
		cfg.RadiusM = DefaultRadiusM
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.AltM == 0 {
		cfg.AltM = DefaultAltM
	}
	if cfg.Voltage == 0 {
		cfg.Voltage = DefaultVoltage
	}
	if cfg.Current == 0 {
		cfg.Current = DefaultCurrent
	}
	if cfg.RSSI == 0 {
		cfg.RSSI = DefaultRSSI
	}
	f := &Flight{cfg: cfg, now: time.Now}
	f.start = f.now()
	return f
}

func (f *Flight) elapsed() time.Duration {
	d := f.now().Sub(f.start)
	if d < 0 {
		return 0
	}
	return d
}

// PositionAt returns the state elapsed into the flight.
//
// Path (metres east x, north y) for phase w = 2π·t/Period:
//
//	x = R·sin(w)
//	y = R/2·sin(2w)
//
// Altitude climbs from zero to AltM over the first quarter period.
func (f *Flight) PositionAt(elapsed time.Duration) wire.Position {
	phase := float64(elapsed%f.cfg.Period) / float64(f.cfg.Period)
	w := 2 * math.Pi * phase
	r := f.cfg.RadiusM

	east := r * math.Sin(w)
	north := r / 2 * math.Sin(2*w)

	latRad := f.cfg.HomeLatDeg * math.Pi / 180
	lat := f.cfg.HomeLatDeg + north/geo.EarthRadiusM*180/math.Pi
	lon := f.cfg.HomeLonDeg + east/(geo.EarthRadiusM*math.Cos(latRad))*180/math.Pi

	ve := r * math.Cos(w)
	vn := r * math.Cos(2*w)
	bearing := geo.NormalizeDeg(math.Atan2(ve, vn) * 180 / math.Pi)

	climb := math.Min(float64(elapsed)/float64(f.cfg.Period/4), 1)
	return wire.Position{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  f.cfg.AltM * climb,
		Bearing:   bearing,
	}
}

// PowerAt discharges the pack linearly and varies current with the loop.
func (f *Flight) PowerAt(elapsed time.Duration) wire.Power {
	sag := math.Min(elapsed.Hours()*dischargePerHour, 0.5)
	phase := 2 * math.Pi * float64(elapsed%f.cfg.Period) / float64(f.cfg.Period)
	return wire.Power{
		Voltage: f.cfg.Voltage * (1 - sag),
		Current: f.cfg.Current * (1 + 0.25*math.Sin(2*phase)),
	}
}

// SignalAt weakens RSSI with distance from home, 1 dB per radius.
func (f *Flight) SignalAt(elapsed time.Duration) wire.Signal {
	p := f.PositionAt(elapsed)
	d := geo.Distance(f.cfg.HomeLatDeg, f.cfg.HomeLonDeg, p.Latitude, p.Longitude)
	return wire.Signal{RSSI: f.cfg.RSSI - d/f.cfg.RadiusM}
}

func (f *Flight) Position() (wire.Position, bool) { return f.PositionAt(f.elapsed()), true }
func (f *Flight) Power() (wire.Power, bool)       { return f.PowerAt(f.elapsed()), true }
func (f *Flight) Signal() (wire.Signal, bool)     { return f.SignalAt(f.elapsed()), true }
