package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"raspifpv/internal/geo"
	"raspifpv/internal/wire"
)

// ScenarioScript is a keyframed flight. Times are Go duration strings.
// If Duration is zero it is the last keyframe time.
//
//	version: 1
//	duration: 60s
//	keyframes:
//	  - t: 0s
//	    lat_deg: 47.3977
//	    lon_deg: 8.5456
//	    alt_m: 0
//	    bearing_deg: 90
//	    voltage: 16.8
//	    current: 2
//	    rssi: -4
//
// A zero voltage, current or rssi in every keyframe means that source has no
// data, which exercises the receiver's missing-field handling.
type ScenarioScript struct {
	Version   int           `yaml:"version"`
	Duration  time.Duration `yaml:"duration"`
	Keyframes []Keyframe    `yaml:"keyframes"`
}

type Keyframe struct {
	T          time.Duration `yaml:"t"`
	LatDeg     float64       `yaml:"lat_deg"`
	LonDeg     float64       `yaml:"lon_deg"`
	AltM       float64       `yaml:"alt_m"`
	BearingDeg float64       `yaml:"bearing_deg"`
	Voltage    float64       `yaml:"voltage"`
	Current    float64       `yaml:"current"`
	RSSI       float64       `yaml:"rssi"`
}

// Scenario is the validated runtime form of a ScenarioScript.
type Scenario struct {
	keyframes []Keyframe
	duration  time.Duration
	loop      bool

	hasPower  bool
	hasSignal bool

	start time.Time
	now   func() time.Time
}

func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, fmt.Errorf("parse scenario: %w", err)
	}
	return s, nil
}

// NewScenario validates script. With loop set, playback wraps at Duration;
// otherwise it holds the final keyframe.
func NewScenario(script ScenarioScript, loop bool) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	kfs := script.Keyframes
	if len(kfs) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i := range kfs {
		if kfs[i].T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kfs[i].T < kfs[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = kfs[len(kfs)-1].T
	}
	if dur <= 0 && loop {
		return nil, fmt.Errorf("duration is required to loop")
	}

	s := &Scenario{keyframes: kfs, duration: dur, loop: loop, now: time.Now}
	for _, kf := range kfs {
		s.hasPower = s.hasPower || kf.Voltage != 0 || kf.Current != 0
		s.hasSignal = s.hasSignal || kf.RSSI != 0
	}
	s.start = s.now()
	return s, nil
}

func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// StateAt interpolates the keyframes at elapsed.
func (s *Scenario) StateAt(elapsed time.Duration) Keyframe {
	if elapsed < 0 {
		elapsed = 0
	}
	if s.duration > 0 {
		if s.loop {
			elapsed %= s.duration
		} else if elapsed > s.duration {
			elapsed = s.duration
		}
	}

	k0, k1, a := selectSegment(s.keyframes, elapsed)
	return Keyframe{
		T:          elapsed,
		LatDeg:     lerp(k0.LatDeg, k1.LatDeg, a),
		LonDeg:     lerp(k0.LonDeg, k1.LonDeg, a),
		AltM:       lerp(k0.AltM, k1.AltM, a),
		BearingDeg: lerpAngleDeg(k0.BearingDeg, k1.BearingDeg, a),
		Voltage:    lerp(k0.Voltage, k1.Voltage, a),
		Current:    lerp(k0.Current, k1.Current, a),
		RSSI:       lerp(k0.RSSI, k1.RSSI, a),
	}
}

func (s *Scenario) current() Keyframe { return s.StateAt(s.now().Sub(s.start)) }

func (s *Scenario) Position() (wire.Position, bool) {
	k := s.current()
	return wire.Position{Latitude: k.LatDeg, Longitude: k.LonDeg, Altitude: k.AltM, Bearing: k.BearingDeg}, true
}

func (s *Scenario) Power() (wire.Power, bool) {
	if !s.hasPower {
		return wire.Power{}, false
	}
	k := s.current()
	return wire.Power{Voltage: k.Voltage, Current: k.Current}, true
}

func (s *Scenario) Signal() (wire.Signal, bool) {
	if !s.hasSignal {
		return wire.Signal{}, false
	}
	return wire.Signal{RSSI: s.current().RSSI}, true
}

func selectSegment(kfs []Keyframe, t time.Duration) (Keyframe, Keyframe, float64) {
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0, k1 := kfs[idx-1], kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	return k0, k1, min(max(float64(t-k0.T)/float64(dt), 0), 1)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngleDeg interpolates along the shorter arc.
func lerpAngleDeg(a0, a1, t float64) float64 {
	a0 = geo.NormalizeDeg(a0)
	a1 = geo.NormalizeDeg(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return geo.NormalizeDeg(a0 + delta*t)
}
