package sim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"raspifpv/internal/geo"
)

func testFlight() *Flight {
	return NewFlight(FlightConfig{HomeLatDeg: 47.3977, HomeLonDeg: 8.5456, Period: 60 * time.Second})
}

func TestFlight_StartsAtHome(t *testing.T) {
	f := testFlight()
	p := f.PositionAt(0)
	assert.Equal(t, 47.3977, p.Latitude)
	assert.Equal(t, 8.5456, p.Longitude)
	assert.Equal(t, 0.0, p.Altitude)
}

func TestFlight_StaysWithinRadius(t *testing.T) {
	f := testFlight()
	rapid.Check(t, func(t *rapid.T) {
		ms := rapid.Int64Range(0, int64(10*time.Minute/time.Millisecond)).Draw(t, "ms")
		p := f.PositionAt(time.Duration(ms) * time.Millisecond)
		d := geo.Distance(47.3977, 8.5456, p.Latitude, p.Longitude)
		if d > DefaultRadiusM*1.001 {
			t.Fatalf("distance=%v exceeds radius", d)
		}
		if p.Bearing < 0 || p.Bearing >= 360 {
			t.Fatalf("bearing=%v out of range", p.Bearing)
		}
		if p.Altitude < 0 || p.Altitude > DefaultAltM {
			t.Fatalf("altitude=%v", p.Altitude)
		}
	})
}

func TestFlight_QuarterLoopIsEastOfHome(t *testing.T) {
	f := testFlight()
	p := f.PositionAt(15 * time.Second)
	d := geo.Distance(47.3977, 8.5456, p.Latitude, p.Longitude)
	assert.InDelta(t, DefaultRadiusM, d, 0.5)
	assert.InDelta(t, 90, geo.Bearing(47.3977, 8.5456, p.Latitude, p.Longitude), 0.5)
	assert.Equal(t, DefaultAltM, p.Altitude)
}

func TestFlight_InitialHeadingNorthEast(t *testing.T) {
	p := testFlight().PositionAt(0)
	// Velocity at w=0 is (R, R) east/north.
	assert.InDelta(t, 45, p.Bearing, 1e-9)
}

func TestFlight_PowerDischarges(t *testing.T) {
	f := testFlight()
	p0 := f.PowerAt(0)
	p1 := f.PowerAt(time.Hour)
	assert.Equal(t, DefaultVoltage, p0.Voltage)
	assert.InDelta(t, DefaultVoltage*0.75, p1.Voltage, 1e-9)
	assert.Greater(t, p0.Current, 0.0)
}

func TestFlight_SignalWeakensWithDistance(t *testing.T) {
	f := testFlight()
	near := f.SignalAt(0)
	far := f.SignalAt(15 * time.Second)
	assert.Equal(t, DefaultRSSI, near.RSSI)
	assert.InDelta(t, DefaultRSSI-1, far.RSSI, 0.01)
}

func TestFlight_SourcesUseClock(t *testing.T) {
	f := testFlight()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.start = base
	f.now = func() time.Time { return base.Add(15 * time.Second) }

	p, ok := f.Position()
	require.True(t, ok)
	assert.Greater(t, p.Longitude, 8.5456)
	_, ok = f.Power()
	assert.True(t, ok)
	s, ok := f.Signal()
	assert.True(t, ok)
	assert.False(t, math.IsNaN(s.RSSI))
}
