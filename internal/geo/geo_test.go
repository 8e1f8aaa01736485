package geo

import (
	"math"
	"testing"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func lat() *rapid.Generator[float64] { return rapid.Float64Range(-90, 90) }
func lon() *rapid.Generator[float64] { return rapid.Float64Range(-180, 180) }

func TestDistance_KnownValues(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tol              float64
	}{
		{"Same", 37, -122, 37, -122, 0, 1e-9},
		{"MilliDegreeNorth", 37.0, -122.0, 37.001, -122.0, 111.19, 0.01},
		{"OneDegreeEquator", 0, 0, 0, 1, 111194.9, 0.1},
		{"Antipodes", 0, 0, 0, 180, math.Pi * EarthRadiusM, 1e-3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Distance(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			assert.InDelta(t, tc.want, got, tc.tol)
		})
	}
}

func TestDistance_MatchesS2(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lat1, lon1 := lat().Draw(t, "lat1"), lon().Draw(t, "lon1")
		lat2, lon2 := lat().Draw(t, "lat2"), lon().Draw(t, "lon2")

		a := s2.LatLngFromDegrees(lat1, lon1)
		b := s2.LatLngFromDegrees(lat2, lon2)
		want := a.Distance(b).Radians() * EarthRadiusM

		assert.InDelta(t, want, Distance(lat1, lon1, lat2, lon2), 0.01)
	})
}

func TestDistance_Symmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lat1, lon1 := lat().Draw(t, "lat1"), lon().Draw(t, "lon1")
		lat2, lon2 := lat().Draw(t, "lat2"), lon().Draw(t, "lon2")

		assert.InDelta(t, Distance(lat1, lon1, lat2, lon2), Distance(lat2, lon2, lat1, lon1), 1e-6)
		assert.Equal(t, 0.0, Distance(lat1, lon1, lat1, lon1))
	})
}

func TestBearing_Cardinal(t *testing.T) {
	cases := []struct {
		name       string
		lat2, lon2 float64
		want       float64
	}{
		{"North", 1, 0, 0},
		{"East", 0, 1, 90},
		{"South", -1, 0, 180},
		{"West", 0, -1, 270},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Bearing(0, 0, tc.lat2, tc.lon2), 1e-9)
		})
	}
}

func TestBearing_InRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lat1, lon1 := lat().Draw(t, "lat1"), lon().Draw(t, "lon1")
		lat2, lon2 := lat().Draw(t, "lat2"), lon().Draw(t, "lon2")

		b := Bearing(lat1, lon1, lat2, lon2)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 360.0)

		same := Bearing(lat1, lon1, lat1, lon1)
		assert.GreaterOrEqual(t, same, 0.0)
		assert.Less(t, same, 360.0)
	})
}

func TestNormalizeDeg(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		360:  0,
		-90:  270,
		725:  5,
		-720: 0,
	}
	for in, want := range cases {
		if got := NormalizeDeg(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("NormalizeDeg(%v)=%v want %v", in, got, want)
		}
	}
}
