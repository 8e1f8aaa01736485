// Package geo provides great-circle helpers and a small 4x4 matrix library
// used to project the compass arrow.
package geo

import "math"

// EarthRadiusM is the mean Earth radius.
const EarthRadiusM = 6371e3

func deg2rad(d float64) float64 { return d * math.Pi / 180.0 }
func rad2deg(r float64) float64 { return r * 180.0 / math.Pi }

// Distance returns the haversine great-circle distance in metres.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := deg2rad(lat1)
	phi2 := deg2rad(lat2)
	dPhi := deg2rad(lat2 - lat1)
	dLambda := deg2rad(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push a a hair past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// Bearing returns the initial forward azimuth from point 1 to point 2 in
// degrees clockwise from true north, in [0,360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := deg2rad(lat1)
	phi2 := deg2rad(lat2)
	dLambda := deg2rad(lon2 - lon1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return NormalizeDeg(rad2deg(math.Atan2(y, x)))
}

// NormalizeDeg maps any finite angle into [0,360).
func NormalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	// -1e-15 + 360 rounds to 360.
	if d >= 360 {
		d = 0
	}
	return d
}
