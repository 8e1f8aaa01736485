package geo

import (
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/tzneal/coordconv"
)

// MGRS formats a fix as a Military Grid Reference System string. precision
// is the number of digits per axis, 1 (10 km) to 5 (1 m).
func MGRS(latDeg, lonDeg float64, precision int) (string, error) {
	ll := s2.LatLngFromDegrees(latDeg, lonDeg)
	c, err := coordconv.DefaultMGRSConverter.ConvertFromGeodetic(ll, precision)
	if err != nil {
		return "", fmt.Errorf("mgrs %.6f,%.6f: %w", latDeg, lonDeg, err)
	}
	return fmt.Sprint(c), nil
}

// UTM formats a fix as "<zone><N|S> <easting> <northing>" in whole metres.
func UTM(latDeg, lonDeg float64) (string, error) {
	ll := s2.LatLngFromDegrees(latDeg, lonDeg)
	c, err := coordconv.DefaultUTMConverter.ConvertFromGeodetic(ll, 0)
	if err != nil {
		return "", fmt.Errorf("utm %.6f,%.6f: %w", latDeg, lonDeg, err)
	}
	return fmt.Sprintf("%d%c %.0f %.0f", c.Zone, hemisphereRune(c.Hemisphere), c.Easting, c.Northing), nil
}

func hemisphereRune(h coordconv.Hemisphere) rune {
	switch h {
	case coordconv.HemisphereNorth:
		return 'N'
	case coordconv.HemisphereSouth:
		return 'S'
	default:
		return '?'
	}
}
