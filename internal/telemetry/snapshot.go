package telemetry

import "raspifpv/internal/wire"

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Snapshot is the latest known telemetry for one subscriber.
//
// Zero means "not yet known" for Voltage, Current, RSSI and Home.Latitude.
type Snapshot struct {
	Location Location `json:"location"`
	Bearing  float64  `json:"bearing"`

	// Home is the first position with a non-zero latitude. It is never
	// overwritten once set.
	Home Location `json:"home_location"`

	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	RSSI    float64 `json:"rssi"`
}

func (s Snapshot) HasHome() bool { return s.Home.Latitude != 0 }

// Apply returns s updated with sample.
func (s Snapshot) Apply(sample wire.Sample) Snapshot {
	switch v := sample.(type) {
	case wire.Position:
		s.Location = Location{Latitude: v.Latitude, Longitude: v.Longitude, Altitude: v.Altitude}
		s.Bearing = v.Bearing
		if !s.HasHome() && v.Latitude != 0 {
			s.Home = s.Location
		}
	case wire.Power:
		s.Voltage = v.Voltage
		s.Current = v.Current
	case wire.Signal:
		s.RSSI = v.RSSI
	}
	return s
}
