package flightlog

import (
	"database/sql"
	"fmt"

	"raspifpv/internal/wire"
)

type sampleRow struct {
	Kind      string
	Latitude  sql.NullFloat64
	Longitude sql.NullFloat64
	Altitude  sql.NullFloat64
	Bearing   sql.NullFloat64
	Voltage   sql.NullFloat64
	Current   sql.NullFloat64
	RSSI      sql.NullFloat64
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func toSampleRow(s wire.Sample) sampleRow {
	r := sampleRow{Kind: s.Tag().String()}
	switch v := s.(type) {
	case wire.Position:
		r.Latitude = nullFloat(v.Latitude)
		r.Longitude = nullFloat(v.Longitude)
		r.Altitude = nullFloat(v.Altitude)
		r.Bearing = nullFloat(v.Bearing)
	case wire.Power:
		r.Voltage = nullFloat(v.Voltage)
		r.Current = nullFloat(v.Current)
	case wire.Signal:
		r.RSSI = nullFloat(v.RSSI)
	}
	return r
}

func (r sampleRow) toSample() (wire.Sample, error) {
	switch r.Kind {
	case wire.TagPosition.String():
		return wire.Position{
			Latitude:  r.Latitude.Float64,
			Longitude: r.Longitude.Float64,
			Altitude:  r.Altitude.Float64,
			Bearing:   r.Bearing.Float64,
		}, nil
	case wire.TagPower.String():
		return wire.Power{Voltage: r.Voltage.Float64, Current: r.Current.Float64}, nil
	case wire.TagSignal.String():
		return wire.Signal{RSSI: r.RSSI.Float64}, nil
	default:
		return nil, fmt.Errorf("unknown sample kind %q", r.Kind)
	}
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && *err == nil {
		*err = rErr
	}
}
