package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"raspifpv/internal/flightlog"
)

// FlightStore is the read side of the flight log.
type FlightStore interface {
	Flights(ctx context.Context) ([]flightlog.Flight, error)
	Samples(ctx context.Context, flightID int64) ([]flightlog.Entry, error)
}

type FlightsResponse struct {
	Flights []flightlog.Flight `json:"flights"`
}

type FlightSample struct {
	AtUTC  string `json:"at_utc"`
	Kind   string `json:"kind"`
	Sample any    `json:"sample"`
}

type FlightSamplesResponse struct {
	FlightID int64          `json:"flight_id"`
	Samples  []FlightSample `json:"samples"`
}

func flightsHandler(store FlightStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGET(w, r) {
			return
		}
		flights, err := store.Flights(r.Context())
		if err != nil {
			http.Error(w, "flight log: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if flights == nil {
			flights = []flightlog.Flight{}
		}
		writeJSON(w, FlightsResponse{Flights: flights})
	}
}

// flightSamplesHandler serves /api/flights/{id}/samples.
func flightSamplesHandler(store FlightStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGET(w, r) {
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id < 1 {
			http.Error(w, "flight id must be a positive integer", http.StatusBadRequest)
			return
		}
		entries, err := store.Samples(r.Context(), id)
		if err != nil {
			http.Error(w, "flight log: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if len(entries) == 0 {
			http.Error(w, "flight not found", http.StatusNotFound)
			return
		}
		resp := FlightSamplesResponse{FlightID: id, Samples: make([]FlightSample, 0, len(entries))}
		for _, e := range entries {
			resp.Samples = append(resp.Samples, FlightSample{
				AtUTC:  e.At.UTC().Format(time.RFC3339Nano),
				Kind:   e.Sample.Tag().String(),
				Sample: e.Sample,
			})
		}
		writeJSON(w, resp)
	}
}
