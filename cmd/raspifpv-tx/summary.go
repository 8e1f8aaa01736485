package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"raspifpv/internal/geo"
	"raspifpv/internal/replay"
	"raspifpv/internal/wire"
)

type logSummary struct {
	Segments    int
	Samples     int
	MaxDuration time.Duration
	KindCounts  map[wire.Tag]int

	// From position samples. Range is measured from the first non-zero fix
	// of each segment, the same point a receiver latches as home.
	PathM     float64
	MaxRangeM float64
	MaxAltM   float64
}

func summarizeLog(records []replay.Record) logSummary {
	s := logSummary{KindCounts: map[wire.Tag]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasSamples := false
	segments := 0
	var home, prev *wire.Position

	for _, r := range records {
		if r.Datagram == nil {
			segments++
			origin = r.At
			home, prev = nil, nil
			continue
		}
		hasSamples = true

		s.Samples++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		sample, err := wire.Decode(r.Datagram)
		if err != nil {
			continue
		}
		s.KindCounts[sample.Tag()]++

		pos, ok := sample.(wire.Position)
		if !ok || pos.Latitude == 0 {
			continue
		}
		if home == nil {
			h := pos
			home = &h
		}
		if prev != nil {
			s.PathM += geo.Distance(prev.Latitude, prev.Longitude, pos.Latitude, pos.Longitude)
		}
		p := pos
		prev = &p
		s.MaxRangeM = max(s.MaxRangeM, geo.Distance(home.Latitude, home.Longitude, pos.Latitude, pos.Longitude))
		s.MaxAltM = max(s.MaxAltM, pos.Altitude)
	}
	if segments == 0 && hasSamples {
		segments = 1
	}
	s.Segments = segments
	return s
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}

	s := summarizeLog(recs)
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "samples: %s\n", humanize.Comma(int64(s.Samples)))
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "kind_counts:\n")
	for _, tag := range []wire.Tag{wire.TagPosition, wire.TagPower, wire.TagSignal} {
		fmt.Fprintf(w, "  %s: %s\n", tag, humanize.Comma(int64(s.KindCounts[tag])))
	}
	fmt.Fprintf(w, "path_length: %s\n", humanize.SIWithDigits(s.PathM, 2, "m"))
	fmt.Fprintf(w, "max_range: %s\n", humanize.SIWithDigits(s.MaxRangeM, 2, "m"))
	fmt.Fprintf(w, "max_alt: %.1f m\n", s.MaxAltM)
	return nil
}
