package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"sensorhub/internal/replay"
	"sensorhub/internal/sensor"
)

type logSummary struct {
	Segments    int
	Readings    int
	MaxDuration time.Duration
	Counts      map[sensor.Type]int
	// TickWraps counts readings whose tick counter went backwards relative
	// to the previous reading of the same sensor.
	TickWraps int
}

func summarizeSampleLog(records []replay.Record) logSummary {
	s := logSummary{Counts: map[sensor.Type]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasReadings := false
	segments := 0
	last := map[sensor.Type]uint32{}

	for _, r := range records {
		if r.Start {
			segments++
			origin = r.At
			clear(last)
			continue
		}
		hasReadings = true

		s.Readings++
		s.Counts[r.Reading.Type]++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		if prev, ok := last[r.Reading.Type]; ok && r.Reading.Raw.Ticks < prev {
			s.TickWraps++
		}
		last[r.Reading.Type] = r.Reading.Raw.Ticks
	}
	if segments == 0 && hasReadings {
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

	s := summarizeSampleLog(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "readings: %d\n", s.Readings)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "tick_wraps: %d\n", s.TickWraps)
	fmt.Fprintf(w, "sensor_counts:\n")
	for _, t := range []sensor.Type{sensor.TypeAccelerometer, sensor.TypeMagnetometer, sensor.TypeGyroscope} {
		if n := s.Counts[t]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", t, n)
		}
	}
	return nil
}
