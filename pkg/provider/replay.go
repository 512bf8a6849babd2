package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1F47E/go-proximity/pkg/models"
)

// TrackPoint is one recorded position, Offset after the start of the track
type TrackPoint struct {
	Lat      float64       `yaml:"lat"`
	Lon      float64       `yaml:"lon"`
	Accuracy *float64      `yaml:"accuracy,omitempty"`
	Offset   time.Duration `yaml:"offset"`
}

// Track is a recorded walk or ride that can be played back into a feed
type Track struct {
	Name    string       `yaml:"name"`
	Loop    bool         `yaml:"loop"`
	Samples []TrackPoint `yaml:"samples"`
}

// LoadTrack reads a YAML track file
func LoadTrack(filename string) (*Track, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read track: %w", err)
	}

	var t Track
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to parse track: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the track has points with valid coordinates in time order
func (t *Track) Validate() error {
	if len(t.Samples) == 0 {
		return fmt.Errorf("track %q has no samples", t.Name)
	}
	var prev time.Duration
	for i, p := range t.Samples {
		if !(models.Coordinate{Lat: p.Lat, Lon: p.Lon}).Valid() {
			return fmt.Errorf("track sample #%d has invalid coordinates (%.6f, %.6f)", i+1, p.Lat, p.Lon)
		}
		if p.Offset < prev {
			return fmt.Errorf("track sample #%d goes back in time (%v < %v)", i+1, p.Offset, prev)
		}
		prev = p.Offset
	}
	return nil
}

// Replay emits the track in real time divided by speed, stamping each sample
// with the wall clock. It returns when the track ends (never, if Loop is set),
// when emit fails, or when ctx is done.
func (t *Track) Replay(ctx context.Context, speed float64, emit func(models.PositionSample) error) error {
	if speed <= 0 {
		speed = 1
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		start := time.Now()
		for _, p := range t.Samples {
			wait := time.Duration(float64(p.Offset)/speed) - time.Since(start)
			if wait > 0 {
				timer.Reset(wait)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-timer.C:
				}
			} else if err := ctx.Err(); err != nil {
				return err
			}

			sample := models.NewSample(p.Lat, p.Lon, time.Now())
			sample.Accuracy = p.Accuracy
			if err := emit(sample); err != nil {
				return fmt.Errorf("replay emit: %w", err)
			}
		}
		if !t.Loop {
			return nil
		}
	}
}

// Into adapts a Feed to the Replay emit signature
func Into(f *Feed) func(models.PositionSample) error {
	return func(s models.PositionSample) error {
		f.Publish(s)
		return nil
	}
}
