// Package track holds the track model, the position tracker, and the
// corner detection strategies. Everything here is computed once per
// track load and read-only afterwards, so it can be shared freely
// between the timing engine and the API layer.
package track

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/apex.report/internal/geo"
)

// MinCenterlinePoints is the minimum number of centerline points for
// corner detection and position tracking to operate. Shorter tracks are
// treated as degenerate: detectors return no corners, tracking is
// unavailable.
const MinCenterlinePoints = 5

// Point is a surveyed track point with its cumulative distance from the
// start/finish line along its sequence.
type Point struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Distance float64 `json:"distance"` // metres, non-decreasing
}

// StartFinishLine is the reference line whose crossing defines lap
// boundaries. The line runs from P1 to P2 across the track.
type StartFinishLine struct {
	P1         Point   `json:"p1"`
	P2         Point   `json:"p2"`
	CenterLat  float64 `json:"center_lat"`
	CenterLon  float64 `json:"center_lon"`
	HeadingDeg float64 `json:"heading_deg"`
	Width      float64 `json:"width"` // metres
}

// Track is a loaded circuit: boundaries, centerline, and start/finish
// line. A Track is immutable once loaded.
type Track struct {
	Name          string          `json:"name"`
	OuterBoundary []Point         `json:"outer_boundary"`
	InnerBoundary []Point         `json:"inner_boundary"`
	Centerline    []Point         `json:"centerline"`
	StartFinish   StartFinishLine `json:"start_finish"`
	Length        float64         `json:"length"` // metres
}

// Direction is the turn direction of a corner.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Corner is one detected corner of a track, expressed both as centerline
// indices and as distances along the track. Immutable after detection.
type Corner struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	EntryIndex int `json:"entry_index"`
	ApexIndex  int `json:"apex_index"`
	ExitIndex  int `json:"exit_index"`

	EntryDistance float64 `json:"entry_distance"`
	ApexDistance  float64 `json:"apex_distance"`
	ExitDistance  float64 `json:"exit_distance"`

	MinRadius    float64 `json:"min_radius"`    // tightest 3-point radius, metres
	AvgRadius    float64 `json:"avg_radius"`    // mean radius over the corner
	FittedRadius float64 `json:"fitted_radius"` // Kasa fit radius, 0 when not fitted
	FittingError float64 `json:"fitting_error"` // Kasa RMS error, metres

	TotalAngle float64   `json:"total_angle"` // degrees swept
	Direction  Direction `json:"direction"`
	IsChicane  bool      `json:"is_chicane"`
}

// Span returns the corner length along the track in metres.
func (c Corner) Span() float64 {
	return c.ExitDistance - c.EntryDistance
}

// Validate checks the track invariants: a non-empty centerline with
// non-decreasing cumulative distances, and a length matching the last
// centerline point.
func (t *Track) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("track has no name")
	}
	if len(t.Centerline) == 0 {
		return fmt.Errorf("track %s has an empty centerline", t.Name)
	}
	for i := 1; i < len(t.Centerline); i++ {
		if t.Centerline[i].Distance < t.Centerline[i-1].Distance {
			return fmt.Errorf("track %s: centerline distance decreases at index %d (%f -> %f)",
				t.Name, i, t.Centerline[i-1].Distance, t.Centerline[i].Distance)
		}
	}
	last := t.Centerline[len(t.Centerline)-1].Distance
	if t.Length != last {
		return fmt.Errorf("track %s: length %f does not match final centerline distance %f",
			t.Name, t.Length, last)
	}
	return nil
}

// ComputeDistances fills in the cumulative haversine distance of every
// point sequence and the track length, and derives the start/finish
// centre, width, and heading from its endpoints. Loaders call this after
// populating raw lat/lon coordinates.
func (t *Track) ComputeDistances() {
	for _, seq := range [][]Point{t.OuterBoundary, t.InnerBoundary, t.Centerline} {
		accumulate(seq)
	}
	if n := len(t.Centerline); n > 0 {
		t.Length = t.Centerline[n-1].Distance
	}

	sf := &t.StartFinish
	sf.CenterLat = (sf.P1.Lat + sf.P2.Lat) / 2
	sf.CenterLon = (sf.P1.Lon + sf.P2.Lon) / 2
	sf.Width = geo.Haversine(sf.P1.Lat, sf.P1.Lon, sf.P2.Lat, sf.P2.Lon)
	sf.HeadingDeg = geo.Bearing(sf.P1.Lat, sf.P1.Lon, sf.P2.Lat, sf.P2.Lon)
}

func accumulate(points []Point) {
	for i := range points {
		if i == 0 {
			points[i].Distance = 0
			continue
		}
		prev := points[i-1]
		points[i].Distance = prev.Distance +
			geo.Haversine(prev.Lat, prev.Lon, points[i].Lat, points[i].Lon)
	}
}

// Load reads a track definition from a JSON file. Distances are
// recomputed from the coordinates rather than trusted from the file so a
// hand-edited track stays consistent.
func Load(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track file: %w", err)
	}
	var t Track
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse track file %s: %w", path, err)
	}
	t.ComputeDistances()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
