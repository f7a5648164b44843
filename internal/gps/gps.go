// Package gps provides the GPS fix model and the acquisition sources that
// feed the lap timing engine: a serial NMEA source for the onboard
// receiver and a fixture playback source for bench work.
package gps

import "time"

// Point is a single GPS fix as consumed by the timing engine. Speeds are
// metres per second, headings degrees [0, 360), altitude metres.
type Point struct {
	Timestamp  time.Time `json:"timestamp"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Altitude   float64   `json:"altitude"`
	SpeedMps   float64   `json:"speed_mps"`
	HeadingDeg float64   `json:"heading_deg"`
	// Accuracy is the estimated horizontal error in metres, derived from
	// HDOP when available. Zero means unknown.
	Accuracy float64 `json:"accuracy"`
	HasFix   bool    `json:"has_fix"`
}

// Elapsed returns the time since an earlier fix in seconds.
func (p Point) Elapsed(since Point) float64 {
	return p.Timestamp.Sub(since.Timestamp).Seconds()
}
