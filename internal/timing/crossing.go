package timing

import (
	"time"

	"github.com/banshee-data/apex.report/internal/geo"
	"github.com/banshee-data/apex.report/internal/gps"
	"github.com/banshee-data/apex.report/internal/track"
)

const (
	// crossingHistoryDepth bounds the fix history kept for crossing
	// interpolation.
	crossingHistoryDepth = 5

	// minGateRadiusMeters is the smallest radius around the line center
	// within which side flips count as crossings. The side test is of
	// the infinite line, so without the gate its far-field extension
	// would trigger on the opposite side of the track.
	minGateRadiusMeters = 25.0
)

// Crossing is one accepted pass over the start/finish line, with the
// sub-sample interpolated timestamp of the pass.
type Crossing struct {
	Time time.Time
}

// CrossingDetector watches the GPS stream for start/finish crossings.
// It tracks which side of the line the car was last seen on; a side flip
// inside the gate radius is a crossing. The exact crossing time is
// interpolated between the two samples straddling the line, weighted by
// their distances to the line center, giving roughly 10-20 ms precision
// against the 100 ms sample interval. Crossings within minLapTime of
// the previous accepted crossing are debounced away as GPS noise near
// the line.
type CrossingDetector struct {
	line       track.StartFinishLine
	minLapTime time.Duration
	gateRadius float64

	lastSide     int
	lastCrossing time.Time
	history      []gps.Point
}

func NewCrossingDetector(line track.StartFinishLine, minLapTime time.Duration) *CrossingDetector {
	gate := line.Width
	if gate < minGateRadiusMeters {
		gate = minGateRadiusMeters
	}
	return &CrossingDetector{
		line:       line,
		minLapTime: minLapTime,
		gateRadius: gate,
	}
}

// Check feeds one GPS fix to the detector. The second return is true
// when the fix completes an accepted crossing.
func (d *CrossingDetector) Check(p gps.Point) (Crossing, bool) {
	d.push(p)

	if geo.Haversine(p.Lat, p.Lon, d.line.CenterLat, d.line.CenterLon) > d.gateRadius {
		// Out of the gate: disarm so re-entering on the other side of
		// the line does not read as a crossing.
		d.lastSide = 0
		return Crossing{}, false
	}

	side := geo.SideOfLine(d.line.P1.Lat, d.line.P1.Lon, d.line.P2.Lat, d.line.P2.Lon, p.Lat, p.Lon)
	if side == 0 {
		return Crossing{}, false
	}
	prev := d.lastSide
	d.lastSide = side
	if prev == 0 || side == prev {
		return Crossing{}, false
	}

	when := d.interpolateCrossing()
	if !d.lastCrossing.IsZero() && when.Sub(d.lastCrossing) <= d.minLapTime {
		tracef("debounced crossing at %s, %.1fs since last", when.Format(time.RFC3339Nano),
			when.Sub(d.lastCrossing).Seconds())
		return Crossing{}, false
	}
	d.lastCrossing = when
	return Crossing{Time: when}, true
}

func (d *CrossingDetector) push(p gps.Point) {
	d.history = append(d.history, p)
	if len(d.history) > crossingHistoryDepth {
		d.history = d.history[len(d.history)-crossingHistoryDepth:]
	}
}

// interpolateCrossing estimates the crossing time from the last two
// buffered fixes: t = d1/(d1+d2) places the line between them by their
// distances to the line center.
func (d *CrossingDetector) interpolateCrossing() time.Time {
	n := len(d.history)
	if n < 2 {
		return d.history[n-1].Timestamp
	}
	p1, p2 := d.history[n-2], d.history[n-1]
	d1 := geo.Haversine(p1.Lat, p1.Lon, d.line.CenterLat, d.line.CenterLon)
	d2 := geo.Haversine(p2.Lat, p2.Lon, d.line.CenterLat, d.line.CenterLon)
	if d1+d2 == 0 {
		return p2.Timestamp
	}
	t := d1 / (d1 + d2)
	return p1.Timestamp.Add(time.Duration(t * float64(p2.Timestamp.Sub(p1.Timestamp))))
}
