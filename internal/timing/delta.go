package timing

import (
	"math"
	"time"

	"github.com/banshee-data/apex.report/internal/track"
)

// Delta compares the current lap against the reference lap at the same
// track distance. TimeDelta is negative when ahead of the reference.
type Delta struct {
	TimeDelta        time.Duration `json:"time_delta"`
	DistanceDelta    float64       `json:"distance_delta"` // metres equivalent of TimeDelta
	ReferenceLapID   string        `json:"reference_lap_id"`
	PredictedLapTime time.Duration `json:"predicted_lap_time"`
}

// DeltaCalculator computes live deltas against a reference lap. The
// reference is compiled once into a 1-metre-resolution table of elapsed
// time by distance; per-tick lookups are a single index.
type DeltaCalculator struct {
	refID       string
	refDuration time.Duration
	avgRefSpeed float64 // m/s over the reference lap
	table       []float64
}

func NewDeltaCalculator() *DeltaCalculator {
	return &DeltaCalculator{}
}

// HasReference reports whether a reference lap has been set.
func (c *DeltaCalculator) HasReference() bool { return c.table != nil }

// ReferenceLapID returns the id of the current reference lap, or "".
func (c *DeltaCalculator) ReferenceLapID() string { return c.refID }

// SetReferenceLap compiles the lap into the lookup table. Laps without
// position samples are ignored and the previous reference kept.
func (c *DeltaCalculator) SetReferenceLap(lap *Lap) {
	if lap == nil || len(lap.Samples) == 0 || lap.Duration <= 0 {
		return
	}

	maxDist := 0.0
	for _, s := range lap.Samples {
		if s.Position.Distance > maxDist {
			maxDist = s.Position.Distance
		}
	}
	table := make([]float64, int(maxDist)+1)

	// Walk the samples and the table together, linearly interpolating
	// elapsed time between consecutive samples. Distances before the
	// first sample clamp to zero elapsed, after the last to the lap
	// duration.
	samples := lap.Samples
	si := 0
	for m := range table {
		dist := float64(m)
		for si+1 < len(samples) && samples[si+1].Position.Distance <= dist {
			si++
		}
		switch {
		case dist <= samples[0].Position.Distance:
			table[m] = 0
		case si+1 >= len(samples):
			table[m] = lap.Duration.Seconds()
		default:
			s1, s2 := samples[si], samples[si+1]
			d1, d2 := s1.Position.Distance, s2.Position.Distance
			t1 := s1.GPS.Timestamp.Sub(lap.StartTime).Seconds()
			t2 := s2.GPS.Timestamp.Sub(lap.StartTime).Seconds()
			if d2 <= d1 {
				table[m] = t1
				continue
			}
			frac := (dist - d1) / (d2 - d1)
			table[m] = t1 + frac*(t2-t1)
		}
	}

	c.refID = lap.ID
	c.refDuration = lap.Duration
	c.avgRefSpeed = lap.AvgSpeedMps
	if c.avgRefSpeed <= 0 {
		c.avgRefSpeed = maxDist / lap.Duration.Seconds()
	}
	c.table = table
	diagf("reference lap set: lap %d (%s), %.3fs over %.0fm",
		lap.Number, lap.ID, lap.Duration.Seconds(), maxDist)
}

// Calculate returns the delta at the given position and elapsed lap
// time. The second return is false when no reference is set or the
// position falls outside the reference table.
func (c *DeltaCalculator) Calculate(pos track.Position, elapsed time.Duration) (Delta, bool) {
	if c.table == nil {
		return Delta{}, false
	}
	idx := int(math.Floor(pos.Distance))
	if idx < 0 || idx >= len(c.table) {
		return Delta{}, false
	}

	timeDelta := elapsed.Seconds() - c.table[idx]
	d := Delta{
		TimeDelta:      time.Duration(timeDelta * float64(time.Second)),
		DistanceDelta:  timeDelta * c.avgRefSpeed,
		ReferenceLapID: c.refID,
	}
	d.PredictedLapTime = c.predict(pos.ProgressFraction, elapsed, timeDelta)
	return d, true
}

// predict blends two lap-time estimates with a sigmoid weight on lap
// progress: extrapolated pace (trusted late in the lap) and reference
// duration plus the current delta (trusted early, when extrapolation is
// unstable).
func (c *DeltaCalculator) predict(progress float64, elapsed time.Duration, timeDelta float64) time.Duration {
	deltaEstimate := c.refDuration.Seconds() + timeDelta
	if progress <= 0.01 {
		return time.Duration(deltaEstimate * float64(time.Second))
	}
	paceEstimate := elapsed.Seconds() / progress
	w := 1 / (1 + math.Exp(-10*(progress-0.5)))
	predicted := w*paceEstimate + (1-w)*deltaEstimate
	return time.Duration(predicted * float64(time.Second))
}
