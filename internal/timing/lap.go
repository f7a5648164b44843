// Package timing contains the lap timing engine: start/finish crossing
// detection, lap and sector bookkeeping, per-corner speed analysis,
// delta-vs-reference calculation, and the orchestrating worker that ties
// them to the GPS stream.
package timing

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/apex.report/internal/gps"
	"github.com/banshee-data/apex.report/internal/track"
)

// Sample pairs one GPS fix with the track position computed from it.
type Sample struct {
	GPS      gps.Point      `json:"gps"`
	Position track.Position `json:"position"`
}

// Lap is one circuit of the track, opened by a start/finish crossing
// and closed by the next. Driving before the first crossing (the
// out-lap) is not tracked.
type Lap struct {
	ID        string        `json:"id"`
	Number    int           `json:"number"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Samples   []Sample      `json:"samples,omitempty"`

	MaxSpeedMps float64 `json:"max_speed_mps"`
	AvgSpeedMps float64 `json:"avg_speed_mps"`
	Complete    bool    `json:"complete"`
}

func newLap(number int, start time.Time) *Lap {
	return &Lap{
		ID:        uuid.NewString(),
		Number:    number,
		StartTime: start,
	}
}

func (l *Lap) addSample(s Sample) {
	l.Samples = append(l.Samples, s)
}

// Elapsed returns the time into the lap at ts.
func (l *Lap) Elapsed(ts time.Time) time.Duration {
	return ts.Sub(l.StartTime)
}

// finalize closes the lap at the interpolated crossing time and computes
// the speed aggregates.
func (l *Lap) finalize(end time.Time) {
	l.EndTime = end
	l.Duration = end.Sub(l.StartTime)
	l.Complete = true

	if len(l.Samples) == 0 {
		return
	}
	speeds := make([]float64, len(l.Samples))
	for i, s := range l.Samples {
		speeds[i] = s.GPS.SpeedMps
		if s.GPS.SpeedMps > l.MaxSpeedMps {
			l.MaxSpeedMps = s.GPS.SpeedMps
		}
	}
	l.AvgSpeedMps = stat.Mean(speeds, nil)
}
