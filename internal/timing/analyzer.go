package timing

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/apex.report/internal/geo"
	"github.com/banshee-data/apex.report/internal/track"
)

// standardGravity converts accelerations to G.
const standardGravity = 9.81

// CornerSpeedRecord captures how one corner was driven on one lap.
// Speeds are m/s, G values are multiples of standard gravity, yaw rate
// is deg/s and yaw acceleration deg/s².
type CornerSpeedRecord struct {
	CornerID  int    `json:"corner_id"`
	LapID     string `json:"lap_id"`
	LapNumber int    `json:"lap_number"`

	MinSpeedMps      float64 `json:"min_speed_mps"`
	MinSpeedDistance float64 `json:"min_speed_distance"`
	EntrySpeedMps    float64 `json:"entry_speed_mps"`
	ExitSpeedMps     float64 `json:"exit_speed_mps"`
	AvgSpeedMps      float64 `json:"avg_speed_mps"`

	PeakLateralG      float64 `json:"peak_lateral_g"`
	PeakLongitudinalG float64 `json:"peak_longitudinal_g"`
	PeakYawRateDps    float64 `json:"peak_yaw_rate_dps"`
	PeakYawAccelDps2  float64 `json:"peak_yaw_accel_dps2"`
}

// CornerAnalyzer extracts per-corner speed and dynamics records from
// completed laps and tracks the session-best record for each corner.
// Best means highest minimum speed: the record where the driver carried
// the most speed through the corner. Safe for concurrent use: the
// engine folds in laps while the API reads session bests.
type CornerAnalyzer struct {
	mu      sync.Mutex
	corners []track.Corner
	best    map[int]CornerSpeedRecord
}

func NewCornerAnalyzer(corners []track.Corner) *CornerAnalyzer {
	return &CornerAnalyzer{
		corners: corners,
		best:    make(map[int]CornerSpeedRecord),
	}
}

// AnalyzeLap produces one record per corner the lap has samples for, and
// folds each into the session-best tracking. Corners the lap never
// reached (no samples in range) are skipped.
func (a *CornerAnalyzer) AnalyzeLap(lap *Lap) []CornerSpeedRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	records := make([]CornerSpeedRecord, 0, len(a.corners))
	for _, c := range a.corners {
		rec, ok := a.analyzeCorner(lap, c)
		if !ok {
			continue
		}
		records = append(records, rec)
		if prev, exists := a.best[c.ID]; !exists || rec.MinSpeedMps > prev.MinSpeedMps {
			a.best[c.ID] = rec
		}
	}
	return records
}

// Best returns the session-best record for a corner.
func (a *CornerAnalyzer) Best(cornerID int) (CornerSpeedRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.best[cornerID]
	return rec, ok
}

// Bests returns the session-best record for every corner that has one,
// ordered by corner ID.
func (a *CornerAnalyzer) Bests() []CornerSpeedRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]int, 0, len(a.best))
	for id := range a.best {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]CornerSpeedRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.best[id])
	}
	return out
}

// CompareToBest returns the minimum-speed difference (m/s) between the
// given record and the session best for its corner. Positive means the
// record is faster than the stored best.
func (a *CornerAnalyzer) CompareToBest(rec CornerSpeedRecord) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	best, ok := a.best[rec.CornerID]
	if !ok {
		return 0
	}
	return rec.MinSpeedMps - best.MinSpeedMps
}

func (a *CornerAnalyzer) analyzeCorner(lap *Lap, c track.Corner) (CornerSpeedRecord, bool) {
	var samples []Sample
	for _, s := range lap.Samples {
		if s.Position.Distance >= c.EntryDistance && s.Position.Distance <= c.ExitDistance {
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		return CornerSpeedRecord{}, false
	}

	rec := CornerSpeedRecord{
		CornerID:      c.ID,
		LapID:         lap.ID,
		LapNumber:     lap.Number,
		EntrySpeedMps: samples[0].GPS.SpeedMps,
		ExitSpeedMps:  samples[len(samples)-1].GPS.SpeedMps,
		MinSpeedMps:   math.Inf(1),
	}

	speeds := make([]float64, len(samples))
	var maxSpeed float64
	for i, s := range samples {
		v := s.GPS.SpeedMps
		speeds[i] = v
		if v < rec.MinSpeedMps {
			rec.MinSpeedMps = v
			rec.MinSpeedDistance = s.Position.Distance
		}
		if v > maxSpeed {
			maxSpeed = v
		}
	}
	rec.AvgSpeedMps = stat.Mean(speeds, nil)

	// Lateral G from the corner's tightest radius as the turn-radius
	// proxy, at the highest speed carried through the corner.
	if c.MinRadius > 0 && !math.IsInf(c.MinRadius, 1) {
		rec.PeakLateralG = maxSpeed * maxSpeed / (c.MinRadius * standardGravity)
	}

	var prevYawRate float64
	var haveYawRate bool
	for i := 1; i < len(samples); i++ {
		p1, p2 := samples[i-1].GPS, samples[i].GPS
		dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}

		longG := (p2.SpeedMps - p1.SpeedMps) / dt / standardGravity
		if math.Abs(longG) > math.Abs(rec.PeakLongitudinalG) {
			rec.PeakLongitudinalG = longG
		}

		yawRate := geo.NormalizeHeadingDelta(p2.HeadingDeg-p1.HeadingDeg) / dt
		if math.Abs(yawRate) > math.Abs(rec.PeakYawRateDps) {
			rec.PeakYawRateDps = yawRate
		}
		if haveYawRate {
			yawAccel := (yawRate - prevYawRate) / dt
			if math.Abs(yawAccel) > math.Abs(rec.PeakYawAccelDps2) {
				rec.PeakYawAccelDps2 = yawAccel
			}
		}
		prevYawRate = yawRate
		haveYawRate = true
	}

	return rec, true
}
