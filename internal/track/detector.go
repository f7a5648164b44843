package track

import (
	"fmt"
	"math"

	"github.com/banshee-data/apex.report/internal/config"
)

// CornerDetector segments a track's centerline into corners. Detectors
// are pure functions of the Track: the same input always yields the same
// corner list, and degenerate tracks (fewer than MinCenterlinePoints
// centerline points) yield an empty list, never an error.
type CornerDetector interface {
	// Detect returns the corners of the track ordered by distance.
	Detect(t *Track) []Corner
	// Name identifies the strategy for logs and snapshots.
	Name() string
}

// DetectorConfig holds the tuning parameters shared by the corner
// detection strategies. Radii and distances are metres, angles degrees.
type DetectorConfig struct {
	MinCornerRadius float64 // tighter than this counts as a corner
	MinCornerAngle  float64 // minimum swept angle for a corner
	MergeCorners    bool    // merge consecutive same-direction corners

	// ASC params
	CurvaturePeakThreshold float64 // |curvature| for a peak cut (1/m)
	MinCutDistance         float64 // cuts closer than this collapse
	StraightFillDistance   float64 // target spacing of straight cuts
	MaxStraightGap         float64 // longest straight absorbed by a merge

	// Circle fit params
	FitMinPoints          int     // initial sliding window size
	FitMaxPoints          int     // maximum sliding window size
	FitErrorThreshold     float64 // max acceptable fit RMS error
	FitErrorIncreaseRatio float64 // max RMS growth per window extension
	MaxCornerSpan         float64 // merged corner span cap

	// Chicane params (hybrid)
	MaxChicaneGap    float64 // max gap between opposite-direction corners
	MaxChicaneLength float64 // max total span of a merged chicane
}

// DefaultDetectorConfig returns detector configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found, intended for tests and binaries
// that have already validated config availability.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfigFromTuning(config.MustLoadDefaultConfig())
}

// DetectorConfigFromTuning builds a DetectorConfig from a loaded
// TuningConfig. Use this in production code where the TuningConfig is
// already loaded.
func DetectorConfigFromTuning(cfg *config.TuningConfig) DetectorConfig {
	return DetectorConfig{
		MinCornerRadius:        cfg.GetMinCornerRadius(),
		MinCornerAngle:         cfg.GetMinCornerAngle(),
		MergeCorners:           cfg.GetMergeCorners(),
		CurvaturePeakThreshold: cfg.GetCurvaturePeakThreshold(),
		MinCutDistance:         cfg.GetMinCutDistance(),
		StraightFillDistance:   cfg.GetStraightFillDistance(),
		MaxStraightGap:         cfg.GetMaxStraightGap(),
		FitMinPoints:           cfg.GetFitMinPoints(),
		FitMaxPoints:           cfg.GetFitMaxPoints(),
		FitErrorThreshold:      cfg.GetFitErrorThreshold(),
		FitErrorIncreaseRatio:  cfg.GetFitErrorIncreaseRatio(),
		MaxCornerSpan:          cfg.GetMaxCornerSpan(),
		MaxChicaneGap:          cfg.GetMaxChicaneGap(),
		MaxChicaneLength:       cfg.GetMaxChicaneLength(),
	}
}

// NewDetector returns the corner detection strategy selected by name:
// "threshold", "asc", "curvefinder", or "hybrid".
func NewDetector(strategy string, cfg DetectorConfig) (CornerDetector, error) {
	switch strategy {
	case "threshold":
		return &ThresholdDetector{cfg: cfg}, nil
	case "asc":
		return &ASCDetector{cfg: cfg}, nil
	case "curvefinder":
		return &CurveFinderDetector{cfg: cfg}, nil
	case "hybrid":
		return &HybridDetector{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown corner detector strategy %q", strategy)
	}
}

// buildCorner assembles a Corner over the centerline index range
// [entry, exit]: apex at peak |curvature|, min radius from the apex,
// average radius over curved points, swept angle from the curvature
// integral, direction from the mean signed curvature.
func buildCorner(t *Track, curv []float64, lengths []float64, entry, exit int) Corner {
	apex := peakCurvatureIndex(curv, entry, exit)

	minRadius := math.Inf(1)
	if k := math.Abs(curv[apex]); k > 0 {
		minRadius = 1 / k
	}

	var radiusSum float64
	var radiusCount int
	for i := entry; i <= exit; i++ {
		if k := math.Abs(curv[i]); k > 0 {
			radiusSum += 1 / k
			radiusCount++
		}
	}
	avgRadius := 0.0
	if radiusCount > 0 {
		avgRadius = radiusSum / float64(radiusCount)
	}

	dir := DirectionRight
	if meanSignedCurvature(curv, entry, exit) > 0 {
		dir = DirectionLeft
	}

	return Corner{
		EntryIndex:    entry,
		ApexIndex:     apex,
		ExitIndex:     exit,
		EntryDistance: t.Centerline[entry].Distance,
		ApexDistance:  t.Centerline[apex].Distance,
		ExitDistance:  t.Centerline[exit].Distance,
		MinRadius:     minRadius,
		AvgRadius:     avgRadius,
		TotalAngle:    sweepDegrees(curv, lengths, entry, exit),
		Direction:     dir,
	}
}

// numberCorners assigns sequential IDs and display names ordered by
// entry distance.
func numberCorners(corners []Corner) []Corner {
	for i := range corners {
		corners[i].ID = i + 1
		if corners[i].IsChicane {
			corners[i].Name = fmt.Sprintf("Chicane %d", i+1)
		} else {
			corners[i].Name = fmt.Sprintf("Turn %d", i+1)
		}
	}
	return corners
}
