package track

import "math"

// fitNoiseFloor is the circle-fit RMS error (metres) below which a
// window is treated as an exact arc for the growth-ratio test.
const fitNoiseFloor = 0.01

// CurveFinderDetector segments the centerline with a sliding-window
// Kasa circle fit: the window grows while the fit error stays small and
// stable, so each segment covers one constant-radius arc. It gives the
// most accurate radii of the four strategies but can miss very gentle
// sweeps whose arc never tightens into a clean circle.
type CurveFinderDetector struct {
	cfg DetectorConfig
}

func (d *CurveFinderDetector) Name() string { return "curvefinder" }

func (d *CurveFinderDetector) Detect(t *Track) []Corner {
	if len(t.Centerline) < MinCenterlinePoints {
		return []Corner{}
	}

	pts := projectCenterline(t.Centerline)
	curv := curvatureProfile(pts)
	lengths := arcLengths(pts)

	var corners []Corner
	i := 0
	for i+d.cfg.FitMinPoints <= len(pts) {
		// A window seeded on a straight sample would span the straight
		// and blur the corner boundary; start each window at a curved
		// point so segments open at corner entry.
		if math.Abs(curv[i]) <= d.cfg.CurvaturePeakThreshold {
			i++
			continue
		}
		end, fit := d.growWindow(pts, i)
		if corner, ok := d.classify(t, curv, lengths, i, end, fit); ok {
			corners = append(corners, corner)
		}
		// The window end starts the next segment so arcs share their
		// boundary point.
		if end == i {
			break
		}
		i = end
	}

	if d.cfg.MergeCorners {
		corners = d.mergeSameDirection(t, curv, lengths, corners)
	}
	return numberCorners(corners)
}

// growWindow fits pts[start:start+FitMinPoints] and extends the window
// one point at a time up to FitMaxPoints, stopping when the fit RMS
// error exceeds FitErrorThreshold or grows by more than
// FitErrorIncreaseRatio versus the previous extension step. It returns
// the last index of the accepted window and its fit.
func (d *CurveFinderDetector) growWindow(pts []planarPoint, start int) (int, circleFit) {
	end := start + d.cfg.FitMinPoints - 1
	if end >= len(pts) {
		end = len(pts) - 1
	}
	fit := kasaFit(pts[start : end+1])
	prevErr := fit.RMSError

	for end+1 < len(pts) && end-start+1 < d.cfg.FitMaxPoints {
		candidate := kasaFit(pts[start : end+2])
		// The ratio test compares against at least the measurement
		// noise floor; a near-exact arc fit has an RMS so small that
		// any extension past the arc must trip the brake.
		floor := prevErr
		if floor < fitNoiseFloor {
			floor = fitNoiseFloor
		}
		if candidate.RMSError > d.cfg.FitErrorThreshold ||
			candidate.RMSError > floor*d.cfg.FitErrorIncreaseRatio {
			break
		}
		end++
		fit = candidate
		prevErr = candidate.RMSError
	}
	return end, fit
}

// classify accepts a window as a corner iff its fitted radius is within
// MinCornerRadius and the swept angle (arc length over radius) reaches
// MinCornerAngle.
func (d *CurveFinderDetector) classify(t *Track, curv, lengths []float64, start, end int, fit circleFit) (Corner, bool) {
	if end <= start || math.IsInf(fit.Radius, 1) || fit.Radius > d.cfg.MinCornerRadius {
		return Corner{}, false
	}

	arc := t.Centerline[end].Distance - t.Centerline[start].Distance
	totalAngle := arc / fit.Radius * 180 / math.Pi
	if totalAngle < d.cfg.MinCornerAngle {
		return Corner{}, false
	}

	corner := buildCorner(t, curv, lengths, start, end)
	corner.FittedRadius = fit.Radius
	corner.FittingError = fit.RMSError
	corner.TotalAngle = totalAngle
	corner.Direction = fitDirection(curv, start, end)
	return corner, true
}

// fitDirection averages the three-point signed curvature across the
// segment; the sign decides the turn direction.
func fitDirection(curv []float64, start, end int) Direction {
	if meanSignedCurvature(curv, start, end) >= 0 {
		return DirectionLeft
	}
	return DirectionRight
}

// mergeSameDirection is the same merge pass as the ASC detector,
// bounded by MaxCornerSpan, with the merged range re-fitted so the
// reported radius covers the whole arc.
func (d *CurveFinderDetector) mergeSameDirection(t *Track, curv, lengths []float64, corners []Corner) []Corner {
	if len(corners) < 2 {
		return corners
	}
	pts := projectCenterline(t.Centerline)

	out := []Corner{corners[0]}
	for _, c := range corners[1:] {
		last := &out[len(out)-1]
		gap := c.EntryDistance - last.ExitDistance
		mergedSpan := c.ExitDistance - last.EntryDistance
		if c.Direction != last.Direction || gap > d.cfg.MaxStraightGap || mergedSpan > d.cfg.MaxCornerSpan {
			out = append(out, c)
			continue
		}

		merged := buildCorner(t, curv, lengths, last.EntryIndex, c.ExitIndex)
		fit := kasaFit(pts[last.EntryIndex : c.ExitIndex+1])
		merged.FittedRadius = fit.Radius
		merged.FittingError = fit.RMSError
		if !math.IsInf(fit.Radius, 1) && fit.Radius > 0 {
			merged.TotalAngle = mergedSpan / fit.Radius * 180 / math.Pi
		}
		merged.Direction = last.Direction
		*last = merged
	}
	return out
}
