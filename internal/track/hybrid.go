package track

import "math"

// HybridDetector combines ASC detection (best recall, including gentle
// sweeps) with a Kasa re-fit of every detected corner for an accurate
// fitted radius, and merges closely-spaced opposite-direction corner
// pairs into chicanes. This is the default strategy.
type HybridDetector struct {
	cfg DetectorConfig
}

func (d *HybridDetector) Name() string { return "hybrid" }

func (d *HybridDetector) Detect(t *Track) []Corner {
	if len(t.Centerline) < MinCenterlinePoints {
		return []Corner{}
	}

	asc := ASCDetector{cfg: d.cfg}
	corners := asc.Detect(t)
	if len(corners) == 0 {
		return corners
	}

	pts := projectCenterline(t.Centerline)

	// Re-fit each ASC corner's point range for reporting. MinRadius,
	// the tightest curvature point, is kept from ASC so classification
	// stays consistent between the two strategies.
	for i := range corners {
		c := &corners[i]
		fit := kasaFit(pts[c.EntryIndex : c.ExitIndex+1])
		c.FittedRadius = fit.Radius
		c.FittingError = fit.RMSError
	}

	corners = d.mergeChicanes(t, pts, corners)
	return numberCorners(corners)
}

// mergeChicanes folds consecutive opposite-direction corners into one
// chicane when the gap between them is at most MaxChicaneGap and the
// combined span stays within MaxChicaneLength. The merged corner keeps
// the tighter corner's apex, sums both swept angles, and re-fits a
// combined circle for reporting.
func (d *HybridDetector) mergeChicanes(t *Track, pts []planarPoint, corners []Corner) []Corner {
	if len(corners) < 2 {
		return corners
	}

	out := []Corner{corners[0]}
	for _, c := range corners[1:] {
		last := &out[len(out)-1]
		gap := c.EntryDistance - last.ExitDistance
		span := c.ExitDistance - last.EntryDistance
		if c.Direction == last.Direction || gap > d.cfg.MaxChicaneGap || span > d.cfg.MaxChicaneLength {
			out = append(out, c)
			continue
		}

		merged := *last
		merged.IsChicane = true
		merged.ExitIndex = c.ExitIndex
		merged.ExitDistance = c.ExitDistance
		merged.TotalAngle = last.TotalAngle + c.TotalAngle

		// The tighter of the two corners provides the apex and the
		// classification radius; direction follows the apex corner.
		if c.MinRadius < last.MinRadius {
			merged.ApexIndex = c.ApexIndex
			merged.ApexDistance = c.ApexDistance
			merged.MinRadius = c.MinRadius
			merged.Direction = c.Direction
		}
		if c.AvgRadius > 0 && last.AvgRadius > 0 {
			merged.AvgRadius = (last.AvgRadius + c.AvgRadius) / 2
		}

		fit := kasaFit(pts[merged.EntryIndex : merged.ExitIndex+1])
		merged.FittedRadius = fit.Radius
		merged.FittingError = fit.RMSError
		if math.IsInf(fit.Radius, 1) {
			merged.FittedRadius = 0
		}

		*last = merged
	}
	return out
}
