package track

import "math"

// Threshold detector internals, not user-tunable.
const (
	// spikeSearchWindow is how far (metres) to look for a supporting
	// neighbour before discarding an isolated curvature spike.
	spikeSearchWindow = 50.0
	// spikeSupportFraction is the fraction of the detection threshold a
	// supporting neighbour must reach.
	spikeSupportFraction = 0.5
	// splitSpan is the region span (metres) above which a region is
	// recursively split at interior curvature minima.
	splitSpan = 80.0
	// splitDipFraction: a split candidate must dip below this fraction
	// of the region's peak curvature.
	splitDipFraction = 0.6
	// splitEdgeClearance keeps split points away from region edges.
	splitEdgeClearance = 25.0
	// mergeGap is the maximum gap (metres) between regions considered
	// for merging.
	mergeGap = 20.0
	// significantAngle marks a region as a real corner in its own
	// right; two significant opposite-direction neighbours stay apart
	// as a chicane.
	significantAngle = 35.0
	// mergedSpanCap bounds the span of a merged region.
	mergedSpanCap = 80.0
)

// ThresholdDetector finds corners as contiguous centerline regions
// whose three-point curvature exceeds 1/MinCornerRadius, with spike
// rejection, long-region splitting, and proximity merging.
type ThresholdDetector struct {
	cfg DetectorConfig
}

func (d *ThresholdDetector) Name() string { return "threshold" }

type indexRegion struct {
	start, end int
}

func (d *ThresholdDetector) Detect(t *Track) []Corner {
	if len(t.Centerline) < MinCenterlinePoints {
		return []Corner{}
	}

	pts := projectCenterline(t.Centerline)
	curv := curvatureProfile(pts)
	lengths := arcLengths(pts)
	threshold := 1 / d.cfg.MinCornerRadius

	regions := d.rawRegions(t, curv, threshold)
	regions = d.splitLongRegions(t, curv, regions)
	regions = d.mergeCloseRegions(t, curv, lengths, regions)

	corners := make([]Corner, 0, len(regions))
	for _, r := range regions {
		corners = append(corners, buildCorner(t, curv, lengths, r.start, r.end))
	}
	return numberCorners(corners)
}

// rawRegions marks contiguous runs of super-threshold curvature.
// Isolated single-point spikes are dropped unless a same-signed
// neighbour with at least spikeSupportFraction of the threshold exists
// within spikeSearchWindow metres; that distinguishes a real but
// sparsely-sampled corner from GPS survey noise.
func (d *ThresholdDetector) rawRegions(t *Track, curv []float64, threshold float64) []indexRegion {
	var regions []indexRegion
	i := 0
	for i < len(curv) {
		if math.Abs(curv[i]) <= threshold {
			i++
			continue
		}
		start := i
		for i < len(curv) && math.Abs(curv[i]) > threshold {
			i++
		}
		r := indexRegion{start: start, end: i - 1}
		if r.start == r.end && !d.spikeSupported(t, curv, r.start, threshold) {
			continue
		}
		regions = append(regions, r)
	}
	return regions
}

func (d *ThresholdDetector) spikeSupported(t *Track, curv []float64, idx int, threshold float64) bool {
	center := t.Centerline[idx].Distance
	support := threshold * spikeSupportFraction
	for j := range curv {
		if j == idx {
			continue
		}
		if math.Abs(t.Centerline[j].Distance-center) > spikeSearchWindow {
			continue
		}
		if math.Abs(curv[j]) >= support && sameSign(curv[j], curv[idx]) {
			return true
		}
	}
	return false
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// splitLongRegions recursively splits regions spanning more than
// splitSpan metres at interior curvature minima that dip below
// splitDipFraction of the region peak, keeping splitEdgeClearance
// metres from both edges. A double-apex complex reads as two corners,
// not one long sweep.
func (d *ThresholdDetector) splitLongRegions(t *Track, curv []float64, regions []indexRegion) []indexRegion {
	var out []indexRegion
	for _, r := range regions {
		out = append(out, d.splitRegion(t, curv, r)...)
	}
	return out
}

func (d *ThresholdDetector) splitRegion(t *Track, curv []float64, r indexRegion) []indexRegion {
	span := t.Centerline[r.end].Distance - t.Centerline[r.start].Distance
	if span <= splitSpan {
		return []indexRegion{r}
	}

	peak := math.Abs(curv[peakCurvatureIndex(curv, r.start, r.end)])
	dipLimit := peak * splitDipFraction

	// Find the deepest qualifying interior minimum.
	splitAt := -1
	splitVal := math.Inf(1)
	for i := r.start + 1; i < r.end; i++ {
		k := math.Abs(curv[i])
		if k >= dipLimit || k >= splitVal {
			continue
		}
		if k > math.Abs(curv[i-1]) || k > math.Abs(curv[i+1]) {
			continue // not a local minimum
		}
		fromStart := t.Centerline[i].Distance - t.Centerline[r.start].Distance
		fromEnd := t.Centerline[r.end].Distance - t.Centerline[i].Distance
		if fromStart < splitEdgeClearance || fromEnd < splitEdgeClearance {
			continue
		}
		splitAt = i
		splitVal = k
	}
	if splitAt < 0 {
		return []indexRegion{r}
	}

	left := d.splitRegion(t, curv, indexRegion{start: r.start, end: splitAt})
	right := d.splitRegion(t, curv, indexRegion{start: splitAt, end: r.end})
	return append(left, right...)
}

// mergeCloseRegions merges regions within mergeGap metres of each other
// unless both are significant (≥ significantAngle of sweep) and turn in
// opposite directions (a true chicane) and never beyond
// mergedSpanCap metres of combined span.
func (d *ThresholdDetector) mergeCloseRegions(t *Track, curv, lengths []float64, regions []indexRegion) []indexRegion {
	if len(regions) == 0 {
		return regions
	}
	out := []indexRegion{regions[0]}
	for _, r := range regions[1:] {
		last := &out[len(out)-1]
		gap := t.Centerline[r.start].Distance - t.Centerline[last.end].Distance
		mergedSpan := t.Centerline[r.end].Distance - t.Centerline[last.start].Distance

		if gap >= mergeGap || mergedSpan > mergedSpanCap {
			out = append(out, r)
			continue
		}

		lastAngle := sweepDegrees(curv, lengths, last.start, last.end)
		nextAngle := sweepDegrees(curv, lengths, r.start, r.end)
		lastDir := meanSignedCurvature(curv, last.start, last.end)
		nextDir := meanSignedCurvature(curv, r.start, r.end)
		if lastAngle >= significantAngle && nextAngle >= significantAngle && !sameSign(lastDir, nextDir) {
			// Both are real corners of opposite direction: keep the
			// chicane as two corners.
			out = append(out, r)
			continue
		}

		last.end = r.end
	}
	return out
}
