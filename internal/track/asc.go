package track

import (
	"math"
	"sort"
)

// curvatureNoiseFloor is the |curvature| below which the sign of a
// sample is considered noise for sign-change detection (1/m).
const curvatureNoiseFloor = 0.001

// ASCDetector implements angle/segment/curvature corner detection: the
// centerline is cut into segments by an evolving set of cut indices
// (curved-region boundaries, straight fills, sign changes), and each
// segment is classified as corner or straight from its swept angle and
// tightest radius. It has the best recall on gentle sweeps of the four
// strategies.
type ASCDetector struct {
	cfg DetectorConfig
}

func (d *ASCDetector) Name() string { return "asc" }

func (d *ASCDetector) Detect(t *Track) []Corner {
	if len(t.Centerline) < MinCenterlinePoints {
		return []Corner{}
	}

	pts := projectCenterline(t.Centerline)
	curv := curvatureProfile(pts)
	lengths := arcLengths(pts)

	cuts := d.peakCuts(curv)                  // phase 1
	cuts = d.reduceRedundant(t, cuts)         // phase 2
	cuts = d.fillStraights(t, cuts)           // phase 3
	cuts = d.addSignChangeCuts(t, curv, cuts) // phase 4
	cuts = d.reduceRedundant(t, cuts)         // phase 5

	corners := d.classify(t, curv, lengths, cuts)
	if d.cfg.MergeCorners {
		corners = d.mergeSameDirection(t, corners)
	}
	return numberCorners(corners)
}

// peakCuts places cuts where |curvature| crosses the peak threshold:
// one as a curved region begins and one as it ends, so segment
// boundaries land at corner entry and exit. A constant-radius arc is a
// single region no matter how many of its samples tie at the peak;
// local-maximum cuts would scatter over such a plateau and leave
// segment boundaries mid-arc.
func (d *ASCDetector) peakCuts(curv []float64) []int {
	var cuts []int
	above := false
	for i := 1; i < len(curv)-1; i++ {
		k := math.Abs(curv[i])
		if !above && k > d.cfg.CurvaturePeakThreshold {
			cuts = append(cuts, i-1)
			above = true
		} else if above && k <= d.cfg.CurvaturePeakThreshold {
			cuts = append(cuts, i)
			above = false
		}
	}
	return cuts
}

// reduceRedundant collapses groups of cuts that sit within
// MinCutDistance of their neighbour down to the group's middle cut.
func (d *ASCDetector) reduceRedundant(t *Track, cuts []int) []int {
	if len(cuts) < 2 {
		return cuts
	}
	sort.Ints(cuts)

	var out []int
	group := []int{cuts[0]}
	flush := func() {
		out = append(out, group[len(group)/2])
	}
	for _, c := range cuts[1:] {
		prev := group[len(group)-1]
		if t.Centerline[c].Distance-t.Centerline[prev].Distance < d.cfg.MinCutDistance {
			group = append(group, c)
			continue
		}
		flush()
		group = []int{c}
	}
	flush()
	return out
}

// fillStraights inserts equidistant cuts into gaps longer than 1.5×
// StraightFillDistance, so long straights produce segments of bounded
// length. A track with no cuts at all is cut at regular
// StraightFillDistance intervals.
func (d *ASCDetector) fillStraights(t *Track, cuts []int) []int {
	fill := d.cfg.StraightFillDistance
	if len(cuts) == 0 {
		for dist := fill; dist < t.Length; dist += fill {
			cuts = append(cuts, indexAtDistance(t, dist))
		}
		return dedupInts(cuts)
	}

	sort.Ints(cuts)
	out := append([]int(nil), cuts...)

	// Consider the track start and end as implicit boundaries so the
	// opening and closing straights get filled too.
	boundaries := append([]int{0}, cuts...)
	boundaries = append(boundaries, len(t.Centerline)-1)

	for i := 0; i+1 < len(boundaries); i++ {
		a, b := boundaries[i], boundaries[i+1]
		gap := t.Centerline[b].Distance - t.Centerline[a].Distance
		if gap <= 1.5*fill {
			continue
		}
		n := int(gap / fill)
		step := gap / float64(n+1)
		for j := 1; j <= n; j++ {
			out = append(out, indexAtDistance(t, t.Centerline[a].Distance+float64(j)*step))
		}
	}
	return dedupInts(out)
}

// addSignChangeCuts adds a cut wherever the curvature sign flips,
// ignoring near-zero noise samples, provided the cut keeps
// MinCutDistance from its neighbours.
func (d *ASCDetector) addSignChangeCuts(t *Track, curv []float64, cuts []int) []int {
	sort.Ints(cuts)
	out := append([]int(nil), cuts...)

	lastSign := 0
	for i, k := range curv {
		if math.Abs(k) < curvatureNoiseFloor {
			continue
		}
		sign := 1
		if k < 0 {
			sign = -1
		}
		if lastSign != 0 && sign != lastSign && d.clearOfCuts(t, out, i) {
			out = append(out, i)
			sort.Ints(out)
		}
		lastSign = sign
	}
	return dedupInts(out)
}

func (d *ASCDetector) clearOfCuts(t *Track, cuts []int, idx int) bool {
	dist := t.Centerline[idx].Distance
	for _, c := range cuts {
		if math.Abs(t.Centerline[c].Distance-dist) < d.cfg.MinCutDistance {
			return false
		}
	}
	return true
}

// classify turns the segments between consecutive cuts into corners.
// A segment is a corner iff it sweeps at least MinCornerAngle degrees
// and its tightest point radius is within MinCornerRadius.
func (d *ASCDetector) classify(t *Track, curv, lengths []float64, cuts []int) []Corner {
	boundaries := append([]int{0}, cuts...)
	boundaries = append(boundaries, len(t.Centerline)-1)
	boundaries = dedupInts(boundaries)

	var corners []Corner
	for i := 0; i+1 < len(boundaries); i++ {
		start, end := boundaries[i], boundaries[i+1]
		if end <= start {
			continue
		}
		angle := sweepDegrees(curv, lengths, start, end)
		peak := math.Abs(curv[peakCurvatureIndex(curv, start, end)])
		if angle < d.cfg.MinCornerAngle || peak == 0 || 1/peak > d.cfg.MinCornerRadius {
			continue
		}
		corner := buildCorner(t, curv, lengths, start, end)
		corner.Direction = ascDirection(curv, start, end)
		corners = append(corners, corner)
	}
	return corners
}

// ascDirection classifies direction from the mean signed curvature,
// falling back to the apex sign when the mean sits inside the noise
// band (e.g. an S-shaped segment).
func ascDirection(curv []float64, start, end int) Direction {
	mean := meanSignedCurvature(curv, start, end)
	switch {
	case mean > curvatureNoiseFloor:
		return DirectionLeft
	case mean < -curvatureNoiseFloor:
		return DirectionRight
	default:
		if curv[peakCurvatureIndex(curv, start, end)] > 0 {
			return DirectionLeft
		}
		return DirectionRight
	}
}

// mergeSameDirection absorbs consecutive same-direction corners when
// the straight between them is at most MaxStraightGap and the merged
// span stays within MaxCornerSpan.
func (d *ASCDetector) mergeSameDirection(t *Track, corners []Corner) []Corner {
	if len(corners) < 2 {
		return corners
	}

	pts := projectCenterline(t.Centerline)
	curv := curvatureProfile(pts)
	lengths := arcLengths(pts)

	out := []Corner{corners[0]}
	for _, c := range corners[1:] {
		last := &out[len(out)-1]
		gap := c.EntryDistance - last.ExitDistance
		mergedSpan := c.ExitDistance - last.EntryDistance
		if c.Direction == last.Direction && gap <= d.cfg.MaxStraightGap && mergedSpan <= d.cfg.MaxCornerSpan {
			merged := buildCorner(t, curv, lengths, last.EntryIndex, c.ExitIndex)
			merged.Direction = last.Direction
			*last = merged
			continue
		}
		out = append(out, c)
	}
	return out
}

// indexAtDistance returns the centerline index whose cumulative
// distance is closest to the target.
func indexAtDistance(t *Track, target float64) int {
	idx := sort.Search(len(t.Centerline), func(i int) bool {
		return t.Centerline[i].Distance >= target
	})
	if idx == 0 {
		return 0
	}
	if idx >= len(t.Centerline) {
		return len(t.Centerline) - 1
	}
	if target-t.Centerline[idx-1].Distance < t.Centerline[idx].Distance-target {
		return idx - 1
	}
	return idx
}

func dedupInts(in []int) []int {
	if len(in) == 0 {
		return in
	}
	sort.Ints(in)
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
