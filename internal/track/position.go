package track

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/banshee-data/apex.report/internal/geo"
	"github.com/banshee-data/apex.report/internal/gps"
)

// Position locates a GPS fix on the track: distance along the
// centerline, signed lateral offset (positive = right of centerline in
// the direction of travel), and lap progress. Recomputed every tick,
// never persisted.
type Position struct {
	Distance         float64   `json:"distance"`       // metres along the centerline
	LateralOffset    float64   `json:"lateral_offset"` // metres, +right
	SegmentIndex     int       `json:"segment_index"`
	ProgressFraction float64   `json:"progress_fraction"` // 0..1
	Timestamp        time.Time `json:"timestamp"`
}

// PositionTracker maps GPS fixes to track positions via a k-d tree over
// the centerline. The tree is built once per track load; per-tick
// queries are O(log n). Lookups never fail: when interpolation is
// undefined the tracker degrades to nearest-point precision.
type PositionTracker struct {
	track     *Track
	planar    []planarPoint
	tree      *kdtree.Tree
	lookahead int
	lat0      float64
	lon0      float64
}

// NewPositionTracker builds the spatial index for a track. The
// lookahead is the segment window (± around the nearest point) searched
// during interpolated lookups; values below 1 are clamped to the
// default of 2.
func NewPositionTracker(t *Track, lookahead int) *PositionTracker {
	if lookahead < 1 {
		lookahead = 2
	}
	pt := &PositionTracker{track: t, lookahead: lookahead}
	if len(t.Centerline) < MinCenterlinePoints {
		return pt // position tracking unavailable
	}

	pt.lat0 = t.Centerline[0].Lat
	pt.lon0 = t.Centerline[0].Lon
	pt.planar = projectCenterline(t.Centerline)

	nodes := make(centerlineNodes, len(pt.planar))
	for i, p := range pt.planar {
		nodes[i] = centerlineNode{x: p.X, y: p.Y, idx: i}
	}
	pt.tree = kdtree.New(nodes, false)
	return pt
}

// Available reports whether the track has enough centerline points for
// position tracking.
func (pt *PositionTracker) Available() bool { return pt.tree != nil }

// Position returns the nearest-centerline-point position for a fix.
// The k-d tree query runs in the planar frame; the winner is refined by
// haversine over the neighbouring points to remove projection skew.
func (pt *PositionTracker) Position(fix gps.Point) (Position, bool) {
	if !pt.Available() {
		return Position{}, false
	}
	idx := pt.nearestIndex(fix)
	pos := Position{
		Distance:     pt.track.Centerline[idx].Distance,
		SegmentIndex: idx,
		Timestamp:    fix.Timestamp,
	}
	x, y := geo.Project(fix.Lat, fix.Lon, pt.lat0, pt.lon0)
	pos.LateralOffset = pt.lateralOffset(idx, x, y)
	pos.ProgressFraction = pt.progress(pos.Distance)
	return pos, true
}

// InterpolatedPosition projects the fix onto the centerline segments in
// the lookahead window around the nearest point, giving sub-point
// resolution. Zero-length segments are skipped; if no segment admits a
// projection the nearest-point position is returned instead.
func (pt *PositionTracker) InterpolatedPosition(fix gps.Point) (Position, bool) {
	if !pt.Available() {
		return Position{}, false
	}
	idx := pt.nearestIndex(fix)
	x, y := geo.Project(fix.Lat, fix.Lon, pt.lat0, pt.lon0)

	lo := idx - pt.lookahead
	if lo < 0 {
		lo = 0
	}
	hi := idx + pt.lookahead
	if hi > len(pt.planar)-2 {
		hi = len(pt.planar) - 2
	}

	bestSeg := -1
	bestT := 0.0
	bestDistSq := math.Inf(1)
	for j := lo; j <= hi; j++ {
		a, b := pt.planar[j], pt.planar[j+1]
		dx, dy := b.X-a.X, b.Y-a.Y
		lenSq := dx*dx + dy*dy
		if lenSq < 1e-12 {
			continue // zero-length segment, interpolation undefined
		}
		t := ((x-a.X)*dx + (y-a.Y)*dy) / lenSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		px, py := a.X+t*dx, a.Y+t*dy
		distSq := (x-px)*(x-px) + (y-py)*(y-py)
		if distSq < bestDistSq {
			bestDistSq = distSq
			bestSeg = j
			bestT = t
		}
	}
	if bestSeg < 0 {
		return pt.Position(fix)
	}

	segStart := pt.track.Centerline[bestSeg].Distance
	segEnd := pt.track.Centerline[bestSeg+1].Distance
	pos := Position{
		Distance:     segStart + bestT*(segEnd-segStart),
		SegmentIndex: bestSeg,
		Timestamp:    fix.Timestamp,
	}
	pos.LateralOffset = pt.lateralOffset(bestSeg, x, y)
	pos.ProgressFraction = pt.progress(pos.Distance)
	return pos, true
}

// nearestIndex queries the k-d tree for the closest centerline point in
// the planar frame, then refines by haversine over ±lookahead
// neighbours.
func (pt *PositionTracker) nearestIndex(fix gps.Point) int {
	x, y := geo.Project(fix.Lat, fix.Lon, pt.lat0, pt.lon0)
	got, _ := pt.tree.Nearest(centerlineNode{x: x, y: y, idx: -1})
	idx := got.(centerlineNode).idx

	best := idx
	bestDist := geo.Haversine(fix.Lat, fix.Lon, pt.track.Centerline[idx].Lat, pt.track.Centerline[idx].Lon)
	for j := idx - pt.lookahead; j <= idx+pt.lookahead; j++ {
		if j < 0 || j >= len(pt.track.Centerline) || j == idx {
			continue
		}
		d := geo.Haversine(fix.Lat, fix.Lon, pt.track.Centerline[j].Lat, pt.track.Centerline[j].Lon)
		if d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}

// lateralOffset is the signed perpendicular distance from the fix to
// the centerline direction at the given index: the cross product of the
// segment direction and the fix vector, negated so positive means right
// of the centerline.
func (pt *PositionTracker) lateralOffset(idx int, x, y float64) float64 {
	i, j := idx, idx+1
	if j >= len(pt.planar) {
		i, j = idx-1, idx
	}
	if i < 0 {
		return 0
	}
	a, b := pt.planar[i], pt.planar[j]
	dx, dy := b.X-a.X, b.Y-a.Y
	norm := math.Hypot(dx, dy)
	if norm < 1e-9 {
		return 0
	}
	cross := dx*(y-a.Y) - dy*(x-a.X) // >0 means left of direction
	return -cross / norm
}

func (pt *PositionTracker) progress(distance float64) float64 {
	if pt.track.Length <= 0 {
		return 0
	}
	p := distance / pt.track.Length
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// centerlineNode is a k-d tree entry carrying its centerline index.
// The Comparable/Interface implementations follow the pattern from the
// gonum spatial/kdtree documentation.
type centerlineNode struct {
	x, y float64
	idx  int
}

func (p centerlineNode) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(centerlineNode)
	switch d {
	case 0:
		return p.x - q.x
	case 1:
		return p.y - q.y
	default:
		panic("illegal dimension")
	}
}

func (p centerlineNode) Dims() int { return 2 }

func (p centerlineNode) Distance(c kdtree.Comparable) float64 {
	q := c.(centerlineNode)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type centerlineNodes []centerlineNode

func (p centerlineNodes) Index(i int) kdtree.Comparable { return p[i] }
func (p centerlineNodes) Len() int                      { return len(p) }
func (p centerlineNodes) Pivot(d kdtree.Dim) int {
	return centerlinePlane{Dim: d, centerlineNodes: p}.Pivot()
}
func (p centerlineNodes) Slice(start, end int) kdtree.Interface { return p[start:end] }

type centerlinePlane struct {
	kdtree.Dim
	centerlineNodes
}

func (p centerlinePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.centerlineNodes[i].x < p.centerlineNodes[j].x
	case 1:
		return p.centerlineNodes[i].y < p.centerlineNodes[j].y
	default:
		panic("illegal dimension")
	}
}

func (p centerlinePlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (p centerlinePlane) Slice(start, end int) kdtree.SortSlicer {
	p.centerlineNodes = p.centerlineNodes[start:end]
	return p
}

func (p centerlinePlane) Swap(i, j int) {
	p.centerlineNodes[i], p.centerlineNodes[j] = p.centerlineNodes[j], p.centerlineNodes[i]
}
