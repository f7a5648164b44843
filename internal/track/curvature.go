package track

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/apex.report/internal/geo"
)

// degenerateAreaThreshold is the triangle area (m²) below which three
// points are treated as collinear, yielding zero curvature rather than a
// numerically explosive radius.
const degenerateAreaThreshold = 1e-6

// planarPoint is a centerline point projected onto the track's local
// tangent plane. All curvature and circle-fit math runs in this frame.
type planarPoint struct {
	X, Y float64
}

// projectCenterline maps the centerline onto a tangent plane anchored at
// its first point.
func projectCenterline(centerline []Point) []planarPoint {
	if len(centerline) == 0 {
		return nil
	}
	lat0, lon0 := centerline[0].Lat, centerline[0].Lon
	pts := make([]planarPoint, len(centerline))
	for i, p := range centerline {
		x, y := geo.Project(p.Lat, p.Lon, lat0, lon0)
		pts[i] = planarPoint{X: x, Y: y}
	}
	return pts
}

// signedCurvature returns the curvature of the circumcircle through
// three points, signed by turn direction: positive = left turn. Radius
// comes from r = abc/(4·area); collinear triples return 0.
func signedCurvature(p1, p2, p3 planarPoint) float64 {
	a := math.Hypot(p2.X-p1.X, p2.Y-p1.Y)
	b := math.Hypot(p3.X-p2.X, p3.Y-p2.Y)
	c := math.Hypot(p3.X-p1.X, p3.Y-p1.Y)

	// Twice the signed triangle area via the cross product.
	cross := (p2.X-p1.X)*(p3.Y-p1.Y) - (p2.Y-p1.Y)*(p3.X-p1.X)
	area := math.Abs(cross) / 2
	if area < degenerateAreaThreshold {
		return 0
	}

	radius := a * b * c / (4 * area)
	if cross > 0 {
		return 1 / radius
	}
	return -1 / radius
}

// curvatureProfile computes the per-point signed curvature of a
// projected centerline. End points, which lack a neighbour on one side,
// get zero curvature.
func curvatureProfile(pts []planarPoint) []float64 {
	curv := make([]float64, len(pts))
	for i := 1; i < len(pts)-1; i++ {
		curv[i] = signedCurvature(pts[i-1], pts[i], pts[i+1])
	}
	return curv
}

// CurvatureProfile returns the per-point signed curvature of the track
// centerline, positive for left turns. Useful for plotting and
// diagnostics; detectors compute their own projections.
func (t *Track) CurvatureProfile() []float64 {
	return curvatureProfile(projectCenterline(t.Centerline))
}

// circleFit is the result of a Kasa algebraic circle fit.
type circleFit struct {
	CenterX, CenterY float64
	Radius           float64
	RMSError         float64
}

// kasaFit performs the algebraic least-squares circle fit over the given
// points, minimising Σ[(x−a)²+(y−b)²−R²]². On centred coordinates the
// normal equations reduce to a 2×2 linear system; points spanning fewer
// than three distinct positions (or a singular system, i.e. collinear
// input) report an infinite radius.
func kasaFit(pts []planarPoint) circleFit {
	n := float64(len(pts))
	if len(pts) < 3 {
		return circleFit{Radius: math.Inf(1)}
	}

	var meanX, meanY float64
	for _, p := range pts {
		meanX += p.X
		meanY += p.Y
	}
	meanX /= n
	meanY /= n

	var suu, svv, suv, suuu, svvv, suvv, svuu float64
	for _, p := range pts {
		u := p.X - meanX
		v := p.Y - meanY
		suu += u * u
		svv += v * v
		suv += u * v
		suuu += u * u * u
		svvv += v * v * v
		suvv += u * v * v
		svuu += v * u * u
	}

	lhs := mat.NewDense(2, 2, []float64{suu, suv, suv, svv})
	rhs := mat.NewVecDense(2, []float64{(suuu + suvv) / 2, (svvv + svuu) / 2})

	var center mat.VecDense
	if err := center.SolveVec(lhs, rhs); err != nil {
		// Collinear points: the normal matrix is singular.
		return circleFit{Radius: math.Inf(1)}
	}

	uc := center.AtVec(0)
	vc := center.AtVec(1)
	radius := math.Sqrt(uc*uc + vc*vc + (suu+svv)/n)

	fit := circleFit{
		CenterX: meanX + uc,
		CenterY: meanY + vc,
		Radius:  radius,
	}

	var sumSq float64
	for _, p := range pts {
		d := math.Hypot(p.X-fit.CenterX, p.Y-fit.CenterY) - radius
		sumSq += d * d
	}
	fit.RMSError = math.Sqrt(sumSq / n)
	return fit
}

// arcLengths returns the planar length of each centerline segment;
// entry i is the distance from point i to point i+1.
func arcLengths(pts []planarPoint) []float64 {
	if len(pts) < 2 {
		return nil
	}
	lengths := make([]float64, len(pts)-1)
	for i := 0; i+1 < len(pts); i++ {
		lengths[i] = math.Hypot(pts[i+1].X-pts[i].X, pts[i+1].Y-pts[i].Y)
	}
	return lengths
}

// sweepDegrees integrates |curvature|·arc-length over the inclusive
// index range [start, end] and converts to degrees. Each point's
// curvature is weighted by half the length of its adjacent segments.
func sweepDegrees(curv []float64, lengths []float64, start, end int) float64 {
	var radians float64
	for i := start; i <= end && i < len(curv); i++ {
		var span float64
		if i > 0 {
			span += lengths[i-1] / 2
		}
		if i < len(lengths) {
			span += lengths[i] / 2
		}
		radians += math.Abs(curv[i]) * span
	}
	return radians * 180 / math.Pi
}

// meanSignedCurvature averages the signed curvature over [start, end].
func meanSignedCurvature(curv []float64, start, end int) float64 {
	if end < start {
		return 0
	}
	var sum float64
	for i := start; i <= end && i < len(curv); i++ {
		sum += curv[i]
	}
	return sum / float64(end-start+1)
}

// peakCurvatureIndex returns the index of maximum |curvature| in
// [start, end].
func peakCurvatureIndex(curv []float64, start, end int) int {
	best := start
	for i := start; i <= end && i < len(curv); i++ {
		if math.Abs(curv[i]) > math.Abs(curv[best]) {
			best = i
		}
	}
	return best
}
