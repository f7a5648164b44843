package track

import (
	"math"

	"github.com/banshee-data/apex.report/internal/geo"
)

// Synthetic tracks are laid out in a planar frame and unprojected around
// a fixed anchor, so planar geometry (radii, angles) survives the round
// trip through lat/lon exactly.
const (
	testAnchorLat = 43.797
	testAnchorLon = -87.989
)

// pathBuilder traces a path of straights and arcs, starting at the
// origin heading east.
type pathBuilder struct {
	x, y    float64
	heading float64 // radians, 0 = east
	pts     []planarPoint
}

func newPathBuilder() *pathBuilder {
	return &pathBuilder{pts: []planarPoint{{}}}
}

func (b *pathBuilder) straight(length, step float64) {
	n := int(math.Round(length / step))
	for i := 0; i < n; i++ {
		b.x += step * math.Cos(b.heading)
		b.y += step * math.Sin(b.heading)
		b.pts = append(b.pts, planarPoint{X: b.x, Y: b.y})
	}
}

// arc sweeps sweepDeg degrees around a circle of the given radius,
// positive sweep turning left, sampling a point every stepDeg.
func (b *pathBuilder) arc(radius, sweepDeg, stepDeg float64) {
	steps := int(math.Round(math.Abs(sweepDeg) / stepDeg))
	left := sweepDeg > 0
	var cx, cy, phi float64
	if left {
		cx = b.x - radius*math.Sin(b.heading)
		cy = b.y + radius*math.Cos(b.heading)
		phi = b.heading - math.Pi/2
	} else {
		cx = b.x + radius*math.Sin(b.heading)
		cy = b.y - radius*math.Cos(b.heading)
		phi = b.heading + math.Pi/2
	}
	dt := stepDeg * math.Pi / 180
	if !left {
		dt = -dt
	}
	for i := 0; i < steps; i++ {
		phi += dt
		b.heading += dt
		b.x = cx + radius*math.Cos(phi)
		b.y = cy + radius*math.Sin(phi)
		b.pts = append(b.pts, planarPoint{X: b.x, Y: b.y})
	}
}

func (b *pathBuilder) track(name string) *Track {
	t := &Track{Name: name}
	for _, p := range b.pts {
		lat, lon := geo.Unproject(p.X, p.Y, testAnchorLat, testAnchorLon)
		t.Centerline = append(t.Centerline, Point{Lat: lat, Lon: lon})
	}
	t.ComputeDistances()
	return t
}

// squareLoopTrack is a closed loop of four 100 m straights joined by
// 90-degree left-hand arcs of radius 15 m. The final point coincides
// with the first.
func squareLoopTrack() *Track {
	b := newPathBuilder()
	for i := 0; i < 4; i++ {
		b.straight(100, 2.5)
		b.arc(15, 90, 9)
	}
	return b.track("square-loop")
}

// chicaneTrack is a straight, a 40-degree left arc, a 10 m straight, a
// 40-degree right arc, and a closing straight. Radius 30 m both arcs.
func chicaneTrack() *Track {
	b := newPathBuilder()
	b.straight(60, 2.5)
	b.arc(30, 40, 5)
	b.straight(10, 2.5)
	b.arc(30, -40, 5)
	b.straight(60, 2.5)
	return b.track("chicane")
}

// singleCornerTrack is one 90-degree left-hand corner of radius 30 m
// between two 40 m straights.
func singleCornerTrack() *Track {
	b := newPathBuilder()
	b.straight(40, 2.5)
	b.arc(30, 90, 5)
	b.straight(40, 2.5)
	return b.track("single-corner")
}

// degenerateTrack has too few centerline points for detection or
// position tracking.
func degenerateTrack() *Track {
	b := newPathBuilder()
	b.straight(7.5, 2.5)
	return b.track("degenerate")
}
