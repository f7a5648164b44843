package timing

import (
	"math"
	"sort"
	"time"

	"github.com/banshee-data/apex.report/internal/geo"
	"github.com/banshee-data/apex.report/internal/gps"
	"github.com/banshee-data/apex.report/internal/track"
)

// Test geometry is laid out in a planar frame around a fixed anchor so
// distances and angles survive the lat/lon round trip.
const (
	testAnchorLat = 43.797
	testAnchorLon = -87.989
)

var testBase = time.Date(2026, 6, 6, 10, 0, 0, 0, time.UTC)

// planarFix places a GPS fix at planar (x, y) metres from the anchor.
func planarFix(x, y float64, at time.Duration, speedMps, headingDeg float64) gps.Point {
	lat, lon := geo.Unproject(x, y, testAnchorLat, testAnchorLon)
	return gps.Point{
		Timestamp:  testBase.Add(at),
		Lat:        lat,
		Lon:        lon,
		SpeedMps:   speedMps,
		HeadingDeg: headingDeg,
		HasFix:     true,
	}
}

// northSouthLine builds a start/finish line through the anchor running
// south to north, the given width in metres.
func northSouthLine(width float64) track.StartFinishLine {
	p1Lat, p1Lon := geo.Unproject(0, -width/2, testAnchorLat, testAnchorLon)
	p2Lat, p2Lon := geo.Unproject(0, width/2, testAnchorLat, testAnchorLon)
	line := track.StartFinishLine{
		P1: track.Point{Lat: p1Lat, Lon: p1Lon},
		P2: track.Point{Lat: p2Lat, Lon: p2Lon},
	}
	line.CenterLat = (line.P1.Lat + line.P2.Lat) / 2
	line.CenterLon = (line.P1.Lon + line.P2.Lon) / 2
	line.Width = geo.Haversine(line.P1.Lat, line.P1.Lon, line.P2.Lat, line.P2.Lon)
	line.HeadingDeg = geo.Bearing(line.P1.Lat, line.P1.Lon, line.P2.Lat, line.P2.Lon)
	return line
}

// loopTrack builds a closed loop of four straights joined by 90-degree
// left arcs of radius 15, starting eastward at the anchor, with the
// start/finish line across the first point. straightLen 76.44 gives a
// planar perimeter of almost exactly 400 m.
func loopTrack(straightLen float64) *track.Track {
	type state struct{ x, y, heading float64 }
	s := state{}
	pts := []track.Point{}
	appendPoint := func(x, y float64) {
		lat, lon := geo.Unproject(x, y, testAnchorLat, testAnchorLon)
		pts = append(pts, track.Point{Lat: lat, Lon: lon})
	}
	appendPoint(0, 0)
	for leg := 0; leg < 4; leg++ {
		steps := int(math.Round(straightLen / 2.5))
		step := straightLen / float64(steps)
		for i := 0; i < steps; i++ {
			s.x += step * math.Cos(s.heading)
			s.y += step * math.Sin(s.heading)
			appendPoint(s.x, s.y)
		}
		cx := s.x - 15*math.Sin(s.heading)
		cy := s.y + 15*math.Cos(s.heading)
		phi := s.heading - math.Pi/2
		dt := 9 * math.Pi / 180
		for i := 0; i < 10; i++ {
			phi += dt
			s.heading += dt
			s.x = cx + 15*math.Cos(phi)
			s.y = cy + 15*math.Sin(phi)
			appendPoint(s.x, s.y)
		}
	}

	trk := &track.Track{Name: "test-loop", Centerline: pts, StartFinish: northSouthLine(12)}
	trk.ComputeDistances()
	return trk
}

// driveAt returns the lat/lon on the track centerline at cumulative
// driven distance s, wrapping at the track length.
func driveAt(trk *track.Track, s float64) (lat, lon float64) {
	cl := trk.Centerline
	s = math.Mod(s, trk.Length)
	idx := sort.Search(len(cl), func(i int) bool { return cl[i].Distance >= s })
	if idx == 0 {
		return cl[0].Lat, cl[0].Lon
	}
	a, b := cl[idx-1], cl[idx]
	if b.Distance == a.Distance {
		return b.Lat, b.Lon
	}
	f := (s - a.Distance) / (b.Distance - a.Distance)
	return a.Lat + f*(b.Lat-a.Lat), a.Lon + f*(b.Lon-a.Lon)
}
