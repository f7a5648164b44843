// Package geo provides the small set of geodesic and planar helpers the
// position and corner packages share: great-circle distance, bearing,
// line-side tests, and a local tangent-plane projection for circle fitting.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// Metres of latitude/longitude per degree for the local tangent-plane
// projection. Valid for sub-kilometre spans, which covers any single
// corner on a race track.
const (
	metersPerDegreeLat = 110540.0
	metersPerDegreeLon = 111320.0
)

// Haversine returns the great-circle distance in metres between two
// lat/lon pairs given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Bearing returns the initial great-circle bearing in degrees [0, 360)
// from the first point to the second.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// SideOfLine reports which side of the directed line a→b the point p lies
// on via the 2-D cross product of the line direction and the point vector.
// +1 means left of the line, -1 right, 0 exactly on it. Inputs are lat/lon
// degrees; for the short lines involved (a start/finish line is tens of
// metres) treating them as planar is accurate to well under a centimetre.
func SideOfLine(aLat, aLon, bLat, bLon, pLat, pLon float64) int {
	cross := (bLon-aLon)*(pLat-aLat) - (bLat-aLat)*(pLon-aLon)
	switch {
	case cross > 0:
		return 1
	case cross < 0:
		return -1
	default:
		return 0
	}
}

// Project maps a lat/lon pair onto a local tangent plane anchored at
// (lat0, lon0), returning planar x (east) and y (north) in metres.
func Project(lat, lon, lat0, lon0 float64) (x, y float64) {
	x = (lon - lon0) * metersPerDegreeLon * math.Cos(lat0*math.Pi/180)
	y = (lat - lat0) * metersPerDegreeLat
	return x, y
}

// Unproject is the inverse of Project: planar metres back to lat/lon
// degrees around the same anchor.
func Unproject(x, y, lat0, lon0 float64) (lat, lon float64) {
	lat = lat0 + y/metersPerDegreeLat
	lon = lon0 + x/(metersPerDegreeLon*math.Cos(lat0*math.Pi/180))
	return lat, lon
}

// NormalizeHeadingDelta wraps a heading difference in degrees into
// (-180, 180], handling the 0°/360° discontinuity.
func NormalizeHeadingDelta(delta float64) float64 {
	for delta > 180 {
		delta -= 360
	}
	for delta <= -180 {
		delta += 360
	}
	return delta
}
