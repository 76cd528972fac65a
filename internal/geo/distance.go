package geo

import (
	"errors"
	"math"
)

// ErrEmptyRoute is returned when a route has no points to measure against.
var ErrEmptyRoute = errors.New("route has no points")

const earthRadiusKm = 6371

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * math.Pi / 180.0
	dLng := (p2.Lng - p1.Lng) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(p1.Lat*math.Pi/180.0)*math.Cos(p2.Lat*math.Pi/180.0)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// ProjectOntoSegment returns the closest point on segment [a,b] to p.
// The projection parameter is computed in degree space, which is an
// acceptable approximation at sub-kilometer segment lengths.
func ProjectOntoSegment(p, a, b Point) Point {
	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng

	lenSq := dLat*dLat + dLng*dLng
	if lenSq == 0 {
		// Degenerate segment: start and end coincide.
		return a
	}

	t := ((p.Lat-a.Lat)*dLat + (p.Lng-a.Lng)*dLng) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return Point{
		Lat: a.Lat + t*dLat,
		Lng: a.Lng + t*dLng,
	}
}

// DistanceToSegmentKm returns the haversine distance from p to the closest
// point on segment [a,b].
func DistanceToSegmentKm(p, a, b Point) float64 {
	return HaversineKm(p, ProjectOntoSegment(p, a, b))
}

// NearestPointOnRoute scans every segment of the route and returns the index
// of the segment with the globally minimal projected distance, together with
// that distance in km. A single-point route returns index 0 and the distance
// to that point. An empty route returns ErrEmptyRoute.
func NearestPointOnRoute(p Point, route []Point) (int, float64, error) {
	if len(route) == 0 {
		return 0, 0, ErrEmptyRoute
	}
	if len(route) == 1 {
		return 0, HaversineKm(p, route[0]), nil
	}

	minDistance := math.Inf(1)
	nearestIndex := 0

	for i := 0; i < len(route)-1; i++ {
		d := DistanceToSegmentKm(p, route[i], route[i+1])
		if d < minDistance {
			minDistance = d
			nearestIndex = i
		}
	}

	return nearestIndex, minDistance, nil
}
