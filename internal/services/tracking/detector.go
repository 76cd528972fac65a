// Package tracking implements the live tracking engine: off-route
// detection, progress estimation, reroute throttling and the per-job
// session state machine.
package tracking

import (
	"geotrack-backend/internal/geo"
)

// DefaultOffRouteThresholdMeters is the deviation at which a position is
// considered off the planned route.
const DefaultOffRouteThresholdMeters = 50

// CheckOffRoute measures how far a position is from the nearest route
// segment and compares against a threshold in meters. Returns the verdict
// and the raw distance in meters for logging. Routes too short to measure
// against report on-route with distance 0.
func CheckOffRoute(p geo.Point, route []geo.Point, thresholdMeters float64) (bool, float64) {
	if len(route) < 2 {
		return false, 0
	}

	_, distanceKm, err := geo.NearestPointOnRoute(p, route)
	if err != nil {
		return false, 0
	}

	distanceMeters := distanceKm * 1000
	return distanceMeters > thresholdMeters, distanceMeters
}
