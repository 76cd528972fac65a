package tracking

import (
	"math"

	"geotrack-backend/internal/geo"
)

// arrivalEtaMinutes is the cutoff below which a driver counts as arrived.
const arrivalEtaMinutes = 1

// Estimate is the progress of a driver along a route.
type Estimate struct {
	RemainingDistanceKm float64
	EtaMinutes          int
	Arrived             bool
}

// EstimateProgress derives remaining distance and ETA from the current
// position, the route geometry and the trip totals. Returns
// geo.ErrEmptyRoute when the route has no points.
//
// Average speed comes from the trip totals, so the ETA scales with the
// remaining share of the route rather than instantaneous GPS speed. An ETA
// of one minute or less is treated as arrived: both values are forced to 0.
func EstimateProgress(p geo.Point, route []geo.Point, totalDistanceKm, totalEstimatedMinutes float64) (*Estimate, error) {
	remaining, err := remainingDistanceKm(p, route)
	if err != nil {
		return nil, err
	}

	speedPerMinute := 0.0
	if totalEstimatedMinutes > 0 {
		speedPerMinute = totalDistanceKm / totalEstimatedMinutes
	}

	eta := 0
	if speedPerMinute > 0 {
		eta = int(math.Ceil(remaining / speedPerMinute))
	}

	// Arrival needs a usable speed: a trip with no duration metadata
	// reports ETA 0 as unknown rather than finishing instantly.
	if speedPerMinute > 0 && eta <= arrivalEtaMinutes {
		return &Estimate{RemainingDistanceKm: 0, EtaMinutes: 0, Arrived: true}, nil
	}

	return &Estimate{
		RemainingDistanceKm: math.Round(remaining*100) / 100,
		EtaMinutes:          eta,
	}, nil
}

// remainingDistanceKm projects the position onto its nearest segment and
// sums the distance to the projection, the rest of that segment, and every
// segment after it.
func remainingDistanceKm(p geo.Point, route []geo.Point) (float64, error) {
	if len(route) == 0 {
		return 0, geo.ErrEmptyRoute
	}
	if len(route) == 1 {
		return geo.HaversineKm(p, route[0]), nil
	}

	nearestIndex, _, err := geo.NearestPointOnRoute(p, route)
	if err != nil {
		return 0, err
	}

	a := route[nearestIndex]
	b := route[nearestIndex+1]
	projected := geo.ProjectOntoSegment(p, a, b)

	remaining := geo.HaversineKm(p, projected)
	remaining += geo.HaversineKm(projected, b)

	for i := nearestIndex + 1; i < len(route)-1; i++ {
		remaining += geo.HaversineKm(route[i], route[i+1])
	}

	return remaining, nil
}
