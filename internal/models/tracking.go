package models

import "geotrack-backend/internal/geo"

// SessionState is the lifecycle state of a tracked job.
type SessionState string

const (
	StateNotStarted SessionState = "not_started"
	StateActive     SessionState = "active"
	StateOffRoute   SessionState = "off_route"
	StateRerouting  SessionState = "rerouting"
	StateArrived    SessionState = "arrived"
	StateFinished   SessionState = "finished"
)

// RouteChangeReason explains why a polyline was installed for a job.
type RouteChangeReason string

const (
	ReasonInitial       RouteChangeReason = "initial"
	ReasonReroute       RouteChangeReason = "reroute"
	ReasonManualReroute RouteChangeReason = "manual_reroute"
)

// Route is a decoded polyline with trip-level metadata. Immutable once
// built; replaced wholesale on reroute.
type Route struct {
	Polyline              string      `json:"polyline"`
	Points                []geo.Point `json:"-"`
	TotalDistanceKm       float64     `json:"total_distance_km"`
	TotalEstimatedMinutes float64     `json:"total_estimated_minutes"`
}

// RouteChangeLogEntry records one polyline installation for a job.
// Entries are kept newest-first, bounded to the most recent few.
type RouteChangeLogEntry struct {
	Polyline                        string            `json:"polyline"`
	Timestamp                       int64             `json:"timestamp"`
	Reason                          RouteChangeReason `json:"reason"`
	DistanceFromPreviousRouteMeters *float64          `json:"distance_from_previous_route_meters,omitempty"`
}

// LiveState is the last accepted position of a job plus derived estimates.
// Estimate fields are nil when the current route cannot be measured
// (empty route), never zero.
type LiveState struct {
	Lat                 float64  `json:"lat"`
	Lng                 float64  `json:"lng"`
	Timestamp           int64    `json:"timestamp"`
	RemainingDistanceKm *float64 `json:"remaining_distance_km"`
	EtaMinutes          *int     `json:"eta_minutes"`
	IsOffRoute          bool     `json:"is_off_route"`
	LastRerouteAt       int64    `json:"last_reroute_at,omitempty"`
}

// BroadcastLocation is the location payload of a tracking update.
type BroadcastLocation struct {
	Lat                 float64  `json:"lat"`
	Lng                 float64  `json:"lng"`
	Polyline            string   `json:"polyline"`
	RemainingDistanceKm *float64 `json:"remainingDistanceKm"`
	EtaMinutes          *int     `json:"etaMinutes"`
	Timestamp           int64    `json:"timestamp"`
}

// TrackingUpdate is the wire shape fanned out to subscribers of a job.
type TrackingUpdate struct {
	JobID    string            `json:"jobId"`
	Location BroadcastLocation `json:"location"`
	OffRoute bool              `json:"offRoute"`
	Rerouted bool              `json:"rerouted"`
}
