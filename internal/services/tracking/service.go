package tracking

import (
	"context"
	"errors"
	"log"
	"time"

	"geotrack-backend/internal/geo"
	"geotrack-backend/internal/models"
	"geotrack-backend/internal/services/maps"
)

// Broadcaster fans a tracking update out to every subscriber of a job.
// Delivery is best-effort.
type Broadcaster interface {
	Publish(jobID string, update interface{})
}

// RouteRepository is the durable persistence collaborator. A copy of the
// active route is written opportunistically after start and after each
// successful reroute; failures are logged and never block tracking.
type RouteRepository interface {
	SaveRoute(ctx context.Context, jobID, polyline string, distanceKm, durationMinutes float64) error
}

// Config tunes the tracking engine.
type Config struct {
	OffRouteThresholdMeters float64
	RerouteCooldown         time.Duration
}

// Service orchestrates the push pipeline: off-route detection, throttled
// rerouting, session updates, progress estimation and broadcast.
type Service struct {
	sessions    *SessionStore
	provider    maps.RouteProvider
	throttle    *RerouteThrottle
	broadcaster Broadcaster
	routes      RouteRepository // nil when no database is configured

	thresholdMeters float64
	now             func() time.Time
}

// NewService wires the tracking engine. routes may be nil.
func NewService(sessions *SessionStore, provider maps.RouteProvider, broadcaster Broadcaster, routes RouteRepository, cfg Config) *Service {
	threshold := cfg.OffRouteThresholdMeters
	if threshold <= 0 {
		threshold = DefaultOffRouteThresholdMeters
	}

	return &Service{
		sessions:        sessions,
		provider:        provider,
		throttle:        NewRerouteThrottle(cfg.RerouteCooldown),
		broadcaster:     broadcaster,
		routes:          routes,
		thresholdMeters: threshold,
		now:             time.Now,
	}
}

// PushRequest is one inbound position ping. Polyline, when set, is a manual
// route override. OffRouteHint is client-side telemetry only; server-side
// detection stays authoritative.
type PushRequest struct {
	JobID        string  `json:"job_id"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Polyline     string  `json:"polyline,omitempty"`
	OffRouteHint *bool   `json:"is_off_route,omitempty"`
}

// PushResult reports the outcome of one accepted ping. Estimate fields are
// nil when the current route cannot be measured.
type PushResult struct {
	JobID               string              `json:"job_id"`
	State               models.SessionState `json:"state"`
	RemainingDistanceKm *float64            `json:"remaining_distance_km"`
	EtaMinutes          *int                `json:"eta_minutes"`
	IsOffRoute          bool                `json:"is_off_route"`
	Rerouted            bool                `json:"rerouted"`
	Polyline            string              `json:"polyline"`
	Timestamp           int64               `json:"timestamp"`
}

// StartSession installs the planned route for a job and activates tracking.
// The route's last point becomes the reroute destination.
func (s *Service) StartSession(ctx context.Context, jobID, polyline string, totalDistanceKm, totalEstimatedMinutes float64) error {
	points, err := geo.DecodePolyline(polyline)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return geo.ErrEmptyRoute
	}

	unlock := s.sessions.Lock(jobID)
	defer unlock()

	dest := points[len(points)-1]
	sess := &Session{
		JobID:                 jobID,
		State:                 models.StateActive,
		Polyline:              polyline,
		TotalDistanceKm:       totalDistanceKm,
		TotalEstimatedMinutes: totalEstimatedMinutes,
		DestLat:               dest.Lat,
		DestLng:               dest.Lng,
	}
	sess.LogRouteChange(models.RouteChangeLogEntry{
		Polyline:  polyline,
		Timestamp: s.now().Unix(),
		Reason:    models.ReasonInitial,
	})

	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}

	s.persistRoute(ctx, jobID, polyline, totalDistanceKm, totalEstimatedMinutes)
	log.Printf("🚚 Tracking started for job %s (%.2f km, %.0f min)", jobID, totalDistanceKm, totalEstimatedMinutes)
	return nil
}

// StopSession finishes tracking for a job and evicts its cached state.
// No pings are processed for the job after this returns.
func (s *Service) StopSession(ctx context.Context, jobID string) error {
	unlock := s.sessions.Lock(jobID)
	defer unlock()

	if _, err := s.sessions.Load(ctx, jobID); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, jobID); err != nil {
		return err
	}

	log.Printf("🏁 Tracking stopped for job %s", jobID)
	return nil
}

// HasSession reports whether a tracking session exists for the job.
func (s *Service) HasSession(ctx context.Context, jobID string) (bool, error) {
	_, err := s.sessions.Load(ctx, jobID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetCurrentLocation returns the job's last accepted state, or nil when no
// position was ever pushed. Lock-free: it reads the atomically-written
// location key only.
func (s *Service) GetCurrentLocation(ctx context.Context, jobID string) (*models.LiveState, error) {
	return s.sessions.LoadLocation(ctx, jobID)
}

// PushPosition runs the full pipeline for one ping. The per-job lock is
// held end to end, provider call included, so reroutes never interleave
// for the same job.
func (s *Service) PushPosition(ctx context.Context, req PushRequest) (*PushResult, error) {
	unlock := s.sessions.Lock(req.JobID)
	defer unlock()

	sess, err := s.sessions.Load(ctx, req.JobID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	position := geo.Point{Lat: req.Lat, Lng: req.Lng}

	if sess.State == models.StateArrived {
		return s.finishPing(ctx, sess, position, now, arrivedOutcome())
	}

	// Manual route override: install the client-supplied polyline before
	// detection so the rest of the ping runs against it.
	if req.Polyline != "" && req.Polyline != sess.Polyline {
		if _, err := geo.DecodePolyline(req.Polyline); err != nil {
			log.Printf("⚠️  Job %s: manual polyline rejected (%v), keeping current route", req.JobID, err)
		} else {
			sess.LogRouteChange(models.RouteChangeLogEntry{
				Polyline:  req.Polyline,
				Timestamp: now.Unix(),
				Reason:    models.ReasonManualReroute,
			})
			sess.Polyline = req.Polyline
			s.persistRoute(ctx, sess.JobID, sess.Polyline, sess.TotalDistanceKm, sess.TotalEstimatedMinutes)
			log.Printf("🔄 Job %s: manual route override installed", req.JobID)
		}
	}

	points, err := geo.DecodePolyline(sess.Polyline)
	if err != nil {
		// Recoverable: the cached polyline is the last known-good route,
		// so a decode failure leaves estimates unknown for this ping.
		log.Printf("❌ Job %s: cached polyline malformed: %v", req.JobID, err)
		points = nil
	}

	outcome := pingOutcome{}
	offRoute, deviationMeters := CheckOffRoute(position, points, s.thresholdMeters)
	outcome.offRoute = offRoute

	if offRoute {
		sess.State = models.StateOffRoute
		log.Printf("⚠️  Job %s off route: %.1fm from polyline (threshold %.0fm)", req.JobID, deviationMeters, s.thresholdMeters)

		var lastReroute time.Time
		if sess.LastRerouteAt > 0 {
			lastReroute = time.Unix(sess.LastRerouteAt, 0)
		}
		if s.throttle.Allow(lastReroute, now) {
			points = s.attemptReroute(ctx, sess, position, deviationMeters, now, &outcome, points)
		} else {
			log.Printf("⏳ Job %s: reroute throttled, keeping stale route", req.JobID)
		}
	} else if len(points) >= 2 {
		// Only a measurable route can vouch for the driver being on track.
		sess.State = models.StateActive
	}

	return s.finishPing(ctx, sess, position, now, outcome)
}

// pingOutcome accumulates what happened during one ping.
type pingOutcome struct {
	offRoute bool
	rerouted bool
	arrived  bool
}

func arrivedOutcome() pingOutcome {
	return pingOutcome{arrived: true}
}

// attemptReroute asks the provider for a fresh route from the current
// position to the session destination. On failure the session stays on the
// stale route in the off-route state. Returns the points the rest of the
// ping should estimate against.
func (s *Service) attemptReroute(ctx context.Context, sess *Session, position geo.Point, deviationMeters float64, now time.Time, outcome *pingOutcome, stale []geo.Point) []geo.Point {
	sess.State = models.StateRerouting

	route, err := s.provider.GetRoute(ctx, position.Lat, position.Lng, sess.DestLat, sess.DestLng)
	if err != nil {
		// Degraded: keep the stale route, retry on the next natural
		// off-route trigger.
		log.Printf("❌ Job %s: reroute failed: %v", sess.JobID, err)
		sess.State = models.StateOffRoute
		return stale
	}

	// Validate before installing anything: an unusable polyline is handled
	// exactly like a provider failure, so the known-good route keeps serving
	// and the cooldown is not consumed.
	newPoints, err := geo.DecodePolyline(route.Polyline)
	if err != nil || len(newPoints) < 2 {
		log.Printf("❌ Job %s: provider returned unusable polyline: %v", sess.JobID, err)
		sess.State = models.StateOffRoute
		return stale
	}

	deviation := deviationMeters
	sess.LogRouteChange(models.RouteChangeLogEntry{
		Polyline:                        route.Polyline,
		Timestamp:                       now.Unix(),
		Reason:                          models.ReasonReroute,
		DistanceFromPreviousRouteMeters: &deviation,
	})

	sess.Polyline = route.Polyline
	sess.TotalDistanceKm = route.DistanceKm
	sess.TotalEstimatedMinutes = route.DurationMinutes
	sess.LastRerouteAt = now.Unix()
	sess.State = models.StateActive
	outcome.rerouted = true

	s.persistRoute(ctx, sess.JobID, sess.Polyline, sess.TotalDistanceKm, sess.TotalEstimatedMinutes)
	log.Printf("✅ Job %s rerouted: %.2f km (%.0f min)", sess.JobID, route.DistanceKm, route.DurationMinutes)

	// Re-check against the fresh route; a route from the current position
	// normally puts the driver back on track.
	offRoute, _ := CheckOffRoute(position, newPoints, s.thresholdMeters)
	outcome.offRoute = offRoute
	if offRoute {
		sess.State = models.StateOffRoute
	}
	return newPoints
}

// finishPing runs the estimator, persists live state and fans the update
// out to subscribers.
func (s *Service) finishPing(ctx context.Context, sess *Session, position geo.Point, now time.Time, outcome pingOutcome) (*PushResult, error) {
	var remaining *float64
	var eta *int

	if outcome.arrived {
		zeroKm, zeroMin := 0.0, 0
		remaining, eta = &zeroKm, &zeroMin
	} else {
		points, err := geo.DecodePolyline(sess.Polyline)
		if err == nil {
			est, estErr := EstimateProgress(position, points, sess.TotalDistanceKm, sess.TotalEstimatedMinutes)
			if estErr == nil {
				remaining = &est.RemainingDistanceKm
				eta = &est.EtaMinutes
				if est.Arrived {
					outcome.arrived = true
					sess.State = models.StateArrived
					log.Printf("🏁 Job %s arrived at destination", sess.JobID)
				}
			} else {
				// Cannot estimate: report unknown rather than zero.
				log.Printf("⚠️  Job %s: cannot estimate progress: %v", sess.JobID, estErr)
			}
		}
	}

	state := models.LiveState{
		Lat:                 position.Lat,
		Lng:                 position.Lng,
		Timestamp:           now.Unix(),
		RemainingDistanceKm: remaining,
		EtaMinutes:          eta,
		IsOffRoute:          outcome.offRoute,
		LastRerouteAt:       sess.LastRerouteAt,
	}

	if err := s.sessions.SaveLocation(ctx, sess.JobID, state); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.Publish(sess.JobID, models.TrackingUpdate{
			JobID: sess.JobID,
			Location: models.BroadcastLocation{
				Lat:                 state.Lat,
				Lng:                 state.Lng,
				Polyline:            sess.Polyline,
				RemainingDistanceKm: remaining,
				EtaMinutes:          eta,
				Timestamp:           state.Timestamp,
			},
			OffRoute: outcome.offRoute,
			Rerouted: outcome.rerouted,
		})
	}

	return &PushResult{
		JobID:               sess.JobID,
		State:               sess.State,
		RemainingDistanceKm: remaining,
		EtaMinutes:          eta,
		IsOffRoute:          outcome.offRoute,
		Rerouted:            outcome.rerouted,
		Polyline:            sess.Polyline,
		Timestamp:           state.Timestamp,
	}, nil
}

func (s *Service) persistRoute(ctx context.Context, jobID, polyline string, distanceKm, durationMinutes float64) {
	if s.routes == nil {
		return
	}
	if err := s.routes.SaveRoute(ctx, jobID, polyline, distanceKm, durationMinutes); err != nil {
		log.Printf("⚠️  Job %s: durable route write failed: %v", jobID, err)
	}
}
