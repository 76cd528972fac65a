package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"geotrack-backend/internal/cache"
	"geotrack-backend/internal/models"
)

// ErrSessionNotFound is returned when no tracking session exists for a job.
var ErrSessionNotFound = errors.New("no tracking session for job")

// routeLogCapacity bounds the route change log per job.
const routeLogCapacity = 10

// routeLog is a fixed-capacity ring of route changes, newest first. When
// full, appending overwrites the oldest entry in place.
type routeLog struct {
	entries [routeLogCapacity]models.RouteChangeLogEntry
	head    int // slot of the newest entry
	count   int
}

func (l *routeLog) append(e models.RouteChangeLogEntry) {
	if l.count > 0 {
		l.head = (l.head + routeLogCapacity - 1) % routeLogCapacity
	}
	l.entries[l.head] = e
	if l.count < routeLogCapacity {
		l.count++
	}
}

// newestFirst returns the logged entries ordered newest to oldest.
func (l *routeLog) newestFirst() []models.RouteChangeLogEntry {
	out := make([]models.RouteChangeLogEntry, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.entries[(l.head+i)%routeLogCapacity])
	}
	return out
}

func routeLogFrom(entries []models.RouteChangeLogEntry) routeLog {
	var l routeLog
	// Rebuild oldest-first so the ring ends up in the original order.
	for i := len(entries) - 1; i >= 0; i-- {
		l.append(entries[i])
	}
	return l
}

// Session is the authoritative tracking context for one job: the current
// route, its destination, the state machine position and the route change
// history.
type Session struct {
	JobID                 string
	State                 models.SessionState
	Polyline              string
	TotalDistanceKm       float64
	TotalEstimatedMinutes float64
	DestLat               float64
	DestLng               float64
	LastRerouteAt         int64 // unix seconds, 0 if never rerouted
	Log                   routeLog
}

// LogRouteChange appends an entry to the session's bounded change log.
func (s *Session) LogRouteChange(e models.RouteChangeLogEntry) {
	s.Log.append(e)
}

// sessionRecord is the JSON shape cached under details_{jobId}.
type sessionRecord struct {
	JobID                 string                       `json:"job_id"`
	State                 models.SessionState          `json:"state"`
	Polyline              string                       `json:"polyline"`
	TotalDistanceKm       float64                      `json:"total_distance_km"`
	TotalEstimatedMinutes float64                      `json:"total_estimated_minutes"`
	DestLat               float64                      `json:"dest_lat"`
	DestLng               float64                      `json:"dest_lng"`
	LastRerouteAt         int64                        `json:"last_reroute_at,omitempty"`
	RouteLog              []models.RouteChangeLogEntry `json:"route_log"`
}

// SessionStore is the single writer of session and location state, backed
// by the shared key-value cache. Every mutation for a job happens under
// that job's mutex; different jobs proceed in parallel.
type SessionStore struct {
	store cache.Store

	mu    sync.Mutex
	locks map[string]*jobLock
}

// jobLock is a refcounted per-job mutex. The entry stays in the map while
// any goroutine holds or waits on it, so two writers can never end up on
// different mutexes for the same job.
type jobLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionStore wraps a cache.Store with per-job serialization.
func NewSessionStore(store cache.Store) *SessionStore {
	return &SessionStore{
		store: store,
		locks: make(map[string]*jobLock),
	}
}

func detailsKey(jobID string) string {
	return fmt.Sprintf("details_%s", jobID)
}

func locationKey(jobID string) string {
	return fmt.Sprintf("currentLoc_%s", jobID)
}

// Lock acquires the per-job mutex and returns the unlock func. The caller
// holds it for the whole push pipeline, including the provider call, so at
// most one reroute is in flight per job. The map entry is dropped once the
// last holder or waiter releases it.
func (s *SessionStore) Lock(jobID string) func() {
	s.mu.Lock()
	l, ok := s.locks[jobID]
	if !ok {
		l = &jobLock{}
		s.locks[jobID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, jobID)
		}
		s.mu.Unlock()
	}
}

// Load reads a job's session. Returns ErrSessionNotFound when the job has
// no cached session.
func (s *SessionStore) Load(ctx context.Context, jobID string) (*Session, error) {
	var rec sessionRecord
	err := s.store.GetJSON(ctx, detailsKey(jobID), &rec)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", jobID, err)
	}

	return &Session{
		JobID:                 rec.JobID,
		State:                 rec.State,
		Polyline:              rec.Polyline,
		TotalDistanceKm:       rec.TotalDistanceKm,
		TotalEstimatedMinutes: rec.TotalEstimatedMinutes,
		DestLat:               rec.DestLat,
		DestLng:               rec.DestLng,
		LastRerouteAt:         rec.LastRerouteAt,
		Log:                   routeLogFrom(rec.RouteLog),
	}, nil
}

// Save writes a job's session back to the cache.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	rec := sessionRecord{
		JobID:                 sess.JobID,
		State:                 sess.State,
		Polyline:              sess.Polyline,
		TotalDistanceKm:       sess.TotalDistanceKm,
		TotalEstimatedMinutes: sess.TotalEstimatedMinutes,
		DestLat:               sess.DestLat,
		DestLng:               sess.DestLng,
		LastRerouteAt:         sess.LastRerouteAt,
		RouteLog:              sess.Log.newestFirst(),
	}
	if err := s.store.SetJSON(ctx, detailsKey(sess.JobID), rec); err != nil {
		return fmt.Errorf("save session %s: %w", sess.JobID, err)
	}
	return nil
}

// SaveLocation overwrites the job's live state in one write, so readers
// never observe a partial update.
func (s *SessionStore) SaveLocation(ctx context.Context, jobID string, state models.LiveState) error {
	if err := s.store.SetJSON(ctx, locationKey(jobID), state); err != nil {
		return fmt.Errorf("save location %s: %w", jobID, err)
	}
	return nil
}

// LoadLocation reads the job's last accepted live state, or nil when no
// position was ever pushed.
func (s *SessionStore) LoadLocation(ctx context.Context, jobID string) (*models.LiveState, error) {
	var state models.LiveState
	err := s.store.GetJSON(ctx, locationKey(jobID), &state)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load location %s: %w", jobID, err)
	}
	return &state, nil
}

// Delete evicts a job's session and live state from the cache. The job's
// lock entry retires itself when its last holder releases it.
func (s *SessionStore) Delete(ctx context.Context, jobID string) error {
	if err := s.store.Delete(ctx, detailsKey(jobID)); err != nil {
		return fmt.Errorf("delete session %s: %w", jobID, err)
	}
	if err := s.store.Delete(ctx, locationKey(jobID)); err != nil {
		return fmt.Errorf("delete location %s: %w", jobID, err)
	}
	return nil
}
