// Package simulation drives scripted position pings through the tracking
// engine, one run per job, with deterministic start and stop.
package simulation

import (
	"context"
	"log"
	"sync"
	"time"

	"geotrack-backend/internal/geo"
	"geotrack-backend/internal/models"
	"geotrack-backend/internal/services/tracking"
)

// DefaultInterval between simulated pings.
const DefaultInterval = 3 * time.Second

// Runner owns every active simulation. It replaces ambient per-job timers
// with an explicit registry: a run exists exactly between Start and Stop
// (or its own completion).
type Runner struct {
	tracker *tracking.Service

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a Runner driving the given tracking service.
func NewRunner(tracker *tracking.Service) *Runner {
	return &Runner{
		tracker: tracker,
		runs:    make(map[string]*run),
	}
}

// Start begins pushing the given coordinates for a job at the given
// interval. An existing run for the job is stopped first.
func (r *Runner) Start(jobID string, coords []geo.Point, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	r.Stop(jobID)

	ctx, cancel := context.WithCancel(context.Background())
	active := &run{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.runs[jobID] = active
	r.mu.Unlock()

	go r.drive(ctx, active, jobID, coords, interval)
	log.Printf("▶️  Simulation started for job %s: %d coordinates every %s", jobID, len(coords), interval)
}

// Stop cancels a job's simulation and waits until its loop has exited, so
// no further pings are processed after Stop returns. Reports whether a run
// was active.
func (r *Runner) Stop(jobID string) bool {
	r.mu.Lock()
	active, ok := r.runs[jobID]
	if ok {
		delete(r.runs, jobID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	active.cancel()
	<-active.done
	log.Printf("⏹️  Simulation stopped for job %s", jobID)
	return true
}

// Active lists the job ids with a running simulation.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.runs))
	for jobID := range r.runs {
		ids = append(ids, jobID)
	}
	return ids
}

func (r *Runner) drive(ctx context.Context, active *run, jobID string, coords []geo.Point, interval time.Duration) {
	defer close(active.done)
	defer r.remove(jobID, active)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i, coord := range coords {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result, err := r.tracker.PushPosition(ctx, tracking.PushRequest{
			JobID: jobID,
			Lat:   coord.Lat,
			Lng:   coord.Lng,
		})
		if err != nil {
			// Session gone (stopped or never started): end the run.
			log.Printf("⚠️  [%s] simulation ping %d/%d failed: %v", jobID, i+1, len(coords), err)
			return
		}

		log.Printf("📍 [%s] simulated ping %d/%d (off_route=%t rerouted=%t)", jobID, i+1, len(coords), result.IsOffRoute, result.Rerouted)

		if result.State == models.StateArrived {
			log.Printf("✓ [%s] simulation reached destination", jobID)
			return
		}
	}

	log.Printf("✓ [%s] simulation completed", jobID)
}

// remove clears the registry entry if this run still owns it.
func (r *Runner) remove(jobID string, active *run) {
	r.mu.Lock()
	if r.runs[jobID] == active {
		delete(r.runs, jobID)
	}
	r.mu.Unlock()
}
