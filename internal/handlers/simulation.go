package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"geotrack-backend/internal/geo"
	"geotrack-backend/internal/services/tracking"
	"geotrack-backend/internal/simulation"
	"geotrack-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// SimulationRequest tunes a simulation run.
type SimulationRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// CustomRouteRequest drives a simulation along caller-supplied waypoints.
type CustomRouteRequest struct {
	IntervalSeconds int         `json:"interval_seconds"`
	Coordinates     []geo.Point `json:"coordinates"`
}

func simulationInterval(seconds int) time.Duration {
	if seconds <= 0 {
		return simulation.DefaultInterval
	}
	return time.Duration(seconds) * time.Second
}

// ensureDemoSession starts the demo tracking session for the job unless
// one is already active.
func ensureDemoSession(r *http.Request, tracker *tracking.Service, jobID string) error {
	exists, err := tracker.HasSession(r.Context(), jobID)
	if err != nil {
		return err
	}
	if !exists {
		return tracker.StartSession(r.Context(), jobID, simulation.DemoPolyline, simulation.DemoDistanceKm, simulation.DemoDurationMinutes)
	}
	return nil
}

// StartSimulation drives the demo route for a job at the given interval.
func StartSimulation(tracker *tracking.Service, runner *simulation.Runner) http.HandlerFunc {
	return simulationScenario(tracker, runner, simulation.DemoRoute)
}

// SimulateOffRoute drives waypoints that deviate from the planned route,
// exercising detection and (throttled) rerouting.
func SimulateOffRoute(tracker *tracking.Service, runner *simulation.Runner) http.HandlerFunc {
	return simulationScenario(tracker, runner, simulation.DemoOffRoute)
}

// SimulateThrottledReroute oscillates on and off the route faster than the
// reroute cooldown, so only the first deviation triggers a provider call.
func SimulateThrottledReroute(tracker *tracking.Service, runner *simulation.Runner) http.HandlerFunc {
	return simulationScenario(tracker, runner, simulation.DemoOscillating)
}

func simulationScenario(tracker *tracking.Service, runner *simulation.Runner, coords []geo.Point) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")

		var req SimulationRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // empty body = defaults
		}

		if err := ensureDemoSession(r, tracker, jobID); err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to prepare tracking session")
			return
		}

		interval := simulationInterval(req.IntervalSeconds)
		runner.Start(jobID, coords, interval)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"message":           "Simulation started",
			"job_id":            jobID,
			"total_coordinates": len(coords),
			"interval_seconds":  int(interval.Seconds()),
		})
	}
}

// SimulateCustomRoute drives caller-supplied waypoints against the job's
// existing session.
func SimulateCustomRoute(tracker *tracking.Service, runner *simulation.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")

		var req CustomRouteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if len(req.Coordinates) == 0 {
			utils.RespondError(w, http.StatusBadRequest, "coordinates are required")
			return
		}

		if err := ensureDemoSession(r, tracker, jobID); err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to prepare tracking session")
			return
		}

		interval := simulationInterval(req.IntervalSeconds)
		runner.Start(jobID, req.Coordinates, interval)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"message":           "Custom route simulation started",
			"job_id":            jobID,
			"total_coordinates": len(req.Coordinates),
			"interval_seconds":  int(interval.Seconds()),
		})
	}
}

// StopSimulation cancels a job's simulation run.
func StopSimulation(runner *simulation.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")

		if !runner.Stop(jobID) {
			utils.RespondError(w, http.StatusNotFound, "No active simulation for this job")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Simulation stopped",
			"job_id":  jobID,
		})
	}
}

// GetActiveSimulations lists jobs with a running simulation.
func GetActiveSimulations(runner *simulation.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"data": runner.Active(),
		})
	}
}
