package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"geotrack-backend/internal/database"
	"geotrack-backend/internal/geo"
	"geotrack-backend/internal/services/tracking"
	"geotrack-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// StartTrackingRequest carries the planned route for a job.
type StartTrackingRequest struct {
	Polyline              string  `json:"polyline"`
	TotalDistanceKm       float64 `json:"total_distance_km"`
	TotalEstimatedMinutes float64 `json:"total_estimated_minutes"`
}

// StartTracking installs the planned route and activates the session.
func StartTracking(tracker *tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")

		var req StartTrackingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		err := tracker.StartSession(r.Context(), jobID, req.Polyline, req.TotalDistanceKm, req.TotalEstimatedMinutes)
		if errors.Is(err, geo.ErrMalformedPolyline) {
			utils.RespondError(w, http.StatusBadRequest, "Malformed polyline")
			return
		}
		if errors.Is(err, geo.ErrEmptyRoute) {
			utils.RespondError(w, http.StatusBadRequest, "Route has no points")
			return
		}
		if err != nil {
			log.Printf("❌ Failed to start tracking for job %s: %v", jobID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to start tracking")
			return
		}

		utils.RespondJSON(w, http.StatusCreated, map[string]interface{}{
			"message": "Tracking started successfully",
			"job_id":  jobID,
		})
	}
}

// StopTracking finishes a session and evicts its cached state.
func StopTracking(tracker *tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")

		err := tracker.StopSession(r.Context(), jobID)
		if errors.Is(err, tracking.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "No tracking session for job")
			return
		}
		if err != nil {
			log.Printf("❌ Failed to stop tracking for job %s: %v", jobID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to stop tracking")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Tracking stopped successfully",
			"job_id":  jobID,
		})
	}
}

// PushLocation accepts a position ping and returns the updated estimates.
func PushLocation(tracker *tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tracking.PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.JobID == "" {
			utils.RespondError(w, http.StatusBadRequest, "job_id is required")
			return
		}

		result, err := tracker.PushPosition(r.Context(), req)
		if errors.Is(err, tracking.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "No tracking session for job")
			return
		}
		if err != nil {
			log.Printf("❌ Failed to push location for job %s: %v", req.JobID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to process location")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Location updated successfully",
			"data":    result,
		})
	}
}

// GetCurrentLocation returns the last accepted live state for a job, or a
// null payload when the session is active but no position was ever pushed.
func GetCurrentLocation(tracker *tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")

		exists, err := tracker.HasSession(r.Context(), jobID)
		if err != nil {
			log.Printf("❌ Failed to read session for job %s: %v", jobID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to read location")
			return
		}
		if !exists {
			utils.RespondError(w, http.StatusNotFound, "No tracking session for job")
			return
		}

		state, err := tracker.GetCurrentLocation(r.Context(), jobID)
		if err != nil {
			log.Printf("❌ Failed to read location for job %s: %v", jobID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to read location")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"data": state,
		})
	}
}

// GetDeliveryRoute returns the durable copy of a job's active route. The
// copy survives cache eviction, so it keeps answering after tracking stops.
func GetDeliveryRoute(store *database.RouteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")

		if store == nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "Durable route storage is not configured")
			return
		}

		route, err := store.GetRoute(r.Context(), jobID)
		if err != nil {
			log.Printf("❌ Failed to read route for job %s: %v", jobID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to read route")
			return
		}
		if route == nil {
			utils.RespondError(w, http.StatusNotFound, "No stored route for job")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"data": route,
		})
	}
}
