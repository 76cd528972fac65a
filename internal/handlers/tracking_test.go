package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"geotrack-backend/internal/cache"
	"geotrack-backend/internal/geo"
	"geotrack-backend/internal/services/maps"
	"geotrack-backend/internal/services/tracking"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{}

func (stubProvider) GetRoute(_ context.Context, originLat, originLng, destLat, destLng float64) (*maps.Route, error) {
	polyline := geo.EncodePolyline([]geo.Point{
		{Lat: originLat, Lng: originLng},
		{Lat: destLat, Lng: destLng},
	})
	return &maps.Route{Polyline: polyline, DistanceKm: 2, DurationMinutes: 6}, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *tracking.Service) {
	t.Helper()
	tracker := tracking.NewService(
		tracking.NewSessionStore(cache.NewMemoryStore()),
		stubProvider{},
		nil,
		nil,
		tracking.Config{OffRouteThresholdMeters: 50, RerouteCooldown: time.Minute},
	)

	r := chi.NewRouter()
	r.Route("/api/tracking", func(r chi.Router) {
		r.Post("/start/{jobId}", StartTracking(tracker))
		r.Delete("/stop/{jobId}", StopTracking(tracker))
		r.Post("/push-location", PushLocation(tracker))
		r.Get("/current-location/{jobId}", GetCurrentLocation(tracker))
	})
	return r, tracker
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var testPolyline = geo.EncodePolyline([]geo.Point{
	{Lat: 0, Lng: 0},
	{Lat: 0, Lng: 0.1},
	{Lat: 0, Lng: 0.2},
})

func TestStartTrackingEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/tracking/start/job-1", StartTrackingRequest{
		Polyline:              testPolyline,
		TotalDistanceKm:       22.24,
		TotalEstimatedMinutes: 20,
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["job_id"])
}

func TestStartTrackingEndpointRejectsBadPolyline(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/tracking/start/job-1", StartTrackingRequest{Polyline: "}"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/tracking/start/job-1", StartTrackingRequest{Polyline: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPushLocationEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/tracking/start/job-1", StartTrackingRequest{
		Polyline:              testPolyline,
		TotalDistanceKm:       22.24,
		TotalEstimatedMinutes: 20,
	})

	rec := doJSON(t, router, http.MethodPost, "/api/tracking/push-location", tracking.PushRequest{
		JobID: "job-1",
		Lat:   0,
		Lng:   0.1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data tracking.PushResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.Data.JobID)
	require.NotNil(t, resp.Data.EtaMinutes)
	assert.Equal(t, 10, *resp.Data.EtaMinutes)
}

func TestPushLocationEndpointValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/tracking/push-location", tracking.PushRequest{Lat: 1, Lng: 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/tracking/push-location", tracking.PushRequest{JobID: "ghost", Lat: 1, Lng: 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/tracking/current-location/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCurrentLocationEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/tracking/start/job-1", StartTrackingRequest{
		Polyline:              testPolyline,
		TotalDistanceKm:       22.24,
		TotalEstimatedMinutes: 20,
	})

	// No position pushed yet: 200 with a null payload, not a 404.
	rec := doJSON(t, router, http.MethodGet, "/api/tracking/current-location/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "null", string(resp["data"]))

	doJSON(t, router, http.MethodPost, "/api/tracking/push-location", tracking.PushRequest{JobID: "job-1", Lat: 0, Lng: 0.05})

	rec = doJSON(t, router, http.MethodGet, "/api/tracking/current-location/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, "null", string(resp["data"]))
}

func TestStopTrackingEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/tracking/start/job-1", StartTrackingRequest{
		Polyline:              testPolyline,
		TotalDistanceKm:       22.24,
		TotalEstimatedMinutes: 20,
	})

	rec := doJSON(t, router, http.MethodDelete, "/api/tracking/stop/job-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/tracking/stop/job-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
