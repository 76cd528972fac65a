package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"geotrack-backend/internal/cache"
	"geotrack-backend/internal/geo"
	"geotrack-backend/internal/models"
	"geotrack-backend/internal/services/maps"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider counts calls and serves a canned route from the requested
// origin to the requested destination, or the override polyline when set.
type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	err      error
	override string
}

func (p *fakeProvider) GetRoute(_ context.Context, originLat, originLng, destLat, destLng float64) (*maps.Route, error) {
	p.mu.Lock()
	p.calls++
	err := p.err
	override := p.override
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	polyline := override
	if polyline == "" {
		polyline = geo.EncodePolyline([]geo.Point{
			{Lat: originLat, Lng: originLng},
			{Lat: destLat, Lng: destLng},
		})
	}
	return &maps.Route{Polyline: polyline, DistanceKm: 3.1, DurationMinutes: 9}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeBroadcaster records every published update.
type fakeBroadcaster struct {
	mu      sync.Mutex
	updates []models.TrackingUpdate
}

func (b *fakeBroadcaster) Publish(_ string, update interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tu, ok := update.(models.TrackingUpdate); ok {
		b.updates = append(b.updates, tu)
	}
}

func (b *fakeBroadcaster) last() (models.TrackingUpdate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.updates) == 0 {
		return models.TrackingUpdate{}, false
	}
	return b.updates[len(b.updates)-1], true
}

// Straight equatorial test route with known geometry.
var testRoutePoints = []geo.Point{
	{Lat: 0, Lng: 0},
	{Lat: 0, Lng: 0.1},
	{Lat: 0, Lng: 0.2},
}

func newTestService(t *testing.T, provider maps.RouteProvider) (*Service, *fakeBroadcaster) {
	t.Helper()
	bc := &fakeBroadcaster{}
	svc := NewService(NewSessionStore(cache.NewMemoryStore()), provider, bc, nil, Config{
		OffRouteThresholdMeters: 50,
		RerouteCooldown:         60 * time.Second,
	})
	svc.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc, bc
}

func startTestSession(t *testing.T, svc *Service, jobID string) string {
	t.Helper()
	polyline := geo.EncodePolyline(testRoutePoints)
	require.NoError(t, svc.StartSession(context.Background(), jobID, polyline, 22.24, 20))
	return polyline
}

func TestPushPositionOnRoute(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, bc := newTestService(t, provider)
	startTestSession(t, svc, "job-1")

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0, Lng: 0.1})
	require.NoError(t, err)

	assert.Equal(t, models.StateActive, res.State)
	assert.False(t, res.IsOffRoute)
	assert.False(t, res.Rerouted)
	require.NotNil(t, res.RemainingDistanceKm)
	assert.InDelta(t, 11.12, *res.RemainingDistanceKm, 0.2)
	require.NotNil(t, res.EtaMinutes)
	assert.Equal(t, 10, *res.EtaMinutes)
	assert.Zero(t, provider.callCount())

	update, ok := bc.last()
	require.True(t, ok)
	assert.Equal(t, "job-1", update.JobID)
	assert.False(t, update.OffRoute)
}

func TestPushPositionUnknownJob(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	_, err := svc.PushPosition(context.Background(), PushRequest{JobID: "ghost", Lat: 0, Lng: 0})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPushPositionArrival(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeProvider{})
	startTestSession(t, svc, "job-1")

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0, Lng: 0.2})
	require.NoError(t, err)

	assert.Equal(t, models.StateArrived, res.State)
	require.NotNil(t, res.RemainingDistanceKm)
	assert.Zero(t, *res.RemainingDistanceKm)
	require.NotNil(t, res.EtaMinutes)
	assert.Zero(t, *res.EtaMinutes)

	// Later pings keep reporting arrival without re-running detection.
	res, err = svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0, Lng: 0.19})
	require.NoError(t, err)
	assert.Equal(t, models.StateArrived, res.State)
	assert.Zero(t, *res.RemainingDistanceKm)
	assert.False(t, res.IsOffRoute)
}

func TestPushPositionReroute(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, bc := newTestService(t, provider)
	original := startTestSession(t, svc, "job-1")

	// About 1.1 km north of the route, far past the 50m threshold.
	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.01, Lng: 0.1})
	require.NoError(t, err)

	assert.True(t, res.Rerouted)
	assert.Equal(t, 1, provider.callCount())
	assert.NotEqual(t, original, res.Polyline)
	// The fresh route starts at the current position, so the driver is back
	// on track.
	assert.False(t, res.IsOffRoute)
	assert.Equal(t, models.StateActive, res.State)

	update, ok := bc.last()
	require.True(t, ok)
	assert.True(t, update.Rerouted)
	assert.Equal(t, res.Polyline, update.Location.Polyline)
}

func TestPushPositionRerouteThrottled(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider)
	startTestSession(t, svc, "job-1")

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.01, Lng: 0.1})
	require.NoError(t, err)
	require.True(t, res.Rerouted)
	require.Equal(t, 1, provider.callCount())

	// Off the fresh route too, still inside the cooldown window: no second
	// provider call, the stale route keeps serving.
	res, err = svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.03, Lng: 0.05})
	require.NoError(t, err)

	assert.False(t, res.Rerouted)
	assert.True(t, res.IsOffRoute)
	assert.Equal(t, models.StateOffRoute, res.State)
	assert.Equal(t, 1, provider.callCount())
	assert.NotNil(t, res.RemainingDistanceKm)
}

func TestPushPositionRerouteAfterCooldown(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider)
	startTestSession(t, svc, "job-1")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.01, Lng: 0.1})
	require.NoError(t, err)
	require.True(t, res.Rerouted)

	now = now.Add(61 * time.Second)
	res, err = svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.03, Lng: 0.05})
	require.NoError(t, err)

	assert.True(t, res.Rerouted)
	assert.Equal(t, 2, provider.callCount())
}

func TestPushPositionProviderFailure(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{err: &maps.ProviderError{Err: errors.New("timeout")}}
	svc, _ := newTestService(t, provider)
	original := startTestSession(t, svc, "job-1")

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.01, Lng: 0.1})
	require.NoError(t, err)

	// Degraded, not broken: off-route recorded, stale route still serving
	// estimates.
	assert.False(t, res.Rerouted)
	assert.True(t, res.IsOffRoute)
	assert.Equal(t, models.StateOffRoute, res.State)
	assert.Equal(t, original, res.Polyline)
	assert.NotNil(t, res.RemainingDistanceKm)
	assert.Equal(t, 1, provider.callCount())
}

func TestPushPositionRejectsUnusableProviderRoute(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{override: "}"}
	svc, _ := newTestService(t, provider)
	original := startTestSession(t, svc, "job-1")

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.01, Lng: 0.1})
	require.NoError(t, err)

	// The broken polyline never reaches the session: the known-good route
	// keeps serving detection and estimates.
	assert.False(t, res.Rerouted)
	assert.True(t, res.IsOffRoute)
	assert.Equal(t, models.StateOffRoute, res.State)
	assert.Equal(t, original, res.Polyline)
	require.NotNil(t, res.RemainingDistanceKm)
	assert.Equal(t, 1, provider.callCount())

	// A failed install consumes no cooldown, so the next deviation retries
	// the provider right away.
	res, err = svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.01, Lng: 0.1})
	require.NoError(t, err)
	assert.False(t, res.Rerouted)
	assert.Equal(t, 2, provider.callCount())

	// Once the provider recovers, the same deviation reroutes normally.
	provider.mu.Lock()
	provider.override = ""
	provider.mu.Unlock()

	res, err = svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.01, Lng: 0.1})
	require.NoError(t, err)
	assert.True(t, res.Rerouted)
	assert.False(t, res.IsOffRoute)
	assert.Equal(t, 3, provider.callCount())
}

func TestPushPositionUnreadableCachedRouteKeepsState(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeProvider{})
	require.NoError(t, svc.sessions.Save(ctx, &Session{
		JobID:                 "job-1",
		State:                 models.StateOffRoute,
		Polyline:              "}",
		TotalDistanceKm:       5.2,
		TotalEstimatedMinutes: 15,
	}))

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0, Lng: 0})
	require.NoError(t, err)

	// Nothing was measured, so the state does not flip to active and the
	// estimates stay unknown.
	assert.Equal(t, models.StateOffRoute, res.State)
	assert.False(t, res.IsOffRoute)
	assert.Nil(t, res.RemainingDistanceKm)
	assert.Nil(t, res.EtaMinutes)
}

func TestPushPositionManualOverride(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider)
	startTestSession(t, svc, "job-1")

	// Client supplies a replacement route passing through the off-route
	// position, so no server reroute fires.
	override := geo.EncodePolyline([]geo.Point{
		{Lat: 0.01, Lng: 0},
		{Lat: 0.01, Lng: 0.1},
		{Lat: 0, Lng: 0.2},
	})

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0.01, Lng: 0.1, Polyline: override})
	require.NoError(t, err)

	assert.Equal(t, override, res.Polyline)
	assert.False(t, res.IsOffRoute)
	assert.False(t, res.Rerouted)
	assert.Zero(t, provider.callCount())
}

func TestPushPositionMalformedManualOverrideKeepsRoute(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeProvider{})
	original := startTestSession(t, svc, "job-1")

	res, err := svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0, Lng: 0.1, Polyline: "}"})
	require.NoError(t, err)
	assert.Equal(t, original, res.Polyline)
	assert.False(t, res.IsOffRoute)
}

func TestGetCurrentLocation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeProvider{})
	startTestSession(t, svc, "job-1")

	loc, err := svc.GetCurrentLocation(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, loc)

	_, err = svc.PushPosition(ctx, PushRequest{JobID: "job-1", Lat: 0, Lng: 0.05})
	require.NoError(t, err)

	loc, err = svc.GetCurrentLocation(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, 0.05, loc.Lng)
	assert.NotNil(t, loc.RemainingDistanceKm)
}

func TestStartSessionRejectsBadPolyline(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	err := svc.StartSession(context.Background(), "job-1", "}", 1, 1)
	assert.ErrorIs(t, err, geo.ErrMalformedPolyline)

	err = svc.StartSession(context.Background(), "job-1", "", 1, 1)
	assert.ErrorIs(t, err, geo.ErrEmptyRoute)
}

func TestStopSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeProvider{})
	startTestSession(t, svc, "job-1")

	ok, err := svc.HasSession(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.StopSession(ctx, "job-1"))

	ok, err = svc.HasSession(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.StopSession(ctx, "job-1"), ErrSessionNotFound)
}
