// Package maps talks to the external routing provider (Google Directions
// API) to fetch a fresh route between two coordinates.
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Route is the provider's answer: an encoded polyline plus trip totals.
type Route struct {
	Polyline        string
	DistanceKm      float64
	DurationMinutes float64
}

// RouteProvider fetches a route from origin to destination. Implemented by
// DirectionsClient in production and by fakes in tests.
type RouteProvider interface {
	GetRoute(ctx context.Context, originLat, originLng, destLat, destLng float64) (*Route, error)
}

// ProviderError wraps any failure talking to the routing provider: network,
// timeout, non-200 status or a rejected request. Callers treat it as
// non-fatal and keep tracking on the stale route.
type ProviderError struct {
	Status string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("route provider error: %s", e.Status)
	}
	return fmt.Sprintf("route provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DirectionsClient calls the Google Directions API.
type DirectionsClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDirectionsClient creates a client using GOOGLE_MAPS_API_KEY. Without a
// key every GetRoute call fails with a ProviderError; tracking degrades to
// the cached route.
func NewDirectionsClient() *DirectionsClient {
	apiKey := os.Getenv("GOOGLE_MAPS_API_KEY")
	if apiKey == "" {
		log.Printf("⚠️  GOOGLE_MAPS_API_KEY not set - rerouting disabled")
	}

	return &DirectionsClient{
		apiKey:  apiKey,
		baseURL: "https://maps.googleapis.com/maps/api/directions/json",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// directionsResponse mirrors the slice of the Directions API payload we use.
type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance struct {
				Value float64 `json:"value"` // meters
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"` // seconds
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// GetRoute requests a driving route from origin to destination.
func (c *DirectionsClient) GetRoute(ctx context.Context, originLat, originLng, destLat, destLng float64) (*Route, error) {
	if c.apiKey == "" {
		return nil, &ProviderError{Status: "GOOGLE_MAPS_API_KEY not configured"}
	}

	params := url.Values{}
	params.Set("origin", fmt.Sprintf("%f,%f", originLat, originLng))
	params.Set("destination", fmt.Sprintf("%f,%f", destLat, destLng))
	params.Set("key", c.apiKey)

	log.Printf("📍 Requesting reroute from [%.6f,%.6f] to [%.6f,%.6f]", originLat, originLng, destLat, destLng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Status: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))}
	}

	var apiResp directionsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if apiResp.Status != "OK" {
		return nil, &ProviderError{Status: fmt.Sprintf("%s - %s", apiResp.Status, apiResp.ErrorMessage)}
	}

	if len(apiResp.Routes) == 0 || len(apiResp.Routes[0].Legs) == 0 {
		return nil, &ProviderError{Status: "no route found between origin and destination"}
	}

	route := apiResp.Routes[0]
	leg := route.Legs[0]

	result := &Route{
		Polyline:        route.OverviewPolyline.Points,
		DistanceKm:      leg.Distance.Value / 1000,
		DurationMinutes: math.Ceil(leg.Duration.Value / 60),
	}

	log.Printf("✓ Reroute obtained: %.2f km (%.0f min)", result.DistanceKm, result.DurationMinutes)
	return result, nil
}
