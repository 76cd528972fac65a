package simulation

import "geotrack-backend/internal/geo"

// Demo trip through Batam: Graha Pena building to K Square Mall.
const (
	DemoPolyline        = "m{zEcqazRfzCfyA"
	DemoDistanceKm      = 5.2
	DemoDurationMinutes = 15
	DemoDestinationLat  = 1.1009878
	DemoDestinationLng  = 104.037103
)

// DemoRoute follows the planned route waypoint by waypoint.
var DemoRoute = []geo.Point{
	{Lat: 1.1258311, Lng: 104.0515445}, // Graha Pena Batam (start)
	{Lat: 1.1223017, Lng: 104.0534285}, // Monumen Welcome To Batam
	{Lat: 1.129271, Lng: 104.0538747},  // Dataran Engku Putri
	{Lat: 1.1264, Lng: 104.0452},       // Ahmad Yani / Fisabilillah junction
	{Lat: 1.1341466, Lng: 104.0434369}, // Bundaran Tuah Madani
	{Lat: 1.1254003, Lng: 104.026376},  // Dataran Madani
	{Lat: 1.1248, Lng: 104.0258},       // Flyover Laluan Madani
	{Lat: 1.1209722, Lng: 104.0206642}, // Taman Dang Anom
	{Lat: 1.105, Lng: 104.032},         // Jalan Jenderal Sudirman
	{Lat: 1.1009878, Lng: 104.037103},  // K Square Mall (finish)
}

// DemoOffRoute starts on the planned route and then deviates past the
// off-route threshold, exercising detection and rerouting.
var DemoOffRoute = []geo.Point{
	{Lat: 1.1258311, Lng: 104.0515445},
	{Lat: 1.1205, Lng: 104.0488},
	{Lat: 1.1205, Lng: 104.0493}, // drifts east of the polyline
	{Lat: 1.1123, Lng: 104.0430},
	{Lat: 1.1055, Lng: 104.0389},
	{Lat: 1.1009878, Lng: 104.037103},
}

// DemoOscillating flaps on and off the route faster than the reroute
// cooldown; only the first deviation should reach the provider.
var DemoOscillating = []geo.Point{
	{Lat: 1.1205, Lng: 104.0488}, // on route
	{Lat: 1.1205, Lng: 104.0493}, // off route
	{Lat: 1.1118, Lng: 104.0430}, // on route
	{Lat: 1.1123, Lng: 104.0430}, // off route
	{Lat: 1.1055, Lng: 104.0395}, // on route
	{Lat: 1.1055, Lng: 104.0389}, // off route
	{Lat: 1.1009878, Lng: 104.037103},
}
