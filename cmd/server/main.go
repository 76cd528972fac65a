package main

import (
	"context"
	"log"
	"net/http"

	"geotrack-backend/internal/cache"
	"geotrack-backend/internal/config"
	"geotrack-backend/internal/database"
	"geotrack-backend/internal/handlers"
	"geotrack-backend/internal/services/maps"
	"geotrack-backend/internal/services/tracking"
	"geotrack-backend/internal/simulation"
	"geotrack-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 GEOTRACK BACKEND SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Session cache: Redis when configured, in-memory otherwise.
	var store cache.Store
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ FATAL: Redis connection failed: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		log.Println("⚠️  REDIS_URL not set - using in-memory session store")
		store = cache.NewMemoryStore()
	}

	// Durable route copies: optional, tracking runs without them.
	var routes tracking.RouteRepository
	var routeStore *database.RouteStore
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ FATAL: Database connection failed: %v", err)
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			log.Fatalf("❌ FATAL: Database migrations failed: %v", err)
		}
		routeStore = database.NewRouteStore(db)
		routes = routeStore
	} else {
		log.Println("⚠️  DATABASE_URL not set - durable route copies disabled")
	}

	// WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Println("✅ WebSocket hub started")

	// Tracking engine
	provider := maps.NewDirectionsClient()
	sessions := tracking.NewSessionStore(store)
	tracker := tracking.NewService(sessions, provider, wsHub, routes, tracking.Config{
		OffRouteThresholdMeters: cfg.OffRouteThresholdMeters,
		RerouteCooldown:         cfg.RerouteCooldown,
	})
	runner := simulation.NewRunner(tracker)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// WebSocket endpoint for live tracking subscribers
	r.Get("/ws", websocket.HandleWebSocket(wsHub))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Tracking
		r.Post("/tracking/start/{jobId}", handlers.StartTracking(tracker))
		r.Delete("/tracking/stop/{jobId}", handlers.StopTracking(tracker))
		r.Post("/tracking/push-location", handlers.PushLocation(tracker))
		r.Get("/tracking/current-location/{jobId}", handlers.GetCurrentLocation(tracker))
		r.Get("/tracking/route/{jobId}", handlers.GetDeliveryRoute(routeStore))

		// Simulation drivers
		r.Post("/simulation/start/{jobId}", handlers.StartSimulation(tracker, runner))
		r.Post("/simulation/off-route/{jobId}", handlers.SimulateOffRoute(tracker, runner))
		r.Post("/simulation/throttled-reroute/{jobId}", handlers.SimulateThrottledReroute(tracker, runner))
		r.Post("/simulation/custom-route/{jobId}", handlers.SimulateCustomRoute(tracker, runner))
		r.Delete("/simulation/stop/{jobId}", handlers.StopSimulation(runner))
		r.Get("/simulation/active", handlers.GetActiveSimulations(runner))
	})

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Printf("🚀 Server starting on http://localhost:%s", cfg.Port)
	log.Println("═══════════════════════════════════════════════════════════════════")

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
