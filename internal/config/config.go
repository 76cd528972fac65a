// Package config reads the server configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable of the tracking server.
type Config struct {
	Port        string
	DatabaseURL string // optional: durable route copies disabled when empty
	RedisURL    string // optional: in-memory session store when empty

	OffRouteThresholdMeters float64
	RerouteCooldown         time.Duration
}

// Load builds a Config from environment variables, applying defaults for
// anything unset.
func Load() *Config {
	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),
		OffRouteThresholdMeters: getEnvFloat("OFF_ROUTE_THRESHOLD_METERS", 50),
		RerouteCooldown:         getEnvDuration("REROUTE_COOLDOWN_SECONDS", 60*time.Second),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %.0f", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
