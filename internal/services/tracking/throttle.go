package tracking

import "time"

// DefaultRerouteCooldown bounds how often the external routing provider may
// be called for one job, even under oscillating GPS input.
const DefaultRerouteCooldown = 60 * time.Second

// RerouteThrottle gates reroute attempts against the timestamp of the last
// successful reroute. The per-job timestamp itself lives in the session
// record, so the gate survives process restarts with the cache.
type RerouteThrottle struct {
	cooldown time.Duration
}

// NewRerouteThrottle creates a throttle with the given cooldown window.
// A zero or negative cooldown falls back to the default.
func NewRerouteThrottle(cooldown time.Duration) *RerouteThrottle {
	if cooldown <= 0 {
		cooldown = DefaultRerouteCooldown
	}
	return &RerouteThrottle{cooldown: cooldown}
}

// Allow reports whether a new reroute may be attempted now. A throttled
// reroute is not an error: the off-route condition is still recorded and
// the stale route keeps serving estimates.
func (t *RerouteThrottle) Allow(lastRerouteAt, now time.Time) bool {
	if lastRerouteAt.IsZero() {
		return true
	}
	return now.Sub(lastRerouteAt) >= t.cooldown
}

// Cooldown returns the configured window.
func (t *RerouteThrottle) Cooldown() time.Duration {
	return t.cooldown
}
