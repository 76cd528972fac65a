// Package cache abstracts the key-value store backing tracking sessions.
// Production deployments use Redis; tests and Redis-less environments use
// the in-memory store.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("cache: key not found")

// Store is a JSON blob key-value store. Keys for different jobs never
// collide, so implementations need no cross-key transactions.
type Store interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}
