package domain

import (
	"context"
	"time"
)

// Cache holds per-tenant workspace state that outlives a request but not a
// deployment: the latest analysis report and activity counters.
// All methods require tenantID.
type Cache interface {
	// GetReport returns the tenant's latest report, or nil, nil if none is
	// cached. Callers must treat the result as read-only.
	GetReport(ctx context.Context, tenantID string) (*AnalysisReport, error)

	// SetReport replaces the tenant's latest report.
	SetReport(ctx context.Context, tenantID string, report *AnalysisReport, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new value.
	// The counter resets once window has elapsed since its first increment.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// GetCounter returns the current value of a counter, 0 if unset or expired.
	GetCounter(ctx context.Context, tenantID string, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and sizes the cache.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	// LocalMaxSize is the number of tenant workspaces kept in memory.
	LocalMaxSize int
	// LocalTTL caps how long a report stays in the in-memory tier when
	// Redis is behind it.
	LocalTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase puts the in-memory tier in front of Redis.
	EnableTwoPhase bool
}
