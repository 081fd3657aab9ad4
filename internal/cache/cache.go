package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/redis/go-redis/v9"
)

var errReportRequired = errors.New("report is required")

// New builds the cache named by cfg.Type. "redis" with EnableTwoPhase puts
// an in-memory tier in front of Redis.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache serves reports from memory and falls back to Redis.
// Counters always go to Redis so every replica sees the same totals.
//
// When any replica replaces a tenant's report, the others drop their
// in-memory copy on the Redis invalidation message, so a dashboard never
// shows a report older than the latest analysis for longer than the
// round-trip of that message.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTwoPhaseCache connects to Redis and starts listening for invalidations.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	remote.nodeID = uuid.New().String()

	l1TTL := cfg.LocalTTL
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  l1TTL,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	pubsub := remote.client.Subscribe(ctx, invalidationChannel)
	go c.listen(ctx, pubsub.Channel(), func() { _ = pubsub.Close() })

	return c, nil
}

func (c *TwoPhaseCache) listen(ctx context.Context, ch <-chan *redis.Message, closeFn func()) {
	defer close(c.done)
	defer closeFn()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.invalidate(msg.Payload)
		}
	}
}

// invalidate handles one "<node>|<tenant>" announcement.
func (c *TwoPhaseCache) invalidate(payload string) {
	node, tenantID, ok := strings.Cut(payload, "|")
	if !ok || tenantID == "" {
		slog.Warn("ignoring malformed cache invalidation", "payload", payload)
		return
	}
	if node == c.remote.nodeID {
		return
	}
	c.local.dropReport(tenantID)
	slog.Debug("report invalidated by peer", "tenant_id", tenantID)
}

func (c *TwoPhaseCache) GetReport(ctx context.Context, tenantID string) (*domain.AnalysisReport, error) {
	report, err := c.local.GetReport(ctx, tenantID)
	if err != nil || report != nil {
		return report, err
	}

	report, err = c.remote.GetReport(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if report != nil {
		_ = c.local.SetReport(ctx, tenantID, report, c.l1TTL)
	}
	return report, nil
}

func (c *TwoPhaseCache) SetReport(ctx context.Context, tenantID string, report *domain.AnalysisReport, ttl time.Duration) error {
	if err := c.remote.SetReport(ctx, tenantID, report, ttl); err != nil {
		return err
	}
	return c.local.SetReport(ctx, tenantID, report, min(ttl, c.l1TTL))
}

func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

func (c *TwoPhaseCache) GetCounter(ctx context.Context, tenantID string, key string) (int64, error) {
	return c.remote.GetCounter(ctx, tenantID, key)
}

func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close stops the invalidation listener and closes Redis.
func (c *TwoPhaseCache) Close() error {
	c.cancel()
	<-c.done
	_ = c.local.Close()
	return c.remote.Close()
}
