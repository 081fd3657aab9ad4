package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/redis/go-redis/v9"
)

// invalidationChannel carries "<node>|<tenant>" whenever a report is replaced,
// so other replicas can drop their in-memory copy.
const invalidationChannel = "fakeguard:reports:invalidate"

// incrWindow starts the expiry on the first increment only, so the window
// is fixed rather than sliding.
var incrWindow = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// RedisCache stores workspaces in Redis, shared by every replica.
type RedisCache struct {
	client *redis.Client
	nodeID string
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

func reportKey(tenantID string) string {
	return "fakeguard:" + tenantID + ":report"
}

func counterKey(tenantID, key string) string {
	return "fakeguard:" + tenantID + ":counter:" + key
}

func (c *RedisCache) GetReport(ctx context.Context, tenantID string) (*domain.AnalysisReport, error) {
	if tenantID == "" {
		return nil, ErrTenantIDRequired
	}

	data, err := c.client.Get(ctx, reportKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var report domain.AnalysisReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}
	return &report, nil
}

// SetReport stores the report and announces the change on the invalidation
// channel. A failed announcement is not an error; peers fall back to their
// local TTL.
func (c *RedisCache) SetReport(ctx context.Context, tenantID string, report *domain.AnalysisReport, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantIDRequired
	}
	if report == nil {
		return errReportRequired
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := c.client.Set(ctx, reportKey(tenantID), data, ttl).Err(); err != nil {
		return err
	}

	_ = c.client.Publish(ctx, invalidationChannel, c.nodeID+"|"+tenantID).Err()
	return nil
}

func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantIDRequired
	}
	return incrWindow.Run(ctx, c.client, []string{counterKey(tenantID, key)}, window.Milliseconds()).Int64()
}

func (c *RedisCache) GetCounter(ctx context.Context, tenantID string, key string) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantIDRequired
	}

	val, err := c.client.Get(ctx, counterKey(tenantID, key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
