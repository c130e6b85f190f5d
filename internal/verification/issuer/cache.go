package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	platformredis "github.com/Hodazia/kubecredentials/internal/platform/redis"
	"github.com/Hodazia/kubecredentials/internal/verification/models"
)

const cacheKey = "verification:issuer:snapshot"

// CachedClient decorates a Client with a short-lived Redis snapshot cache.
// The TTL bounds verification staleness: a credential issued after the
// cached fetch stays invisible until the entry expires. Redis failures
// degrade to a direct fetch, never to an error.
type CachedClient struct {
	inner  Client
	redis  *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedClient(inner Client, redis *platformredis.Client, ttl time.Duration, logger *slog.Logger) *CachedClient {
	return &CachedClient{
		inner:  inner,
		redis:  redis,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedClient) Fetch(ctx context.Context) (*models.Snapshot, error) {
	if cached, ok := c.lookup(ctx); ok {
		return cached, nil
	}

	snapshot, err := c.inner.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, snapshot)
	return snapshot, nil
}

func (c *CachedClient) lookup(ctx context.Context) (*models.Snapshot, bool) {
	raw, err := c.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.WarnContext(ctx, "snapshot cache read failed", "error", err)
		}
		return nil, false
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.logger.WarnContext(ctx, "snapshot cache entry corrupt, refetching", "error", err)
		return nil, false
	}
	return &snapshot, true
}

func (c *CachedClient) store(ctx context.Context, snapshot *models.Snapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "snapshot cache write failed", "error", err)
	}
}

var _ Client = (*CachedClient)(nil)
