package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"replay/crumbs/internal/domain"

	"github.com/redis/go-redis/v9"
)

// TrailCache keeps recently used replay trails in Redis
type TrailCache interface {
	Get(ctx context.Context, replayID string) (*domain.Trail, error)
	Set(ctx context.Context, trail *domain.Trail) error
	Invalidate(ctx context.Context, replayID string) error
}

// ClickRecorder counts clicks on breadcrumbs per replay
type ClickRecorder interface {
	RecordClick(ctx context.Context, replayID, crumbID string) error
	Clicks(ctx context.Context, replayID string) (map[string]int64, error)
}

type redisTrailCache struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

func NewRedisTrailCache(redisClient *redis.Client, ttl time.Duration) TrailCache {
	return &redisTrailCache{
		redisClient: redisClient,
		keyPrefix:   "replaycrumbs:trail:",
		ttl:         ttl,
	}
}

// Get returns nil without error on a cache miss
func (c *redisTrailCache) Get(ctx context.Context, replayID string) (*domain.Trail, error) {
	val, err := c.redisClient.Get(ctx, c.keyPrefix+replayID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached trail for replay %s: %w", replayID, err)
	}

	var trail domain.Trail
	if err := json.Unmarshal(val, &trail); err != nil {
		return nil, fmt.Errorf("failed to decode cached trail for replay %s: %w", replayID, err)
	}

	return &trail, nil
}

func (c *redisTrailCache) Set(ctx context.Context, trail *domain.Trail) error {
	val, err := json.Marshal(trail)
	if err != nil {
		return fmt.Errorf("failed to encode trail for replay %s: %w", trail.Replay.ID, err)
	}

	if err := c.redisClient.Set(ctx, c.keyPrefix+trail.Replay.ID, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache trail for replay %s: %w", trail.Replay.ID, err)
	}
	return nil
}

func (c *redisTrailCache) Invalidate(ctx context.Context, replayID string) error {
	if err := c.redisClient.Del(ctx, c.keyPrefix+replayID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate trail for replay %s: %w", replayID, err)
	}
	return nil
}

type redisClickRecorder struct {
	redisClient *redis.Client
	keyPrefix   string
}

func NewRedisClickRecorder(redisClient *redis.Client) ClickRecorder {
	return &redisClickRecorder{
		redisClient: redisClient,
		keyPrefix:   "replaycrumbs:clicks:",
	}
}

func (r *redisClickRecorder) RecordClick(ctx context.Context, replayID, crumbID string) error {
	if err := r.redisClient.HIncrBy(ctx, r.keyPrefix+replayID, crumbID, 1).Err(); err != nil {
		return fmt.Errorf("failed to record click on %s for replay %s: %w", crumbID, replayID, err)
	}
	return nil
}

func (r *redisClickRecorder) Clicks(ctx context.Context, replayID string) (map[string]int64, error) {
	vals, err := r.redisClient.HGetAll(ctx, r.keyPrefix+replayID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get clicks for replay %s: %w", replayID, err)
	}

	clicks := make(map[string]int64, len(vals))
	for crumbID, val := range vals {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse click count for %s: %w", crumbID, err)
		}
		clicks[crumbID] = n
	}

	return clicks, nil
}
