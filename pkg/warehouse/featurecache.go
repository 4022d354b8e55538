package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/models"
)

// FeatureCache keeps the latest minimal record per PID in Redis so the
// serving path does not touch the warehouse on every prediction. A cache
// miss falls back to the store; a cache failure only costs latency.
type FeatureCache struct {
	client *redis.Client
	store  Store
	ttl    time.Duration
}

func NewFeatureCache(client *redis.Client, store Store, ttl time.Duration) *FeatureCache {
	return &FeatureCache{client: client, store: store, ttl: ttl}
}

func cacheKey(pid string) string {
	return fmt.Sprintf("features:%s", pid)
}

// Materialize writes the record through to the cache after a warehouse
// append.
func (c *FeatureCache) Materialize(ctx context.Context, rec models.MinimalRecord) {
	if c.client == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(rec.PID), payload, c.ttl).Err(); err != nil {
		logger.Log.WithError(err).WithField("pid", rec.PID).Warn("feature cache write failed")
	}
}

// LatestByPID serves the newest record for a subject, preferring the cache.
func (c *FeatureCache) LatestByPID(ctx context.Context, pid string) (models.MinimalRecord, error) {
	if c.client != nil {
		payload, err := c.client.Get(ctx, cacheKey(pid)).Result()
		if err == nil {
			var rec models.MinimalRecord
			if err := json.Unmarshal([]byte(payload), &rec); err == nil {
				return rec, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).WithField("pid", pid).Warn("feature cache read failed")
		}
	}

	rec, err := c.store.LatestByPID(ctx, pid)
	if err != nil {
		return models.MinimalRecord{}, err
	}
	c.Materialize(ctx, rec)
	return rec, nil
}
