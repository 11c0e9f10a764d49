package estimator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"qfree/queue-service/internal/metrics"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const cacheKeyPrefix = "qfree:estimate"

// Cached memoizes another estimator in Redis. The key covers every snapshot
// field the prediction depends on, so any queue change is a cache miss.
type Cached struct {
	next   Estimator
	client redis.Cmdable
	ttl    time.Duration
	logger *logrus.Logger
}

func NewCached(next Estimator, client redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{next: next, client: client, ttl: ttl, logger: logger}
}

func CacheKey(snapshot Snapshot) string {
	serving := 0
	if snapshot.CurrentlyServing {
		serving = 1
	}
	return fmt.Sprintf("%s:%s:%d:%d:%d", cacheKeyPrefix, snapshot.QueueID, snapshot.PeopleWaiting, snapshot.AverageServiceTimeMinutes, serving)
}

func (c *Cached) Predict(ctx context.Context, snapshot Snapshot) int {
	key := CacheKey(snapshot)
	value, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if minutes, convErr := strconv.Atoi(value); convErr == nil && minutes >= 0 {
			metrics.TrackEstimate("cache", "hit")
			return minutes
		}
		c.logger.WithField("key", key).Warn("discarding malformed cached estimate")
	case errors.Is(err, redis.Nil):
		metrics.TrackEstimate("cache", "miss")
	default:
		c.logger.WithError(err).WithField("key", key).Warn("estimate cache read failed")
		metrics.TrackEstimate("cache", "error")
	}

	minutes := c.next.Predict(ctx, snapshot)
	if err := c.client.Set(ctx, key, strconv.Itoa(minutes), c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("estimate cache write failed")
	}
	return minutes
}
