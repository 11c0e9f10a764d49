package estimator

import (
	"context"
	"errors"
	"testing"
	"time"

	"qfree/queue-service/internal/logging"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

type countingEstimator struct {
	calls   int
	minutes int
}

func (c *countingEstimator) Predict(ctx context.Context, snapshot Snapshot) int {
	c.calls++
	return c.minutes
}

func TestCacheKeyCoversSnapshot(t *testing.T) {
	base := CacheKey(sampleSnapshot)
	assert.Equal(t, "qfree:estimate:q1:2:15:0", base)

	serving := sampleSnapshot
	serving.CurrentlyServing = true
	assert.NotEqual(t, base, CacheKey(serving))

	longer := sampleSnapshot
	longer.PeopleWaiting = 3
	assert.NotEqual(t, base, CacheKey(longer))
}

func TestCachedHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	next := &countingEstimator{minutes: 99}
	cached := NewCached(next, client, time.Minute, logging.Discard())

	mock.ExpectGet(CacheKey(sampleSnapshot)).SetVal("17")

	assert.Equal(t, 17, cached.Predict(context.Background(), sampleSnapshot))
	assert.Equal(t, 0, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedMissStores(t *testing.T) {
	client, mock := redismock.NewClientMock()
	next := &countingEstimator{minutes: 30}
	cached := NewCached(next, client, time.Minute, logging.Discard())

	key := CacheKey(sampleSnapshot)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, "30", time.Minute).SetVal("OK")

	assert.Equal(t, 30, cached.Predict(context.Background(), sampleSnapshot))
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedRedisDownDegrades(t *testing.T) {
	client, mock := redismock.NewClientMock()
	next := &countingEstimator{minutes: 30}
	cached := NewCached(next, client, time.Minute, logging.Discard())

	key := CacheKey(sampleSnapshot)
	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, "30", time.Minute).SetErr(errors.New("connection refused"))

	assert.Equal(t, 30, cached.Predict(context.Background(), sampleSnapshot))
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
