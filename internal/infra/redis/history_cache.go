package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// HistoryCache caches room answer history in Redis as a JSON list per room and
// filter combination, and falls back to a loader on cache miss.
type HistoryCache struct {
	client *redis.Client
	loader app.AnswerHistory
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewHistoryCache(client *redis.Client, loader app.AnswerHistory, ttl time.Duration) *HistoryCache {
	return &HistoryCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *HistoryCache) FetchRoomAnswers(ctx context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerRecord, error) {
	key := HistoryKey(roomID, filters.StudentID, filters.QuestionID)

	if records, ok := c.cached(ctx, key); ok {
		return records, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if records, ok := c.cached(ctx, key); ok {
			return records, nil
		}

		records, err := c.loader.FetchRoomAnswers(ctx, roomID, filters)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(records); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.AnswerRecord), nil
}

// Invalidate removes the cached history of a room for every filter combination.
func (c *HistoryCache) Invalidate(ctx context.Context, roomID string) error {
	iter := c.client.Scan(ctx, 0, HistoryKey(roomID, "*", "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *HistoryCache) cached(ctx context.Context, key string) ([]domain.AnswerRecord, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var records []domain.AnswerRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false
	}
	return records, true
}

func (c *HistoryCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
