package memory

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
	"golang.org/x/sync/singleflight"
)

// HistoryCache caches room answer history with a TTL so repeated prefetches
// (several dashboards on one room) hit the API once.
type HistoryCache struct {
	loader app.AnswerHistory
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedHistory
}

type cachedHistory struct {
	records   []domain.AnswerRecord
	expiresAt time.Time
}

func NewHistoryCache(loader app.AnswerHistory, ttl time.Duration) *HistoryCache {
	return &HistoryCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedHistory),
	}
}

func (c *HistoryCache) FetchRoomAnswers(ctx context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerRecord, error) {
	key := historyKey(roomID, filters)
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.records, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.records, nil
		}
		c.mu.RUnlock()

		records, err := c.loader.FetchRoomAnswers(ctx, roomID, filters)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedHistory{
			records:   records,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.AnswerRecord), nil
}

// Invalidate drops every cached entry of a room.
func (c *HistoryCache) Invalidate(_ context.Context, roomID string) error {
	prefix := roomID + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.cache {
		if strings.HasPrefix(key, prefix) {
			delete(c.cache, key)
		}
	}
	return nil
}

func (c *HistoryCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func historyKey(roomID string, filters domain.AnswerFilters) string {
	return roomID + "|" + filters.StudentID + "|" + filters.QuestionID
}

// StaticHistory is a loader backed by an in-memory slice (useful for tests/demos).
type StaticHistory struct {
	records map[string][]domain.AnswerRecord
}

func NewStaticHistory(records map[string][]domain.AnswerRecord) *StaticHistory {
	return &StaticHistory{records: records}
}

func (h *StaticHistory) FetchRoomAnswers(_ context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerRecord, error) {
	out := make([]domain.AnswerRecord, 0, len(h.records[roomID]))
	for _, rec := range h.records[roomID] {
		if filters.StudentID != "" && rec.StudentID != filters.StudentID {
			continue
		}
		if filters.QuestionID != "" && rec.QuestionID != filters.QuestionID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
