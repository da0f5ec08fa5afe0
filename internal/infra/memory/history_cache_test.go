package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"classroom-live/internal/domain"
)

func TestHistoryCacheCaches(t *testing.T) {
	loader := &countingHistory{AnswerHistory: NewStaticHistory(sampleHistory())}
	cache := NewHistoryCache(loader, time.Minute)

	records, err := cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{}); err != nil {
		t.Fatalf("fetch 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestHistoryCacheKeysByFilters(t *testing.T) {
	loader := &countingHistory{AnswerHistory: NewStaticHistory(sampleHistory())}
	cache := NewHistoryCache(loader, time.Minute)

	records, err := cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{StudentID: "s2"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 || records[0].StudentID != "s2" {
		t.Fatalf("expected only s2, got %+v", records)
	}
	if _, err := cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{}); err != nil {
		t.Fatalf("fetch unfiltered: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected separate entries per filter, loader calls %d", loader.calls)
	}
}

func TestHistoryCacheExpiresAndInvalidates(t *testing.T) {
	loader := &countingHistory{AnswerHistory: NewStaticHistory(sampleHistory())}
	cache := NewHistoryCache(loader, time.Minute)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, _ = cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{})
	now = now.Add(2 * time.Minute)
	_, _ = cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{})
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.calls)
	}

	if err := cache.Invalidate(context.Background(), "room-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{})
	if loader.calls != 3 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestHistoryCacheDoesNotCacheErrors(t *testing.T) {
	loader := &failingHistory{err: errors.New("api down")}
	cache := NewHistoryCache(loader, time.Minute)

	if _, err := cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := cache.FetchRoomAnswers(context.Background(), "room-1", domain.AnswerFilters{}); err == nil {
		t.Fatalf("expected error again")
	}
	if loader.calls != 2 {
		t.Fatalf("expected two loader calls, got %d", loader.calls)
	}
}

type countingHistory struct {
	AnswerHistory interface {
		FetchRoomAnswers(ctx context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerRecord, error)
	}
	calls int
}

func (h *countingHistory) FetchRoomAnswers(ctx context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerRecord, error) {
	h.calls++
	return h.AnswerHistory.FetchRoomAnswers(ctx, roomID, filters)
}

type failingHistory struct {
	err   error
	calls int
}

func (h *failingHistory) FetchRoomAnswers(context.Context, string, domain.AnswerFilters) ([]domain.AnswerRecord, error) {
	h.calls++
	return nil, h.err
}

func sampleHistory() map[string][]domain.AnswerRecord {
	return map[string][]domain.AnswerRecord{
		"room-1": {
			{ID: "a1", RoomID: "room-1", StudentID: "s1", QuestionID: "q1", Answer: "A", Correct: domain.Bool(true)},
			{ID: "a2", RoomID: "room-1", StudentID: "s2", QuestionID: "q1", Answer: "B", IsCorrect: domain.Bool(false)},
		},
	}
}
