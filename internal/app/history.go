package app

import (
	"context"
	"fmt"

	"classroom-live/internal/domain"
)

// AnswerHistory loads persisted answers for a room (REST API, cache, archive).
type AnswerHistory interface {
	FetchRoomAnswers(ctx context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerRecord, error)
}

// HistoryInvalidator is implemented by caching histories that can drop a room.
type HistoryInvalidator interface {
	Invalidate(ctx context.Context, roomID string) error
}

// HistoryFetcher prefetches answers independently of the live connection and
// hands them out in the same canonical shape as live answers.
type HistoryFetcher struct {
	history AnswerHistory
}

func NewHistoryFetcher(history AnswerHistory) *HistoryFetcher {
	return &HistoryFetcher{history: history}
}

// Prefetch loads and normalizes a room's answers.
func (f *HistoryFetcher) Prefetch(ctx context.Context, roomID string, filters domain.AnswerFilters) ([]domain.AnswerViewModel, error) {
	if roomID == "" {
		return nil, domain.ErrRoomRequired
	}
	records, err := f.history.FetchRoomAnswers(ctx, roomID, filters)
	if err != nil {
		return nil, fmt.Errorf("fetch room answers: %w", err)
	}
	views := NormalizeAnswerRecords(records)
	for i := range views {
		if views[i].RoomID == "" {
			views[i].RoomID = roomID
		}
	}
	return views, nil
}

// PrefetchInto loads a room's history and seeds it into session.
func (f *HistoryFetcher) PrefetchInto(ctx context.Context, session *RoomSession, filters domain.AnswerFilters) (int, error) {
	views, err := f.Prefetch(ctx, session.RoomID(), filters)
	if err != nil {
		return 0, err
	}
	session.SeedAnswers(views)
	return len(views), nil
}

// Invalidate drops the cached history of a room so the next Prefetch reloads
// it. Histories without a cache ignore it.
func (f *HistoryFetcher) Invalidate(ctx context.Context, roomID string) error {
	inv, ok := f.history.(HistoryInvalidator)
	if !ok {
		return nil
	}
	if err := inv.Invalidate(ctx, roomID); err != nil {
		return fmt.Errorf("invalidate history: %w", err)
	}
	return nil
}
