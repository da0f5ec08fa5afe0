package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"classroom-live/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore keeps the latest monitoring snapshot of each room so another
// dashboard process can render before the next push arrives.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

// Save overwrites the room's stored snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.RoomMonitoringSnapshotDto) error {
	if snap.RoomID == "" {
		return domain.ErrRoomRequired
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.client.Set(ctx, SnapshotKey(snap.RoomID), raw, s.ttl).Err()
}

// Latest returns the stored snapshot or domain.ErrSnapshotNotFound.
func (s *SnapshotStore) Latest(ctx context.Context, roomID string) (domain.RoomMonitoringSnapshotDto, error) {
	raw, err := s.client.Get(ctx, SnapshotKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RoomMonitoringSnapshotDto{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.RoomMonitoringSnapshotDto{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap domain.RoomMonitoringSnapshotDto
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.RoomMonitoringSnapshotDto{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
