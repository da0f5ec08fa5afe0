package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"classroom-live/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions themselves stay in process; Redis only carries a liveness marker per
// (room, user) so other processes can see which connections are open.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[app.SessionKey]*app.RoomSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[app.SessionKey]*app.RoomSession),
	}
}

func (s *SessionStore) GetOrCreate(key app.SessionKey, create func() *app.RoomSession) (*app.RoomSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, false
	}
	session := create()
	s.sessions[key] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), SessionKey(key.RoomID, key.UserID), "1", s.ttl).Err()
	return session, true
}

func (s *SessionStore) Get(key app.SessionKey) (*app.RoomSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Delete(key app.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return
	}
	delete(s.sessions, key)
	_ = s.client.Del(context.Background(), SessionKey(key.RoomID, key.UserID)).Err()
}

func (s *SessionStore) Keys() []app.SessionKey {
	s.mu.RLock()
	keys := make([]app.SessionKey, 0, len(s.sessions))
	for key := range s.sessions {
		keys = append(keys, key)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Touch refreshes the liveness markers of every registered session.
func (s *SessionStore) Touch(ctx context.Context) error {
	pipe := s.client.Pipeline()
	for _, key := range s.Keys() {
		pipe.Expire(ctx, SessionKey(key.RoomID, key.UserID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
