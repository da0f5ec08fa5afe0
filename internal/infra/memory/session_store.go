package memory

import (
	"sort"
	"sync"

	"classroom-live/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[app.SessionKey]*app.RoomSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
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
	delete(s.sessions, key)
}

// Keys returns the registered keys ordered by room, then user.
func (s *SessionStore) Keys() []app.SessionKey {
	s.mu.RLock()
	keys := make([]app.SessionKey, 0, len(s.sessions))
	for key := range s.sessions {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].RoomID != keys[j].RoomID {
			return keys[i].RoomID < keys[j].RoomID
		}
		return keys[i].UserID < keys[j].UserID
	})
	return keys
}
