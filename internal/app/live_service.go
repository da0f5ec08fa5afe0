package app

import (
	"context"
	"errors"

	"classroom-live/internal/domain"
	"github.com/rs/zerolog"
)

// SessionKey identifies one (room, user) connection.
type SessionKey struct {
	RoomID string
	UserID string
}

func (k SessionKey) String() string {
	return k.RoomID + ":" + k.UserID
}

// SessionRepository abstracts how open room sessions are tracked (in-memory, Redis, etc).
type SessionRepository interface {
	// GetOrCreate returns the registered session or registers create(); the
	// boolean reports whether a new session was created.
	GetOrCreate(key SessionKey, create func() *RoomSession) (*RoomSession, bool)
	Get(key SessionKey) (*RoomSession, bool)
	Delete(key SessionKey)
	Keys() []SessionKey
}

// TransportFactory builds a fresh, inactive transport for a session.
type TransportFactory func(cfg SessionConfig) Transport

// LiveService contains the live-room use cases: joining a room, answering and leaving.
type LiveService struct {
	sessions     SessionRepository
	newTransport TransportFactory
	delivery     *DeliveryChannel
	log          zerolog.Logger
}

func NewLiveService(store SessionRepository, newTransport TransportFactory, log zerolog.Logger) *LiveService {
	return &LiveService{
		sessions:     store,
		newTransport: newTransport,
		delivery:     NewDeliveryChannel(log),
		log:          log,
	}
}

// Join opens the session for cfg, reusing the one already open for the same
// room and user so a connection is never opened twice.
func (s *LiveService) Join(ctx context.Context, cfg SessionConfig) (*RoomSession, error) {
	if cfg.RoomID == "" {
		return nil, domain.ErrRoomRequired
	}
	key := SessionKey{RoomID: cfg.RoomID, UserID: cfg.UserID}
	session, created := s.sessions.GetOrCreate(key, func() *RoomSession {
		return NewRoomSession(cfg, s.newTransport(cfg), s.log)
	})
	if !created {
		return session, nil
	}
	if err := session.Open(ctx); err != nil {
		s.sessions.Delete(key)
		_ = session.Close()
		return nil, err
	}
	return session, nil
}

// Session returns the open session for a room and user.
func (s *LiveService) Session(roomID, userID string) (*RoomSession, error) {
	session, ok := s.sessions.Get(SessionKey{RoomID: roomID, UserID: userID})
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SubmitAnswer builds the submission and delivers it over the caller's session.
func (s *LiveService) SubmitAnswer(roomID, userID string, in domain.AnswerSubmission) domain.DeliveryResult {
	session, err := s.Session(roomID, userID)
	if err != nil {
		return domain.DeliveryResult{DeliveredVia: domain.ChannelWS, Success: false, Error: err}
	}
	return s.delivery.Deliver(roomID, BuildAnswerSubmission(in), session)
}

// Leave closes and forgets the session of a room and user.
func (s *LiveService) Leave(roomID, userID string) error {
	key := SessionKey{RoomID: roomID, UserID: userID}
	session, ok := s.sessions.Get(key)
	if !ok {
		return nil
	}
	s.sessions.Delete(key)
	return session.Close()
}

// Close leaves every open session.
func (s *LiveService) Close() error {
	var errs []error
	for _, key := range s.sessions.Keys() {
		if err := s.Leave(key.RoomID, key.UserID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
