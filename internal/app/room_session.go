package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"classroom-live/internal/domain"
	"github.com/rs/zerolog"
)

// SessionConfig identifies the (room, user) pair a session is bound to.
type SessionConfig struct {
	RoomID   string
	UserID   string
	UserName string
	Role     domain.Role
}

// AnswerSink receives every normalized live answer.
type AnswerSink func(domain.AnswerViewModel)

type listener struct {
	destination string
	handler     func(body []byte)
}

// RoomSession owns the single real-time connection of one (room, user) pair.
// Delivery and monitoring borrow it; only Open and Close change its lifecycle.
type RoomSession struct {
	cfg       SessionConfig
	transport Transport
	log       zerolog.Logger

	// lifecycle orders the join of a (re)connect against the leave of Close.
	lifecycle sync.Mutex

	mu           sync.RWMutex
	opened       bool
	closed       bool
	state        domain.ConnectionState
	lastErr      error
	roomStatus   domain.RoomStatus
	users        []domain.UserDto
	answers      []domain.AnswerViewModel
	subs         map[string]Subscription
	listeners    map[int]listener
	nextListener int
	sinks        []AnswerSink

	changes *watchers[domain.RoomState]
}

func NewRoomSession(cfg SessionConfig, transport Transport, log zerolog.Logger) *RoomSession {
	return &RoomSession{
		cfg:       cfg,
		transport: transport,
		log: log.With().
			Str("component", "room_session").
			Str("room_id", cfg.RoomID).
			Str("user_id", cfg.UserID).
			Logger(),
		state:     domain.StateDisconnected,
		subs:      make(map[string]Subscription),
		listeners: make(map[int]listener),
		changes:   newWatchers[domain.RoomState](),
	}
}

// Open resets local state and activates the transport. It returns once the
// transport has started; CONNECTED is reported asynchronously.
func (s *RoomSession) Open(ctx context.Context) error {
	if s.cfg.RoomID == "" {
		return domain.ErrRoomRequired
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = true
	s.state = domain.StateConnecting
	s.lastErr = nil
	s.roomStatus = ""
	s.users = nil
	s.answers = nil
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.publish(state)

	err := s.transport.Activate(ctx, TransportHooks{
		OnConnecting: s.handleConnecting,
		OnConnect:    s.handleConnect,
		OnDisconnect: s.handleDisconnect,
		OnError:      s.handleError,
	})
	if err != nil {
		s.setState(domain.StateError, err)
		return fmt.Errorf("activate transport: %w", err)
	}
	return nil
}

// Close announces the leave when still connected, drops every subscription and
// deactivates the transport. It is safe to call more than once.
func (s *RoomSession) Close() error {
	s.lifecycle.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.lifecycle.Unlock()
		return nil
	}
	s.closed = true
	opened := s.opened
	subs := s.subs
	s.subs = make(map[string]Subscription)
	s.mu.Unlock()

	if !opened {
		s.lifecycle.Unlock()
		s.changes.closeAll()
		return nil
	}

	if s.transport.Connected() {
		if err := s.announce(domain.LeaveDestination(s.cfg.RoomID)); err != nil {
			s.log.Debug().Err(err).Msg("leave announcement failed")
		}
	}
	for key, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			s.log.Debug().Err(err).Str("subscription", key).Msg("unsubscribe failed")
		}
	}
	// Released before Deactivate, which waits for the reader running handleConnect.
	s.lifecycle.Unlock()
	err := s.transport.Deactivate()

	s.mu.Lock()
	s.state = domain.StateDisconnected
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.publish(state)
	s.changes.closeAll()

	s.log.Info().Msg("room session closed")
	if err != nil {
		return fmt.Errorf("deactivate transport: %w", err)
	}
	return nil
}

// StartActivity signals the room to start. Only a connected teacher can do
// this; for anyone else it is a no-op reporting false.
func (s *RoomSession) StartActivity() (bool, error) {
	if s.cfg.Role != domain.RoleTeacher || !s.Connected() {
		s.log.Debug().Str("role", string(s.cfg.Role)).Msg("start activity ignored")
		return false, nil
	}
	if err := s.transport.Publish(domain.StartDestination(s.cfg.RoomID), nil); err != nil {
		return false, fmt.Errorf("start activity: %w", err)
	}
	s.log.Info().Msg("activity start requested")
	return true, nil
}

// Connected reports whether the session can publish right now.
func (s *RoomSession) Connected() bool {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	return !closed && s.transport.Connected()
}

// Publish sends body to destination over the session's connection.
func (s *RoomSession) Publish(destination string, body []byte) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return domain.ErrSessionClosed
	}
	return s.transport.Publish(destination, body)
}

// Listen registers an extra topic whose subscription lives as long as the
// session: it is re-established on every reconnect. The returned func detaches it.
func (s *RoomSession) Listen(destination string, handler func(body []byte)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener{destination: destination, handler: handler}
	live := s.state == domain.StateConnected && !s.closed
	s.mu.Unlock()

	key := listenerKey(id)
	if live {
		s.subscribe(key, destination, handler)
	}

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		sub := s.subs[key]
		delete(s.subs, key)
		s.mu.Unlock()
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil {
				s.log.Debug().Err(err).Str("destination", destination).Msg("unsubscribe failed")
			}
		}
	}
}

// OnAnswer registers a sink for normalized live answers.
func (s *RoomSession) OnAnswer(sink AnswerSink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// SeedAnswers merges prefetched history ahead of the live answers. Entries
// already present are skipped.
func (s *RoomSession) SeedAnswers(views []domain.AnswerViewModel) {
	s.mu.Lock()
	seen := make(map[string]struct{}, len(s.answers))
	for _, a := range s.answers {
		seen[answerKey(a)] = struct{}{}
	}
	merged := make([]domain.AnswerViewModel, 0, len(views)+len(s.answers))
	for _, v := range views {
		k := answerKey(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, v)
	}
	s.answers = append(merged, s.answers...)
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.publish(state)
}

// State returns a copy of the session's local view.
func (s *RoomSession) State() domain.RoomState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// ConnectionState returns the current lifecycle state.
func (s *RoomSession) ConnectionState() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the error behind the latest ERROR or DISCONNECTED transition.
func (s *RoomSession) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Changes streams state copies, starting with the current one. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *RoomSession) Changes() (<-chan domain.RoomState, func()) {
	return s.changes.subscribe(s.State())
}

func (s *RoomSession) RoomID() string {
	return s.cfg.RoomID
}

func (s *RoomSession) handleConnecting() {
	s.setState(domain.StateConnecting, nil)
}

func (s *RoomSession) handleConnect() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = domain.StateConnected
	s.lastErr = nil
	roomID := s.cfg.RoomID
	type topic struct {
		key         string
		destination string
		handler     func([]byte)
	}
	topics := []topic{
		{key: "users", destination: domain.UsersTopic(roomID), handler: s.handleUsers},
		{key: "answers", destination: domain.AnswersTopic(roomID), handler: s.handleAnswer},
		{key: "status", destination: domain.StatusTopic(roomID), handler: s.handleStatus},
	}
	for id, l := range s.listeners {
		topics = append(topics, topic{key: listenerKey(id), destination: l.destination, handler: l.handler})
	}
	s.mu.Unlock()

	s.log.Info().Msg("connected")

	// Subscribe before announcing so the joining user sees its own roster update.
	for _, t := range topics {
		s.subscribe(t.key, t.destination, t.handler)
	}
	if err := s.announce(domain.JoinDestination(roomID)); err != nil {
		s.log.Error().Err(err).Msg("join announcement failed")
	}
	s.changes.publish(s.State())
}

func (s *RoomSession) handleDisconnect(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = domain.StateDisconnected
	s.lastErr = err
	// The transport forgets its subscriptions with the connection.
	s.subs = make(map[string]Subscription)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Warn().Err(err).Msg("disconnected")
	s.changes.publish(state)
}

func (s *RoomSession) handleError(err error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}
	s.log.Error().Err(err).Msg("broker error")
	s.setState(domain.StateError, err)
}

func (s *RoomSession) handleUsers(body []byte) {
	var users []domain.UserDto
	if err := json.Unmarshal(body, &users); err != nil {
		s.log.Warn().Err(err).Msg("discarding malformed roster message")
		return
	}
	s.mu.Lock()
	s.users = users
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.publish(state)
}

func (s *RoomSession) handleStatus(body []byte) {
	var msg domain.RoomStatusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Warn().Err(err).Msg("discarding malformed status message")
		return
	}
	s.mu.Lock()
	s.roomStatus = msg.Status
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.log.Info().Str("status", string(msg.Status)).Msg("room status changed")
	s.changes.publish(state)
}

func (s *RoomSession) handleAnswer(body []byte) {
	rec, err := DecodeAnswerEvent(s.cfg.RoomID, body)
	if err != nil {
		s.log.Warn().Err(err).Msg("discarding malformed answer message")
		return
	}
	view := NormalizeAnswerRecord(rec)

	s.mu.Lock()
	s.answers = append(s.answers, view)
	sinks := append([]AnswerSink(nil), s.sinks...)
	state := s.snapshotLocked()
	s.mu.Unlock()

	for _, sink := range sinks {
		sink(view)
	}
	s.changes.publish(state)
}

func (s *RoomSession) subscribe(key, destination string, handler func([]byte)) {
	sub, err := s.transport.Subscribe(destination, handler)
	if err != nil {
		s.log.Error().Err(err).Str("destination", destination).Msg("subscribe failed")
		return
	}
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.subs[key] = sub
	}
	s.mu.Unlock()
	if closed {
		_ = sub.Unsubscribe()
	}
}

func (s *RoomSession) announce(destination string) error {
	body, err := json.Marshal(domain.Presence{UserID: s.cfg.UserID, Name: s.cfg.UserName})
	if err != nil {
		return err
	}
	return s.transport.Publish(destination, body)
}

func (s *RoomSession) setState(state domain.ConnectionState, err error) {
	s.mu.Lock()
	s.state = state
	if err != nil {
		s.lastErr = err
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.publish(snap)
}

func (s *RoomSession) snapshotLocked() domain.RoomState {
	return domain.RoomState{
		RoomID:     s.cfg.RoomID,
		State:      s.state,
		RoomStatus: s.roomStatus,
		Users:      append([]domain.UserDto(nil), s.users...),
		Answers:    append([]domain.AnswerViewModel(nil), s.answers...),
	}
}

func listenerKey(id int) string {
	return "listener:" + strconv.Itoa(id)
}

func answerKey(a domain.AnswerViewModel) string {
	if a.ID != "" {
		return "id:" + a.ID
	}
	return a.StudentID + "|" + a.QuestionID + "|" + strconv.Itoa(a.Attempt) + "|" + a.SentAt
}
