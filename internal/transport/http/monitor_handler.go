package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// SnapshotStore serves the last snapshot persisted for a room.
type SnapshotStore interface {
	Latest(ctx context.Context, roomID string) (domain.RoomMonitoringSnapshotDto, error)
}

// RoomView is everything the monitor exposes for one room.
type RoomView struct {
	Session *app.RoomSession
	Monitor *app.MonitoringAggregator
}

// MonitorHandler serves the monitored rooms over HTTP and WebSocket.
type MonitorHandler struct {
	store    SnapshotStore
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]RoomView
}

// NewMonitorHandler builds the handler; store may be nil.
func NewMonitorHandler(store SnapshotStore, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		store: store,
		log:   log.With().Str("component", "monitor_http").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]RoomView),
	}
}

// Register exposes a room.
func (h *MonitorHandler) Register(roomID string, view RoomView) {
	h.mu.Lock()
	h.rooms[roomID] = view
	h.mu.Unlock()
}

// Routes returns the mux serving every monitor endpoint.
func (h *MonitorHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /rooms/{roomId}/snapshot", h.snapshot)
	mux.HandleFunc("GET /rooms/{roomId}/answers", h.answers)
	mux.HandleFunc("GET /rooms/{roomId}/stream", h.ServeStream)
	return mux
}

type healthResponse struct {
	Status string                                 `json:"status"`
	Rooms  map[string]domain.MonitoringConnection `json:"rooms"`
}

func (h *MonitorHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Rooms: make(map[string]domain.MonitoringConnection)}
	h.mu.RLock()
	for id, view := range h.rooms {
		resp.Rooms[id] = view.Monitor.ConnectionState()
	}
	h.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

func (h *MonitorHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	view, ok := h.room(roomID)
	if !ok {
		writeError(w, http.StatusNotFound, "room not monitored")
		return
	}

	if _, received := view.Monitor.Snapshot(); !received && h.store != nil {
		snap, err := h.store.Latest(r.Context(), roomID)
		switch {
		case err == nil:
			view.Monitor.Hydrate(snap)
		case !errors.Is(err, domain.ErrSnapshotNotFound):
			h.log.Warn().Err(err).Str("room_id", roomID).Msg("snapshot store lookup failed")
		}
	}
	writeJSON(w, http.StatusOK, view.Monitor.State())
}

func (h *MonitorHandler) answers(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	view, ok := h.room(roomID)
	if !ok {
		writeError(w, http.StatusNotFound, "room not monitored")
		return
	}

	state := view.Session.State()
	studentID := r.URL.Query().Get("studentId")
	questionID := r.URL.Query().Get("questionId")
	if studentID != "" || questionID != "" {
		filtered := make([]domain.AnswerViewModel, 0, len(state.Answers))
		for _, a := range state.Answers {
			if studentID != "" && a.StudentID != studentID {
				continue
			}
			if questionID != "" && a.QuestionID != questionID {
				continue
			}
			filtered = append(filtered, a)
		}
		state.Answers = filtered
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *MonitorHandler) room(roomID string) (RoomView, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	view, ok := h.rooms[roomID]
	return view, ok
}

// RoomIDs lists the registered rooms.
func (h *MonitorHandler) RoomIDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

type errorPayload struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Message: msg})
}
