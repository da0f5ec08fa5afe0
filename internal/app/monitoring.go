package app

import (
	"encoding/json"
	"sync"

	"classroom-live/internal/domain"
	"github.com/rs/zerolog"
)

// MonitoringSource is the part of a room session the aggregator depends on.
type MonitoringSource interface {
	RoomID() string
	Listen(destination string, handler func(body []byte)) func()
	ConnectionState() domain.ConnectionState
}

// SnapshotSink receives every accepted snapshot.
type SnapshotSink func(domain.RoomMonitoringSnapshotDto)

// MonitoringState is what dashboards render.
type MonitoringState struct {
	RoomID      string                             `json:"roomId"`
	Connection  domain.MonitoringConnection        `json:"connectionState"`
	Students    []domain.StudentMonitoringStateDto `json:"students"`
	GlobalStats domain.GlobalMonitoringStatsDto    `json:"globalStats"`
	Ranking     []domain.RankingEntryDto           `json:"ranking"`
	Timestamp   domain.Timestamp                   `json:"timestamp"`
}

// MonitoringAggregator keeps the latest snapshot pushed for one room. Each
// snapshot replaces the previous one in full; nothing is merged.
type MonitoringAggregator struct {
	source MonitoringSource
	log    zerolog.Logger

	mu       sync.RWMutex
	snapshot domain.RoomMonitoringSnapshotDto
	received bool
	sinks    []SnapshotSink
	detach   func()

	updates *watchers[domain.RoomMonitoringSnapshotDto]
}

func NewMonitoringAggregator(source MonitoringSource, log zerolog.Logger) *MonitoringAggregator {
	return &MonitoringAggregator{
		source: source,
		log: log.With().
			Str("component", "monitoring").
			Str("room_id", source.RoomID()).
			Logger(),
		snapshot: domain.RoomMonitoringSnapshotDto{RoomID: source.RoomID()},
		updates:  newWatchers[domain.RoomMonitoringSnapshotDto](),
	}
}

// Attach subscribes to the room's snapshot topic for the lifetime of the source session.
func (a *MonitoringAggregator) Attach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detach != nil {
		return
	}
	a.detach = a.source.Listen(domain.SnapshotTopic(a.source.RoomID()), a.handleSnapshot)
}

// Detach stops listening and closes update channels.
func (a *MonitoringAggregator) Detach() {
	a.mu.Lock()
	detach := a.detach
	a.detach = nil
	a.mu.Unlock()
	if detach != nil {
		detach()
	}
	a.updates.closeAll()
}

// OnSnapshot registers a sink for accepted snapshots.
func (a *MonitoringAggregator) OnSnapshot(sink SnapshotSink) {
	a.mu.Lock()
	a.sinks = append(a.sinks, sink)
	a.mu.Unlock()
}

// Hydrate installs a snapshot obtained out of band (e.g. from a store) unless
// a pushed one has already arrived.
func (a *MonitoringAggregator) Hydrate(snap domain.RoomMonitoringSnapshotDto) bool {
	a.mu.Lock()
	if a.received || snap.RoomID != a.source.RoomID() {
		a.mu.Unlock()
		return false
	}
	a.snapshot = snap
	a.mu.Unlock()
	a.updates.publish(snap)
	return true
}

// Snapshot returns the latest snapshot and whether one was pushed yet.
// The returned slices are shared and must not be modified.
func (a *MonitoringAggregator) Snapshot() (domain.RoomMonitoringSnapshotDto, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot, a.received
}

// State combines the latest snapshot with the derived connection indicator.
func (a *MonitoringAggregator) State() MonitoringState {
	a.mu.RLock()
	snap := a.snapshot
	a.mu.RUnlock()
	return MonitoringState{
		RoomID:      a.source.RoomID(),
		Connection:  a.ConnectionState(),
		Students:    snap.Students,
		GlobalStats: snap.GlobalStats,
		Ranking:     snap.Ranking,
		Timestamp:   snap.Timestamp,
	}
}

// ConnectionState mirrors the shared connection's state.
func (a *MonitoringAggregator) ConnectionState() domain.MonitoringConnection {
	switch a.source.ConnectionState() {
	case domain.StateConnected:
		return domain.MonitoringOnline
	case domain.StateConnecting:
		return domain.MonitoringConnecting
	default:
		return domain.MonitoringOffline
	}
}

// Updates streams accepted snapshots, starting with the current one. The
// caller must invoke the returned cancel function to avoid leaks.
func (a *MonitoringAggregator) Updates() (<-chan domain.RoomMonitoringSnapshotDto, func()) {
	snap, _ := a.Snapshot()
	return a.updates.subscribe(snap)
}

func (a *MonitoringAggregator) handleSnapshot(body []byte) {
	var snap domain.RoomMonitoringSnapshotDto
	if err := json.Unmarshal(body, &snap); err != nil {
		a.log.Warn().Err(err).Msg("discarding malformed monitoring snapshot")
		return
	}
	roomID := a.source.RoomID()
	if snap.RoomID == "" {
		snap.RoomID = roomID
	}
	if snap.RoomID != roomID {
		a.log.Warn().Str("snapshot_room_id", snap.RoomID).Msg("discarding snapshot for another room")
		return
	}
	if !snap.Timestamp.Parsed() {
		a.log.Warn().RawJSON("timestamp", snap.Timestamp.Raw).Msg("snapshot timestamp not recognized, kept as received")
	}

	a.mu.Lock()
	a.snapshot = snap
	a.received = true
	sinks := append([]SnapshotSink(nil), a.sinks...)
	a.mu.Unlock()

	a.log.Debug().
		Int("students", len(snap.Students)).
		Int("answered", snap.GlobalStats.TotalAnsweredAll).
		Msg("monitoring snapshot received")

	for _, sink := range sinks {
		sink(snap)
	}
	a.updates.publish(snap)
}
