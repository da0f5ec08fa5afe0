package app_test

import (
	"errors"
	"testing"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
	"github.com/rs/zerolog"
)

const snapshotOne = `{
	"roomId":"room-1",
	"students":[
		{"studentId":"s1","studentName":"Ana","online":true,"totalAnswered":2,"totalCorrect":2,"accuracyPct":100,"avgResponseMillis":900},
		{"studentId":"s2","studentName":"Ben","online":true,"totalAnswered":2,"totalCorrect":1,"accuracyPct":50,"avgResponseMillis":1500}
	],
	"globalStats":{"globalAccuracyPct":75,"totalAnsweredAll":4,"totalCorrectAll":3,"activeStudentsCount":2},
	"ranking":[{"position":1,"studentId":"s1","studentName":"Ana","totalCorrect":2,"accuracyPct":100,"avgResponseMillis":900}],
	"timestamp":"2026-03-01T09:30:00Z"
}`

const snapshotTwo = `{
	"roomId":"room-1",
	"students":[{"studentId":"s3","studentName":"Cy","online":false,"totalAnswered":1,"totalCorrect":0,"accuracyPct":0,"avgResponseMillis":3000}],
	"globalStats":{"globalAccuracyPct":0,"totalAnsweredAll":1,"totalCorrectAll":0,"activeStudentsCount":0},
	"ranking":[],
	"timestamp":1772357460000
}`

func TestAggregatorReplacesSnapshotWholesale(t *testing.T) {
	session, transport := openSession(t, domain.RoleTeacher)
	monitor := app.NewMonitoringAggregator(session, zerolog.Nop())
	monitor.Attach()
	defer monitor.Detach()

	if _, received := monitor.Snapshot(); received {
		t.Fatalf("expected no snapshot yet")
	}
	if n := transport.Deliver(domain.SnapshotTopic("room-1"), []byte(snapshotOne)); n != 1 {
		t.Fatalf("expected aggregator subscribed, got %d handlers", n)
	}
	state := monitor.State()
	if len(state.Students) != 2 || state.GlobalStats.TotalCorrectAll != 3 || len(state.Ranking) != 1 {
		t.Fatalf("unexpected first state %+v", state)
	}

	transport.Deliver(domain.SnapshotTopic("room-1"), []byte(snapshotTwo))
	state = monitor.State()
	if len(state.Students) != 1 || state.Students[0].StudentID != "s3" {
		t.Fatalf("expected students replaced, got %+v", state.Students)
	}
	if len(state.Ranking) != 0 || state.GlobalStats.TotalAnsweredAll != 1 {
		t.Fatalf("expected ranking and stats replaced, got %+v", state)
	}
	if state.Timestamp.UnixMilli() != 1772357460000 {
		t.Fatalf("expected epoch millis timestamp, got %v", state.Timestamp)
	}
}

func TestAggregatorKeepsSnapshotOnParseFailure(t *testing.T) {
	session, transport := openSession(t, domain.RoleTeacher)
	monitor := app.NewMonitoringAggregator(session, zerolog.Nop())
	monitor.Attach()
	defer monitor.Detach()

	transport.Deliver(domain.SnapshotTopic("room-1"), []byte(snapshotOne))
	transport.Deliver(domain.SnapshotTopic("room-1"), []byte(`{"students": 12`))

	if state := monitor.State(); len(state.Students) != 2 || state.GlobalStats.TotalAnsweredAll != 4 {
		t.Fatalf("expected previous snapshot retained, got %+v", state)
	}
}

func TestAggregatorAppliesSnapshotWhateverTheTimestamp(t *testing.T) {
	cases := []struct {
		name      string
		timestamp string
		want      time.Time
	}{
		{"numeric offset", `"2026-03-01T09:30:00.000+0000"`, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"epoch seconds with fraction", `1772357400.5`, time.Date(2026, 3, 1, 9, 30, 0, 5e8, time.UTC)},
		{"space separated", `"2026-03-01 09:30:00"`, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"date array", `[2026,3,1,9,30,0]`, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"unrecognized", `"yesterday"`, time.Time{}},
		{"object", `{"epochSecond":1}`, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session, transport := openSession(t, domain.RoleTeacher)
			monitor := app.NewMonitoringAggregator(session, zerolog.Nop())
			monitor.Attach()
			defer monitor.Detach()

			body := `{"roomId":"room-1",` +
				`"students":[{"studentId":"s1","studentName":"Ana","online":true,"totalAnswered":3,"totalCorrect":2}],` +
				`"globalStats":{"globalAccuracyPct":66.7,"totalAnsweredAll":3,"totalCorrectAll":2,"activeStudentsCount":1},` +
				`"ranking":[{"position":1,"studentId":"s1","studentName":"Ana","totalCorrect":2}],` +
				`"timestamp":` + tc.timestamp + `}`
			transport.Deliver(domain.SnapshotTopic("room-1"), []byte(body))

			if _, received := monitor.Snapshot(); !received {
				t.Fatalf("expected snapshot applied")
			}
			state := monitor.State()
			if len(state.Students) != 1 || state.Students[0].StudentID != "s1" || state.GlobalStats.TotalCorrectAll != 2 || len(state.Ranking) != 1 {
				t.Fatalf("unexpected state %+v", state)
			}
			if !state.Timestamp.Time.Equal(tc.want) {
				t.Fatalf("expected timestamp %v, got %v", tc.want, state.Timestamp.Time)
			}
			if tc.want.IsZero() && state.Timestamp.Parsed() {
				t.Fatalf("expected raw timestamp kept")
			}
		})
	}
}

func TestAggregatorIgnoresOtherRooms(t *testing.T) {
	session, transport := openSession(t, domain.RoleTeacher)
	monitor := app.NewMonitoringAggregator(session, zerolog.Nop())
	monitor.Attach()
	defer monitor.Detach()

	var sunk int
	monitor.OnSnapshot(func(domain.RoomMonitoringSnapshotDto) { sunk++ })

	transport.Deliver(domain.SnapshotTopic("room-1"), []byte(`{"roomId":"room-2","students":[{"studentId":"x"}]}`))
	if _, received := monitor.Snapshot(); received || sunk != 0 {
		t.Fatalf("expected foreign snapshot ignored")
	}

	transport.Deliver(domain.SnapshotTopic("room-1"), []byte(`{"students":[{"studentId":"s1"}]}`))
	snap, received := monitor.Snapshot()
	if !received || snap.RoomID != "room-1" || sunk != 1 {
		t.Fatalf("expected snapshot without roomId to be accepted, got %+v", snap)
	}
}

func TestAggregatorConnectionMirrorsSession(t *testing.T) {
	session, transport := openSession(t, domain.RoleTeacher)
	monitor := app.NewMonitoringAggregator(session, zerolog.Nop())

	if got := monitor.ConnectionState(); got != domain.MonitoringOnline {
		t.Fatalf("expected online, got %s", got)
	}
	transport.Drop(errors.New("gone"))
	if got := monitor.ConnectionState(); got != domain.MonitoringOffline {
		t.Fatalf("expected offline, got %s", got)
	}
	transport.Fail(domain.ErrBrokerError)
	if got := monitor.ConnectionState(); got != domain.MonitoringOffline {
		t.Fatalf("expected offline on error, got %s", got)
	}
}

func TestAggregatorConnectingState(t *testing.T) {
	source := stubSource{state: domain.StateConnecting}
	monitor := app.NewMonitoringAggregator(source, zerolog.Nop())
	if got := monitor.ConnectionState(); got != domain.MonitoringConnecting {
		t.Fatalf("expected connecting, got %s", got)
	}
}

func TestAggregatorHydrateOnlyBeforeFirstPush(t *testing.T) {
	session, transport := openSession(t, domain.RoleTeacher)
	monitor := app.NewMonitoringAggregator(session, zerolog.Nop())
	monitor.Attach()
	defer monitor.Detach()

	stored := domain.RoomMonitoringSnapshotDto{RoomID: "room-1", GlobalStats: domain.GlobalMonitoringStatsDto{TotalAnsweredAll: 9}}
	if !monitor.Hydrate(stored) {
		t.Fatalf("expected hydrate before first push")
	}
	if monitor.State().GlobalStats.TotalAnsweredAll != 9 {
		t.Fatalf("expected hydrated stats")
	}

	transport.Deliver(domain.SnapshotTopic("room-1"), []byte(snapshotOne))
	if monitor.Hydrate(stored) {
		t.Fatalf("expected hydrate to be refused after a push")
	}
	if monitor.State().GlobalStats.TotalAnsweredAll != 4 {
		t.Fatalf("expected pushed snapshot to win")
	}
}

func TestAggregatorUpdates(t *testing.T) {
	session, transport := openSession(t, domain.RoleTeacher)
	monitor := app.NewMonitoringAggregator(session, zerolog.Nop())
	monitor.Attach()

	updates, cancel := monitor.Updates()
	defer cancel()
	<-updates

	transport.Deliver(domain.SnapshotTopic("room-1"), []byte(snapshotOne))
	snap := <-updates
	if snap.GlobalStats.TotalCorrectAll != 3 {
		t.Fatalf("unexpected update %+v", snap.GlobalStats)
	}

	monitor.Detach()
	if _, ok := <-updates; ok {
		t.Fatalf("expected updates closed after detach")
	}
	if n := transport.Deliver(domain.SnapshotTopic("room-1"), []byte(snapshotTwo)); n != 0 {
		t.Fatalf("expected snapshot topic released, got %d handlers", n)
	}
}

type stubSource struct {
	state domain.ConnectionState
}

func (s stubSource) RoomID() string { return "room-1" }

func (s stubSource) Listen(string, func([]byte)) func() { return func() {} }

func (s stubSource) ConnectionState() domain.ConnectionState { return s.state }
