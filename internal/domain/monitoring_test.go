package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampKeepsUnknownValueVerbatim(t *testing.T) {
	var snap RoomMonitoringSnapshotDto
	if err := json.Unmarshal([]byte(`{"roomId":"room-1","timestamp":"last tuesday"}`), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.Timestamp.Parsed() || !snap.Timestamp.IsZero() {
		t.Fatalf("expected raw timestamp, got %+v", snap.Timestamp)
	}
	out, err := json.Marshal(snap.Timestamp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"last tuesday"` {
		t.Fatalf("expected raw value echoed, got %s", out)
	}
}

func TestTimestampEncodesISOMillis(t *testing.T) {
	ts := Timestamp{Time: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
	out, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"2026-03-01T09:30:00.000Z"` {
		t.Fatalf("unexpected encoding %s", out)
	}

	var back Timestamp
	if err := json.Unmarshal([]byte("null"), &back); err != nil || !back.IsZero() || !back.Parsed() {
		t.Fatalf("expected null to decode to zero, got %+v err=%v", back, err)
	}
}
