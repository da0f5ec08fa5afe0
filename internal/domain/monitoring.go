package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// StudentMonitoringStateDto is the live state of one student.
type StudentMonitoringStateDto struct {
	StudentID           string  `json:"studentId"`
	StudentName         string  `json:"studentName"`
	Online              bool    `json:"online"`
	CurrentQuestionID   string  `json:"currentQuestionId,omitempty"`
	CurrentQuestionText string  `json:"currentQuestionText,omitempty"`
	LastAnswerCorrect   *bool   `json:"lastAnswerCorrect,omitempty"`
	LastAnsweredAt      string  `json:"lastAnsweredAt,omitempty"`
	TotalAnswered       int     `json:"totalAnswered"`
	TotalCorrect        int     `json:"totalCorrect"`
	AccuracyPct         float64 `json:"accuracyPct"`
	AvgResponseMillis   float64 `json:"avgResponseMillis"`
}

// GlobalMonitoringStatsDto aggregates the whole room.
type GlobalMonitoringStatsDto struct {
	GlobalAccuracyPct   float64 `json:"globalAccuracyPct"`
	TotalAnsweredAll    int     `json:"totalAnsweredAll"`
	TotalCorrectAll     int     `json:"totalCorrectAll"`
	ActiveStudentsCount int     `json:"activeStudentsCount"`
}

// RankingEntryDto is one line of the room ranking.
type RankingEntryDto struct {
	Position          int     `json:"position"`
	StudentID         string  `json:"studentId"`
	StudentName       string  `json:"studentName"`
	TotalCorrect      int     `json:"totalCorrect"`
	AccuracyPct       float64 `json:"accuracyPct"`
	AvgResponseMillis float64 `json:"avgResponseMillis"`
}

// RoomMonitoringSnapshotDto is authoritative in full: consumers replace, never merge.
type RoomMonitoringSnapshotDto struct {
	RoomID      string                      `json:"roomId"`
	Students    []StudentMonitoringStateDto `json:"students"`
	GlobalStats GlobalMonitoringStatsDto    `json:"globalStats"`
	Ranking     []RankingEntryDto           `json:"ranking"`
	Timestamp   Timestamp                   `json:"timestamp"`
}

// MonitoringConnection is the coarse connection indicator shown on dashboards.
type MonitoringConnection string

const (
	MonitoringConnecting MonitoringConnection = "connecting"
	MonitoringOnline     MonitoringConnection = "online"
	MonitoringOffline    MonitoringConnection = "offline"
)

// Timestamp decodes the timestamp shapes brokers emit (ISO-8601 with or
// without zone, epoch millis, epoch seconds with a fraction, Jackson date
// arrays) and encodes as RFC3339 with milliseconds. A value it cannot read is
// kept verbatim in Raw instead of failing the surrounding message.
type Timestamp struct {
	time.Time
	Raw json.RawMessage
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
}

// FormatISO renders t the way answer timestamps travel on the wire.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// Parsed reports whether the timestamp was understood.
func (t Timestamp) Parsed() bool {
	return len(t.Raw) == 0
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		if len(t.Raw) > 0 {
			return t.Raw, nil
		}
		return []byte("null"), nil
	}
	return json.Marshal(FormatISO(t.Time))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	t.Time = time.Time{}
	t.Raw = nil
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	parsed, ok := parseTimestamp(data)
	if !ok {
		t.Raw = append(json.RawMessage(nil), data...)
		return nil
	}
	t.Time = parsed
	return nil
}

func parseTimestamp(data []byte) (time.Time, bool) {
	switch data[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return time.Time{}, false
		}
		if raw == "" {
			return time.Time{}, true
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case '[':
		var parts []int
		if err := json.Unmarshal(data, &parts); err != nil || len(parts) < 3 || len(parts) > 7 {
			return time.Time{}, false
		}
		fields := make([]int, 7)
		copy(fields, parts)
		return time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5], fields[6], time.UTC), true
	}

	raw := string(data)
	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), true
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, false
	}
	whole := math.Floor(seconds)
	nanos := math.Round((seconds - whole) * 1e9)
	return time.Unix(int64(whole), int64(nanos)).UTC(), true
}
