package redis

import "fmt"

// SessionKey marks a live (room, user) connection.
func SessionKey(roomID, userID string) string {
	return fmt.Sprintf("live:session:%s:%s", roomID, userID)
}

// HistoryKey holds cached answer history for a room and filter combination.
func HistoryKey(roomID, studentID, questionID string) string {
	return fmt.Sprintf("live:history:%s:%s:%s", roomID, studentID, questionID)
}

// SnapshotKey holds the latest monitoring snapshot of a room.
func SnapshotKey(roomID string) string {
	return fmt.Sprintf("live:snapshot:%s", roomID)
}
