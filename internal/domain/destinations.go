package domain

import "fmt"

// Broker destinations, all scoped by room.

// UsersTopic carries the room roster.
func UsersTopic(roomID string) string {
	return fmt.Sprintf("/topic/room/%s/users", roomID)
}

// StatusTopic carries room status changes.
func StatusTopic(roomID string) string {
	return fmt.Sprintf("/topic/room/%s/status", roomID)
}

// AnswersTopic carries every answer event of the room.
func AnswersTopic(roomID string) string {
	return fmt.Sprintf("/topic/monitoring/room/%s/answers", roomID)
}

// SnapshotTopic carries RoomMonitoringSnapshotDto pushes.
func SnapshotTopic(roomID string) string {
	return fmt.Sprintf("/topic/monitoring/room/%s/snapshot", roomID)
}

func JoinDestination(roomID string) string {
	return fmt.Sprintf("/app/room/%s/join", roomID)
}

func LeaveDestination(roomID string) string {
	return fmt.Sprintf("/app/room/%s/leave", roomID)
}

func StartDestination(roomID string) string {
	return fmt.Sprintf("/app/room/%s/start", roomID)
}

// AnswerDestination receives AnswerEventPayload publishes.
func AnswerDestination(roomID string) string {
	return fmt.Sprintf("/app/monitoring/room/%s/answer", roomID)
}
