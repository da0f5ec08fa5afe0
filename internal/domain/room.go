package domain

// Role is the privilege a user holds inside a room.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// RoomStatus is the activity phase broadcast on the status topic.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "WAITING"
	RoomStarted  RoomStatus = "STARTED"
	RoomFinished RoomStatus = "FINISHED"
)

// ConnectionState tracks one real-time session.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateError        ConnectionState = "ERROR"
)

// UserDto is one roster entry.
type UserDto struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role,omitempty"`
}

// RoomStatusMessage is the payload of the status topic.
type RoomStatusMessage struct {
	RoomID string     `json:"roomId"`
	Status RoomStatus `json:"status"`
}

// Presence is the join/leave announcement body.
type Presence struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// RoomState is a point-in-time copy of a session's local view.
type RoomState struct {
	RoomID     string            `json:"roomId"`
	State      ConnectionState   `json:"state"`
	RoomStatus RoomStatus        `json:"roomStatus,omitempty"`
	Users      []UserDto         `json:"users"`
	Answers    []AnswerViewModel `json:"answers"`
}
