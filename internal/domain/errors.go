package domain

import "errors"

var (
	// ErrNotConnected is returned when a publish or subscribe is attempted without a live connection.
	ErrNotConnected = errors.New("not connected")
	// ErrSessionClosed is returned when a closed room session is reused.
	ErrSessionClosed = errors.New("room session closed")
	// ErrSessionNotFound is returned when no session is registered for a room and user.
	ErrSessionNotFound = errors.New("room session not found")
	// ErrRoomRequired indicates a room-scoped call was made without a room id.
	ErrRoomRequired = errors.New("room id is required")
	// ErrSnapshotNotFound indicates no monitoring snapshot has been stored for a room.
	ErrSnapshotNotFound = errors.New("monitoring snapshot not found")
	// ErrBrokerError wraps ERROR frames sent by the message broker.
	ErrBrokerError = errors.New("broker error")
)
