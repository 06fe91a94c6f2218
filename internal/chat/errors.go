package chat

import "errors"

var (
	// ErrRoomRequired is returned when a connection is opened without a room id.
	ErrRoomRequired = errors.New("room id required")
	// ErrDecode marks an inbound frame that is not a valid JSON envelope.
	ErrDecode = errors.New("malformed envelope")
	// ErrUnknownEnvelope marks an envelope whose type the router does not handle.
	ErrUnknownEnvelope = errors.New("unknown envelope type")
	// ErrInvalidMessage marks a message envelope that failed validation.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotJoined is returned when a session receives frames outside the joined state.
	ErrNotJoined = errors.New("session not joined")

	// ErrConnClosed is returned by Conn.Send once the connection is closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Conn.Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
)
