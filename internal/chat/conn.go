package chat

//go:generate mockgen -source=conn.go -destination=mocks/mock_conn.go -package=mocks

import "github.com/google/uuid"

// WebSocket close codes used by the relay.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
)

// ConnID identifies one accepted connection. It is generated at accept time
// and is the only key used for room membership.
type ConnID string

// NewConnID returns a fresh random connection id.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Conn is a handle to one client's transport.
//
// Send must not block: implementations queue the payload and report
// ErrSendBufferFull or ErrConnClosed instead of waiting. Close may be called
// more than once.
type Conn interface {
	ID() ConnID
	Send(payload []byte) error
	Close(code int, reason string) error
}
