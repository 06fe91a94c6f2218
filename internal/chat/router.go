package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	nanoid "github.com/jaevor/go-nanoid"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

const (
	placeholderAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	placeholderLength   = 6
)

// Router turns the frames of individual connections into room operations.
type Router struct {
	registry *Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time
	names    func() string
	trust    bool
}

// NewRouter creates a router dispatching to the rooms of registry.
func NewRouter(registry *Registry, opts Options) (*Router, error) {
	opts = opts.withDefaults()
	names, err := nanoid.CustomASCII(placeholderAlphabet, placeholderLength)
	if err != nil {
		return nil, fmt.Errorf("placeholder name generator: %w", err)
	}
	return &Router{
		registry: registry,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		validate: validator.New(),
		now:      opts.Clock,
		names:    names,
		trust:    opts.TrustClientIdentity,
	}, nil
}

// Open attaches a freshly accepted connection to a room. Without a room id the
// connection is closed with a policy violation and ErrRoomRequired is
// returned. An empty user gets a generated placeholder name.
func (r *Router) Open(conn Conn, roomID, user string) (*Session, error) {
	if roomID == "" {
		r.log.Warn("connection rejected", "conn", conn.ID(), "err", ErrRoomRequired)
		if err := conn.Close(ClosePolicyViolation, "Room ID required"); err != nil {
			r.log.Debug("close rejected connection", "conn", conn.ID(), "err", err)
		}
		return nil, ErrRoomRequired
	}
	if user == "" {
		user = "User_" + r.names()
	}

	s := &Session{
		router: r,
		conn:   conn,
		name:   user,
		log:    r.log.With("room", roomID, "conn", conn.ID(), "user", user),
	}
	s.room, _ = r.registry.Join(roomID, conn, user)
	s.state = StateJoined
	return s, nil
}

// message builds the stored form of an inbound message envelope.
func (r *Router) message(name string, in Inbound) (Message, error) {
	if in.ContentType == "" {
		in.ContentType = ContentText
	}
	if err := r.validate.Struct(in); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	msg := Message{
		Type:        TypeMessage,
		Sender:      in.Sender,
		Content:     in.Content,
		ContentType: in.ContentType,
		FileName:    in.FileName,
		FileSize:    in.FileSize,
		Timestamp:   in.Timestamp,
	}
	if !r.trust || msg.Sender == "" {
		msg.Sender = name
	}
	if msg.Timestamp == "" || (!r.trust && !validTimestamp(msg.Timestamp)) {
		msg.Timestamp = formatTimestamp(r.now())
	}
	return msg, nil
}

// State is the lifecycle stage of a Session.
type State int

const (
	StateConnecting State = iota
	StateJoined
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Session is one connection's membership in one room.
type Session struct {
	router *Router
	conn   Conn
	name   string
	log    *slog.Logger

	mu    sync.Mutex
	state State
	room  *Room
}

// Name returns the display name the session joined with.
func (s *Session) Name() string {
	return s.name
}

// Room returns the room the session joined.
func (s *Session) Room() *Room {
	return s.room
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle processes one inbound frame. Malformed, invalid and unknown
// envelopes are logged and dropped; the returned error only describes why.
func (s *Session) Handle(raw []byte) error {
	s.mu.Lock()
	state, room := s.state, s.room
	s.mu.Unlock()
	if state != StateJoined {
		return ErrNotJoined
	}

	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		s.log.Warn("dropping malformed envelope", "err", err)
		s.router.metrics.EnvelopeDropped("decode")
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch in.Type {
	case TypeMessage:
		msg, err := s.router.message(s.name, in)
		if err != nil {
			s.log.Warn("dropping invalid message", "err", err)
			s.router.metrics.EnvelopeDropped("invalid")
			return err
		}
		room.Post(msg)
	case TypeTyping:
		room.RelayTyping(s.conn.ID(), in.IsTyping)
	default:
		s.log.Warn("dropping unknown envelope", "type", in.Type)
		s.router.metrics.EnvelopeDropped("unknown")
		return fmt.Errorf("%w: %q", ErrUnknownEnvelope, in.Type)
	}
	return nil
}

// Close leaves the room and, if it became empty, schedules its deletion.
// Calling Close more than once has no further effect.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state != StateJoined {
		s.state = StateLeft
		s.mu.Unlock()
		return
	}
	s.state = StateLeft
	room := s.room
	s.mu.Unlock()

	if out := room.Leave(s.conn.ID()); out.BecameEmpty {
		s.router.registry.ScheduleDeletionIfEmpty(room.ID())
	}
}
