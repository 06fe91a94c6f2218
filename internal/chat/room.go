package chat

import (
	"cmp"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

type participant struct {
	conn Conn
	name string
	seq  uint64
}

// LeaveOutcome reports the effect of Room.Leave.
type LeaveOutcome struct {
	Removed     bool
	BecameEmpty bool
}

// Room is a named group of connections sharing a roster and a bounded
// message history. All membership and history changes are serialized by the
// room's own lock; broadcasts happen under that lock so every member sees the
// room's events in the same order.
type Room struct {
	id           string
	historyLimit int
	log          *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	// joining counts joins in flight. It is incremented under Registry.mu.
	joining atomic.Int32

	mu      sync.Mutex
	members map[ConnID]*participant
	nextSeq uint64
	history []Message
}

// NewRoom creates an empty room. Rooms are normally created by a Registry.
func NewRoom(id string, opts Options) *Room {
	opts = opts.withDefaults()
	return &Room{
		id:           id,
		historyLimit: opts.HistoryLimit,
		log:          opts.Logger.With("room", id),
		metrics:      opts.Metrics,
		now:          opts.Clock,
		members:      make(map[ConnID]*participant),
		history:      make([]Message, 0, opts.HistoryLimit),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

// Join adds conn to the room under the given display name. It returns false
// and does nothing if conn is already a member.
//
// The other members are notified first, then everyone receives the new
// roster, then the joiner alone receives the retained history.
func (r *Room) Join(conn Conn, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, ok := r.members[id]; ok {
		return false
	}
	r.nextSeq++
	r.members[id] = &participant{conn: conn, name: name, seq: r.nextSeq}
	r.log.Info("participant joined", "conn", id, "user", name, "members", len(r.members))

	r.broadcastLocked(r.notification(name+" joined the room"), id)
	r.broadcastLocked(r.encode(r.rosterLocked()), "")
	r.sendLocked(id, r.members[id], r.encode(History{
		Type:     TypeHistory,
		Messages: slices.Clone(r.history),
	}))
	return true
}

// Leave removes the connection from the room. Leaving a room the connection
// is not part of is a no-op.
func (r *Room) Leave(id ConnID) LeaveOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.members[id]
	if !ok {
		return LeaveOutcome{}
	}
	delete(r.members, id)
	r.log.Info("participant left", "conn", id, "user", p.name, "members", len(r.members))

	r.broadcastLocked(r.notification(p.name+" left the room"), "")
	r.broadcastLocked(r.encode(r.rosterLocked()), "")
	return LeaveOutcome{Removed: true, BecameEmpty: len(r.members) == 0}
}

// Post stores msg in the history and broadcasts it to every member,
// including its sender.
func (r *Room) Post(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.history) == r.historyLimit {
		copy(r.history, r.history[1:])
		r.history = r.history[:len(r.history)-1]
	}
	r.history = append(r.history, msg)
	r.metrics.MessagePosted(string(msg.ContentType))

	r.broadcastLocked(r.encode(msg), "")
}

// RelayTyping forwards a typing signal from one member to all the others.
// Signals from connections that are not members are ignored.
func (r *Room) RelayTyping(from ConnID, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.members[from]
	if !ok {
		return
	}
	r.broadcastLocked(r.encode(TypingSignal{
		Type:     TypeTyping,
		User:     p.name,
		IsTyping: isTyping,
	}), from)
}

// Roster returns the current participants in join order.
func (r *Room) Roster() Roster {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// History returns a copy of the retained messages, oldest first.
func (r *Room) History() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

// Len returns the number of members.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Has reports whether the connection is a member.
func (r *Room) Has(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	return ok
}

func (r *Room) rosterLocked() Roster {
	members := lo.Values(r.members)
	slices.SortFunc(members, func(a, b *participant) int {
		return cmp.Compare(a.seq, b.seq)
	})
	users := lo.Map(members, func(p *participant, _ int) string {
		return p.name
	})
	return Roster{Type: TypeParticipants, Users: users, Count: len(users)}
}

func (r *Room) notification(content string) []byte {
	return r.encode(Notification{
		Type:      TypeNotification,
		Content:   content,
		Timestamp: formatTimestamp(r.now()),
	})
}

func (r *Room) encode(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		r.log.Error("encode envelope", "err", err)
		return nil
	}
	return payload
}

// broadcastLocked sends payload to every member except exclude. A member
// whose connection refuses the payload is skipped; its own close
// notification removes it from the room.
func (r *Room) broadcastLocked(payload []byte, exclude ConnID) {
	if payload == nil {
		return
	}
	for id, p := range r.members {
		if id == exclude {
			continue
		}
		r.sendLocked(id, p, payload)
	}
}

func (r *Room) sendLocked(id ConnID, p *participant, payload []byte) {
	if payload == nil {
		return
	}
	if err := p.conn.Send(payload); err != nil {
		r.log.Debug("send skipped", "conn", id, "err", err)
		r.metrics.SendFailed()
	}
}
