package chat

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

// RoomInfo is a point-in-time summary of a live room.
type RoomInfo struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
	History int    `json:"history"`
}

// Registry maps room ids to rooms. It creates rooms on first join and
// deletes them once they have stayed empty for the grace period.
//
// Lock order is Registry.mu then Room.mu; rooms never call back into the
// registry.
type Registry struct {
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	rooms   map[string]*Room
	pending map[string]*time.Timer
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
		rooms:   make(map[string]*Room),
		pending: make(map[string]*time.Timer),
	}
}

// GetOrCreate returns the room with the given id, creating it if needed.
// Concurrent callers always observe the same Room for the same id.
func (r *Registry) GetOrCreate(roomID string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(roomID)
}

func (r *Registry) getOrCreateLocked(roomID string) *Room {
	if room, ok := r.rooms[roomID]; ok {
		return room
	}
	room := NewRoom(roomID, r.opts)
	r.rooms[roomID] = room
	r.metrics.RoomCreated()
	r.log.Info("room created", "room", roomID)
	return room
}

// Join adds conn to the room, creating the room if needed. A pending deletion
// of the room is cancelled, and the room cannot be deleted until the join has
// completed. The boolean is false if conn was already a member.
func (r *Registry) Join(roomID string, conn Conn, name string) (*Room, bool) {
	r.mu.Lock()
	room := r.getOrCreateLocked(roomID)
	room.joining.Add(1)
	r.cancelDeletionLocked(roomID)
	r.mu.Unlock()

	defer room.joining.Add(-1)
	return room, room.Join(conn, name)
}

// Get returns the room with the given id if it exists.
func (r *Registry) Get(roomID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// ScheduleDeletionIfEmpty arms the deletion check for a room. When the grace
// period elapses the room is deleted only if it is still registered, still
// empty and no join is in flight. Scheduling again restarts the grace period.
func (r *Registry) ScheduleDeletionIfEmpty(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	r.cancelDeletionLocked(roomID)

	// timer is assigned under r.mu, so the callback only reads it after
	// acquiring the lock.
	var timer *time.Timer
	timer = time.AfterFunc(r.opts.GracePeriod, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.expireLocked(roomID, room, timer)
	})
	r.pending[roomID] = timer
	r.log.Debug("room deletion scheduled", "room", roomID, "after", r.opts.GracePeriod)
}

// expireLocked runs when a deletion timer fires. A timer that was stopped or
// replaced after it fired finds a different entry in pending and does nothing.
func (r *Registry) expireLocked(roomID string, room *Room, timer *time.Timer) {
	if r.pending[roomID] != timer {
		return
	}
	delete(r.pending, roomID)

	if current, ok := r.rooms[roomID]; !ok || current != room {
		return
	}
	if room.joining.Load() > 0 || room.Len() > 0 {
		r.log.Debug("room deletion skipped", "room", roomID)
		return
	}
	r.removeLocked(roomID)
}

// Remove deletes a room immediately, regardless of its membership.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(roomID)
}

func (r *Registry) removeLocked(roomID string) {
	r.cancelDeletionLocked(roomID)
	if _, ok := r.rooms[roomID]; !ok {
		return
	}
	delete(r.rooms, roomID)
	r.metrics.RoomDeleted()
	r.log.Info("room deleted", "room", roomID)
}

func (r *Registry) cancelDeletionLocked(roomID string) {
	if timer, ok := r.pending[roomID]; ok {
		timer.Stop()
		delete(r.pending, roomID)
	}
}

// Snapshot summarizes the live rooms ordered by id.
func (r *Registry) Snapshot() []RoomInfo {
	r.mu.Lock()
	rooms := lo.Values(r.rooms)
	r.mu.Unlock()

	infos := lo.Map(rooms, func(room *Room, _ int) RoomInfo {
		room.mu.Lock()
		defer room.mu.Unlock()
		return RoomInfo{ID: room.id, Members: len(room.members), History: len(room.history)}
	})
	slices.SortFunc(infos, func(a, b RoomInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Close stops all pending deletion timers. Rooms stay registered.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.pending {
		r.cancelDeletionLocked(roomID)
	}
	r.closed = true
}
