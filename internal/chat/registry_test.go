package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

const testGrace = 30 * time.Millisecond

func TestRegistry_GetOrCreateReturnsSameRoom(t *testing.T) {
	reg := NewRegistry(Options{})

	first := reg.GetOrCreate("R1")
	assert.Same(t, first, reg.GetOrCreate("R1"))
	assert.NotSame(t, first, reg.GetOrCreate("r1"), "room ids are case sensitive")
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_ConcurrentFirstJoinsShareOneRoom(t *testing.T) {
	reg := NewRegistry(Options{})

	const joiners = 50
	rooms := make([]*Room, joiners)
	var wg sync.WaitGroup
	wg.Add(joiners)
	for i := 0; i < joiners; i++ {
		go func(i int) {
			defer wg.Done()
			rooms[i], _ = reg.Join("R1", newRecordingConn(), "user")
		}(i)
	}
	wg.Wait()

	for _, room := range rooms {
		assert.Same(t, rooms[0], room)
	}
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, joiners, rooms[0].Len())
}

func TestRegistry_DeletesRoomAfterGracePeriod(t *testing.T) {
	m := metrics.New()
	reg := NewRegistry(Options{GracePeriod: testGrace, Metrics: m})
	x := newRecordingConn()
	room, _ := reg.Join("R1", x, "Alice")

	require.True(t, room.Leave(x.ID()).BecameEmpty)
	reg.ScheduleDeletionIfEmpty("R1")

	_, ok := reg.Get("R1")
	assert.True(t, ok, "room survives until the grace period elapses")

	require.Eventually(t, func() bool {
		_, ok := reg.Get("R1")
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_RejoinCancelsPendingDeletion(t *testing.T) {
	reg := NewRegistry(Options{GracePeriod: testGrace})
	x := newRecordingConn()
	room, _ := reg.Join("R1", x, "Alice")
	room.Leave(x.ID())
	reg.ScheduleDeletionIfEmpty("R1")

	y := newRecordingConn()
	rejoined, _ := reg.Join("R1", y, "Bob")
	assert.Same(t, room, rejoined)

	time.Sleep(4 * testGrace)
	got, ok := reg.Get("R1")
	require.True(t, ok)
	assert.Same(t, room, got)
	assert.True(t, got.Has(y.ID()))
}

func TestRegistry_StaleCheckDoesNotDeleteOccupiedRoom(t *testing.T) {
	reg := NewRegistry(Options{GracePeriod: testGrace})
	room := reg.GetOrCreate("R1")
	reg.ScheduleDeletionIfEmpty("R1")

	// Joining directly on the room bypasses the registry's cancellation, so
	// only the fire-time emptiness check protects it.
	x := newRecordingConn()
	room.Join(x, "Alice")

	time.Sleep(4 * testGrace)
	_, ok := reg.Get("R1")
	assert.True(t, ok)
}

func TestRegistry_RescheduleRestartsGracePeriod(t *testing.T) {
	reg := NewRegistry(Options{GracePeriod: 100 * time.Millisecond})
	reg.GetOrCreate("R1")

	reg.ScheduleDeletionIfEmpty("R1")
	time.Sleep(60 * time.Millisecond)
	reg.ScheduleDeletionIfEmpty("R1")
	time.Sleep(60 * time.Millisecond)

	_, ok := reg.Get("R1")
	assert.True(t, ok, "the first check was replaced by the second")

	require.Eventually(t, func() bool {
		_, ok := reg.Get("R1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_DeletionDoesNotTouchRecreatedRoom(t *testing.T) {
	reg := NewRegistry(Options{GracePeriod: testGrace})
	old := reg.GetOrCreate("R1")
	reg.ScheduleDeletionIfEmpty("R1")
	reg.Remove("R1")

	fresh := reg.GetOrCreate("R1")
	assert.NotSame(t, old, fresh)

	time.Sleep(4 * testGrace)
	got, ok := reg.Get("R1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestRegistry_Remove(t *testing.T) {
	m := metrics.New()
	reg := NewRegistry(Options{Metrics: m})
	reg.Join("R1", newRecordingConn(), "Alice")

	reg.Remove("R1")
	reg.Remove("R1")

	_, ok := reg.Get("R1")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_CloseStopsPendingDeletions(t *testing.T) {
	reg := NewRegistry(Options{GracePeriod: testGrace})
	reg.GetOrCreate("R1")
	reg.ScheduleDeletionIfEmpty("R1")

	reg.Close()
	reg.ScheduleDeletionIfEmpty("R1")

	time.Sleep(4 * testGrace)
	_, ok := reg.Get("R1")
	assert.True(t, ok)
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.Join("b", newRecordingConn(), "Bob")
	room, _ := reg.Join("a", newRecordingConn(), "Alice")
	reg.Join("a", newRecordingConn(), "Carol")
	room.Post(textMessage("Alice", "hi"))

	assert.Equal(t, []RoomInfo{
		{ID: "a", Members: 2, History: 1},
		{ID: "b", Members: 1, History: 0},
	}, reg.Snapshot())
}
