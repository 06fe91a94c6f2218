package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/testhelpers"
)

func newTestServer(t *testing.T, mutate func(*server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()
	cfg := server.NewConfig()
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := server.New(*cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return srv, ts
}

func TestHealthHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ok", string(body))
}

func TestWebSocketHandler_RejectsNonGet(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.WebSocketHandler(rec, httptest.NewRequest(method, "/ws?room=R1", nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestWebSocketHandler_RejectsDisallowedOrigin(t *testing.T) {
	_, ts := newTestServer(t, nil)
	url := testhelpers.RoomURL(t, ts.URL, "R1", "Mallory")

	conn, resp, err := testhelpers.ConnectWebSocketWithOrigin(url, "http://evil.example")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketHandler_MissingRoomClosesWithPolicyViolation(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	conn, _, err := testhelpers.ConnectWebSocket(testhelpers.RoomURL(t, ts.URL, "", "Alice"))
	require.NoError(t, err)
	defer conn.Close()

	closeErr := testhelpers.ReadCloseError(t, conn)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "Room ID required", closeErr.Text)
	assert.Equal(t, 0, srv.Registry().Len())
}

func TestWebSocketHandler_TwoParticipants(t *testing.T) {
	_, ts := newTestServer(t, nil)

	alice, roster, history := testhelpers.JoinRoom(t, ts.URL, "R1", "Alice")
	assert.Equal(t, []string{"Alice"}, roster.Users())
	assert.Empty(t, history.Messages())

	bob, roster, history := testhelpers.JoinRoom(t, ts.URL, "R1", "Bob")
	assert.Equal(t, []string{"Alice", "Bob"}, roster.Users())
	assert.Empty(t, history.Messages())

	joined := testhelpers.ReadEnvelope(t, alice)
	assert.Equal(t, "notification", joined.Type())
	assert.Equal(t, "Bob joined the room", joined.String("content"))
	assert.NotEmpty(t, joined.String("timestamp"))
	roster = testhelpers.ReadEnvelope(t, alice)
	assert.Equal(t, []string{"Alice", "Bob"}, roster.Users())

	testhelpers.SendJSON(t, alice, map[string]any{
		"type":        "message",
		"content":     "hi",
		"contentType": "text",
	})
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := testhelpers.ReadEnvelope(t, conn)
		assert.Equal(t, "message", msg.Type())
		assert.Equal(t, "Alice", msg.String("sender"))
		assert.Equal(t, "hi", msg.String("content"))
		assert.Equal(t, "text", msg.String("contentType"))
		_, err := time.Parse(time.RFC3339Nano, msg.String("timestamp"))
		assert.NoError(t, err)
	}

	testhelpers.SendJSON(t, bob, map[string]any{"type": "typing", "isTyping": true})
	typing := testhelpers.ReadEnvelope(t, alice)
	assert.Equal(t, map[string]any{"type": "typing", "user": "Bob", "isTyping": true}, map[string]any(typing))

	require.NoError(t, testhelpers.CloseWebSocket(bob))
	left := testhelpers.ReadEnvelope(t, alice)
	assert.Equal(t, "Bob left the room", left.String("content"))
	roster = testhelpers.ReadEnvelope(t, alice)
	assert.Equal(t, []string{"Alice"}, roster.Users())
}

func TestWebSocketHandler_TypingNotEchoedToSender(t *testing.T) {
	_, ts := newTestServer(t, nil)

	alice, _, _ := testhelpers.JoinRoom(t, ts.URL, "R1", "Alice")
	testhelpers.SendJSON(t, alice, map[string]any{"type": "typing", "isTyping": true})

	testhelpers.ExpectNoMessage(t, alice, 200*time.Millisecond)
}

func TestWebSocketHandler_LateJoinerReceivesHistory(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *server.Config) { cfg.HistoryLimit = 3 })

	alice, _, _ := testhelpers.JoinRoom(t, ts.URL, "R1", "Alice")
	for _, content := range []string{"one", "two", "three", "four"} {
		testhelpers.SendJSON(t, alice, map[string]any{"type": "message", "content": content})
		testhelpers.ReadUntilType(t, alice, "message")
	}

	_, _, history := testhelpers.JoinRoom(t, ts.URL, "R1", "Bob")
	msgs := history.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "two", msgs[0].String("content"))
	assert.Equal(t, "four", msgs[2].String("content"))
}

func TestWebSocketHandler_BadFramesKeepConnectionOpen(t *testing.T) {
	_, ts := newTestServer(t, nil)

	alice, _, _ := testhelpers.JoinRoom(t, ts.URL, "R1", "Alice")
	testhelpers.SendRaw(t, alice, `{"type":`)
	testhelpers.SendRaw(t, alice, `{"type":"reaction"}`)
	testhelpers.SendRaw(t, alice, `{"type":"message","content":"x","contentType":"video"}`)
	testhelpers.SendJSON(t, alice, map[string]any{"type": "message", "content": "still here"})

	msg := testhelpers.ReadEnvelope(t, alice)
	assert.Equal(t, "message", msg.Type())
	assert.Equal(t, "still here", msg.String("content"))
}

func TestWebSocketHandler_PlaceholderName(t *testing.T) {
	_, ts := newTestServer(t, nil)

	_, roster, _ := testhelpers.JoinRoom(t, ts.URL, "R1", "")
	users := roster.Users()
	require.Len(t, users, 1)
	assert.Regexp(t, `^User_[0-9a-z]{6}$`, users[0])
}

func TestWebSocketHandler_RoomsAreIsolated(t *testing.T) {
	_, ts := newTestServer(t, nil)

	alice, _, _ := testhelpers.JoinRoom(t, ts.URL, "R1", "Alice")
	carol, _, _ := testhelpers.JoinRoom(t, ts.URL, "R2", "Carol")

	testhelpers.SendJSON(t, alice, map[string]any{"type": "message", "content": "only R1"})
	assert.Equal(t, "only R1", testhelpers.ReadEnvelope(t, alice).String("content"))
	testhelpers.ExpectNoMessage(t, carol, 200*time.Millisecond)
}

func TestWebSocketHandler_EmptyRoomDeletedAfterGracePeriod(t *testing.T) {
	srv, ts := newTestServer(t, func(cfg *server.Config) { cfg.RoomGracePeriod = 50 * time.Millisecond })

	alice, _, _ := testhelpers.JoinRoom(t, ts.URL, "R1", "Alice")
	require.Equal(t, 1, srv.Registry().Len())
	require.NoError(t, testhelpers.CloseWebSocket(alice))

	require.Eventually(t, func() bool {
		return srv.Registry().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoomsHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	alice, _, _ := testhelpers.JoinRoom(t, ts.URL, "R1", "Alice")
	testhelpers.JoinRoom(t, ts.URL, "R1", "Bob")
	testhelpers.SendJSON(t, alice, map[string]any{"type": "message", "content": "hi"})
	testhelpers.ReadUntilType(t, alice, "message")

	resp, err := http.Get(ts.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var rooms []chat.RoomInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.Equal(t, []chat.RoomInfo{{ID: "R1", Members: 2, History: 1}}, rooms)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)
	testhelpers.JoinRoom(t, ts.URL, "R1", "Alice")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "roomchat_rooms_active 1"))
	assert.Contains(t, string(body), "roomchat_connections_active 1")
}
