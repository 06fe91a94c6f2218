// Package testhelpers provides common utilities for the relay's HTTP and
// WebSocket tests.
//
// It covers the repetitive parts of talking to a running server: building
// room URLs, dialing with an allowed origin, and reading typed envelopes with
// a deadline so a missing frame fails the test instead of hanging it.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the origin sent by ConnectWebSocket. It matches the default
// allowed origin.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every envelope read.
const ReadTimeout = 2 * time.Second

// Envelope is a decoded server frame.
type Envelope map[string]any

// Type returns the envelope's type field.
func (e Envelope) Type() string {
	s, _ := e["type"].(string)
	return s
}

// String returns a string field, or "" if it is absent.
func (e Envelope) String(key string) string {
	s, _ := e[key].(string)
	return s
}

// Users returns the users of a participants envelope.
func (e Envelope) Users() []string {
	raw, _ := e["users"].([]any)
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		if s, ok := u.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Messages returns the messages of a history envelope.
func (e Envelope) Messages() []Envelope {
	raw, _ := e["messages"].([]any)
	out := make([]Envelope, 0, len(raw))
	for _, m := range raw {
		if obj, ok := m.(map[string]any); ok {
			out = append(out, Envelope(obj))
		}
	}
	return out
}

// WebSocketURL converts an httptest server URL into the ws:// URL of path.
func WebSocketURL(t *testing.T, serverURL, path string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = path
	return u.String()
}

// RoomURL returns the WebSocket URL joining room as user. Empty values are
// left out of the query.
func RoomURL(t *testing.T, serverURL, room, user string) string {
	t.Helper()
	u, err := url.Parse(WebSocketURL(t, serverURL, "/ws"))
	require.NoError(t, err)
	q := u.Query()
	if room != "" {
		q.Set("room", room)
	}
	if user != "" {
		q.Set("user", user)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectWebSocket dials url with TestOrigin. The handshake response is
// returned so callers can inspect rejected upgrades.
func ConnectWebSocket(url string) (*websocket.Conn, *http.Response, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url with the given Origin header. An empty
// origin sends no header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// JoinRoom connects to room as user and consumes the roster and history
// envelopes every joiner receives.
func JoinRoom(t *testing.T, serverURL, room, user string) (*websocket.Conn, Envelope, Envelope) {
	t.Helper()
	conn, _, err := ConnectWebSocket(RoomURL(t, serverURL, room, user))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	roster := ReadUntilType(t, conn, "participants")
	history := ReadEnvelope(t, conn)
	require.Equal(t, "history", history.Type())
	return conn, roster, history
}

// ReadEnvelope reads one frame within ReadTimeout and decodes it.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env), "frame %q", data)
	return env
}

// ReadUntilType skips envelopes until one of type typ arrives.
func ReadUntilType(t *testing.T, conn *websocket.Conn, typ string) Envelope {
	t.Helper()
	for {
		env := ReadEnvelope(t, conn)
		if env.Type() == typ {
			return env
		}
	}
}

// ExpectNoMessage fails the test if a frame arrives within wait.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %q", data)
}

// SendJSON writes v as a single text frame.
func SendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// SendRaw writes data as a single text frame.
func SendRaw(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// ReadCloseError reads until the server closes the connection and returns
// the close frame it sent.
func ReadCloseError(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}
