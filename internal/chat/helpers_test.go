package chat

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingConn captures every payload sent to it.
type recordingConn struct {
	id ConnID

	mu          sync.Mutex
	frames      [][]byte
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
}

func newRecordingConn() *recordingConn {
	return &recordingConn{id: NewConnID()}
}

func (c *recordingConn) ID() ConnID { return c.id }

func (c *recordingConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return ErrConnClosed
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *recordingConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	return nil
}

// envelopes decodes and clears the frames received so far.
func (c *recordingConn) envelopes(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	out := make([]map[string]any, 0, len(frames))
	for _, frame := range frames {
		var env map[string]any
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func types(envs []map[string]any) []string {
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		out = append(out, env["type"].(string))
	}
	return out
}

func users(t *testing.T, env map[string]any) []string {
	t.Helper()
	require.Equal(t, TypeParticipants, env["type"])
	raw := env["users"].([]any)
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		out = append(out, u.(string))
	}
	require.EqualValues(t, len(out), env["count"])
	return out
}

func textMessage(sender, content string) Message {
	return Message{
		Type:        TypeMessage,
		Sender:      sender,
		Content:     content,
		ContentType: ContentText,
		Timestamp:   "2024-01-01T00:00:00.000Z",
	}
}
