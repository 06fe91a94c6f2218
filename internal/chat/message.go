package chat

import "time"

// Envelope types exchanged over the wire.
const (
	TypeMessage      = "message"
	TypeTyping       = "typing"
	TypeNotification = "notification"
	TypeParticipants = "participants"
	TypeHistory      = "history"
)

// ContentType is the kind of payload carried by a chat message.
type ContentType string

// Supported content types. Media travel as data URLs in Content.
const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentFile  ContentType = "file"
)

// timestampLayout matches JavaScript's Date.prototype.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func validTimestamp(ts string) bool {
	_, err := time.Parse(time.RFC3339Nano, ts)
	return err == nil
}

// Inbound is the union of the envelopes a client may send.
type Inbound struct {
	Type        string      `json:"type"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType" validate:"required,oneof=text image audio file"`
	Sender      string      `json:"sender,omitempty"`
	FileName    string      `json:"fileName,omitempty" validate:"max=1024"`
	FileSize    *int64      `json:"fileSize,omitempty" validate:"omitempty,gte=0"`
	Timestamp   string      `json:"timestamp,omitempty"`
	IsTyping    bool        `json:"isTyping"`
}

// Message is a chat message as stored in history and broadcast to members.
// Stored messages are never modified.
type Message struct {
	Type        string      `json:"type"`
	Sender      string      `json:"sender"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	FileName    string      `json:"fileName,omitempty"`
	FileSize    *int64      `json:"fileSize,omitempty"`
	Timestamp   string      `json:"timestamp"`
}

// Notification is a system message about membership changes.
type Notification struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// TypingSignal tells members that a participant started or stopped typing.
type TypingSignal struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

// Roster is a snapshot of a room's participants. Count always equals len(Users).
type Roster struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// History carries the retained messages of a room to a joining member.
type History struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages"`
}
