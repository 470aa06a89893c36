package types

import (
	"time"
)

// ConnectionID identifies one live transport connection. It is assigned by the
// transport layer and has no meaning once the connection closes.
type ConnectionID string

// Visibility tells whether a message was sent to the room or to a single user.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// User is a connection that registered a display name.
type User struct {
	ID       ConnectionID `json:"id"`
	Name     string       `json:"username"`
	JoinedAt time.Time    `json:"joinedAt"`
}

// Message is a chat message. Messages are immutable once created; only public
// messages are kept in history.
type Message struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	SenderID      ConnectionID `json:"senderId"`
	SenderName    string       `json:"sender"`
	Timestamp     time.Time    `json:"timestamp"`
	Visibility    Visibility   `json:"visibility"`
	RecipientID   ConnectionID `json:"recipientId,omitempty"`
	RecipientName string       `json:"recipient,omitempty"`
	ReplyTo       string       `json:"replyTo,omitempty"`
}

// IsPrivate reports whether the message was addressed to a single recipient.
func (m Message) IsPrivate() bool {
	return m.Visibility == VisibilityPrivate
}

// FileShare is a file broadcast to the room. It is relayed, never retained.
type FileShare struct {
	ID           string       `json:"id"`
	SenderID     ConnectionID `json:"senderId"`
	SenderName   string       `json:"sender"`
	FileName     string       `json:"fileName"`
	FileType     string       `json:"fileType"`
	DetectedType string       `json:"detectedType"`
	Size         int          `json:"size"`
	Data         string       `json:"file"`
	Timestamp    time.Time    `json:"timestamp"`
}

// ReadReceipt tells a sender that one of their messages was seen.
type ReadReceipt struct {
	MessageID  string       `json:"messageId"`
	ReaderID   ConnectionID `json:"readerId"`
	ReaderName string       `json:"reader"`
	Timestamp  time.Time    `json:"timestamp"`
}

// UnreadCounts are the per-connection unread counters, keyed by the user the
// messages came from.
type UnreadCounts struct {
	Total  int            `json:"total"`
	ByUser map[string]int `json:"byUser"`
}

// Presence is the payload of join and leave notifications.
type Presence struct {
	ID        ConnectionID `json:"id"`
	Name      string       `json:"username"`
	Timestamp time.Time    `json:"timestamp"`
}

// Ack confirms to a sender that fan-out for its request has been scheduled.
type Ack struct {
	Ref       string `json:"ref"`
	MessageID string `json:"messageId,omitempty"`
}

// ErrorPayload is what a connection receives when one of its requests is rejected.
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Ref     string    `json:"ref,omitempty"`
}

// MessagePage is one page of public history, newest page first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Pages    int       `json:"pages"`
}
