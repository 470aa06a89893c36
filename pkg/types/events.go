package types

import "time"

// Wire event names. Inbound names are what clients send, outbound names are
// what the server emits.
const (
	EventUserJoin        = "user_join"
	EventSendMessage     = "send_message"
	EventTyping          = "typing"
	EventPrivateMessage  = "private_message"
	EventFileUpload      = "file_upload"
	EventMessageReceived = "message_received"
	EventUpdateUnread    = "update_unread"

	EventRegistered     = "registered"
	EventMessageHistory = "message_history"
	EventUserList       = "user_list"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventReceiveMessage = "receive_message"
	EventTypingUsers    = "typing_users"
	EventFileReceive    = "file_receive"
	EventMessageRead    = "message_read"
	EventUnreadUpdated  = "unread_updated"
	EventAck            = "ack"
	EventError          = "error"
)

// Command is one inbound request handled by the router.
type Command interface {
	command()
}

// Register asks to bind a display name to the connection.
type Register struct {
	Name string
}

// SendMessage posts a public message.
type SendMessage struct {
	Text    string
	ReplyTo string
}

// SetTyping turns the typing indicator on or off.
type SetTyping struct {
	IsTyping bool
}

// PrivateMessage sends a message to one live user, addressed by connection id
// or by display name.
type PrivateMessage struct {
	To   string
	Text string
}

// ShareFile broadcasts a base64 encoded file to the room.
type ShareFile struct {
	FileName string
	FileType string
	Data     string
}

// MarkRead reports that a message from SenderID has been seen.
type MarkRead struct {
	MessageID string
	SenderID  ConnectionID
}

// UpdateUnread adds Count unread messages from UserID to the connection's own
// counters. Count may be negative to mark messages as read.
type UpdateUnread struct {
	UserID string
	Count  int
}

// Disconnect is submitted once when the transport connection closes.
type Disconnect struct{}

// Tick is submitted periodically by the hub. It expires idle typing entries,
// prunes stale rate limit windows and forgets long closed connections.
type Tick struct {
	Now time.Time
}

func (Register) command()       {}
func (SendMessage) command()    {}
func (SetTyping) command()      {}
func (PrivateMessage) command() {}
func (ShareFile) command()      {}
func (MarkRead) command()       {}
func (UpdateUnread) command()   {}
func (Disconnect) command()     {}
func (Tick) command()           {}

// Inbound is a command tagged with the connection that sent it. Ref is an
// optional client reference echoed back in acks and errors.
type Inbound struct {
	ConnID  ConnectionID
	Ref     string
	Command Command
}

// Event is one outbound notification.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// FanoutMode selects which connections receive a delivery.
type FanoutMode int

const (
	// FanoutAll delivers to every live connection.
	FanoutAll FanoutMode = iota
	// FanoutAllExcept delivers to every live connection except ConnID.
	FanoutAllExcept
	// FanoutOne delivers to ConnID only.
	FanoutOne
)

// Target is the fan-out of a delivery.
type Target struct {
	Mode   FanoutMode
	ConnID ConnectionID
}

// Delivery pairs an event with the connections it goes to.
type Delivery struct {
	Target Target
	Event  Event
}

// ToAll builds a delivery for every connection.
func ToAll(name string, data any) Delivery {
	return Delivery{Target: Target{Mode: FanoutAll}, Event: Event{Name: name, Data: data}}
}

// ToAllExcept builds a delivery for every connection but id.
func ToAllExcept(id ConnectionID, name string, data any) Delivery {
	return Delivery{Target: Target{Mode: FanoutAllExcept, ConnID: id}, Event: Event{Name: name, Data: data}}
}

// ToOne builds a delivery for a single connection.
func ToOne(id ConnectionID, name string, data any) Delivery {
	return Delivery{Target: Target{Mode: FanoutOne, ConnID: id}, Event: Event{Name: name, Data: data}}
}
