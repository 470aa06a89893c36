// Package router is the chat protocol state machine. It owns the connection
// registry, the public history and the typing set, applies one inbound
// command at a time and returns the deliveries that command produced.
package router

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chatrelay/internal/history"
	"chatrelay/internal/session"
	"chatrelay/internal/typing"
	"chatrelay/pkg/types"
)

// Options bounds the behavior of a Router.
type Options struct {
	HistoryLimit      int
	JoinHistorySize   int
	MaxNameLength     int
	MaxMessageLength  int
	MaxFileBytes      int
	TypingTimeout     time.Duration
	MessagesPerMinute int
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:      history.DefaultLimit,
		JoinHistorySize:   50,
		MaxNameLength:     50,
		MaxMessageLength:  2000,
		MaxFileBytes:      1 << 20,
		TypingTimeout:     5 * time.Second,
		MessagesPerMinute: 100,
	}
}

// closedRetention is how long a closed connection id keeps rejecting
// commands before it is forgotten.
const closedRetention = 10 * time.Minute

// Router serializes every state change of the chat room.
type Router struct {
	mu       sync.Mutex
	opts     Options
	sessions *session.Manager
	history  *history.Buffer
	typing   *typing.Aggregator
	limiter  *RateLimiter
	unread   map[types.ConnectionID]types.UnreadCounts
	closed   map[types.ConnectionID]time.Time
	newID    func() string
	now      func() time.Time
}

// NewRouter creates a Router with an empty room.
func NewRouter(opts Options) *Router {
	return &Router{
		opts:     opts,
		sessions: session.NewManager(opts.MaxNameLength),
		history:  history.NewBuffer(opts.HistoryLimit),
		typing:   typing.NewAggregator(),
		limiter:  NewRateLimiter(opts.MessagesPerMinute, time.Minute),
		unread:   make(map[types.ConnectionID]types.UnreadCounts),
		closed:   make(map[types.ConnectionID]time.Time),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Handle applies one inbound command. A rejected command returns a typed
// error, leaves every component untouched and produces no deliveries.
func (r *Router) Handle(in types.Inbound) ([]types.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd := in.Command.(type) {
	case types.Tick:
		return r.tick(cmd.Now), nil
	case nil:
		return nil, ErrUnknownCommand
	}

	// Closed is terminal for a connection id.
	if _, closed := r.closed[in.ConnID]; closed {
		if _, ok := in.Command.(types.Disconnect); ok {
			return nil, nil
		}
		return nil, types.ErrConnectionClosed
	}

	switch cmd := in.Command.(type) {
	case types.Register:
		return r.register(in, cmd)
	case types.Disconnect:
		return r.disconnect(in.ConnID), nil
	}

	user, registered := r.sessions.Lookup(in.ConnID)
	if !registered {
		return nil, types.ErrNotRegistered
	}

	switch cmd := in.Command.(type) {
	case types.SendMessage:
		return r.sendMessage(in, user, cmd)
	case types.SetTyping:
		return r.setTyping(user, cmd), nil
	case types.PrivateMessage:
		return r.privateMessage(in, user, cmd)
	case types.ShareFile:
		return r.shareFile(in, user, cmd)
	case types.MarkRead:
		return r.markRead(user, cmd)
	case types.UpdateUnread:
		return r.updateUnread(user, cmd)
	default:
		return nil, ErrUnknownCommand
	}
}

func (r *Router) register(in types.Inbound, cmd types.Register) ([]types.Delivery, error) {
	user, err := r.sessions.Register(in.ConnID, cmd.Name)
	if err != nil {
		return nil, err
	}

	users := r.sessions.List()
	deliveries := []types.Delivery{
		types.ToOne(user.ID, types.EventRegistered, user),
		types.ToOne(user.ID, types.EventMessageHistory, r.history.RecentSlice(r.opts.JoinHistorySize)),
		types.ToOne(user.ID, types.EventUserList, users),
	}
	if typers := r.typing.Snapshot(); len(typers) > 0 {
		deliveries = append(deliveries, types.ToOne(user.ID, types.EventTypingUsers, typers))
	}

	presence := types.Presence{ID: user.ID, Name: user.Name, Timestamp: user.JoinedAt}
	deliveries = append(deliveries,
		types.ToAllExcept(user.ID, types.EventUserJoined, presence),
		types.ToAllExcept(user.ID, types.EventUserList, users),
	)
	return deliveries, nil
}

func (r *Router) sendMessage(in types.Inbound, user types.User, cmd types.SendMessage) ([]types.Delivery, error) {
	text, err := types.NormalizeText(cmd.Text, r.opts.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	if !r.limiter.Allow(user.ID) {
		return nil, types.ErrRateLimited
	}

	msg := types.Message{
		ID:         r.newID(),
		Text:       text,
		SenderID:   user.ID,
		SenderName: user.Name,
		Timestamp:  r.now(),
		Visibility: types.VisibilityPublic,
		ReplyTo:    strings.TrimSpace(cmd.ReplyTo),
	}
	if err := r.history.Append(msg); err != nil {
		return nil, err
	}

	deliveries := []types.Delivery{types.ToAll(types.EventReceiveMessage, msg)}
	if r.typing.Clear(user.ID) {
		deliveries = append(deliveries, types.ToAllExcept(user.ID, types.EventTypingUsers, r.typing.Snapshot()))
	}
	return r.withAck(deliveries, in, msg.ID), nil
}

func (r *Router) setTyping(user types.User, cmd types.SetTyping) []types.Delivery {
	if cmd.IsTyping {
		r.typing.Set(user.ID, user.Name, r.now())
	} else {
		r.typing.Clear(user.ID)
	}
	return []types.Delivery{types.ToAllExcept(user.ID, types.EventTypingUsers, r.typing.Snapshot())}
}

func (r *Router) privateMessage(in types.Inbound, sender types.User, cmd types.PrivateMessage) ([]types.Delivery, error) {
	recipient, found := r.resolveRecipient(cmd.To)
	if !found {
		return nil, types.ErrInvalidRecipient
	}
	text, err := types.NormalizeText(cmd.Text, r.opts.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	if !r.limiter.Allow(sender.ID) {
		return nil, types.ErrRateLimited
	}

	msg := types.Message{
		ID:            r.newID(),
		Text:          text,
		SenderID:      sender.ID,
		SenderName:    sender.Name,
		Timestamp:     r.now(),
		Visibility:    types.VisibilityPrivate,
		RecipientID:   recipient.ID,
		RecipientName: recipient.Name,
	}

	deliveries := []types.Delivery{types.ToOne(sender.ID, types.EventPrivateMessage, msg)}
	if recipient.ID != sender.ID {
		deliveries = append(deliveries, types.ToOne(recipient.ID, types.EventPrivateMessage, msg))
	}
	return r.withAck(deliveries, in, msg.ID), nil
}

// resolveRecipient looks the target up by connection id first, then by
// display name. Only users live at this moment qualify.
func (r *Router) resolveRecipient(to string) (types.User, bool) {
	to = strings.TrimSpace(to)
	if to == "" {
		return types.User{}, false
	}
	if user, ok := r.sessions.Lookup(types.ConnectionID(to)); ok {
		return user, true
	}
	return r.sessions.FindByName(to)
}

func (r *Router) shareFile(in types.Inbound, user types.User, cmd types.ShareFile) ([]types.Delivery, error) {
	size, fileType, detected, err := inspectFile(cmd, r.opts.MaxFileBytes)
	if err != nil {
		return nil, err
	}
	if !r.limiter.Allow(user.ID) {
		return nil, types.ErrRateLimited
	}

	share := types.FileShare{
		ID:           r.newID(),
		SenderID:     user.ID,
		SenderName:   user.Name,
		FileName:     strings.TrimSpace(cmd.FileName),
		FileType:     fileType,
		DetectedType: detected,
		Size:         size,
		Data:         cmd.Data,
		Timestamp:    r.now(),
	}
	return r.withAck([]types.Delivery{types.ToAll(types.EventFileReceive, share)}, in, share.ID), nil
}

func (r *Router) markRead(reader types.User, cmd types.MarkRead) ([]types.Delivery, error) {
	if strings.TrimSpace(cmd.MessageID) == "" {
		return nil, types.ErrInvalidPayload
	}
	if cmd.SenderID == reader.ID {
		return nil, nil
	}
	if _, live := r.sessions.Lookup(cmd.SenderID); !live {
		return nil, nil
	}

	receipt := types.ReadReceipt{
		MessageID:  cmd.MessageID,
		ReaderID:   reader.ID,
		ReaderName: reader.Name,
		Timestamp:  r.now(),
	}
	return []types.Delivery{types.ToOne(cmd.SenderID, types.EventMessageRead, receipt)}, nil
}

// updateUnread adjusts the sender's own counters and echoes them back.
// Counters never go below zero and users at zero are dropped.
func (r *Router) updateUnread(user types.User, cmd types.UpdateUnread) ([]types.Delivery, error) {
	from := strings.TrimSpace(cmd.UserID)
	if from == "" {
		return nil, types.ErrInvalidPayload
	}

	counts := r.unread[user.ID]
	byUser := lo.Assign(counts.ByUser)
	if next := byUser[from] + cmd.Count; next > 0 {
		byUser[from] = next
	} else {
		delete(byUser, from)
	}

	updated := types.UnreadCounts{
		Total:  lo.Sum(lo.Values(byUser)),
		ByUser: byUser,
	}
	r.unread[user.ID] = updated
	return []types.Delivery{types.ToOne(user.ID, types.EventUnreadUpdated, updated)}, nil
}

func (r *Router) disconnect(connID types.ConnectionID) []types.Delivery {
	r.closed[connID] = r.now()
	r.limiter.Forget(connID)
	delete(r.unread, connID)
	wasTyping := r.typing.Clear(connID)

	user, registered := r.sessions.Remove(connID)
	if !registered {
		return nil
	}

	deliveries := []types.Delivery{
		types.ToAllExcept(connID, types.EventUserLeft, types.Presence{ID: user.ID, Name: user.Name, Timestamp: r.now()}),
		types.ToAllExcept(connID, types.EventUserList, r.sessions.List()),
	}
	if wasTyping {
		deliveries = append(deliveries, types.ToAllExcept(connID, types.EventTypingUsers, r.typing.Snapshot()))
	}
	return deliveries
}

func (r *Router) tick(now time.Time) []types.Delivery {
	r.limiter.Cleanup()
	for id, at := range r.closed {
		if now.Sub(at) > closedRetention {
			delete(r.closed, id)
		}
	}

	if r.opts.TypingTimeout <= 0 {
		return nil
	}
	if expired := r.typing.Expire(now, r.opts.TypingTimeout); len(expired) == 0 {
		return nil
	}
	return []types.Delivery{types.ToAll(types.EventTypingUsers, r.typing.Snapshot())}
}

// withAck appends the acknowledgment for a client reference. It always comes
// last so the sender only sees it once fan-out has been scheduled.
func (r *Router) withAck(deliveries []types.Delivery, in types.Inbound, messageID string) []types.Delivery {
	if in.Ref == "" {
		return deliveries
	}
	return append(deliveries, types.ToOne(in.ConnID, types.EventAck, types.Ack{Ref: in.Ref, MessageID: messageID}))
}

// Users returns the presence list in registration order.
func (r *Router) Users() []types.User {
	return r.sessions.List()
}

// UserCount returns the number of registered users.
func (r *Router) UserCount() int {
	return r.sessions.Count()
}

// Lookup returns the user registered on connID.
func (r *Router) Lookup(connID types.ConnectionID) (types.User, bool) {
	return r.sessions.Lookup(connID)
}

// RecentMessages returns the last count public messages, oldest first.
func (r *Router) RecentMessages(count int) []types.Message {
	return r.history.RecentSlice(count)
}

// MessagePage returns one page of public history, newest page first.
func (r *Router) MessagePage(page, limit int) types.MessagePage {
	return r.history.Page(page, limit)
}

// MessageCount returns the number of retained public messages.
func (r *Router) MessageCount() int {
	return r.history.Len()
}

// TypingUsers returns the names currently typing.
func (r *Router) TypingUsers() []string {
	return r.typing.Snapshot()
}
