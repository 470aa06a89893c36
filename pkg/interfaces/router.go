package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// Engine processes one inbound command and returns the deliveries it produced.
type Engine interface {
	Handle(in types.Inbound) ([]types.Delivery, error)
}

// CommandSink accepts inbound commands from the transport.
type CommandSink interface {
	Submit(ctx context.Context, in types.Inbound) error
}

// ChatReader is the read-only view of chat state served over HTTP.
type ChatReader interface {
	Users() []types.User
	UserCount() int
	Lookup(connID types.ConnectionID) (types.User, bool)
	RecentMessages(count int) []types.Message
	MessagePage(page, limit int) types.MessagePage
	MessageCount() int
	TypingUsers() []string
}
