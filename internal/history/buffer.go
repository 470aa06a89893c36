// Package history keeps the bounded, insertion-ordered log of public messages.
package history

import (
	"sync"

	"chatrelay/pkg/types"
)

// DefaultLimit is the retention bound used when none is configured.
const DefaultLimit = 200

// Buffer is a fixed-capacity ring of the most recent public messages. Once
// full, each append evicts the oldest message.
type Buffer struct {
	mu    sync.RWMutex
	ring  []types.Message
	start int // index of the oldest message
	size  int
}

// NewBuffer creates a buffer retaining at most limit messages.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Buffer{ring: make([]types.Message, limit)}
}

// Append stores a public message at the tail, evicting from the head when the
// buffer is full.
func (b *Buffer) Append(msg types.Message) error {
	if msg.Visibility != types.VisibilityPublic {
		return types.ErrNotPublic
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	limit := len(b.ring)
	if b.size < limit {
		b.ring[(b.start+b.size)%limit] = msg
		b.size++
		return nil
	}

	b.ring[b.start] = msg
	b.start = (b.start + 1) % limit
	return nil
}

// RecentSlice returns the last count messages, or fewer if history is
// shorter, oldest first.
func (b *Buffer) RecentSlice(count int) []types.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if count > b.size {
		count = b.size
	}
	if count <= 0 {
		return []types.Message{}
	}
	return b.copyRange(b.size-count, b.size)
}

// Page returns one page of history counted from the newest message: page 1
// holds the newest limit messages. Messages within a page are oldest first.
func (b *Buffer) Page(page, limit int) types.MessagePage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	result := types.MessagePage{
		Messages: []types.Message{},
		Total:    b.size,
		Page:     page,
		Limit:    limit,
	}
	if b.size == 0 {
		return result
	}
	result.Pages = (b.size-1)/limit + 1
	if page > result.Pages {
		return result
	}

	end := b.size - (page-1)*limit
	begin := end - limit
	if begin < 0 {
		begin = 0
	}
	result.Messages = b.copyRange(begin, end)
	return result
}

// Len returns the number of retained messages.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Limit returns the retention bound.
func (b *Buffer) Limit() int {
	return len(b.ring)
}

// copyRange copies logical positions [from, to) where 0 is the oldest message.
// Callers hold the lock.
func (b *Buffer) copyRange(from, to int) []types.Message {
	out := make([]types.Message, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, b.ring[(b.start+i)%len(b.ring)])
	}
	return out
}
