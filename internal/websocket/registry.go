package websocket

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"chatrelay/pkg/types"
)

// Registry tracks live transport connections in the order they connected and
// fans deliveries out to them.
type Registry struct {
	mu    sync.RWMutex
	conns map[types.ConnectionID]*Connection
	order []types.ConnectionID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[types.ConnectionID]*Connection),
	}
}

// Register adds conn. Ids are unique for the lifetime of the registry entry.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.conns[conn.ID()] = conn
	r.order = append(r.order, conn.ID())
	return nil
}

// Unregister removes conn if it is the instance currently registered under
// its id. Idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.conns[conn.ID()]
	if !exists || registered != conn {
		return
	}
	delete(r.conns, conn.ID())
	r.order = lo.Without(r.order, conn.ID())
}

// Get returns the connection registered under id.
func (r *Registry) Get(id types.ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.conns[id]
	return conn, exists
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Connections returns the live connections in connect order.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.order, func(id types.ConnectionID, _ int) *Connection { return r.conns[id] })
}

// Deliver sends d to every connection its target selects. A failing
// recipient does not stop delivery to the others; all failures are returned
// joined together.
func (r *Registry) Deliver(d types.Delivery) error {
	recipients, err := r.recipients(d.Target)
	if err != nil {
		return err
	}

	var errs []error
	for _, conn := range recipients {
		if err := conn.Send(d.Event); err != nil {
			errs = append(errs, fmt.Errorf("send %s to %s: %w", d.Event.Name, conn.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) recipients(target types.Target) ([]*Connection, error) {
	switch target.Mode {
	case types.FanoutOne:
		conn, exists := r.Get(target.ConnID)
		if !exists {
			return nil, fmt.Errorf("deliver to %s: %w", target.ConnID, ErrConnectionNotFound)
		}
		return []*Connection{conn}, nil
	case types.FanoutAllExcept:
		return lo.Reject(r.Connections(), func(c *Connection, _ int) bool { return c.ID() == target.ConnID }), nil
	default:
		return r.Connections(), nil
	}
}

// CloseAll closes every live connection. Read pumps then unregister them.
func (r *Registry) CloseAll() {
	for _, conn := range r.Connections() {
		_ = conn.Close()
	}
}
