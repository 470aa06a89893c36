// Package hub runs the single command loop of the chat room. Connections
// submit inbound commands, the loop applies them to the engine one at a time
// and hands the resulting deliveries to the transport.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// DefaultQueueSize is the capacity of the inbound command channel.
const DefaultQueueSize = 1024

// Hub coordinates command processing and fan-out.
type Hub struct {
	commands chan types.Inbound
	shutdown chan struct{}
	done     chan struct{}

	engine    interfaces.Engine
	deliverer interfaces.Deliverer
	log       *slog.Logger

	sweepInterval time.Duration

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub. A non-positive sweepInterval disables the periodic Tick.
func NewHub(engine interfaces.Engine, deliverer interfaces.Deliverer, log *slog.Logger, sweepInterval time.Duration) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		commands:      make(chan types.Inbound, DefaultQueueSize),
		engine:        engine,
		deliverer:     deliverer,
		log:           log,
		sweepInterval: sweepInterval,
	}
}

// Start begins processing in a new goroutine.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	h.log.Info("Starting hub", "sweep_interval", h.sweepInterval)
	go h.run(ctx, h.shutdown, h.done)
	return nil
}

// Stop ends processing and waits for the loop to exit. Commands still queued
// are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done
	h.log.Info("Hub stopped")
	return nil
}

// Running reports whether the loop is active.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Submit queues one inbound command. It blocks until the command is accepted,
// ctx ends or the hub stops. Commands from one caller are processed in the
// order they were submitted.
func (h *Hub) Submit(ctx context.Context, in types.Inbound) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown := h.shutdown
	h.mu.RUnlock()

	select {
	case h.commands <- in:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) run(ctx context.Context, shutdown, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if h.sweepInterval > 0 {
		ticker := time.NewTicker(h.sweepInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case in := <-h.commands:
			h.process(in)

		case now := <-tick:
			h.process(types.Inbound{Command: types.Tick{Now: now}})

		case <-shutdown:
			return

		case <-ctx.Done():
			h.log.Info("Hub context cancelled")
			h.mu.Lock()
			if h.running {
				h.running = false
				close(shutdown)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) process(in types.Inbound) {
	deliveries, err := h.engine.Handle(in)
	if err != nil {
		h.log.Debug("Command rejected",
			"conn_id", in.ConnID,
			"command", commandName(in.Command),
			"kind", types.KindOf(err),
			"error", err)
		h.deliver(types.Delivery{
			Target: types.Target{Mode: types.FanoutOne, ConnID: in.ConnID},
			Event:  types.ErrorEvent(err, in.Ref),
		})
		return
	}

	for _, d := range deliveries {
		h.deliver(d)
	}
}

// deliver hands one delivery to the transport. Failures only affect the
// recipients involved and are logged.
func (h *Hub) deliver(d types.Delivery) {
	if err := h.deliverer.Deliver(d); err != nil {
		h.log.Warn("Delivery failed",
			"event", d.Event.Name,
			"target", d.Target.ConnID,
			"error", err)
	}
}

func commandName(cmd types.Command) string {
	switch cmd.(type) {
	case types.Register:
		return types.EventUserJoin
	case types.SendMessage:
		return types.EventSendMessage
	case types.SetTyping:
		return types.EventTyping
	case types.PrivateMessage:
		return types.EventPrivateMessage
	case types.ShareFile:
		return types.EventFileUpload
	case types.MarkRead:
		return types.EventMessageReceived
	case types.Disconnect:
		return "disconnect"
	case types.Tick:
		return "tick"
	default:
		return "unknown"
	}
}
