package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Options configures the WebSocket transport.
type Options struct {
	PingInterval    time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	BufferSize      int
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// DefaultOptions returns the transport defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval:    30 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		BufferSize:      256,
		MaxMessageBytes: 2 << 20,
		AllowedOrigins:  []string{"*"},
	}
}

// Handler upgrades HTTP requests and pumps frames between the socket and the
// command sink.
type Handler struct {
	registry *Registry
	sink     interfaces.CommandSink
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader
	newID    func() string

	allowAll bool
	origins  map[string]struct{}
}

// NewHandler creates a handler that registers connections in registry and
// submits their commands to sink.
func NewHandler(registry *Registry, sink interfaces.CommandSink, opts Options, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		registry: registry,
		sink:     sink,
		opts:     opts,
		log:      log,
		newID:    uuid.NewString,
		origins:  make(map[string]struct{}),
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			h.allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(trimmed); ok {
			h.origins[normalized] = struct{}{}
		} else if trimmed != "" {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
		}
	}

	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(r.Header.Get("Origin"))
	if ok {
		if _, allowed := h.origins[normalized]; allowed {
			return true
		}
	}
	h.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConnection(ws, types.ConnectionID(h.newID()), h.opts.BufferSize, h.opts.WriteTimeout, h.log)
	if err := h.registry.Register(conn); err != nil {
		h.log.Error("Failed to register connection", "conn_id", conn.ID(), "error", err)
		_ = conn.Close()
		return
	}

	h.log.Info("Connection opened", "conn_id", conn.ID(), "remote_addr", r.RemoteAddr)
	go h.serve(conn)
}

// serve runs the heartbeat and the read pump. When the pump exits the
// connection is unregistered and exactly one Disconnect is submitted.
func (h *Handler) serve(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()

		// Submit returns once the hub stops.
		if err := h.sink.Submit(context.Background(), types.Inbound{ConnID: conn.ID(), Command: types.Disconnect{}}); err != nil {
			h.log.Debug("Disconnect not submitted", "conn_id", conn.ID(), "error", err)
		}
		h.log.Info("Connection closed", "conn_id", conn.ID())
	}()

	ws := conn.conn
	if h.opts.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.opts.MaxMessageBytes)
	}
	if err := h.extendReadDeadline(ws); err != nil {
		h.log.Debug("Failed to set read deadline", "conn_id", conn.ID(), "error", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return h.extendReadDeadline(ws)
	})

	if h.opts.PingInterval > 0 {
		go h.heartbeat(conn)
	}

	for {
		messageType, frame, err := ws.ReadMessage()
		if err != nil {
			h.logReadError(conn, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ref, cmd, err := decodeInbound(frame)
		if err != nil {
			if sendErr := conn.Send(types.ErrorEvent(err, ref)); sendErr != nil {
				h.log.Warn("Failed to report malformed frame", "conn_id", conn.ID(), "error", sendErr)
			}
			continue
		}

		if err := h.sink.Submit(conn.ctx, types.Inbound{ConnID: conn.ID(), Ref: ref, Command: cmd}); err != nil {
			h.log.Debug("Command not submitted", "conn_id", conn.ID(), "error", err)
			return
		}
	}
}

func (h *Handler) extendReadDeadline(ws *websocket.Conn) error {
	if h.opts.ReadTimeout <= 0 {
		return nil
	}
	return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				h.log.Debug("Ping failed", "conn_id", conn.ID(), "error", err)
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) logReadError(conn *Connection, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		h.log.Warn("Frame exceeded maximum size", "conn_id", conn.ID(), "limit", h.opts.MaxMessageBytes)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		h.log.Warn("Unexpected WebSocket close", "conn_id", conn.ID(), "error", err)
	default:
		h.log.Debug("Read pump stopped", "conn_id", conn.ID(), "error", err)
	}
}
