// Package app wires the relay components together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"chatrelay/internal/api"
	"chatrelay/internal/config"
	"chatrelay/internal/hub"
	"chatrelay/internal/router"
	"chatrelay/internal/websocket"
)

// Application coordinates all components.
type Application struct {
	config     *config.Config
	log        *slog.Logger
	router     *router.Router
	registry   *websocket.Registry
	hub        *hub.Hub
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
	serveErrCh chan error
}

// NewApplication builds every component in dependency order:
// Router → Registry → Hub → WebSocket handler → API → HTTP.
func NewApplication(cfg *config.Config, log *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chatRouter := router.NewRouter(RouterOptions(cfg.Chat))
	registry := websocket.NewRegistry()
	messageHub := hub.NewHub(chatRouter, registry, log.With("component", "hub"), cfg.Chat.SweepInterval)
	wsHandler := websocket.NewHandler(registry, messageHub, TransportOptions(cfg.WebSocket), log.With("component", "websocket"))
	apiServer := api.NewServer(chatRouter, registry, cfg.WebSocket.AllowedOrigins, log.With("component", "api"))

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		log:        log,
		router:     chatRouter,
		registry:   registry,
		hub:        messageHub,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
		serveErrCh: make(chan error, 1),
	}, nil
}

// RouterOptions maps the chat section onto router limits.
func RouterOptions(c *config.ChatConfig) router.Options {
	return router.Options{
		HistoryLimit:      c.HistoryLimit,
		JoinHistorySize:   c.JoinHistorySize,
		MaxNameLength:     c.MaxNameLength,
		MaxMessageLength:  c.MaxMessageLength,
		MaxFileBytes:      c.MaxFileBytes,
		TypingTimeout:     c.TypingTimeout,
		MessagesPerMinute: c.MessagesPerMinute,
	}
}

// TransportOptions maps the websocket section onto transport options.
func TransportOptions(c *config.WebSocketConfig) websocket.Options {
	return websocket.Options{
		PingInterval:    c.PingInterval,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		BufferSize:      c.BufferSize,
		MaxMessageBytes: c.MaxMessageBytes,
		AllowedOrigins:  c.AllowedOrigins,
	}
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// StartHub starts command processing without opening a listener.
func (app *Application) StartHub(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	return nil
}

// Start runs the hub, binds the listener and serves HTTP in the background.
func (app *Application) Start(ctx context.Context) error {
	if err := app.StartHub(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.serveErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	app.log.Info("Chat relay started", "addr", listener.Addr().String())
	return nil
}

// Errors reports a failure of the HTTP server after Start returned.
func (app *Application) Errors() <-chan error {
	return app.serveErrCh
}

// Addr returns the bound address, or the configured one before Start.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Stop shuts down in reverse order: HTTP, live sockets, then the hub.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("Shutting down chat relay")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	app.registry.CloseAll()

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	app.log.Info("Chat relay shutdown complete")
	return errors.Join(errs...)
}
