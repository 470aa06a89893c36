package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app"
	"chatrelay/internal/config"
)

const readTimeout = 3 * time.Second

// relay is a fully wired server behind httptest.
type relay struct {
	server *httptest.Server
	wsURL  string
}

func startRelay(t *testing.T, mutate func(*config.Config)) *relay {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Chat.SweepInterval = 50 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, application.StartHub(ctx))

	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		server.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = application.Stop(stopCtx)
		cancel()
	})

	return &relay{
		server: server,
		wsURL:  "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
	}
}

func (r *relay) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(r.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

// inbound is one frame as the server sees it on the wire.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (r *relay) connect(t *testing.T) *client {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(r.wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

// join connects and registers name, consuming the join burst up to the user
// list.
func (r *relay) join(t *testing.T, name string) *client {
	t.Helper()
	c := r.connect(t)
	c.send("user_join", map[string]string{"username": name}, "")
	c.expect("registered")
	c.expect("user_list")
	return c
}

func (c *client) send(event string, data any, ref string) {
	c.t.Helper()
	frame := map[string]any{"event": event, "data": data}
	if ref != "" {
		frame["ref"] = ref
	}
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

func (c *client) next() inbound {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var frame inbound
	require.NoError(c.t, c.conn.ReadJSON(&frame))
	return frame
}

// expect reads frames until one named event arrives, skipping the rest.
func (c *client) expect(event string) json.RawMessage {
	c.t.Helper()
	for {
		frame := c.next()
		if frame.Event == event {
			return frame.Data
		}
	}
}

func (c *client) expectInto(event string, out any) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(c.expect(event), out))
}
