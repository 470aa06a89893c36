package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/api"
	"chatrelay/internal/config"
	"chatrelay/internal/hub"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chat.HistoryLimit = 0

	_, err := NewApplication(cfg, testLogger())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewApplication_Defaults(t *testing.T) {
	req := require.New(t)

	application, err := NewApplication(nil, nil)
	req.NoError(err)
	req.Equal("0.0.0.0:8080", application.Addr())
}

func TestApplication_HandlerServesHealth(t *testing.T) {
	req := require.New(t)
	application, err := NewApplication(config.DefaultConfig(), testLogger())
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req.NoError(application.StartHub(ctx))

	server := httptest.NewServer(application.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var health api.HealthResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&health))
	req.Equal("OK", health.Status)
	req.Zero(health.Users)

	req.NoError(application.Stop(context.Background()))
}

func TestApplication_StartStop(t *testing.T) {
	req := require.New(t)
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)

	application, err := NewApplication(cfg, testLogger())
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req.NoError(application.Start(ctx))

	resp, err := http.Get("http://" + application.Addr() + "/api/users")
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	req.NoError(application.Stop(stopCtx))

	// A second stop only finds the hub already down
	req.NoError(application.Stop(stopCtx))
}

func TestApplication_StartFailsWhenPortTaken(t *testing.T) {
	req := require.New(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer l.Close()

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = l.Addr().(*net.TCPAddr).Port

	application, err := NewApplication(cfg, testLogger())
	req.NoError(err)

	req.Error(application.Start(context.Background()))

	// The hub was rolled back
	req.ErrorIs(application.hub.Stop(), hub.ErrHubNotRunning)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
