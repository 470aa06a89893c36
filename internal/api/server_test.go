package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/router"
	"chatrelay/pkg/types"
)

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func newTestServer(t *testing.T, origins ...string) (*Server, *router.Router) {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := router.NewRouter(router.DefaultOptions())
	s := NewServer(r, fixedCounter(3), origins, logs.GetLoggerFromLevel(slog.LevelDebug))
	return s, r
}

func mustHandle(t *testing.T, r *router.Router, in types.Inbound) {
	t.Helper()
	_, err := r.Handle(in)
	require.NoError(t, err)
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestServer_Messages(t *testing.T) {
	req := require.New(t)
	s, r := newTestServer(t)

	// Given 45 public messages
	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.Register{Name: "alice"}})
	for i := 1; i <= 45; i++ {
		mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.SendMessage{Text: fmt.Sprintf("m%d", i)}})
	}

	// When the first page is requested with defaults
	w := get(t, s, "/api/messages")

	// Then the newest twenty come back in chronological order
	req.Equal(http.StatusOK, w.Code)
	req.Equal("application/json", w.Header().Get("Content-Type"))

	var body MessagesResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Equal(45, body.Total)
	req.Equal(1, body.Page)
	req.Equal(20, body.Limit)
	req.Equal(3, body.Pages)
	req.Len(body.Messages, 20)
	req.Equal("m26", body.Messages[0].Text)
	req.Equal("m45", body.Messages[19].Text)

	// The last page holds the oldest remainder
	w = get(t, s, "/api/messages?page=3&limit=20")
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Len(body.Messages, 5)
	req.Equal("m1", body.Messages[0].Text)
}

func TestServer_MessagesLimitCapped(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t)

	w := get(t, s, "/api/messages?limit=1000")

	var body MessagesResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Equal(maxPageLimit, body.Limit)
	req.NotNil(body.Messages)
	req.Zero(body.Pages)
}

func TestServer_MessagesPageBeyondEnd(t *testing.T) {
	req := require.New(t)
	s, r := newTestServer(t)
	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.Register{Name: "alice"}})
	for i := 1; i <= 3; i++ {
		mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.SendMessage{Text: fmt.Sprintf("m%d", i)}})
	}

	w := get(t, s, "/api/messages?page=92233720368547760&limit=100")

	req.Equal(http.StatusOK, w.Code)
	var body MessagesResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Empty(body.Messages)
	req.Equal(3, body.Total)
	req.Equal(1, body.Pages)
}

func TestServer_RecentMessages(t *testing.T) {
	req := require.New(t)
	s, r := newTestServer(t)
	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.Register{Name: "alice"}})
	for i := 1; i <= 5; i++ {
		mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.SendMessage{Text: fmt.Sprintf("m%d", i)}})
	}

	w := get(t, s, "/api/messages/recent?count=2")
	req.Equal(http.StatusOK, w.Code)

	var body RecentMessagesResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Equal(2, body.Count)
	req.Equal("m4", body.Messages[0].Text)
	req.Equal("m5", body.Messages[1].Text)

	// The default covers everything retained here
	w = get(t, s, "/api/messages/recent")
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Equal(5, body.Count)

	for _, target := range []string{"/api/messages/recent?count=0", "/api/messages/recent?count=x"} {
		req.Equal(http.StatusBadRequest, get(t, s, target).Code, target)
	}
}

func TestServer_MessagesInvalidQuery(t *testing.T) {
	s, _ := newTestServer(t)

	for _, target := range []string{
		"/api/messages?page=0",
		"/api/messages?page=-2",
		"/api/messages?page=abc",
		"/api/messages?limit=0",
		"/api/messages?limit=ten",
	} {
		t.Run(target, func(t *testing.T) {
			req := require.New(t)
			w := get(t, s, target)
			req.Equal(http.StatusBadRequest, w.Code)

			var body ErrorResponse
			req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
			req.Equal(http.StatusBadRequest, body.Code)
		})
	}
}

func TestServer_MessagesExcludePrivate(t *testing.T) {
	req := require.New(t)
	s, r := newTestServer(t)

	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.Register{Name: "alice"}})
	mustHandle(t, r, types.Inbound{ConnID: "B", Command: types.Register{Name: "bob"}})
	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.PrivateMessage{To: "bob", Text: "secret"}})
	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.SendMessage{Text: "public"}})

	var body MessagesResponse
	req.NoError(json.Unmarshal(get(t, s, "/api/messages").Body.Bytes(), &body))
	req.Equal(1, body.Total)
	req.Equal("public", body.Messages[0].Text)
}

func TestServer_Users(t *testing.T) {
	req := require.New(t)
	s, r := newTestServer(t)

	mustHandle(t, r, types.Inbound{ConnID: "B", Command: types.Register{Name: "bob"}})
	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.Register{Name: "alice"}})

	w := get(t, s, "/api/users")
	req.Equal(http.StatusOK, w.Code)

	var body UsersResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Equal(2, body.Count)
	req.Equal("bob", body.Users[0].Username)
	req.Equal(types.ConnectionID("A"), body.Users[1].ID)
}

func TestServer_UserByID(t *testing.T) {
	req := require.New(t)
	s, r := newTestServer(t)
	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.Register{Name: "alice"}})

	w := get(t, s, "/api/users/A")
	req.Equal(http.StatusOK, w.Code)

	var body UserResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Equal(types.ConnectionID("A"), body.ID)
	req.Equal("alice", body.Username)

	w = get(t, s, "/api/users/nobody")
	req.Equal(http.StatusNotFound, w.Code)
	var errBody ErrorResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &errBody))
	req.Equal(http.StatusNotFound, errBody.Code)
}

func TestServer_Health(t *testing.T) {
	req := require.New(t)
	s, r := newTestServer(t)
	s.startedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return s.startedAt.Add(90 * time.Second) }
	s.rss = func() (uint64, bool) { return 4096, true }

	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.Register{Name: "alice"}})
	mustHandle(t, r, types.Inbound{ConnID: "A", Command: types.SetTyping{IsTyping: true}})

	w := get(t, s, "/health")
	req.Equal(http.StatusOK, w.Code)

	var body HealthResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Equal("OK", body.Status)
	req.Equal(1, body.Users)
	req.Equal(3, body.Connections)
	req.Equal([]string{"alice"}, body.TypingUsers)
	req.Equal(90.0, body.UptimeSeconds)
	req.NotNil(body.MemoryRSS)
	req.EqualValues(4096, *body.MemoryRSS)
}

func TestServer_HealthWithoutRSS(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t)
	s.rss = func() (uint64, bool) { return 0, false }

	w := get(t, s, "/health")

	var raw map[string]any
	req.NoError(json.Unmarshal(w.Body.Bytes(), &raw))
	req.NotContains(raw, "memory_rss")
}

func TestServer_ProcessRSS(t *testing.T) {
	rss, ok := processRSS()
	if !ok {
		t.Skip("process memory not available on this platform")
	}
	require.Positive(t, rss)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	for _, target := range []string{"/api/messages", "/api/messages/recent", "/api/users", "/api/users/A", "/health"} {
		w := httptest.NewRecorder()
		s.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code, target)
	}
}

func TestServer_CORS(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := get(t, s, "/api/users")
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("listed origin", func(t *testing.T) {
		req := require.New(t)
		s, _ := newTestServer(t, "http://chat.test")

		r := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		r.Header.Set("Origin", "http://chat.test")
		w := httptest.NewRecorder()
		s.ServeHTTP(w, r)
		req.Equal("http://chat.test", w.Header().Get("Access-Control-Allow-Origin"))

		r = httptest.NewRequest(http.MethodGet, "/api/users", nil)
		r.Header.Set("Origin", "http://evil.test")
		w = httptest.NewRecorder()
		s.ServeHTTP(w, r)
		req.Empty(w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := httptest.NewRecorder()
		s.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/messages", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})
}
