package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

const (
	defaultPageLimit   = 20
	maxPageLimit       = 100
	defaultRecentCount = 100
)

// ConnectionCounter reports how many transport connections are open.
type ConnectionCounter interface {
	Count() int
}

// Server is the read-only HTTP surface of the chat room.
type Server struct {
	chat      interfaces.ChatReader
	conns     ConnectionCounter
	log       *slog.Logger
	router    *http.ServeMux
	startedAt time.Time
	now       func() time.Time
	rss       func() (uint64, bool)

	allowAll bool
	origins  []string
}

// NewServer wires the API routes. allowedOrigins drives the CORS headers;
// "*" allows any origin.
func NewServer(chat interfaces.ChatReader, conns ConnectionCounter, allowedOrigins []string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		chat:      chat,
		conns:     conns,
		log:       log,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
		now:       time.Now,
		rss:       processRSS,
		allowAll:  lo.Contains(allowedOrigins, "*"),
		origins:   lo.Without(allowedOrigins, "*"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/messages", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleMessages))))
	s.router.Handle("/api/messages/recent", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRecentMessages))))
	s.router.Handle("/api/users", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleUsers))))
	s.router.Handle("/api/users/{id}", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleUser))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response types

type MessagesResponse struct {
	Messages []types.Message `json:"messages"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
	Pages    int             `json:"pages"`
}

type RecentMessagesResponse struct {
	Count    int             `json:"count"`
	Messages []types.Message `json:"messages"`
}

type UserResponse struct {
	ID       types.ConnectionID `json:"id"`
	Username string             `json:"username"`
	JoinedAt time.Time          `json:"joinedAt"`
}

type UsersResponse struct {
	Count int            `json:"count"`
	Users []UserResponse `json:"users"`
}

type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Users         int       `json:"users"`
	Connections   int       `json:"connections"`
	Messages      int       `json:"messages"`
	TypingUsers   []string  `json:"typing_users"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	MemoryRSS     *uint64   `json:"memory_rss,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/messages?page=&limit=
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		s.sendError(w, "page must be a positive integer", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit < 1 {
		s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}
	limit = min(limit, maxPageLimit)

	result := s.chat.MessagePage(page, limit)
	messages := result.Messages
	if messages == nil {
		messages = []types.Message{}
	}

	s.writeJSON(w, http.StatusOK, MessagesResponse{
		Messages: messages,
		Total:    result.Total,
		Page:     result.Page,
		Limit:    result.Limit,
		Pages:    result.Pages,
	})
}

// GET /api/messages/recent?count=
func (s *Server) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := queryInt(r, "count", defaultRecentCount)
	if err != nil || count < 1 {
		s.sendError(w, "count must be a positive integer", http.StatusBadRequest)
		return
	}

	messages := s.chat.RecentMessages(count)
	s.writeJSON(w, http.StatusOK, RecentMessagesResponse{Count: len(messages), Messages: messages})
}

// GET /api/users
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users := lo.Map(s.chat.Users(), func(u types.User, _ int) UserResponse {
		return toUserResponse(u)
	})
	s.writeJSON(w, http.StatusOK, UsersResponse{Count: len(users), Users: users})
}

// GET /api/users/{id}
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := s.chat.Lookup(types.ConnectionID(r.PathValue("id")))
	if !ok {
		s.sendError(w, "User not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

func toUserResponse(u types.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Name, JoinedAt: u.JoinedAt}
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := s.now()
	response := HealthResponse{
		Status:        "OK",
		Timestamp:     now,
		Users:         s.chat.UserCount(),
		Connections:   s.conns.Count(),
		Messages:      s.chat.MessageCount(),
		TypingUsers:   s.chat.TypingUsers(),
		UptimeSeconds: now.Sub(s.startedAt).Seconds(),
	}
	if rss, ok := s.rss(); ok {
		response.MemoryRSS = &rss
	}

	s.writeJSON(w, http.StatusOK, response)
}

func processRSS() (uint64, bool) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, false
	}
	mem, err := p.MemoryInfo()
	if err != nil || mem == nil {
		return 0, false
	}
	return mem.RSS, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("Failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case s.allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && lo.ContainsBy(s.origins, func(o string) bool { return strings.EqualFold(o, origin) }):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
