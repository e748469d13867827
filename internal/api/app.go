package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/castlinker/chatd/internal/config"
	"github.com/castlinker/chatd/internal/database"
	"github.com/castlinker/chatd/internal/presence"
	"github.com/castlinker/chatd/internal/server"
	"github.com/castlinker/chatd/internal/stats"
	"github.com/gorilla/handlers"
	"github.com/sethvargo/go-retry"
	"github.com/teris-io/shortid"
)

type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	presence       presence.Store
	mux            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
	typingTTL      time.Duration

	// overridable in tests
	generateShortId func() (string, error)
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, ps presence.Store, sp stats.StatsProvider, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		presence:       ps,
		cs:             cs,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		typingTTL:      cfg.TypingTTL,
	}
	s.generateShortId = newShortId

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("POST /api/rooms/direct", s.authMiddleware(s.createDirectRoom))
	mux.Handle("POST /api/rooms/leave", s.authMiddleware(s.leaveRoom))
	mux.Handle("POST /api/rooms/members", s.authMiddleware(s.inviteMember))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("PUT /api/messages", s.authMiddleware(s.editMessage))
	mux.Handle("DELETE /api/messages", s.authMiddleware(s.deleteMessage))
	mux.Handle("GET /api/reactions", s.authMiddleware(s.getReactions))
	mux.Handle("POST /api/reactions", s.authMiddleware(s.toggleReaction))
	mux.Handle("GET /api/presence", s.authMiddleware(s.getPresence))
	mux.Handle("POST /api/presence", s.authMiddleware(s.heartbeat))
	mux.Handle("POST /api/typing", s.authMiddleware(s.setTyping))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func newShortId() (string, error) {
	sid, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate short id: %w", err)
	}

	return sid, nil
}

// withReadRetry retries fn with bounded exponential backoff when the
// store reports a transient failure. Only read paths use it; sends are
// never retried automatically.
func (s *ChatApp) withReadRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(100*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if errors.Is(err, database.ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
}
