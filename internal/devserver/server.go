/*
Package devserver is a small in-memory teamchat backend for local development
and end-to-end tests.

It serves the REST routes under /api and the event stream on /ws that the
client speaks. Nothing is persisted; restarting the server forgets everything.
*/
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/concord-chat/teamchat/internal/logx"
)

// Config holds the server configuration
type Config struct {
	Host      string        `toml:"host"`
	Port      int           `toml:"port"`
	Secret    string        `toml:"secret"`
	AccessTTL time.Duration `toml:"-"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5002,
		Secret:    "teamchat-dev-secret",
		AccessTTL: 15 * time.Minute,
	}
}

// Server is the development backend
type Server struct {
	config   *Config
	store    *Store
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger

	// tokenGeneration is embedded in every access token; bumping it
	// invalidates all tokens issued before.
	tokenGeneration atomic.Int64

	cancel context.CancelFunc
	once   sync.Once
}

// New creates a server and starts its hub
func New(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AccessTTL <= 0 {
		config.AccessTTL = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		store:  NewStore(),
		hub:    NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:    logx.Component("devserver"),
		cancel: cancel,
	}
	go s.hub.Run(ctx)
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)

	mux.HandleFunc("GET /api/channels", s.authed(s.handleListChannels))
	mux.HandleFunc("POST /api/channels", s.authed(s.handleCreateChannel))
	mux.HandleFunc("POST /api/channels/{id}/join", s.authed(s.handleJoinChannel))
	mux.HandleFunc("POST /api/channels/{id}/leave", s.authed(s.handleLeaveChannel))
	mux.HandleFunc("DELETE /api/channels/{id}", s.authed(s.handleDeleteChannel))
	mux.HandleFunc("GET /api/messages/{id}", s.authed(s.handleListMessages))
	return mux
}

// Run serves on the configured address until ctx ends
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("http shutdown failed")
		}
		s.Close()
	}()

	s.log.Info().Str("addr", addr).Msg("devserver listening")
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Close stops the hub
func (s *Server) Close() {
	s.once.Do(s.cancel)
}

// RevokeAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.tokenGeneration.Add(1)
}

// RoomSize returns how many connections joined a channel's room
func (s *Server) RoomSize(channelID string) int {
	return s.hub.RoomSize(channelID)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	userID, err := s.parseAccess(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	user, ok := s.store.User(userID)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unknown user")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn, s.hub, s.store, user, s.log)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) issueAccess(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        strconv.FormatInt(s.tokenGeneration.Load(), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
}

func (s *Server) parseAccess(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.ID != strconv.FormatInt(s.tokenGeneration.Load(), 10) {
		return "", errors.New("token revoked")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}
