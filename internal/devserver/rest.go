package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/models"
)

type userKey struct{}

type authResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

type signupRequest struct {
	Username string `json:"username" validate:"notblank,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

var validate = apperr.NewValidator()

// authed rejects requests without a valid access token
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.parseAccess(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		user, ok := s.store.User(userID)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unknown user")
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, apperr.Message(apperr.FromValidator("signup", err)))
		return
	}

	user, err := s.store.CreateUser(req.Username, req.Email, req.Password)
	if errors.Is(err, errConflict) {
		writeError(w, http.StatusConflict, "Email or username already in use")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create user")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.writeSession(w, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.writeSession(w, user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, rotated, err := s.store.RotateRefresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	access, err := s.issueAccess(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{AccessToken: access, RefreshToken: rotated})
}

func (s *Server) writeSession(w http.ResponseWriter, user models.User) {
	access, err := s.issueAccess(user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to sign token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  access,
		RefreshToken: s.store.IssueRefresh(user.ID),
		User:         &user,
	})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request, user models.User) {
	writeJSON(w, http.StatusOK, s.store.Channels(user.ID))
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request, user models.User) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPrivate   bool   `json:"isPrivate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Channel name is required")
		return
	}

	ch, err := s.store.CreateChannel(user, name, strings.TrimSpace(req.Description), req.IsPrivate)
	if errors.Is(err, errConflict) {
		writeError(w, http.StatusConflict, "Channel name already exists")
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleJoinChannel(w http.ResponseWriter, r *http.Request, user models.User) {
	s.writeResult(w, s.store.Join(user, r.PathValue("id")))
}

func (s *Server) handleLeaveChannel(w http.ResponseWriter, r *http.Request, user models.User) {
	s.writeResult(w, s.store.Leave(user, r.PathValue("id")))
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request, user models.User) {
	id := r.PathValue("id")
	if err := s.store.DeleteChannel(user, id); err != nil {
		s.writeResult(w, err)
		return
	}
	s.hub.CloseRoom(id)
	s.writeResult(w, nil)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, user models.User) {
	id := r.PathValue("id")
	ch, ok := s.store.Channel(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}
	if ch.IsPrivate && !ch.HasMember(user.ID) {
		writeError(w, http.StatusForbidden, "Channel is private")
		return
	}
	msgs, err := s.store.Messages(id)
	if err != nil {
		s.writeResult(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// writeResult maps a store error to a response
func (s *Server) writeResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "Channel not found")
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, "Not allowed")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
