package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/teamchat/internal/apperr"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", 0)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_SendAttachesBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, []map[string]string{{"_id": "c1", "name": "general"}})
	})

	var out []map[string]string
	require.NoError(t, c.Send(context.Background(), Request{Method: http.MethodGet, Path: "/channels"}, "tok", &out))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/api/channels", gotPath)
	assert.Len(t, out, 1)
}

func TestClient_StatusMapping(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Channel name already exists"})
	})

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/channels", Body: map[string]string{"name": "x"}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "Channel name already exists", apperr.Message(err))

	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusConflict, e.Status)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	err := NewClient(srv.URL, 0).Do(context.Background(), Request{Method: http.MethodGet, Path: "/channels"}, nil)
	assert.ErrorIs(t, err, apperr.ErrTransport)
}

func TestAuthClient_LoginFailureIsGeneric(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "No user with that email"})
	})

	_, err := NewAuthClient(c).Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAuthentication)
	assert.NotContains(t, apperr.Message(err), "email")
}

func TestAuthClient_LoginSuccess(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accessToken":  "a1",
			"refreshToken": "r1",
			"user":         map[string]string{"_id": "u1", "username": "ann"},
		})
	})

	s, err := NewAuthClient(c).Login(context.Background(), "ann@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "a1", s.AccessToken)
	assert.Equal(t, "r1", s.RefreshToken)
	assert.Equal(t, "u1", s.User.ID)
}

func TestAuthClient_SignupDuplicateIsValidation(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Email already registered"})
	})

	_, err := NewAuthClient(c).Signup(context.Background(), "ann", "ann@example.com", "secret1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "Email already registered", apperr.Message(err))
}

func TestAuthClient_Refresh(t *testing.T) {
	t.Run("rotates", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "r1", body["refreshToken"])
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "a2", "refreshToken": "r2"})
		})
		access, refresh, err := NewAuthClient(c).Refresh(context.Background(), "r1")
		require.NoError(t, err)
		assert.Equal(t, "a2", access)
		assert.Equal(t, "r2", refresh)
	})

	t.Run("rejected", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, _, err := NewAuthClient(c).Refresh(context.Background(), "r1")
		assert.ErrorIs(t, err, apperr.ErrSessionExpired)
	})
}

func TestMessageService_List(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages/c1", r.URL.Path)
		_, _ = w.Write([]byte(`{"messages":[
			{"_id":"m1","channel":"c1","sender":{"_id":"u1","username":"ann"},"content":"hi","timestamp":"2024-01-01T00:00:00Z"},
			{"_id":"m2","sender":{"_id":"u2"},"content":"yo","timestamp":"2024-01-01T00:00:01Z"}
		]}`))
	})

	msgs, err := NewMessageService(c).List(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "c1", msgs[1].ChannelID)
	assert.Equal(t, "Unknown", msgs[1].Sender.Username)
}

func TestChannelService_Paths(t *testing.T) {
	var calls []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	svc := NewChannelService(c)
	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "c1"))
	require.NoError(t, svc.Leave(ctx, "c1"))
	require.NoError(t, svc.Delete(ctx, "c1"))

	assert.Equal(t, []string{
		"POST /api/channels/c1/join",
		"POST /api/channels/c1/leave",
		"DELETE /api/channels/c1",
	}, calls)
}
