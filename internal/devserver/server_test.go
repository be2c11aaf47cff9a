package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/teamchat/internal/models"
	"github.com/concord-chat/teamchat/internal/protocol"
)

type testServer struct {
	srv *Server
	ts  *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Secret = "test-secret"
	srv := New(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &testServer{srv: srv, ts: ts}
}

func (s *testServer) do(t *testing.T, method, path, token string, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) signup(t *testing.T, username string) authResponse {
	t.Helper()
	var out authResponse
	status := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	}, &out)
	require.Equal(t, http.StatusOK, status)
	return out
}

func TestAuth_SignupLoginRefresh(t *testing.T) {
	s := newTestServer(t)
	created := s.signup(t, "ann")
	require.NotNil(t, created.User)
	assert.Equal(t, "ann", created.User.Username)
	assert.NotEmpty(t, created.AccessToken)

	var dup map[string]string
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "ann", "email": "other@example.com", "password": "secret123",
	}, &dup))

	var bad map[string]string
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "bo", "email": "bo@example.com", "password": "secret123",
	}, &bad))
	assert.Equal(t, "Username must be at least 3 characters", bad["message"])

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ann@example.com", "password": "wrong",
	}, nil))

	var login authResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ANN@example.com", "password": "secret123",
	}, &login))
	assert.Equal(t, created.User.ID, login.User.ID)

	var refreshed authResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": login.RefreshToken,
	}, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// rotated tokens are single use
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": login.RefreshToken,
	}, nil))
}

func TestAuth_RevokedAccessTokensAreRejected(t *testing.T) {
	s := newTestServer(t)
	ann := s.signup(t, "ann")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/channels", ann.AccessToken, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/channels", "", nil, nil))

	s.srv.RevokeAccessTokens()
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/channels", ann.AccessToken, nil, nil))

	var refreshed authResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": ann.RefreshToken,
	}, &refreshed))
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/channels", refreshed.AccessToken, nil, nil))
}

func TestChannels_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	ann := s.signup(t, "ann")
	bob := s.signup(t, "bob")

	var general models.Channel
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/channels", ann.AccessToken,
		map[string]interface{}{"name": "general"}, &general))
	assert.True(t, general.IsCreator(ann.User.ID))

	var secret models.Channel
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/channels", ann.AccessToken,
		map[string]interface{}{"name": "secret", "isPrivate": true}, &secret))

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/channels", bob.AccessToken,
		map[string]interface{}{"name": "General"}, nil))

	var visible []models.Channel
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/channels", bob.AccessToken, nil, &visible))
	require.Len(t, visible, 1)
	assert.Equal(t, "general", visible[0].Name)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/channels/"+secret.ID+"/join", bob.AccessToken, nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/messages/"+secret.ID, bob.AccessToken, nil, nil))
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/channels/"+general.ID+"/join", bob.AccessToken, nil, nil))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/channels", bob.AccessToken, nil, &visible))
	assert.True(t, visible[0].HasMember(bob.User.ID))

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/api/channels/"+general.ID, bob.AccessToken, nil, nil))
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/channels/"+general.ID, ann.AccessToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/messages/"+general.ID, ann.AccessToken, nil, nil))
}

func dialSocket(t *testing.T, s *testServer, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + s.ts.URL[len("http"):] + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event protocol.Event, data interface{}) {
	t.Helper()
	frame, err := protocol.NewFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame protocol.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocket_RoomBroadcast(t *testing.T) {
	s := newTestServer(t)
	ann := s.signup(t, "ann")
	bob := s.signup(t, "bob")

	var general models.Channel
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/channels", ann.AccessToken,
		map[string]interface{}{"name": "general"}, &general))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/channels/"+general.ID+"/join", bob.AccessToken, nil, nil))

	annConn := dialSocket(t, s, ann.AccessToken)
	bobConn := dialSocket(t, s, bob.AccessToken)
	sendFrame(t, annConn, protocol.EventChannelJoin, general.ID)
	sendFrame(t, bobConn, protocol.EventChannelJoin, general.ID)
	require.Eventually(t, func() bool { return s.srv.RoomSize(general.ID) == 2 }, 2*time.Second, 10*time.Millisecond)

	sendFrame(t, annConn, protocol.EventMessageSend, protocol.SendPayload{ChannelID: general.ID, Content: "hello"})

	for _, conn := range []*websocket.Conn{annConn, bobConn} {
		frame := readFrame(t, conn)
		assert.Equal(t, protocol.EventMessageNew, frame.Event)
		var m models.Message
		require.NoError(t, frame.Decode(&m))
		assert.Equal(t, "hello", m.Content)
		assert.Equal(t, general.ID, m.ChannelID)
		assert.Equal(t, ann.User.ID, m.Sender.ID)
	}

	var history struct {
		Messages []models.Message `json:"messages"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/messages/"+general.ID, bob.AccessToken, nil, &history))
	require.Len(t, history.Messages, 1)

	// only the sender may edit
	sendFrame(t, bobConn, protocol.EventMessageEdit, protocol.EditPayload{MessageID: history.Messages[0].ID, Content: "hijacked"})
	sendFrame(t, annConn, protocol.EventMessageEdit, protocol.EditPayload{MessageID: history.Messages[0].ID, Content: "hello all"})
	frame := readFrame(t, bobConn)
	assert.Equal(t, protocol.EventMessageUpdated, frame.Event)
	var edited models.Message
	require.NoError(t, frame.Decode(&edited))
	assert.Equal(t, "hello all", edited.Content)
	assert.True(t, edited.IsEdited())

	sendFrame(t, annConn, protocol.EventMessageDelete, protocol.DeletePayload{MessageID: edited.ID})
	frame = readFrame(t, bobConn)
	assert.Equal(t, protocol.EventMessageDeleted, frame.Event)
	var deleted protocol.DeletedPayload
	require.NoError(t, frame.Decode(&deleted))
	assert.Equal(t, protocol.DeletedPayload{ChannelID: general.ID, MessageID: edited.ID}, deleted)
}

func TestWebSocket_RejectsInvalidToken(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + s.ts.URL[len("http"):] + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
