package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/teamchat/internal/api"
	"github.com/concord-chat/teamchat/internal/devserver"
	"github.com/concord-chat/teamchat/internal/models"
	"github.com/concord-chat/teamchat/internal/realtime"
	"github.com/concord-chat/teamchat/internal/session"
)

func newLiveEngine(t *testing.T, ts *httptest.Server) *Engine {
	t.Helper()
	rest := api.NewClient(ts.URL+"/api", 5*time.Second)
	e := New(Deps{
		Auth:   api.NewAuthClient(rest),
		Sender: rest,
		Tokens: session.NewMemoryStore(),
		Dialer: realtime.NewWebSocketDialer("ws" + ts.URL[len("http"):] + "/ws"),
		Realtime: realtime.Options{Reconnect: &realtime.ReconnectStrategy{
			MaxRetries: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2,
		}},
		RefreshSkew:  time.Second,
		MessageLimit: maxMessagesPerChannel,
	})
	t.Cleanup(e.Close)
	return e
}

func hasContent(msgs []models.Message, content string) bool {
	return lo.ContainsBy(msgs, func(m models.Message) bool { return m.Content == content })
}

func TestEngine_AgainstDevServer(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a live server")
	}
	ctx := context.Background()

	srv := devserver.New(devserver.DefaultConfig())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	ann := newLiveEngine(t, ts)
	bob := newLiveEngine(t, ts)

	require.NoError(t, ann.Signup(ctx, "ann", "ann@example.com", "secret123"))
	general, err := ann.CreateChannel(ctx, "general", "")
	require.NoError(t, err)

	require.NoError(t, bob.Signup(ctx, "bob", "bob@example.com", "secret123"))
	active, ok := bob.ActiveChannel()
	require.True(t, ok)
	require.Equal(t, general.ID, active.ID)
	assert.False(t, bob.IsMember(general.ID))

	require.NoError(t, bob.JoinChannel(ctx, ""))
	assert.True(t, bob.IsMember(general.ID))

	require.NoError(t, ann.WaitConnected(ctx))
	require.Eventually(t, func() bool { return srv.RoomSize(general.ID) == 2 }, 5*time.Second, 10*time.Millisecond)

	_, err = ann.SendMessage("hello bob")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hasContent(bob.Messages(), "hello bob") }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return hasContent(ann.Messages(), "hello bob") }, 5*time.Second, 10*time.Millisecond)

	// an expired access token is refreshed behind the caller's back
	srv.RevokeAccessTokens()
	require.NoError(t, ann.Refresh(ctx))
	assert.True(t, ann.IsAuthenticated())

	require.Eventually(t, func() bool {
		_, err := ann.SendMessage("still here")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return hasContent(bob.Messages(), "still here") }, 5*time.Second, 10*time.Millisecond)

	sent, ok := lo.Find(ann.Messages(), func(m models.Message) bool { return m.Content == "hello bob" })
	require.True(t, ok)
	require.NoError(t, ann.EditMessage(sent.ID, "hello everyone"))
	require.Eventually(t, func() bool {
		m, ok := lo.Find(bob.Messages(), func(m models.Message) bool { return m.ID == sent.ID })
		return ok && m.Content == "hello everyone" && m.IsEdited()
	}, 5*time.Second, 10*time.Millisecond)
}
