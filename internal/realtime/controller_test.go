package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/protocol"
	"github.com/concord-chat/teamchat/internal/store"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []*protocol.Frame
	done   chan struct{}
	closed bool
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (f *fakeConn) Emit(event protocol.Event, data interface{}) error {
	frame, err := protocol.NewFrame(event, data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Done() <-chan struct{} { return f.done }

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.drop()
}

func (f *fakeConn) drop() {
	f.once.Do(func() { close(f.done) })
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// log renders emitted frames as "event arg" lines
func (f *fakeConn) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var id string
		if json.Unmarshal(fr.Data, &id) == nil {
			out = append(out, fmt.Sprintf("%s %s", fr.Event, id))
		} else {
			out = append(out, string(fr.Event))
		}
	}
	return out
}

func (f *fakeConn) last() *protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	return f.frames[len(f.frames)-1]
}

type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	subs   []*Subscriptions
	tokens []string
	fails  int
}

func (d *fakeDialer) Dial(ctx context.Context, token string, subs *Subscriptions) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if d.fails > 0 {
		d.fails--
		return nil, apperr.Wrap(apperr.KindTransport, "dial", errors.New("refused"))
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	d.subs = append(d.subs, subs)
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) sub(i int) *Subscriptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subs[i]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

type members map[string]bool

func (m members) IsMember(id string) bool { return m[id] }

func fastRetry() *ReconnectStrategy {
	return &ReconnectStrategy{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func newTestController(t *testing.T) (*Controller, *fakeDialer, *store.MessageStore) {
	t.Helper()
	d := &fakeDialer{}
	s := store.New(0)
	c := NewController(d, s, members{"X": true, "Y": true}, Options{Reconnect: fastRetry()})
	t.Cleanup(c.Disconnect)
	return c, d, s
}

func TestController_SwitchOrder(t *testing.T) {
	c, d, _ := newTestController(t)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	c.SetActive("X")
	c.SetActive("Y")
	c.SetActive("Y")
	c.SetActive("Z")

	assert.Equal(t, []string{
		"channel:join X",
		"channel:leave X",
		"channel:join Y",
		"channel:leave Y",
		"channel:join Z",
	}, d.conn(0).log())
}

func TestController_JoinsActiveOnConnect(t *testing.T) {
	c, d, _ := newTestController(t)
	c.SetActive("X")

	require.NoError(t, c.Connect(context.Background(), "tok"))
	assert.Equal(t, []string{"channel:join X"}, d.conn(0).log())
	assert.True(t, c.Connected())
}

func TestController_ConnectSameTokenIsNoop(t *testing.T) {
	c, d, _ := newTestController(t)
	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.NoError(t, c.Connect(context.Background(), "tok"))
	assert.Equal(t, 1, d.dials())
}

func TestController_NewTokenReplacesConnection(t *testing.T) {
	c, d, _ := newTestController(t)
	var resyncs int
	c.OnReconnect(func() { resyncs++ })

	c.SetActive("X")
	require.NoError(t, c.Connect(context.Background(), "tok1"))
	assert.Zero(t, resyncs, "first connect has nothing to recover")

	require.NoError(t, c.Connect(context.Background(), "tok2"))

	assert.True(t, d.conn(0).isClosed())
	assert.Equal(t, []string{"tok1", "tok2"}, d.tokens)
	assert.Equal(t, []string{"channel:join X"}, d.conn(1).log())
	// events sent while the socket was swapped are recovered by the hook
	assert.Equal(t, 1, resyncs)
}

func TestController_ConnectInBackground(t *testing.T) {
	c, d, _ := newTestController(t)
	c.SetActive("X")

	c.ConnectInBackground("tok")
	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"channel:join X"}, d.conn(0).log())

	resynced := make(chan struct{}, 1)
	c.OnReconnect(func() { resynced <- struct{}{} })
	c.ConnectInBackground("tok2")
	select {
	case <-resynced:
	case <-time.After(time.Second):
		t.Fatal("replacing the connection did not resync")
	}
	assert.Equal(t, 2, d.dials())
}

func TestController_DisconnectBeatsBackgroundConnect(t *testing.T) {
	c, d, _ := newTestController(t)

	c.ConnectInBackground("tok")
	c.Disconnect()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.Connected())
	if conn := d.conn(0); conn != nil {
		assert.True(t, conn.isClosed())
	}
}

func TestController_SendRejectedLocally(t *testing.T) {
	c, d, _ := newTestController(t)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	_, err := c.Send("hello")
	assert.ErrorIs(t, err, apperr.ErrValidation, "no active channel")

	c.SetActive("Z")
	_, err = c.Send("hello")
	assert.ErrorIs(t, err, apperr.ErrValidation, "not a member")

	c.SetActive("X")
	_, err = c.Send("   ")
	assert.ErrorIs(t, err, apperr.ErrValidation, "blank")

	for _, line := range d.conn(0).log() {
		assert.NotEqual(t, string(protocol.EventMessageSend), line)
	}
}

func TestController_Send(t *testing.T) {
	c, d, _ := newTestController(t)
	require.NoError(t, c.Connect(context.Background(), "tok"))
	c.SetActive("X")

	nonce, err := c.Send("hello")
	require.NoError(t, err)
	assert.NotEmpty(t, nonce)

	frame := d.conn(0).last()
	require.NotNil(t, frame)
	assert.Equal(t, protocol.EventMessageSend, frame.Event)

	var p protocol.SendPayload
	require.NoError(t, frame.Decode(&p))
	assert.Equal(t, protocol.SendPayload{ChannelID: "X", Content: "hello", Nonce: nonce}, p)
}

func TestController_SendWhileDisconnected(t *testing.T) {
	c, _, _ := newTestController(t)
	c.SetActive("X")

	_, err := c.Send("hello")
	assert.ErrorIs(t, err, apperr.ErrTransport)
}

func TestController_SendRateLimit(t *testing.T) {
	d := &fakeDialer{}
	c := NewController(d, store.New(0), members{"X": true}, Options{SendRate: 0.001, SendBurst: 2})
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), "tok"))
	c.SetActive("X")

	_, err := c.Send("one")
	require.NoError(t, err)
	_, err = c.Send("two")
	require.NoError(t, err)
	_, err = c.Send("three")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestController_EditAndDelete(t *testing.T) {
	c, d, _ := newTestController(t)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	require.NoError(t, c.Edit("m1", "fixed"))
	var edit protocol.EditPayload
	require.NoError(t, d.conn(0).last().Decode(&edit))
	assert.Equal(t, protocol.EditPayload{MessageID: "m1", Content: "fixed"}, edit)

	require.NoError(t, c.Delete("m1"))
	assert.Equal(t, protocol.EventMessageDelete, d.conn(0).last().Event)

	assert.ErrorIs(t, c.Edit("m1", ""), apperr.ErrValidation)
}

func TestController_InboundEventsReachStore(t *testing.T) {
	c, d, s := newTestController(t)
	require.NoError(t, c.Connect(context.Background(), "tok"))
	subs := d.sub(0)

	dispatch := func(event protocol.Event, data string) {
		subs.Dispatch(&protocol.Frame{Event: event, Data: json.RawMessage(data)})
	}

	dispatch(protocol.EventMessageNew, `{"_id":"A","channel":"X","sender":{"_id":"u1","username":"ann"},"content":"hi","timestamp":"2024-01-01T00:00:00Z"}`)
	dispatch(protocol.EventMessageNew, `{"_id":"B","channelId":"X","sender":{"_id":"u1"},"content":"yo","timestamp":"2024-01-01T00:00:01Z"}`)
	dispatch(protocol.EventMessageNew, `{"_id":"A","channel":"X","content":"hi","timestamp":"2024-01-01T00:00:00Z"}`)
	dispatch(protocol.EventMessageUpdated, `{"_id":"A","channel":{"_id":"X"},"content":"hi!","editedAt":"2024-01-01T00:01:00Z"}`)
	dispatch(protocol.EventMessageDeleted, `{"channelId":"X","messageId":"B"}`)

	msgs := s.Messages("X")
	require.Len(t, msgs, 1)
	assert.Equal(t, "A", msgs[0].ID)
	assert.Equal(t, "hi!", msgs[0].Content)
	assert.True(t, msgs[0].IsEdited())
}

func TestController_DisconnectLeavesAndDetaches(t *testing.T) {
	c, d, s := newTestController(t)
	require.NoError(t, c.Connect(context.Background(), "tok"))
	c.SetActive("X")
	subs := d.sub(0)

	c.Disconnect()
	assert.False(t, c.Connected())
	assert.True(t, d.conn(0).isClosed())
	assert.Equal(t, []string{"channel:join X", "channel:leave X"}, d.conn(0).log())

	// Handlers of the closed connection are gone
	subs.Dispatch(&protocol.Frame{Event: protocol.EventMessageNew, Data: json.RawMessage(`{"_id":"A","channel":"X","content":"late"}`)})
	assert.Empty(t, s.Messages("X"))
}

func TestController_ReconnectsAfterDrop(t *testing.T) {
	c, d, _ := newTestController(t)
	reconnected := make(chan struct{}, 1)
	c.OnReconnect(func() { reconnected <- struct{}{} })

	c.SetActive("X")
	require.NoError(t, c.Connect(context.Background(), "tok"))
	d.conn(0).drop()

	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("did not reconnect")
	}

	require.NotNil(t, d.conn(1))
	assert.Equal(t, []string{"channel:join X"}, d.conn(1).log())
	assert.True(t, c.Connected())
}

func TestController_ConnectFailureRetriesInBackground(t *testing.T) {
	c, d, _ := newTestController(t)
	d.fails = 2

	var mu sync.Mutex
	var states []bool
	up := make(chan struct{}, 1)
	c.OnStatus(func(connected bool) {
		mu.Lock()
		states = append(states, connected)
		mu.Unlock()
		if connected {
			up <- struct{}{}
		}
	})

	err := c.Connect(context.Background(), "tok")
	assert.ErrorIs(t, err, apperr.ErrTransport)

	select {
	case <-up:
	case <-time.After(time.Second):
		t.Fatal("did not connect")
	}
	assert.Equal(t, 3, d.dials())
	mu.Lock()
	assert.Equal(t, []bool{true}, states)
	mu.Unlock()
}

func TestController_DisconnectStopsReconnecting(t *testing.T) {
	d := &fakeDialer{fails: 100}
	c := NewController(d, store.New(0), members{}, Options{Reconnect: &ReconnectStrategy{
		MaxRetries: -1, InitialDelay: 5 * time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 1,
	}})

	_ = c.Connect(context.Background(), "tok")
	time.Sleep(20 * time.Millisecond)
	c.Disconnect()
	time.Sleep(10 * time.Millisecond)
	dials := d.dials()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, dials, d.dials())
}
