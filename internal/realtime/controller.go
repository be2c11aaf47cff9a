/*
Package realtime binds the event stream to the session and the active channel.

The Controller holds at most one connection. It connects while a token is
present, joins the active channel on every (re)connect, emits leave/join in
activation order, and feeds inbound message events to the message store.
*/
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/logx"
	"github.com/concord-chat/teamchat/internal/models"
	"github.com/concord-chat/teamchat/internal/protocol"
)

// Sink applies inbound message events
type Sink interface {
	ApplyInsert(m models.Message) bool
	ApplyUpdate(m models.Message) bool
	ApplyDelete(channelID, messageID string) bool
}

// Membership answers whether the current user may post in a channel
type Membership interface {
	IsMember(channelID string) bool
}

// Options tunes a Controller
type Options struct {
	Reconnect *ReconnectStrategy
	// SendRate is the sustained number of sends per second. Zero disables
	// the limit.
	SendRate  float64
	SendBurst int
}

var errStale = errors.New("realtime: connection superseded")

// Controller owns the realtime connection
type Controller struct {
	dialer   Dialer
	sink     Sink
	members  Membership
	strategy *ReconnectStrategy
	limiter  *rate.Limiter
	log      zerolog.Logger

	mu       sync.Mutex
	conn     Conn
	subs     *Subscriptions
	token    string
	activeID string
	// epoch changes on every Connect and Disconnect; loops started under an
	// older epoch stop as soon as they notice.
	epoch  uint64
	runCtx context.Context
	cancel context.CancelFunc

	hooksMu     sync.Mutex
	onReconnect []func()
	onStatus    []func(connected bool)
}

// NewController creates a disconnected controller
func NewController(dialer Dialer, sink Sink, members Membership, opts Options) *Controller {
	if opts.Reconnect == nil {
		opts.Reconnect = DefaultReconnectStrategy()
	}
	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	if opts.SendBurst < 1 {
		opts.SendBurst = 1
	}

	return &Controller{
		dialer:   dialer,
		sink:     sink,
		members:  members,
		strategy: opts.Reconnect,
		limiter:  rate.NewLimiter(limit, opts.SendBurst),
		log:      logx.Component("realtime"),
	}
}

// OnReconnect registers fn to run after a dropped connection is restored
func (c *Controller) OnReconnect(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

// OnStatus registers fn to run when the connection goes up or down
func (c *Controller) OnStatus(fn func(connected bool)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onStatus = append(c.onStatus, fn)
}

// Connect opens a connection with token, replacing any connection made with
// a different token. If the first dial fails the error is returned and
// redialing continues in the background. Replacing a connection fires the
// reconnect hooks once the new one is up, since events broadcast in between
// were never received.
func (c *Controller) Connect(ctx context.Context, token string) error {
	epoch, runCtx, replacing, ok := c.prepare(token)
	if !ok {
		return nil
	}
	return c.connect(ctx, runCtx, epoch, token, replacing)
}

// ConnectInBackground is Connect without waiting for the dial. The state
// change is immediate, so a later Disconnect still wins.
func (c *Controller) ConnectInBackground(token string) {
	epoch, runCtx, replacing, ok := c.prepare(token)
	if !ok {
		return
	}
	go func() {
		_ = c.connect(runCtx, runCtx, epoch, token, replacing)
	}()
}

// prepare switches the controller to token. ok is false when there is
// nothing to dial.
func (c *Controller) prepare(token string) (epoch uint64, runCtx context.Context, replacing, ok bool) {
	if token == "" {
		c.Disconnect()
		return 0, nil, false, false
	}

	c.mu.Lock()
	if c.token == token && c.cancel != nil {
		c.mu.Unlock()
		return 0, nil, false, false
	}
	replacing = c.cancel != nil
	wasConnected := c.teardownLocked()
	c.token = token
	c.epoch++
	epoch = c.epoch
	c.runCtx, c.cancel = context.WithCancel(context.Background())
	runCtx = c.runCtx
	c.mu.Unlock()

	if wasConnected {
		c.status(false)
	}
	return epoch, runCtx, replacing, true
}

func (c *Controller) connect(ctx, runCtx context.Context, epoch uint64, token string, replacing bool) error {
	if err := c.dial(ctx, epoch, token); err != nil {
		if errors.Is(err, errStale) {
			return nil
		}
		c.log.Warn().Err(err).Msg("connect failed, retrying in background")
		go c.reconnect(runCtx, epoch, token)
		return err
	}
	if replacing {
		c.reconnected()
	}
	return nil
}

// Disconnect closes the connection and stops reconnecting. The active channel
// is left first.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.conn != nil && c.activeID != "" {
		c.emitLocked(protocol.EventChannelLeave, c.activeID)
	}
	wasConnected := c.teardownLocked()
	c.token = ""
	c.epoch++
	c.mu.Unlock()

	if wasConnected {
		c.log.Info().Msg("disconnected")
		c.status(false)
	}
}

// teardownLocked stops the run loop and closes the connection. Caller holds mu.
func (c *Controller) teardownLocked() bool {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.subs != nil {
		c.subs.Close()
		c.subs = nil
	}
	wasConnected := c.conn != nil
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return wasConnected
}

// dial opens one connection and attaches it if epoch is still current
func (c *Controller) dial(ctx context.Context, epoch uint64, token string) error {
	subs := NewSubscriptions()
	c.register(subs)

	conn, err := c.dialer.Dial(ctx, token, subs)
	if err != nil {
		subs.Close()
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		subs.Close()
		conn.Close()
		return errStale
	}
	c.conn = conn
	c.subs = subs
	if c.activeID != "" {
		c.emitLocked(protocol.EventChannelJoin, c.activeID)
	}
	runCtx := c.runCtx
	c.mu.Unlock()

	c.log.Info().Msg("connected")
	c.status(true)
	go c.watch(runCtx, epoch, token, conn)
	return nil
}

// watch waits for conn to drop and redials when the drop was not requested
func (c *Controller) watch(ctx context.Context, epoch uint64, token string, conn Conn) {
	select {
	case <-ctx.Done():
		return
	case <-conn.Done():
	}

	c.mu.Lock()
	if c.epoch != epoch || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.subs != nil {
		c.subs.Close()
		c.subs = nil
	}
	c.mu.Unlock()

	c.log.Warn().Msg("connection lost")
	c.status(false)
	c.reconnect(ctx, epoch, token)
}

// reconnect redials with backoff until it succeeds, gives up or is superseded
func (c *Controller) reconnect(ctx context.Context, epoch uint64, token string) {
	for attempt := 0; c.strategy.Allows(attempt); attempt++ {
		c.log.Info().Int("attempt", attempt+1).Msg("reconnecting")
		if !c.strategy.Wait(ctx, attempt) {
			return
		}

		err := c.dial(ctx, epoch, token)
		if err == nil {
			c.reconnected()
			return
		}
		if errors.Is(err, errStale) || ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect failed")
	}
	c.log.Error().Msg("giving up on reconnecting")
}

// SetActive switches the joined channel. leave(prev) is emitted before
// join(next); setting the current channel again does nothing.
func (c *Controller) SetActive(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.activeID
	if prev == channelID {
		return
	}
	c.activeID = channelID

	if c.conn == nil {
		return
	}
	if prev != "" {
		c.emitLocked(protocol.EventChannelLeave, prev)
	}
	if channelID != "" {
		c.emitLocked(protocol.EventChannelJoin, channelID)
	}
}

// ActiveID returns the channel the controller considers joined
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Connected reports whether a connection is attached
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send posts content to the active channel. It fails locally, without
// emitting, when the content is blank, no channel is active or the user is
// not a member. The returned nonce correlates the eventual message:new.
func (c *Controller) Send(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperr.Validation("realtime.send", "Message cannot be empty")
	}

	activeID := c.ActiveID()
	if activeID == "" {
		return "", apperr.Validation("realtime.send", "Select a channel first")
	}
	if !c.members.IsMember(activeID) {
		return "", apperr.Validation("realtime.send", "Join the channel to send messages")
	}
	if !c.limiter.Allow() {
		return "", apperr.Validation("realtime.send", "You are sending messages too quickly")
	}

	nonce := uuid.NewString()
	err := c.emit(protocol.EventMessageSend, protocol.SendPayload{
		ChannelID: activeID,
		Content:   content,
		Nonce:     nonce,
	})
	if err != nil {
		return "", err
	}
	return nonce, nil
}

// Edit asks the server to change a message's content
func (c *Controller) Edit(messageID, content string) error {
	if strings.TrimSpace(content) == "" {
		return apperr.Validation("realtime.edit", "Message cannot be empty")
	}
	return c.emit(protocol.EventMessageEdit, protocol.EditPayload{MessageID: messageID, Content: content})
}

// Delete asks the server to remove a message
func (c *Controller) Delete(messageID string) error {
	return c.emit(protocol.EventMessageDelete, protocol.DeletePayload{MessageID: messageID})
}

func (c *Controller) emit(event protocol.Event, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return apperr.New(apperr.KindTransport, "realtime.emit", "Not connected to the server.")
	}
	return c.conn.Emit(event, data)
}

// emitLocked emits and logs failures. Caller holds mu and has checked conn.
func (c *Controller) emitLocked(event protocol.Event, data interface{}) {
	if err := c.conn.Emit(event, data); err != nil {
		c.log.Warn().Err(err).Str("event", string(event)).Msg("emit failed")
	}
}

// register installs the inbound handlers on a new connection's set
func (c *Controller) register(subs *Subscriptions) {
	subs.On(protocol.EventMessageNew, func(data json.RawMessage) {
		var m models.Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Warn().Err(err).Msg("bad message:new payload")
			return
		}
		if m.ChannelID == "" {
			c.log.Warn().Str("message_id", m.ID).Msg("message:new without channel")
			return
		}
		c.sink.ApplyInsert(m)
	})

	subs.On(protocol.EventMessageUpdated, func(data json.RawMessage) {
		var m models.Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Warn().Err(err).Msg("bad message:updated payload")
			return
		}
		c.sink.ApplyUpdate(m)
	})

	subs.On(protocol.EventMessageDeleted, func(data json.RawMessage) {
		var p protocol.DeletedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			c.log.Warn().Err(err).Msg("bad message:deleted payload")
			return
		}
		c.sink.ApplyDelete(p.ChannelID, p.MessageID)
	})
}

func (c *Controller) reconnected() {
	c.hooksMu.Lock()
	fns := append([]func(){}, c.onReconnect...)
	c.hooksMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (c *Controller) status(connected bool) {
	c.hooksMu.Lock()
	fns := append([]func(bool){}, c.onStatus...)
	c.hooksMu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}
