/*
Package client wires the sync engine together.

Engine is the composition root: it owns the session manager, request gateway,
channel directory, message store and realtime controller, and exposes the
operations a front end needs. Front ends learn about changes through Subscribe.
*/
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/concord-chat/teamchat/internal/api"
	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/directory"
	"github.com/concord-chat/teamchat/internal/gateway"
	"github.com/concord-chat/teamchat/internal/logx"
	"github.com/concord-chat/teamchat/internal/models"
	"github.com/concord-chat/teamchat/internal/realtime"
	"github.com/concord-chat/teamchat/internal/session"
	"github.com/concord-chat/teamchat/internal/store"
)

// UpdateKind says what changed
type UpdateKind int

const (
	UpdateSession UpdateKind = iota
	UpdateChannels
	UpdateActive
	UpdateMessages
	UpdateConnection
	UpdateNotice
)

// Update is delivered to subscribers after a change
type Update struct {
	Kind          UpdateKind
	ChannelID     string
	Authenticated bool
	Connected     bool
	Notice        string
}

// Deps are the engine's outside collaborators
type Deps struct {
	Auth         session.AuthAPI
	Sender       gateway.Sender
	Tokens       session.TokenStore
	Dialer       realtime.Dialer
	Realtime     realtime.Options
	RefreshSkew  time.Duration
	MessageLimit int
}

// Engine is the client-side sync engine
type Engine struct {
	sessions *session.Manager
	gateway  *gateway.Gateway
	channels *directory.Directory
	messages *store.MessageStore
	rt       *realtime.Controller
	history  *api.MessageService
	log      zerolog.Logger

	// snapshotMu pairs the generation check with applying a snapshot
	snapshotMu sync.Mutex
	generation atomic.Uint64

	bg          context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	listenersMu sync.Mutex
	listeners   []listener
	nextID      int
}

type listener struct {
	id int
	fn func(Update)
}

// New wires an engine from its dependencies
func New(deps Deps) *Engine {
	e := &Engine{log: logx.Component("engine")}
	e.bg, e.cancel = context.WithCancel(context.Background())

	e.messages = store.New(deps.MessageLimit)
	e.sessions = session.NewManager(deps.Tokens, deps.Auth, deps.RefreshSkew)
	e.gateway = gateway.New(deps.Sender, e.sessions)
	e.history = api.NewMessageService(e.gateway)
	e.channels = directory.New(api.NewChannelService(e.gateway), e.sessions, e.messages)
	e.rt = realtime.NewController(deps.Dialer, e.messages, e.channels, deps.Realtime)

	e.channels.OnActivate(e.activated)
	e.messages.OnChange(func(channelID string) {
		e.emit(Update{Kind: UpdateMessages, ChannelID: channelID})
	})
	e.rt.OnStatus(func(connected bool) {
		e.emit(Update{Kind: UpdateConnection, Connected: connected})
	})
	e.rt.OnReconnect(func() {
		// Events missed while offline are recovered from the snapshot
		if err := e.loadActiveSnapshot(e.bg); err != nil {
			e.log.Warn().Err(err).Msg("failed to reload messages after reconnect")
		}
	})
	e.unsubscribe = e.sessions.Subscribe(e.sessionChanged)
	return e
}

// activated runs under the directory's activation lock
func (e *Engine) activated(prev, next string) {
	e.snapshotMu.Lock()
	e.generation.Add(1)
	e.snapshotMu.Unlock()

	e.rt.SetActive(next)
	e.emit(Update{Kind: UpdateActive, ChannelID: next})
}

func (e *Engine) sessionChanged(c session.Change) {
	switch c.State {
	case session.StateAuthenticated:
		// Runs inside the refresh exchange; the dial must not hold it up
		e.rt.ConnectInBackground(c.Token)
		e.emit(Update{Kind: UpdateSession, Authenticated: true})

	case session.StateUnauthenticated:
		e.channels.Reset()
		e.messages.Reset()
		e.rt.Disconnect()
		e.emit(Update{Kind: UpdateSession, Authenticated: false})
	}
}

// Start resumes a stored session and, when signed in, loads the directory
func (e *Engine) Start(ctx context.Context) error {
	if err := e.sessions.Resume(ctx); err != nil {
		e.log.Info().Err(err).Msg("stored session could not be resumed")
	}
	if !e.sessions.IsAuthenticated() {
		return nil
	}
	return e.sync(ctx)
}

// sync reloads the channel list and the active channel's messages
func (e *Engine) sync(ctx context.Context) error {
	if err := e.sessions.EnsureFresh(ctx); err != nil {
		return err
	}
	if _, err := e.channels.List(ctx); err != nil {
		return err
	}
	e.emit(Update{Kind: UpdateChannels})
	return e.loadActiveSnapshot(ctx)
}

// loadActiveSnapshot fetches the active channel's history. The result is
// dropped if another channel was activated meanwhile.
func (e *Engine) loadActiveSnapshot(ctx context.Context) error {
	e.snapshotMu.Lock()
	gen := e.generation.Load()
	e.snapshotMu.Unlock()

	id := e.channels.ActiveID()
	if id == "" {
		return nil
	}

	msgs, err := e.history.List(ctx, id)
	if err != nil {
		return err
	}

	e.snapshotMu.Lock()
	defer e.snapshotMu.Unlock()
	if e.generation.Load() != gen {
		e.log.Debug().Str("channel_id", id).Msg("discarding superseded snapshot")
		return nil
	}
	e.messages.LoadSnapshot(id, msgs)
	return nil
}

// Login signs in and loads the directory
func (e *Engine) Login(ctx context.Context, email, password string) error {
	if err := e.sessions.Login(ctx, email, password); err != nil {
		return err
	}
	return e.sync(ctx)
}

// Signup registers, signs in and loads the directory
func (e *Engine) Signup(ctx context.Context, username, email, password string) error {
	if err := e.sessions.Signup(ctx, username, email, password); err != nil {
		return err
	}
	return e.sync(ctx)
}

// Logout signs out. Channel and message state is cleared.
func (e *Engine) Logout() {
	e.sessions.Logout()
}

// Refresh reloads the channel list and active messages
func (e *Engine) Refresh(ctx context.Context) error {
	return e.sync(ctx)
}

// Select activates a channel and loads its messages
func (e *Engine) Select(ctx context.Context, channelID string) error {
	if err := e.channels.Select(channelID); err != nil {
		return err
	}
	return e.loadActiveSnapshot(ctx)
}

// CreateChannel creates a channel and switches to it
func (e *Engine) CreateChannel(ctx context.Context, name, description string) (*models.Channel, error) {
	if err := e.sessions.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	ch, err := e.channels.Create(ctx, name, description)
	if err != nil {
		return nil, err
	}
	e.emit(Update{Kind: UpdateChannels})
	e.notice(fmt.Sprintf("Channel %q created", ch.Name))
	return ch, e.loadActiveSnapshot(ctx)
}

// JoinChannel joins a channel; an empty id means the active one
func (e *Engine) JoinChannel(ctx context.Context, channelID string) error {
	return e.membershipChange(ctx, channelID, "Joined", e.channels.Join)
}

// LeaveChannel leaves a channel; an empty id means the active one
func (e *Engine) LeaveChannel(ctx context.Context, channelID string) error {
	return e.membershipChange(ctx, channelID, "Left", e.channels.Leave)
}

func (e *Engine) membershipChange(ctx context.Context, channelID, verb string, op func(context.Context, string) error) error {
	ch, err := e.resolve(channelID)
	if err != nil {
		return err
	}
	if err := e.sessions.EnsureFresh(ctx); err != nil {
		return err
	}

	before := e.channels.ActiveID()
	if err := op(ctx, ch.ID); err != nil {
		return err
	}
	e.emit(Update{Kind: UpdateChannels})
	e.notice(fmt.Sprintf("%s #%s", verb, ch.Name))

	if e.channels.ActiveID() != before {
		return e.loadActiveSnapshot(ctx)
	}
	return nil
}

// DeleteChannel removes a channel the user created; an empty id means the
// active one
func (e *Engine) DeleteChannel(ctx context.Context, channelID string) error {
	ch, err := e.resolve(channelID)
	if err != nil {
		return err
	}
	if err := e.sessions.EnsureFresh(ctx); err != nil {
		return err
	}

	before := e.channels.ActiveID()
	if err := e.channels.Remove(ctx, ch.ID); err != nil {
		return err
	}
	e.emit(Update{Kind: UpdateChannels})
	e.notice(fmt.Sprintf("Deleted #%s", ch.Name))

	if e.channels.ActiveID() != before {
		return e.loadActiveSnapshot(ctx)
	}
	return nil
}

func (e *Engine) resolve(channelID string) (models.Channel, error) {
	if channelID == "" {
		channelID = e.channels.ActiveID()
	}
	ch, ok := e.channels.Get(channelID)
	if !ok {
		return models.Channel{}, apperr.New(apperr.KindNotFound, "engine", "Select a channel first")
	}
	return ch, nil
}

// SendMessage posts to the active channel. The message appears once the
// server echoes it back.
func (e *Engine) SendMessage(content string) (string, error) {
	return e.rt.Send(content)
}

// EditMessage changes the content of one of the user's own messages in the
// active channel
func (e *Engine) EditMessage(messageID, content string) error {
	m, err := e.activeMessage(messageID)
	if err != nil {
		return err
	}
	if !m.IsFrom(e.sessions.CurrentUserID()) {
		return apperr.New(apperr.KindPermission, "engine.edit", "You can only edit your own messages")
	}
	return e.rt.Edit(messageID, content)
}

// DeleteMessage removes a message in the active channel. Senders may remove
// their own messages and channel creators any message.
func (e *Engine) DeleteMessage(messageID string) error {
	m, err := e.activeMessage(messageID)
	if err != nil {
		return err
	}

	userID := e.sessions.CurrentUserID()
	ch, _ := e.channels.Active()
	if !m.IsFrom(userID) && !ch.IsCreator(userID) {
		return apperr.New(apperr.KindPermission, "engine.delete", "You can only delete your own messages")
	}
	return e.rt.Delete(messageID)
}

func (e *Engine) activeMessage(messageID string) (models.Message, error) {
	m, ok := e.messages.Get(e.channels.ActiveID(), messageID)
	if !ok {
		return models.Message{}, apperr.New(apperr.KindNotFound, "engine", "Message not found")
	}
	return m, nil
}

// Messages returns the active channel's messages
func (e *Engine) Messages() []models.Message {
	return e.messages.Messages(e.channels.ActiveID())
}

// ChannelMessages returns any loaded channel's messages
func (e *Engine) ChannelMessages(channelID string) []models.Message {
	return e.messages.Messages(channelID)
}

// Channels returns the channel list
func (e *Engine) Channels() []models.Channel {
	return e.channels.Channels()
}

// FindChannel looks a channel up by id or name
func (e *Engine) FindChannel(ref string) (models.Channel, bool) {
	return lo.Find(e.channels.Channels(), func(c models.Channel) bool {
		return c.ID == ref || c.Name == ref
	})
}

// ActiveChannel returns the active channel
func (e *Engine) ActiveChannel() (models.Channel, bool) {
	return e.channels.Active()
}

// IsMember reports whether the user belongs to a channel
func (e *Engine) IsMember(channelID string) bool {
	return e.channels.IsMember(channelID)
}

// CurrentUser returns the signed-in user, or nil
func (e *Engine) CurrentUser() *models.User {
	return e.sessions.CurrentUser()
}

// IsAuthenticated reports whether a user is signed in
func (e *Engine) IsAuthenticated() bool {
	return e.sessions.IsAuthenticated()
}

// Connected reports whether the realtime connection is up
func (e *Engine) Connected() bool {
	return e.rt.Connected()
}

// WaitConnected blocks until the realtime connection is up or ctx ends
func (e *Engine) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !e.rt.Connected() {
		select {
		case <-ctx.Done():
			return apperr.Wrap(apperr.KindTransport, "engine.wait", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Subscribe registers fn for updates and returns its unsubscribe func.
// fn may run on any goroutine.
func (e *Engine) Subscribe(fn func(Update)) func() {
	e.listenersMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners = append(e.listeners, listener{id: id, fn: fn})
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		e.listeners = lo.Reject(e.listeners, func(l listener, _ int) bool { return l.id == id })
		e.listenersMu.Unlock()
	}
}

func (e *Engine) emit(u Update) {
	e.listenersMu.Lock()
	fns := lo.Map(e.listeners, func(l listener, _ int) func(Update) { return l.fn })
	e.listenersMu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (e *Engine) notice(text string) {
	e.log.Info().Msg(text)
	e.emit(Update{Kind: UpdateNotice, Notice: text})
}

// Close disconnects and stops background work. The session stays stored.
func (e *Engine) Close() {
	e.unsubscribe()
	e.rt.Disconnect()
	e.cancel()
}
