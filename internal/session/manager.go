/*
Package session owns the signed-in user's token pair.

The Manager is the only writer of the session. Everything else reads the
access token through AccessToken and learns about sign-in, sign-out and token
rotation through Subscribe.
*/
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/logx"
	"github.com/concord-chat/teamchat/internal/models"
	"github.com/concord-chat/teamchat/pkg/crypto"
)

// State is the authentication state of the session
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Change is delivered to listeners on sign-in, sign-out and token rotation
type Change struct {
	State State
	Token string
	User  *models.User
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type signupForm struct {
	Username string `validate:"notblank,min=3,max=32"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
}

// Manager owns the current session
type Manager struct {
	mu      sync.RWMutex
	session *models.Session
	// epoch changes on every sign-in and sign-out so a refresh that started
	// under an older session cannot write into the new one.
	epoch uint64

	store     TokenStore
	auth      AuthAPI
	refreshes singleflight.Group
	validate  *validator.Validate
	skew      time.Duration
	log       zerolog.Logger

	listenersMu sync.Mutex
	listeners   []listener
	nextID      int
}

type listener struct {
	id int
	fn func(Change)
}

// NewManager creates a session manager. skew is how close to expiry a JWT
// access token may get before EnsureFresh refreshes it.
func NewManager(store TokenStore, auth AuthAPI, skew time.Duration) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		store:    store,
		auth:     auth,
		validate: apperr.NewValidator(),
		skew:     skew,
		log:      logx.Component("session"),
	}
}

// Login signs in with email and password
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if err := m.validate.Struct(loginForm{Email: email, Password: password}); err != nil {
		return apperr.FromValidator("session.login", err)
	}

	s, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}

	m.begin(ctx, s)
	m.log.Info().Str("user_id", s.User.ID).Msg("signed in")
	return nil
}

// Signup registers an account and signs in with it
func (m *Manager) Signup(ctx context.Context, username, email, password string) error {
	form := signupForm{Username: username, Email: email, Password: password}
	if err := m.validate.Struct(form); err != nil {
		return apperr.FromValidator("session.signup", err)
	}

	s, err := m.auth.Signup(ctx, username, email, password)
	if err != nil {
		return err
	}

	m.begin(ctx, s)
	m.log.Info().Str("user_id", s.User.ID).Msg("signed up")
	return nil
}

// begin installs a fresh session
func (m *Manager) begin(ctx context.Context, s *models.Session) {
	m.mu.Lock()
	m.session = s.Clone()
	m.epoch++
	m.mu.Unlock()

	m.persist(ctx, s)
	m.notify(Change{State: StateAuthenticated, Token: s.AccessToken, User: s.Clone().User})
}

// Logout clears the session. It is safe to call at any time.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.clearLocked()
}

// logoutIfEpoch signs out only if nobody signed in or out since epoch
func (m *Manager) logoutIfEpoch(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.clearLocked()
}

// clearLocked ends the session. mu must be held; it is released.
func (m *Manager) clearLocked() {
	wasAuthenticated := m.session.IsAuthenticated()
	m.session = nil
	m.epoch++
	m.mu.Unlock()

	if err := m.store.Clear(context.Background()); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear stored session")
	}

	if wasAuthenticated {
		m.log.Info().Msg("signed out")
		m.notify(Change{State: StateUnauthenticated})
	}
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers share one exchange. A rejected exchange signs the user out; a
// caller whose ctx ends stops waiting with ctx.Err() while the exchange runs on.
func (m *Manager) Refresh(ctx context.Context) error {
	ch := m.refreshes.DoChan("refresh", func() (interface{}, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.RLock()
	epoch := m.epoch
	var refreshToken string
	if m.session != nil {
		refreshToken = m.session.RefreshToken
	}
	m.mu.RUnlock()

	if refreshToken == "" {
		m.logoutIfEpoch(epoch)
		return apperr.New(apperr.KindSessionExpired, "session.refresh", "")
	}

	access, rotated, err := m.auth.Refresh(ctx, refreshToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("token refresh failed")
		m.logoutIfEpoch(epoch)
		return apperr.Wrap(apperr.KindSessionExpired, "session.refresh", err)
	}

	m.mu.Lock()
	if m.session == nil || m.epoch != epoch {
		// Signed out (or in again) while the exchange was in flight
		m.mu.Unlock()
		return apperr.New(apperr.KindSessionExpired, "session.refresh", "")
	}
	m.session.AccessToken = access
	if rotated != "" {
		m.session.RefreshToken = rotated
	}
	s := m.session.Clone()
	m.mu.Unlock()

	m.persist(ctx, s)
	m.log.Debug().Str("token", crypto.Fingerprint(access)).Msg("access token refreshed")
	m.notify(Change{State: StateAuthenticated, Token: access, User: s.User})
	return nil
}

// Resume restores the persisted session. When only a refresh token survived,
// a silent refresh is attempted.
func (m *Manager) Resume(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to load stored session")
		return nil
	}
	if s == nil {
		return nil
	}

	m.mu.Lock()
	m.session = s
	m.epoch++
	m.mu.Unlock()

	if s.AccessToken == "" {
		return m.Refresh(ctx)
	}

	m.log.Info().Msg("session resumed")
	m.notify(Change{State: StateAuthenticated, Token: s.AccessToken, User: s.Clone().User})
	return nil
}

// EnsureFresh refreshes ahead of time when the access token is a JWT that
// expires within the configured skew. Opaque tokens are left alone.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	token := m.AccessToken()
	if token == "" {
		return nil
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > m.skew {
		return nil
	}
	return m.Refresh(ctx)
}

// AccessToken returns the current access token, or ""
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// CurrentUser returns a copy of the signed-in user, or nil
func (m *Manager) CurrentUser() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.IsAuthenticated() || m.session.User == nil {
		return nil
	}
	u := *m.session.User
	return &u
}

// CurrentUserID returns the signed-in user's id, or ""
func (m *Manager) CurrentUserID() string {
	if u := m.CurrentUser(); u != nil {
		return u.ID
	}
	return ""
}

// IsAuthenticated reports whether an access token is held
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.IsAuthenticated()
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
// fn runs on the goroutine that caused the change, outside any lock.
func (m *Manager) Subscribe(fn func(Change)) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		m.listeners = lo.Reject(m.listeners, func(l listener, _ int) bool { return l.id == id })
		m.listenersMu.Unlock()
	}
}

func (m *Manager) notify(c Change) {
	m.listenersMu.Lock()
	fns := lo.Map(m.listeners, func(l listener, _ int) func(Change) { return l.fn })
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (m *Manager) persist(ctx context.Context, s *models.Session) {
	if err := m.store.Save(context.WithoutCancel(ctx), s); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist session")
	}
}
