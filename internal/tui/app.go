/*
Package tui is the terminal front end.

App is a Bubble Tea model over the sync engine. Engine work runs inside
tea.Cmds; the engine's change notifications arrive as UpdateMsg values and
the model re-reads whatever state it renders.
*/
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/client"
	"github.com/concord-chat/teamchat/internal/models"
	"github.com/concord-chat/teamchat/internal/themes"
)

// Engine is the part of the sync engine the front end drives
type Engine interface {
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, username, email, password string) error
	Logout()
	Refresh(ctx context.Context) error
	Select(ctx context.Context, channelID string) error
	CreateChannel(ctx context.Context, name, description string) (*models.Channel, error)
	JoinChannel(ctx context.Context, channelID string) error
	LeaveChannel(ctx context.Context, channelID string) error
	DeleteChannel(ctx context.Context, channelID string) error
	SendMessage(content string) (string, error)
	EditMessage(messageID, content string) error
	DeleteMessage(messageID string) error
	Messages() []models.Message
	Channels() []models.Channel
	ActiveChannel() (models.Channel, bool)
	FindChannel(ref string) (models.Channel, bool)
	IsMember(channelID string) bool
	CurrentUser() *models.User
	IsAuthenticated() bool
	Connected() bool
	Subscribe(fn func(client.Update)) func()
}

// View represents the screens of the application
type View int

const (
	ViewLogin View = iota
	ViewMain
)

// login form field indexes
const (
	fieldUsername = iota
	fieldEmail
	fieldPassword
)

const requestTimeout = 15 * time.Second

// App is the main application model
type App struct {
	engine Engine
	styles *themes.Styles

	width  int
	height int
	view   View

	// Login and signup form
	fields     []textinput.Model
	signup     bool
	loginFocus int
	loginError string
	busy       bool

	// Main view
	input     textinput.Model
	chat      viewport.Model
	channels  []models.Channel
	activeID  string
	messages  []models.Message
	user      *models.User
	connected bool

	statusMessage string
	statusError   bool
}

// UpdateMsg carries an engine change notification into the model
type UpdateMsg client.Update

// authResultMsg reports the outcome of a login or signup
type authResultMsg struct {
	err error
}

// resultMsg reports the outcome of any other engine action
type resultMsg struct {
	notice string
	err    error
}

// NewApp creates the model
func NewApp(engine Engine, styles *themes.Styles) *App {
	username := textinput.New()
	username.Placeholder = "Username"
	username.CharLimit = 32

	email := textinput.New()
	email.Placeholder = "Email"
	email.Focus()

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 72

	input := textinput.New()
	input.Placeholder = "Type a message or /help"
	input.CharLimit = 2000

	a := &App{
		engine: engine,
		styles: styles,
		view:   ViewLogin,
		fields: []textinput.Model{username, email, password},
		input:  input,
		chat:   viewport.New(80, 20),
	}
	if engine.IsAuthenticated() {
		a.enterMain()
	}
	return a
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := a.handleKeyPress(msg); handled {
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateViewportSize()

	case UpdateMsg:
		a.applyUpdate(client.Update(msg))

	case authResultMsg:
		a.busy = false
		if msg.err != nil {
			a.loginError = apperr.Message(msg.err)
		} else {
			a.enterMain()
		}

	case resultMsg:
		if msg.err != nil {
			a.setStatus(apperr.Message(msg.err), true)
		} else if msg.notice != "" {
			a.setStatus(msg.notice, false)
		}
		a.refresh()
	}

	switch a.view {
	case ViewLogin:
		var cmd tea.Cmd
		a.fields[a.focusedField()], cmd = a.fields[a.focusedField()].Update(msg)
		cmds = append(cmds, cmd)
	case ViewMain:
		var cmd tea.Cmd
		if key, ok := msg.(tea.KeyMsg); ok && (key.String() == "pgup" || key.String() == "pgdown") {
			a.chat, cmd = a.chat.Update(msg)
		} else if ok {
			a.input, cmd = a.input.Update(msg)
		} else {
			a.input, cmd = a.input.Update(msg)
			cmds = append(cmds, cmd)
			a.chat, cmd = a.chat.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	if a.view == ViewLogin {
		return a.renderLoginView()
	}
	return a.renderMainView()
}

// handleKeyPress handles keys with global meaning. handled is false when the
// key should reach the focused input.
func (a *App) handleKeyPress(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		return tea.Quit, true

	case "enter":
		if a.view == ViewLogin {
			return a.submitLogin(), true
		}
		return a.submitInput(), true
	}

	if a.view == ViewLogin {
		switch msg.String() {
		case "tab", "down":
			a.cycleLoginFocus(1)
			return nil, true
		case "shift+tab", "up":
			a.cycleLoginFocus(-1)
			return nil, true
		case "ctrl+t":
			a.toggleSignup()
			return nil, true
		}
		return nil, false
	}

	switch msg.String() {
	case "ctrl+n":
		return a.cycleChannel(1), true
	case "ctrl+p":
		return a.cycleChannel(-1), true
	case "ctrl+r":
		return a.run("", func(ctx context.Context) error { return a.engine.Refresh(ctx) }), true
	}
	return nil, false
}

// visibleFields lists the form fields for the current mode
func (a *App) visibleFields() []int {
	if a.signup {
		return []int{fieldUsername, fieldEmail, fieldPassword}
	}
	return []int{fieldEmail, fieldPassword}
}

func (a *App) focusedField() int {
	return a.visibleFields()[a.loginFocus]
}

func (a *App) cycleLoginFocus(delta int) {
	visible := a.visibleFields()
	a.loginFocus = (a.loginFocus + delta + len(visible)) % len(visible)
	for i, idx := range visible {
		if i == a.loginFocus {
			a.fields[idx].Focus()
		} else {
			a.fields[idx].Blur()
		}
	}
}

func (a *App) toggleSignup() {
	a.signup = !a.signup
	a.loginFocus = 0
	a.loginError = ""
	for i := range a.fields {
		a.fields[i].Blur()
	}
	a.fields[a.focusedField()].Focus()
}

// submitLogin starts a login or signup
func (a *App) submitLogin() tea.Cmd {
	if a.busy {
		return nil
	}
	username := strings.TrimSpace(a.fields[fieldUsername].Value())
	email := strings.TrimSpace(a.fields[fieldEmail].Value())
	password := a.fields[fieldPassword].Value()

	if email == "" || password == "" || (a.signup && username == "") {
		a.loginError = "Please fill in every field"
		return nil
	}

	a.loginError = ""
	a.busy = true
	signup := a.signup
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if signup {
			return authResultMsg{err: a.engine.Signup(ctx, username, email, password)}
		}
		return authResultMsg{err: a.engine.Login(ctx, email, password)}
	}
}

// submitInput sends the input line as a message or runs it as a command
func (a *App) submitInput() tea.Cmd {
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return nil
	}
	a.input.Reset()

	if strings.HasPrefix(text, "/") {
		cmd, err := ParseCommand(text)
		if err != nil {
			a.setStatus(err.Error(), true)
			return nil
		}
		return a.execute(cmd)
	}

	if _, err := a.engine.SendMessage(text); err != nil {
		a.setStatus(apperr.Message(err), true)
	}
	return nil
}

// cycleChannel selects the next or previous channel in the sidebar
func (a *App) cycleChannel(delta int) tea.Cmd {
	if len(a.channels) == 0 {
		return nil
	}
	idx := 0
	for i, ch := range a.channels {
		if ch.ID == a.activeID {
			idx = i
		}
	}
	next := a.channels[(idx+delta+len(a.channels))%len(a.channels)]
	return a.run("", func(ctx context.Context) error { return a.engine.Select(ctx, next.ID) })
}

// run executes fn in a command and reports the result
func (a *App) run(notice string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return resultMsg{notice: notice, err: fn(ctx)}
	}
}

// applyUpdate reacts to an engine notification
func (a *App) applyUpdate(u client.Update) {
	switch u.Kind {
	case client.UpdateSession:
		if !u.Authenticated {
			a.enterLogin()
			return
		}
	case client.UpdateNotice:
		a.setStatus(u.Notice, false)
	case client.UpdateConnection:
		a.connected = u.Connected
	case client.UpdateMessages:
		if u.ChannelID != a.activeID {
			return
		}
	}
	a.refresh()
}

// refresh re-reads the engine state the main view renders
func (a *App) refresh() {
	if a.view != ViewMain {
		return
	}
	a.user = a.engine.CurrentUser()
	a.connected = a.engine.Connected()
	a.channels = a.engine.Channels()
	a.activeID = ""
	if ch, ok := a.engine.ActiveChannel(); ok {
		a.activeID = ch.ID
	}
	a.messages = a.engine.Messages()
	a.updateChatContent()
}

func (a *App) enterMain() {
	a.view = ViewMain
	a.busy = false
	a.loginError = ""
	a.fields[fieldPassword].Reset()
	a.input.Focus()
	a.refresh()
}

func (a *App) enterLogin() {
	wasMain := a.view == ViewMain
	a.view = ViewLogin
	a.channels = nil
	a.messages = nil
	a.activeID = ""
	a.user = nil
	a.input.Blur()
	a.input.Reset()
	if wasMain {
		a.loginError = "Signed out"
	}
}

func (a *App) setStatus(text string, isError bool) {
	a.statusMessage = text
	a.statusError = isError
}

// messageAt returns the message shown with number n (1-based)
func (a *App) messageAt(n int) (models.Message, bool) {
	if n < 1 || n > len(a.messages) {
		return models.Message{}, false
	}
	return a.messages[n-1], true
}

// updateViewportSize lays out the chat viewport for the window size
func (a *App) updateViewportSize() {
	sidebar := a.sidebarWidth()
	chatWidth := a.width - sidebar - a.membersWidth() - 4
	chatHeight := a.height - 7
	if chatWidth < 10 {
		chatWidth = 10
	}
	if chatHeight < 3 {
		chatHeight = 3
	}

	a.chat.Width = chatWidth
	a.chat.Height = chatHeight
	a.input.Width = chatWidth - 4
	a.updateChatContent()
}

// membersWidth is zero when the terminal is too narrow for the members pane
func (a *App) membersWidth() int {
	if a.width < 90 {
		return 0
	}
	return 24
}

func (a *App) sidebarWidth() int {
	w := a.width / 4
	if w < 22 {
		w = 22
	}
	if w > 34 {
		w = 34
	}
	return w
}
