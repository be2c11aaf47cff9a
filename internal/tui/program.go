package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/concord-chat/teamchat/internal/client"
)

// Run starts the full-screen front end and blocks until the user quits
func Run(ctx context.Context, engine Engine, app *App) error {
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := engine.Subscribe(func(u client.Update) {
		p.Send(UpdateMsg(u))
	})
	defer unsubscribe()

	_, err := p.Run()
	return err
}
