package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Command is a parsed slash command
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a slash command string into a Command
func ParseCommand(input string) (*Command, error) {
	if !strings.HasPrefix(input, "/") {
		return nil, errors.New("not a command")
	}

	parts := strings.Fields(input[1:])
	if len(parts) == 0 {
		return nil, errors.New("empty command")
	}

	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}, nil
}

const helpText = "/create <name> [description]  /join [channel]  /leave [channel]  /delete [channel]  " +
	"/edit <n> <text>  /rm <n>  /refresh  /logout  /help"

// execute runs a command. Errors that can be detected without the engine
// are reported immediately.
func (a *App) execute(cmd *Command) tea.Cmd {
	switch cmd.Name {
	case "create":
		if len(cmd.Args) == 0 {
			return a.usage("/create <name> [description]")
		}
		name, description := cmd.Args[0], strings.Join(cmd.Args[1:], " ")
		return a.run("", func(ctx context.Context) error {
			_, err := a.engine.CreateChannel(ctx, name, description)
			return err
		})

	case "join":
		id, ok := a.channelArg(cmd.Args)
		if !ok {
			return nil
		}
		return a.run("", func(ctx context.Context) error { return a.engine.JoinChannel(ctx, id) })

	case "leave":
		id, ok := a.channelArg(cmd.Args)
		if !ok {
			return nil
		}
		return a.run("", func(ctx context.Context) error { return a.engine.LeaveChannel(ctx, id) })

	case "delete":
		id, ok := a.channelArg(cmd.Args)
		if !ok {
			return nil
		}
		return a.run("", func(ctx context.Context) error { return a.engine.DeleteChannel(ctx, id) })

	case "edit":
		if len(cmd.Args) < 2 {
			return a.usage("/edit <n> <text>")
		}
		m, ok := a.numberedMessage(cmd.Args[0])
		if !ok {
			return nil
		}
		content := strings.Join(cmd.Args[1:], " ")
		return a.run("", func(context.Context) error { return a.engine.EditMessage(m, content) })

	case "rm":
		if len(cmd.Args) != 1 {
			return a.usage("/rm <n>")
		}
		m, ok := a.numberedMessage(cmd.Args[0])
		if !ok {
			return nil
		}
		return a.run("", func(context.Context) error { return a.engine.DeleteMessage(m) })

	case "refresh":
		return a.run("Refreshed", func(ctx context.Context) error { return a.engine.Refresh(ctx) })

	case "logout":
		a.engine.Logout()
		return nil

	case "help":
		a.setStatus(helpText, false)
		return nil

	default:
		a.setStatus(fmt.Sprintf("unknown command: /%s", cmd.Name), true)
		return nil
	}
}

func (a *App) usage(text string) tea.Cmd {
	a.setStatus("usage: "+text, true)
	return nil
}

// channelArg resolves an optional channel name or id. No argument means the
// active channel, which the engine resolves itself.
func (a *App) channelArg(args []string) (string, bool) {
	if len(args) == 0 {
		return "", true
	}
	ref := strings.TrimPrefix(args[0], "#")
	ch, ok := a.engine.FindChannel(ref)
	if !ok {
		a.setStatus(fmt.Sprintf("no channel named %q", ref), true)
		return "", false
	}
	return ch.ID, true
}

// numberedMessage resolves the message number shown in the chat panel to an id
func (a *App) numberedMessage(arg string) (string, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		a.setStatus(fmt.Sprintf("%q is not a message number", arg), true)
		return "", false
	}
	m, ok := a.messageAt(n)
	if !ok {
		a.setStatus(fmt.Sprintf("no message number %d", n), true)
		return "", false
	}
	return m.ID, true
}
