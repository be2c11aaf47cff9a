package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/concord-chat/teamchat/internal/models"
)

// renderLoginView renders the sign in / sign up screen
func (a *App) renderLoginView() string {
	var b strings.Builder

	title := "Sign in to teamchat"
	if a.signup {
		title = "Create a teamchat account"
	}
	b.WriteString(a.styles.SidebarTitle.Render(title))
	b.WriteString("\n")

	labels := map[int]string{fieldUsername: "Username", fieldEmail: "Email", fieldPassword: "Password"}
	for i, idx := range a.visibleFields() {
		style := a.styles.Input.Width(36)
		if i == a.loginFocus {
			style = a.styles.InputFocused.Width(36)
		}
		b.WriteString(a.styles.Info.Width(10).Render(labels[idx] + ":"))
		b.WriteString(style.Render(a.fields[idx].View()))
		b.WriteString("\n")
	}

	if a.busy {
		b.WriteString(a.styles.SystemMessage.Render("Working..."))
		b.WriteString("\n")
	}
	if a.loginError != "" {
		b.WriteString(a.styles.Error.Bold(true).Render("⚠ " + a.loginError))
		b.WriteString("\n")
	}

	toggle := "Ctrl+T: Create account"
	if a.signup {
		toggle = "Ctrl+T: I have an account"
	}
	b.WriteString("\n")
	b.WriteString(a.styles.Help.Render("Tab: Switch fields  •  Enter: Submit  •  " + toggle + "  •  Ctrl+C: Quit"))

	box := a.styles.Dialog.Render(b.String())
	if a.width == 0 || a.height == 0 {
		return box
	}
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, box)
}

// renderMainView renders the sidebar, chat panel and status bar
func (a *App) renderMainView() string {
	height := a.height - 3
	if height < 5 {
		height = 5
	}
	sidebar := a.renderSidebar(a.sidebarWidth(), height)
	chat := a.renderChatPanel(height)

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chat)
	if w := a.membersWidth(); w > 0 {
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, a.renderMembers(w, height))
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, a.renderStatusBar())
}

// renderSidebar renders the channel list
func (a *App) renderSidebar(width, height int) string {
	var b strings.Builder
	b.WriteString(a.styles.SidebarTitle.Render("CHANNELS"))
	b.WriteString("\n")

	for _, ch := range a.channels {
		marker := "  "
		if ch.ID == a.activeID {
			marker = "● "
		}
		name := truncate(fmt.Sprintf("%s#%s", marker, ch.Name), width-8)
		line := fmt.Sprintf("%-*s %3d", width-8, name, ch.MemberCount())

		switch {
		case ch.ID == a.activeID:
			b.WriteString(a.styles.ChannelSelected.Render(line))
		case !a.engine.IsMember(ch.ID):
			b.WriteString(a.styles.ChannelMuted.Render(line))
		default:
			b.WriteString(a.styles.ChannelItem.Render(line))
		}
		b.WriteString("\n")
	}

	if len(a.channels) == 0 {
		b.WriteString(a.styles.ChannelMuted.Render("No channels. Try /create"))
		b.WriteString("\n")
	}

	return a.styles.Sidebar.Width(width).Height(height).Render(b.String())
}

// renderMembers renders the active channel's members, online first
func (a *App) renderMembers(width, height int) string {
	var b strings.Builder
	b.WriteString(a.styles.SidebarTitle.Render("TEAM"))
	b.WriteString("\n")

	var members []models.User
	if ch, ok := a.activeChannel(); ok {
		members = append(members, ch.Members...)
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].IsOnline && !members[j].IsOnline
	})

	for _, u := range members {
		name := truncate(u.Username, width-6)
		if u.IsOnline {
			b.WriteString(a.styles.Online.Render("● " + name))
		} else {
			b.WriteString(a.styles.Offline.Render("○ " + name))
		}
		b.WriteString("\n")
		b.WriteString(a.styles.Timestamp.Render("  " + u.Presence()))
		b.WriteString("\n")
	}

	if len(members) == 0 {
		b.WriteString(a.styles.ChannelMuted.Render("No members yet"))
		b.WriteString("\n")
	}

	return a.styles.Sidebar.Width(width).Height(height).Render(b.String())
}

// renderChatPanel renders the channel header, messages and input
func (a *App) renderChatPanel(height int) string {
	header := "Select a channel"
	if ch, ok := a.activeChannel(); ok {
		header = fmt.Sprintf("#%s  %s", ch.Name, ch.Visibility())
		if ch.Description != "" {
			header += " - " + ch.Description
		}
		if !a.engine.IsMember(ch.ID) {
			header += "  (not joined, /join to participate)"
		}
	}

	body := a.chat.View()
	if len(a.messages) == 0 {
		body = a.styles.SystemMessage.Render("No messages yet. Say hello!")
	}

	panel := lipgloss.JoinVertical(lipgloss.Left,
		a.styles.ChatHeader.Render(header),
		body,
	)
	chat := a.styles.Chat.Width(a.chat.Width + 2).Height(height - 3).Render(panel)
	input := a.styles.InputFocused.Width(a.chat.Width + 2).Render(a.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, chat, input)
}

// updateChatContent rebuilds the viewport from the loaded messages
func (a *App) updateChatContent() {
	var b strings.Builder
	selfID := ""
	if a.user != nil {
		selfID = a.user.ID
	}

	for i, m := range a.messages {
		name := a.styles.Sender(m.Sender.ID)
		if m.IsFrom(selfID) {
			name = a.styles.UsernameSelf
		}
		fmt.Fprintf(&b, "%s %s  %s\n",
			a.styles.Timestamp.Render(fmt.Sprintf("[%d]", i+1)),
			name.Render(m.Sender.Username),
			a.styles.Timestamp.Render(m.Timestamp.Local().Format("Jan 2 15:04")))

		b.WriteString(a.styles.Content.Render(m.Content))
		if m.IsEdited() {
			b.WriteString(" " + a.styles.Edited.Render("(edited)"))
		}
		b.WriteString("\n")
	}

	atBottom := a.chat.AtBottom()
	a.chat.SetContent(b.String())
	if atBottom {
		a.chat.GotoBottom()
	}
}

// renderStatusBar renders connection state, user and the last notice
func (a *App) renderStatusBar() string {
	left := a.styles.Offline.Render("○ Disconnected")
	if a.connected {
		left = a.styles.Online.Render("● Connected")
	}
	if a.user != nil {
		left += "  |  " + a.user.Username
	}

	center := ""
	if a.statusMessage != "" {
		if a.statusError {
			center = a.styles.Error.Render(a.statusMessage)
		} else {
			center = a.styles.Info.Render(a.statusMessage)
		}
	}

	right := a.styles.Help.Render("Ctrl+N/P: Channels  |  /help  |  Ctrl+C: Quit")

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(center) - lipgloss.Width(right) - 2
	if gap < 2 {
		return left + "  " + center
	}
	return left + strings.Repeat(" ", gap/2) + center + strings.Repeat(" ", gap-gap/2) + right
}

func (a *App) activeChannel() (models.Channel, bool) {
	return lo.Find(a.channels, func(c models.Channel) bool { return c.ID == a.activeID })
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n < 4 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
