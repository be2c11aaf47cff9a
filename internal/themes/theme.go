/*
Package themes loads TUI color themes and turns them into lipgloss styles.

A theme is a TOML file with a [meta] block, a base [colors] palette and a
[semantic] block that maps palette entries to UI roles.
*/
package themes

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

// Theme is a complete color theme
type Theme struct {
	Meta     Meta           `toml:"meta"`
	Colors   Palette        `toml:"colors"`
	Semantic SemanticColors `toml:"semantic"`
}

// Meta describes a theme
type Meta struct {
	Name    string `toml:"name"`
	Author  string `toml:"author"`
	Variant string `toml:"variant"` // "dark" or "light"
}

// Palette is the base color set
type Palette struct {
	Background string `toml:"background"`
	Selection  string `toml:"selection"`
	Foreground string `toml:"foreground"`
	Comment    string `toml:"comment"`
	Red        string `toml:"red"`
	Orange     string `toml:"orange"`
	Yellow     string `toml:"yellow"`
	Green      string `toml:"green"`
	Cyan       string `toml:"cyan"`
	Purple     string `toml:"purple"`
	Pink       string `toml:"pink"`
}

// SemanticColors maps colors to UI roles
type SemanticColors struct {
	SidebarFg       string `toml:"sidebar_fg"`
	SidebarSelected string `toml:"sidebar_selected"`
	SidebarMuted    string `toml:"sidebar_muted"`

	ChatFg        string `toml:"chat_fg"`
	ChatTimestamp string `toml:"chat_timestamp"`
	ChatSelf      string `toml:"chat_username_self"`
	ChatEdited    string `toml:"chat_edited"`

	InputBorder      string `toml:"input_border"`
	InputBorderFocus string `toml:"input_border_focus"`

	StatusOnline  string `toml:"status_online"`
	StatusOffline string `toml:"status_offline"`

	Error   string `toml:"error"`
	Success string `toml:"success"`
	Info    string `toml:"info"`
	Border  string `toml:"border"`
}

// Styles are the lipgloss styles the TUI renders with
type Styles struct {
	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	ChannelItem     lipgloss.Style
	ChannelSelected lipgloss.Style
	ChannelMuted    lipgloss.Style

	Chat          lipgloss.Style
	ChatHeader    lipgloss.Style
	Content       lipgloss.Style
	Timestamp     lipgloss.Style
	UsernameSelf  lipgloss.Style
	Edited        lipgloss.Style
	SystemMessage lipgloss.Style

	Input        lipgloss.Style
	InputFocused lipgloss.Style

	Online  lipgloss.Style
	Offline lipgloss.Style

	Error   lipgloss.Style
	Success lipgloss.Style
	Info    lipgloss.Style

	Dialog lipgloss.Style
	Help   lipgloss.Style

	theme *Theme
}

// BuildStyles creates lipgloss styles from a theme
func (t *Theme) BuildStyles() *Styles {
	c := func(hex string) lipgloss.Color { return lipgloss.Color(hex) }
	s := &Styles{theme: t}

	s.Sidebar = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(c(t.Semantic.Border)).
		Padding(0, 1)
	s.SidebarTitle = lipgloss.NewStyle().
		Foreground(c(t.Colors.Purple)).
		Bold(true).
		MarginBottom(1)
	s.ChannelItem = lipgloss.NewStyle().
		Foreground(c(t.Semantic.SidebarFg))
	s.ChannelSelected = lipgloss.NewStyle().
		Background(c(t.Semantic.SidebarSelected)).
		Foreground(c(t.Semantic.SidebarFg)).
		Bold(true)
	s.ChannelMuted = lipgloss.NewStyle().
		Foreground(c(t.Semantic.SidebarMuted)).
		Italic(true)

	s.Chat = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(c(t.Semantic.Border)).
		Padding(0, 1)
	s.ChatHeader = lipgloss.NewStyle().
		Foreground(c(t.Semantic.ChatFg)).
		Bold(true)
	s.Content = lipgloss.NewStyle().
		Foreground(c(t.Semantic.ChatFg))
	s.Timestamp = lipgloss.NewStyle().
		Foreground(c(t.Semantic.ChatTimestamp)).
		Faint(true)
	s.UsernameSelf = lipgloss.NewStyle().
		Foreground(c(t.Semantic.ChatSelf)).
		Bold(true)
	s.Edited = lipgloss.NewStyle().
		Foreground(c(t.Semantic.ChatEdited)).
		Italic(true)
	s.SystemMessage = lipgloss.NewStyle().
		Foreground(c(t.Colors.Comment)).
		Italic(true)

	s.Input = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(c(t.Semantic.InputBorder)).
		Padding(0, 1)
	s.InputFocused = s.Input.
		BorderForeground(c(t.Semantic.InputBorderFocus))

	s.Online = lipgloss.NewStyle().Foreground(c(t.Semantic.StatusOnline))
	s.Offline = lipgloss.NewStyle().Foreground(c(t.Semantic.StatusOffline))

	s.Error = lipgloss.NewStyle().Foreground(c(t.Semantic.Error))
	s.Success = lipgloss.NewStyle().Foreground(c(t.Semantic.Success))
	s.Info = lipgloss.NewStyle().Foreground(c(t.Semantic.Info))

	s.Dialog = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(c(t.Colors.Purple)).
		Padding(1, 3)
	s.Help = lipgloss.NewStyle().
		Foreground(c(t.Colors.Comment))

	return s
}

// senderPalette returns the palette entries used for other users' names
func (t *Theme) senderPalette() []string {
	return []string{t.Colors.Cyan, t.Colors.Green, t.Colors.Orange, t.Colors.Pink, t.Colors.Yellow, t.Colors.Red}
}

// Sender returns the username style for a sender. The same id always gets
// the same color.
func (s *Styles) Sender(userID string) lipgloss.Style {
	palette := s.theme.senderPalette()
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	color := palette[h.Sum32()%uint32(len(palette))]
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}

// Default returns the built-in Dracula theme
func Default() *Theme {
	return &Theme{
		Meta: Meta{Name: "Dracula", Author: "Zeno Rocha", Variant: "dark"},
		Colors: Palette{
			Background: "#282A36",
			Selection:  "#44475A",
			Foreground: "#F8F8F2",
			Comment:    "#6272A4",
			Red:        "#FF5555",
			Orange:     "#FFB86C",
			Yellow:     "#F1FA8C",
			Green:      "#50FA7B",
			Cyan:       "#8BE9FD",
			Purple:     "#BD93F9",
			Pink:       "#FF79C6",
		},
		Semantic: SemanticColors{
			SidebarFg:        "#F8F8F2",
			SidebarSelected:  "#44475A",
			SidebarMuted:     "#6272A4",
			ChatFg:           "#F8F8F2",
			ChatTimestamp:    "#6272A4",
			ChatSelf:         "#BD93F9",
			ChatEdited:       "#6272A4",
			InputBorder:      "#6272A4",
			InputBorderFocus: "#BD93F9",
			StatusOnline:     "#50FA7B",
			StatusOffline:    "#FF5555",
			Error:            "#FF5555",
			Success:          "#50FA7B",
			Info:             "#8BE9FD",
			Border:           "#6272A4",
		},
	}
}
