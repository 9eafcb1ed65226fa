package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// keyMap holds the dashboard's key bindings.
type keyMap struct {
	TabPrev    key.Binding
	TabNext    key.Binding
	Up         key.Binding
	Down       key.Binding
	Focus      key.Binding
	Student    key.Binding
	Open       key.Binding
	Refresh    key.Binding
	RefreshAll key.Binding
	Compose    key.Binding
	PrevDay    key.Binding
	NextDay    key.Binding
	Today      key.Binding
	Lang       key.Binding
	Shrink     key.Binding
	Grow       key.Binding
	Help       key.Binding
	Quit       key.Binding
	ForceQuit  key.Binding
}

// KeyMap returns the bindings used outside the compose modal.
func KeyMap() keyMap {
	return keyMap{
		TabPrev: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "prev tab"),
		),
		TabNext: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next tab"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		Student: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5"),
			key.WithHelp("1-5", "student"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		RefreshAll: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "refresh all"),
		),
		Compose: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "compose"),
		),
		PrevDay: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "prev day"),
		),
		NextDay: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next day"),
		),
		Today: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "today"),
		),
		Lang: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "bg/en"),
		),
		Shrink: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-/+", "resize"),
		),
		Grow: key.NewBinding(
			key.WithKeys("+"),
			key.WithHelp("+", "grow"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
	}
}

// ShortHelp returns the bindings for the one-line help bar. Disabled
// bindings are skipped by the help view; the rest are under ?.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.TabNext, k.Focus, k.Open, k.Refresh, k.Compose,
		k.PrevDay, k.NextDay, k.Help, k.Quit,
	}
}

// FullHelp returns the bindings grouped for the expanded help shown after
// pressing ?.
func (k keyMap) FullHelp() [][]key.Binding {
	less := k.Help
	less.SetHelp("?", "less keys")
	return [][]key.Binding{
		{k.TabPrev, k.TabNext, k.Up, k.Down, k.Focus, k.Student},
		{k.Open, k.Refresh, k.RefreshAll, k.Compose},
		{k.PrevDay, k.NextDay, k.Today},
		{k.Lang, k.Shrink, k.Grow, less, k.Quit},
	}
}

// composeKeys holds the bindings active while the compose modal is open.
type composeKeys struct {
	Field  key.Binding
	Send   key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

// ComposeKeyMap returns the compose modal bindings.
func ComposeKeyMap() composeKeys {
	return composeKeys{
		Field: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "field"),
		),
		Send: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "send"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
	}
}

// ShortHelp returns the compose bindings for the help bar.
func (k composeKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Field, k.Send, k.Cancel}
}

// FullHelp returns the compose bindings grouped for expanded help.
func (k composeKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Field, k.Send, k.Cancel}}
}

// KeyToEvent maps a key press to a dashboard event. With the modal open
// only the modal's own keys produce events; everything else is text input
// and maps to EvNone.
func KeyToEvent(msg tea.KeyMsg, modalOpen bool) Event {
	if modalOpen {
		ck := ComposeKeyMap()
		switch {
		case key.Matches(msg, ck.Quit):
			return Event{Kind: EvQuit}
		case key.Matches(msg, ck.Cancel):
			return Event{Kind: EvClose}
		case key.Matches(msg, ck.Send):
			return Event{Kind: EvSend}
		case key.Matches(msg, ck.Field):
			return Event{Kind: EvNextField}
		}
		return Event{}
	}

	k := KeyMap()
	switch {
	case key.Matches(msg, k.ForceQuit), key.Matches(msg, k.Quit):
		return Event{Kind: EvQuit}
	case key.Matches(msg, k.TabPrev):
		return Event{Kind: EvTabPrev}
	case key.Matches(msg, k.TabNext):
		return Event{Kind: EvTabNext}
	case key.Matches(msg, k.Up):
		return Event{Kind: EvUp}
	case key.Matches(msg, k.Down):
		return Event{Kind: EvDown}
	case key.Matches(msg, k.Focus):
		return Event{Kind: EvToggleFocus}
	case key.Matches(msg, k.Student):
		return Event{Kind: EvDigit, Digit: int(msg.String()[0] - '0')}
	case key.Matches(msg, k.Open):
		return Event{Kind: EvOpen}
	case key.Matches(msg, k.Refresh):
		return Event{Kind: EvRefresh}
	case key.Matches(msg, k.RefreshAll):
		return Event{Kind: EvRefreshAll}
	case key.Matches(msg, k.Compose):
		return Event{Kind: EvCompose}
	case key.Matches(msg, k.PrevDay):
		return Event{Kind: EvPrevDay}
	case key.Matches(msg, k.NextDay):
		return Event{Kind: EvNextDay}
	case key.Matches(msg, k.Today):
		return Event{Kind: EvToday}
	case key.Matches(msg, k.Lang):
		return Event{Kind: EvToggleLang}
	case key.Matches(msg, k.Shrink):
		return Event{Kind: EvShrink}
	case key.Matches(msg, k.Grow):
		return Event{Kind: EvGrow}
	case key.Matches(msg, k.Help):
		return Event{Kind: EvToggleHelp}
	}
	return Event{}
}
