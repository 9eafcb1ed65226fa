package dashboard

import "github.com/charmbracelet/bubbles/help"

// HelpBindings returns the help.KeyMap for the given state, so the help
// bar only lists keys that do something on the current tab.
func HelpBindings(s State) help.KeyMap {
	if s.Modal != nil {
		return ComposeKeyMap()
	}
	km := KeyMap()
	if s.Tab != TabMessages {
		km.Compose.SetEnabled(false)
	}
	if s.Tab != TabSchedule {
		km.PrevDay.SetEnabled(false)
		km.NextDay.SetEnabled(false)
		km.Today.SetEnabled(false)
	}
	if !s.Tab.PerStudent() {
		km.Focus.SetEnabled(false)
		km.Student.SetEnabled(false)
	}
	return km
}
