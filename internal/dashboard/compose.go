package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/shkolo/internal/i18n"
)

// composeForm holds the input widgets behind the compose modal.
type composeForm struct {
	recipient textinput.Model
	body      textarea.Model
}

func newComposeForm(lang i18n.Lang, width int) composeForm {
	ti := textinput.New()
	ti.Placeholder = "123, 456"
	ti.CharLimit = 200
	ti.Prompt = i18n.T(lang, i18n.ComposeRecipient) + ": "
	ti.Focus()

	ta := textarea.New()
	ta.Placeholder = i18n.T(lang, i18n.ComposeBody)
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(6)

	f := composeForm{recipient: ti, body: ta}
	f.setWidth(width)
	return f
}

func (f *composeForm) setWidth(w int) {
	if w < MinPaneWidth {
		w = MinPaneWidth
	}
	f.recipient.Width = w - len([]rune(f.recipient.Prompt)) - 1
	f.body.SetWidth(w)
}

// focus moves keyboard input to field.
func (f *composeForm) focus(field ComposeField) {
	if field == FieldBody {
		f.recipient.Blur()
		f.body.Focus()
		return
	}
	f.body.Blur()
	f.recipient.Focus()
}

// Update forwards a key press to the focused widget.
func (f composeForm) Update(msg tea.Msg) (composeForm, tea.Cmd) {
	var cmd tea.Cmd
	if f.body.Focused() {
		f.body, cmd = f.body.Update(msg)
	} else {
		f.recipient, cmd = f.recipient.Update(msg)
	}
	return f, cmd
}

// Draft returns the form's contents as a Compose value.
func (f composeForm) Draft(field ComposeField) Compose {
	return Compose{
		Recipient: f.recipient.Value(),
		Body:      f.body.Value(),
		Field:     field,
	}
}

// View draws both fields and the key hint.
func (f composeForm) View(lang i18n.Lang) string {
	return f.recipient.View() + "\n\n" +
		f.body.View() + "\n\n" +
		mutedText.Render(i18n.T(lang, i18n.ComposeHint))
}

// ParseRecipients reads a list of numeric user IDs separated by commas
// or spaces.
func ParseRecipients(s string) ([]int64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("dashboard: no recipients")
	}
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("dashboard: invalid recipient %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
