package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/i18n"
	"github.com/smileynet/shkolo/internal/school"
)

// CursorMarker is the prefix shown on the selected row.
const CursorMarker = "▸ "

// borderChrome is the number of lines consumed by top + bottom borders.
const borderChrome = 2

// tabBarHeight and bannerHeight are the lines above and below the panes.
const (
	tabBarHeight = 1
	bannerHeight = 1
)

// Frame is everything Render needs besides the state and the cached data.
type Frame struct {
	Width  int
	Height int
	// Tick selects the spinner glyph.
	Tick int
	Now  time.Time
	// Pending holds the keys with a fetch in flight.
	Pending map[cache.Key]bool
	// ComposeView is the compose form as drawn by its input widgets.
	// When empty the draft in State.Modal is drawn as plain text.
	ComposeView string
}

// spinnerGlyph returns the spinner frame for tick.
func spinnerGlyph(tick int) string {
	frames := spinner.Dot.Frames
	if tick < 0 {
		tick = -tick
	}
	return frames[tick%len(frames)]
}

// Render draws one frame of the dashboard. The output depends only on
// its arguments.
func Render(s State, snap cache.Snapshot, f Frame) string {
	if f.Width == 0 || f.Height == 0 {
		return i18n.T(s.Lang, i18n.Loading)
	}

	list, studentsLoaded := students(snap)
	v := View{StudentIDs: studentIDs(list), Today: f.Now}
	s.Selected = clampIndex(s.Selected, len(list))

	hm := help.New()
	hm.Width = f.Width
	hm.ShowAll = s.ShowHelp
	helpBar := hm.View(HelpBindings(s))

	paneHeight := f.Height - tabBarHeight - bannerHeight - lipgloss.Height(helpBar) - borderChrome
	if paneHeight < 1 {
		paneHeight = 1
	}

	var panes string
	contentWidth := f.Width
	if s.Tab.PerStudent() {
		leftWidth, rightWidth := PaneWidths(f.Width, s.PaneRatio)
		contentWidth = rightWidth
		left := paneStyle(s.Focus == FocusStudents).
			Width(max(leftWidth-borderChrome, 0)).
			Height(paneHeight).
			MaxHeight(paneHeight + borderChrome).
			Render(renderStudents(s, list, studentsLoaded, leftWidth-borderChrome, f))
		right := renderContentPane(s, snap, v, list, rightWidth, paneHeight, f)
		panes = lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	} else {
		panes = renderContentPane(s, snap, v, list, contentWidth, paneHeight, f)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		renderTabBar(s, f.Width),
		panes,
		renderBanner(s, f.Width),
		helpBar,
	)
}

func paneStyle(focused bool) lipgloss.Style {
	if focused {
		return FocusedBorder()
	}
	return UnfocusedBorder()
}

func renderTabBar(s State, width int) string {
	parts := make([]string, 0, tabCount)
	for t := Tab(0); int(t) < tabCount; t++ {
		label := t.Label(s.Lang)
		if t == s.Tab {
			parts = append(parts, activeTab.Render(label))
		} else {
			parts = append(parts, inactiveTab.Render(label))
		}
	}
	bar := titleText.Render(i18n.T(s.Lang, i18n.AppTitle)) + "  " + strings.Join(parts, mutedText.Render(" │ "))
	return lipgloss.NewStyle().MaxWidth(width).Render(bar)
}

func renderStudents(s State, list []school.Student, loaded bool, width int, f Frame) string {
	var b strings.Builder
	b.WriteString(titleText.Render(truncate(i18n.T(s.Lang, i18n.Students), width)))
	b.WriteByte('\n')

	switch {
	case !loaded:
		b.WriteString(truncate(spinnerGlyph(f.Tick)+" "+i18n.T(s.Lang, i18n.Loading), width))
		return b.String()
	case len(list) == 0:
		b.WriteString(mutedText.Render(truncate(i18n.T(s.Lang, i18n.NoStudents), width)))
		return b.String()
	}

	for i, st := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		row := fmt.Sprintf("%d. %s", i+1, st.Name)
		if st.ClassName != "" {
			row += " (" + st.ClassName + ")"
		}
		if i == s.Selected {
			b.WriteString(selectedRow.Render(truncate(CursorMarker+row, width)))
		} else {
			b.WriteString(truncate("  "+row, width))
		}
	}
	return b.String()
}

func renderContentPane(s State, snap cache.Snapshot, v View, list []school.Student, width, height int, f Frame) string {
	style := paneStyle(s.Focus == FocusContent || !s.Tab.PerStudent())
	inner := max(width-borderChrome, 0)

	var body string
	if s.Modal != nil {
		body = renderCompose(s, f, inner)
	} else {
		body = renderDataset(s, snap, v, list, inner, height, f)
	}
	return style.Width(inner).Height(height).MaxHeight(height + borderChrome).Render(body)
}

// renderDataset draws the header line and the rows (or the detail view)
// of the visible dataset.
func renderDataset(s State, snap cache.Snapshot, v View, list []school.Student, width, height int, f Frame) string {
	key, ok := VisibleKey(s, v)
	header := s.Tab.Label(s.Lang)
	if s.Tab.PerStudent() && len(list) > 0 {
		header += " · " + list[s.Selected].Name
	}
	if s.Tab == TabSchedule {
		header += " · " + school.DisplayDate(s.ScheduleDate)
		if s.ScheduleDate == f.Now.Format(cache.DateLayout) {
			header += " (" + i18n.T(s.Lang, i18n.Today) + ")"
		}
	}

	if !ok {
		return titleText.Render(truncate(header, width)) + "\n" +
			truncate(spinnerGlyph(f.Tick)+" "+i18n.T(s.Lang, i18n.Loading), width)
	}

	e, cached := snap.Get(key)
	status := datasetStatus(s.Lang, e, cached, f.Pending[key], f)
	headerLine := titleText.Render(truncate(header, max(width-lipgloss.Width(status)-1, 0)))
	if status != "" {
		headerLine += " " + status
	}

	if !cached {
		return headerLine + "\n" + truncate(spinnerGlyph(f.Tick)+" "+i18n.T(s.Lang, i18n.Loading), width)
	}

	items, err := tabItems(s.Tab, e.Payload, s.Lang)
	if err != nil {
		return headerLine + "\n" + errorBanner.Render(truncate(i18n.T(s.Lang, i18n.ErrMalformed), width))
	}
	if len(items) == 0 {
		return headerLine + "\n" + mutedText.Render(truncate(i18n.T(s.Lang, emptyLabel(s.Tab)), width))
	}

	cursor := clampIndex(s.Cursor, len(items))
	if s.Detail {
		detail := renderDetail(items[cursor], width)
		if key, ok := DetailKey(s, v); ok {
			detail += "\n\n" + renderThread(s, snap, key, width, f)
		}
		return headerLine + "\n\n" + detail
	}

	visible := max(height-1, 1)
	offset := calculateScroll(cursor, visible, len(items))
	end := min(offset+visible, len(items))

	var b strings.Builder
	b.WriteString(headerLine)
	for i := offset; i < end; i++ {
		b.WriteByte('\n')
		row := strings.ReplaceAll(items[i].row, "\n", " ")
		focused := s.Focus == FocusContent || !s.Tab.PerStudent()
		switch {
		case i == cursor && focused:
			b.WriteString(selectedRow.Render(truncate(CursorMarker+row, width)))
		case items[i].unread:
			b.WriteString(unreadText.Render(truncate("  "+row, width)))
		default:
			b.WriteString(truncate("  "+row, width))
		}
	}
	return b.String()
}

// datasetStatus is the marker after the header: the age of fresh data,
// a dim stale marker for expired data, and the spinner while a fetch is
// in flight.
func datasetStatus(lang i18n.Lang, e cache.Entry, cached, pending bool, f Frame) string {
	var parts []string
	if pending {
		parts = append(parts, spinnerGlyph(f.Tick))
	}
	if cached {
		if e.Fresh(f.Now) {
			parts = append(parts, mutedText.Render(cache.FormatAge(e.Age(f.Now))))
		} else {
			parts = append(parts, mutedText.Render(i18n.T(lang, i18n.Stale)+" · "+cache.FormatAge(e.Age(f.Now))))
		}
	}
	return strings.Join(parts, " ")
}

// renderThread draws the messages of an opened thread below its summary.
func renderThread(s State, snap cache.Snapshot, key cache.Key, width int, f Frame) string {
	e, cached := snap.Get(key)
	if !cached {
		return truncate(spinnerGlyph(f.Tick)+" "+i18n.T(s.Lang, i18n.Loading), width)
	}
	var body string
	msgs, err := school.Decode[school.ThreadMessage](e.Payload)
	switch {
	case err != nil:
		body = errorBanner.Render(truncate(i18n.T(s.Lang, i18n.ErrMalformed), width))
	case len(msgs) == 0:
		body = mutedText.Render(truncate(i18n.T(s.Lang, i18n.NoMessages), width))
	default:
		body = renderDetail(item{detail: threadMarkdown(msgs), markdown: true}, width)
	}
	if status := datasetStatus(s.Lang, e, cached, f.Pending[key], f); status != "" {
		body = status + "\n" + body
	}
	return body
}

func renderCompose(s State, f Frame, width int) string {
	title := titleText.Render(truncate(i18n.T(s.Lang, i18n.ComposeTitle), width))
	if f.ComposeView != "" {
		return title + "\n\n" + f.ComposeView
	}
	field := func(label i18n.Msg, value string, focused bool) string {
		marker := "  "
		if focused {
			marker = CursorMarker
		}
		return marker + i18n.T(s.Lang, label) + ": " + value
	}
	return title + "\n\n" +
		wrapText(field(i18n.ComposeRecipient, s.Modal.Recipient, s.Modal.Field == FieldRecipient), width) + "\n" +
		wrapText(field(i18n.ComposeBody, s.Modal.Body, s.Modal.Field == FieldBody), width) + "\n\n" +
		mutedText.Render(truncate(i18n.T(s.Lang, i18n.ComposeHint), width))
}

func wrapText(s string, width int) string {
	return renderDetail(item{detail: s}, width)
}

func renderBanner(s State, width int) string {
	if s.Banner == nil {
		return ""
	}
	text := i18n.T(s.Lang, s.Banner.Msg)
	if s.Banner.Detail != "" {
		text += ": " + s.Banner.Detail
	}
	style := errorBanner
	if s.Banner.Msg == i18n.MessageSent {
		style = infoBanner
	} else {
		text += " (" + i18n.T(s.Lang, i18n.DismissHint) + ")"
	}
	return style.Render(truncate(text, width))
}
