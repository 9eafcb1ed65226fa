package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/i18n"
	"github.com/smileynet/shkolo/internal/school"
)

// item is one row of a dataset as the content pane shows it.
type item struct {
	row    string
	detail string
	unread bool
	// thread is the messenger thread the row opens, zero elsewhere.
	thread int64
	// markdown is rendered through glamour instead of being word-wrapped.
	markdown bool
}

// students decodes the student list from snap. ok is false until the
// Students dataset has been cached.
func students(snap cache.Snapshot) (list []school.Student, ok bool) {
	e, ok := snap.Get(cache.StudentsKey())
	if !ok {
		return nil, false
	}
	list, err := school.Decode[school.Student](e.Payload)
	if err != nil {
		return nil, true
	}
	school.SortStudents(list)
	return list, true
}

func studentIDs(list []school.Student) []int64 {
	ids := make([]int64, len(list))
	for i, st := range list {
		ids[i] = st.ID
	}
	return ids
}

// BuildView derives the navigation facts for s from the cached data.
func BuildView(s State, snap cache.Snapshot, today time.Time) View {
	list, _ := students(snap)
	v := View{StudentIDs: studentIDs(list), Today: today}
	if key, ok := VisibleKey(s, v); ok {
		if e, ok := snap.Get(key); ok {
			items, _ := tabItems(s.Tab, e.Payload, s.Lang)
			v.ItemCount = len(items)
			if s.Tab == TabMessages {
				v.ThreadIDs = make([]int64, len(items))
				for i, it := range items {
					v.ThreadIDs[i] = it.thread
				}
			}
		}
	}
	return v
}

// emptyLabel is the placeholder for a tab with no rows.
func emptyLabel(t Tab) i18n.Msg {
	return i18n.NoGrades + i18n.Msg(t)
}

// tabItems decodes a cached payload into the rows for tab t.
func tabItems(t Tab, payload []byte, lang i18n.Lang) ([]item, error) {
	switch t {
	case TabGrades:
		grades, err := school.Decode[school.Grade](payload)
		if err != nil {
			return nil, err
		}
		return gradeItems(school.FilterGrades(grades), lang), nil
	case TabHomework:
		hw, err := school.Decode[school.Homework](payload)
		if err != nil {
			return nil, err
		}
		school.SortHomework(hw)
		return homeworkItems(hw, lang), nil
	case TabSchedule:
		hours, err := school.Decode[school.ScheduleHour](payload)
		if err != nil {
			return nil, err
		}
		school.SortSchedule(hours)
		return scheduleItems(hours, lang), nil
	case TabAbsences:
		abs, err := school.Decode[school.Absence](payload)
		if err != nil {
			return nil, err
		}
		school.SortAbsences(abs)
		return absenceItems(abs, lang), nil
	case TabFeedbacks:
		fb, err := school.Decode[school.Feedback](payload)
		if err != nil {
			return nil, err
		}
		return feedbackItems(fb), nil
	case TabNotifications:
		ns, err := school.Decode[school.Notification](payload)
		if err != nil {
			return nil, err
		}
		return notificationItems(ns, lang), nil
	default:
		threads, err := school.Decode[school.MessageThread](payload)
		if err != nil {
			return nil, err
		}
		return threadItems(threads, lang), nil
	}
}

func gradeItems(grades []school.Grade, lang i18n.Lang) []item {
	items := make([]item, 0, len(grades))
	for _, g := range grades {
		row := fmt.Sprintf("%s  %s | %s", g.Subject, joinMarks(g.Term1Grades), joinMarks(g.Term2Grades))
		if g.Annual != "" {
			row += "  = " + g.Annual
		}

		var d strings.Builder
		fmt.Fprintf(&d, "%s\n\n", g.Subject)
		fmt.Fprintf(&d, "%s: %s\n", i18n.T(lang, i18n.Term1), colorMarks(g.Term1Grades))
		if g.Term1Final != "" {
			fmt.Fprintf(&d, "%s: %s\n", i18n.T(lang, i18n.Final), g.Term1Final)
		}
		fmt.Fprintf(&d, "%s: %s\n", i18n.T(lang, i18n.Term2), colorMarks(g.Term2Grades))
		if g.Term2Final != "" {
			fmt.Fprintf(&d, "%s: %s\n", i18n.T(lang, i18n.Final), g.Term2Final)
		}
		if g.Annual != "" {
			fmt.Fprintf(&d, "%s: %s\n", i18n.T(lang, i18n.Annual), gradeStyle(g.Annual).Render(g.Annual))
		}
		items = append(items, item{row: row, detail: d.String()})
	}
	return items
}

func joinMarks(marks []string) string {
	if len(marks) == 0 {
		return "-"
	}
	return strings.Join(marks, " ")
}

func colorMarks(marks []string) string {
	if len(marks) == 0 {
		return "-"
	}
	out := make([]string, len(marks))
	for i, m := range marks {
		out[i] = gradeStyle(m).Render(m)
	}
	return strings.Join(out, " ")
}

func homeworkItems(hw []school.Homework, lang i18n.Lang) []item {
	items := make([]item, 0, len(hw))
	for _, h := range hw {
		text := firstLine(h.Text)
		row := fmt.Sprintf("%s  %s: %s", h.Date, h.Subject, text)

		var d strings.Builder
		fmt.Fprintf(&d, "%s  %s\n", h.Subject, h.Date)
		if h.DueDate != "" {
			fmt.Fprintf(&d, "%s: %s\n", i18n.T(lang, i18n.Due), h.DueDate)
		}
		d.WriteString("\n" + h.Text)
		items = append(items, item{row: row, detail: d.String()})
	}
	return items
}

func scheduleItems(hours []school.ScheduleHour, lang i18n.Lang) []item {
	items := make([]item, 0, len(hours))
	for _, h := range hours {
		row := fmt.Sprintf("%d. %s-%s  %s", h.HourNumber, h.FromTime, h.ToTime, h.Subject)
		if h.Room != "" {
			row += " (" + h.Room + ")"
		}

		var d strings.Builder
		fmt.Fprintf(&d, "%d. %s  %s-%s\n\n", h.HourNumber, h.Subject, h.FromTime, h.ToTime)
		for _, f := range []struct {
			label i18n.Msg
			value string
		}{
			{i18n.Teacher, h.Teacher},
			{i18n.Room, h.Room},
			{i18n.Topic, h.Topic},
			{i18n.TabHomework, h.Homework},
		} {
			if f.value != "" {
				fmt.Fprintf(&d, "%s: %s\n", i18n.T(lang, f.label), f.value)
			}
		}
		items = append(items, item{row: row, detail: d.String()})
	}
	return items
}

func absenceItems(abs []school.Absence, lang i18n.Lang) []item {
	items := make([]item, 0, len(abs))
	for _, a := range abs {
		status := i18n.T(lang, i18n.Unexcused)
		if a.IsExcused {
			status = i18n.T(lang, i18n.Excused)
		}
		row := fmt.Sprintf("%s  %d %s  %s (%s)", a.Date, a.Hour, i18n.T(lang, i18n.Hour), a.Subject, status)

		var d strings.Builder
		fmt.Fprintf(&d, "%s  %s\n%d %s, %s\n", a.Subject, a.Date, a.Hour, i18n.T(lang, i18n.Hour), status)
		if a.ExcuseReason != "" {
			d.WriteString("\n" + a.ExcuseReason + "\n")
		}
		if a.CreatedBy != "" {
			fmt.Fprintf(&d, "%s: %s\n", i18n.T(lang, i18n.Teacher), a.CreatedBy)
		}
		items = append(items, item{row: row, detail: d.String()})
	}
	return items
}

func feedbackItems(fb []school.Feedback) []item {
	items := make([]item, 0, len(fb))
	for _, f := range fb {
		row := fmt.Sprintf("%s %s  %s", f.Emoji(), f.Date, f.BadgeName)
		if f.Subject != "" {
			row += " - " + f.Subject
		}

		var d strings.Builder
		fmt.Fprintf(&d, "%s %s\n%s  %s\n", f.Emoji(), f.BadgeName, f.Date, f.Subject)
		if f.Teacher != "" {
			d.WriteString(f.Teacher + "\n")
		}
		if f.Comment != "" {
			d.WriteString("\n" + f.Comment)
		}
		items = append(items, item{row: row, detail: d.String()})
	}
	return items
}

func notificationItems(ns []school.Notification, lang i18n.Lang) []item {
	items := make([]item, 0, len(ns))
	for _, n := range ns {
		row := n.Date + "  " + n.Title
		if !n.IsRead {
			row = i18n.T(lang, i18n.NewMarker) + row
		}
		detail := n.Title + "\n" + n.Date + "\n"
		if n.Body != "" {
			detail += "\n" + n.Body
		}
		items = append(items, item{row: row, detail: detail, unread: !n.IsRead})
	}
	return items
}

func threadItems(threads []school.MessageThread, lang i18n.Lang) []item {
	items := make([]item, 0, len(threads))
	for _, th := range threads {
		row := fmt.Sprintf("%s  %s - %s", th.DisplayTime(), th.Subject, th.LastSender)
		if th.IsUnread {
			row = i18n.T(lang, i18n.NewMarker) + row
		}

		var d strings.Builder
		fmt.Fprintf(&d, "## %s\n\n", th.Subject)
		fmt.Fprintf(&d, "*%s · %d %s*\n\n", th.DisplayTime(), th.ParticipantCount, i18n.T(lang, i18n.Participants))
		fmt.Fprintf(&d, "**%s:** %s\n", th.LastSender, th.LastMessage)
		items = append(items, item{row: row, detail: d.String(), unread: th.IsUnread, thread: th.ID, markdown: true})
	}
	return items
}

// threadMarkdown lays out the messages of an opened thread, oldest first
// as the service lists them.
func threadMarkdown(msgs []school.ThreadMessage) string {
	var d strings.Builder
	for _, m := range msgs {
		d.WriteString("---\n\n")
		fmt.Fprintf(&d, "**%s** *%s*\n\n", m.Sender, m.DisplayTime())
		fmt.Fprintf(&d, "%s\n\n", m.Body)
	}
	return d.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i]) + " …"
	}
	return s
}

// truncate cuts s to width display cells. Wide Cyrillic and emoji
// glyphs are measured by their cell width, not their byte length.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// renderDetail lays out the detail text of it for a pane width cells wide.
func renderDetail(it item, width int) string {
	if width < 1 {
		width = 1
	}
	if !it.markdown {
		return wordwrap.String(it.detail, width)
	}
	style := "dark"
	if lipgloss.ColorProfile() == termenv.Ascii {
		style = "notty"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return wordwrap.String(it.detail, width)
	}
	out, err := r.Render(it.detail)
	if err != nil {
		return wordwrap.String(it.detail, width)
	}
	return strings.Trim(out, "\n")
}

// calculateScroll returns the first visible row so that selected stays
// near the middle of a window of visible rows out of total.
func calculateScroll(selected, visible, total int) int {
	if visible <= 0 || total <= visible {
		return 0
	}
	offset := selected - visible/2
	if offset > total-visible {
		offset = total - visible
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}
