// Package dashboard implements the interactive school-records dashboard:
// a pure state machine driven by key events, a deterministic renderer,
// and the Bubble Tea model that wires them to the cache and the refresh
// coordinator.
package dashboard

import (
	"context"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/i18n"
	"github.com/smileynet/shkolo/internal/refresh"
)

// Tab is one of the dataset views, in display order.
type Tab int

const (
	TabGrades Tab = iota
	TabHomework
	TabSchedule
	TabAbsences
	TabFeedbacks
	TabNotifications
	TabMessages

	tabCount = int(TabMessages) + 1
)

// Kind is the dataset shown on the tab.
func (t Tab) Kind() cache.Kind {
	switch t {
	case TabHomework:
		return cache.KindHomework
	case TabSchedule:
		return cache.KindSchedule
	case TabAbsences:
		return cache.KindAbsences
	case TabFeedbacks:
		return cache.KindFeedbacks
	case TabNotifications:
		return cache.KindNotifications
	case TabMessages:
		return cache.KindMessages
	default:
		return cache.KindGrades
	}
}

// PerStudent reports whether the tab shows one student's data.
func (t Tab) PerStudent() bool { return t.Kind().PerStudent() }

// Label is the tab's title in lang.
func (t Tab) Label(lang i18n.Lang) string {
	return i18n.T(lang, i18n.TabGrades+i18n.Msg(t))
}

// Focus represents which pane has keyboard focus.
type Focus int

const (
	FocusStudents Focus = iota // Student list has focus.
	FocusContent               // Dataset pane has focus.
)

// --- Consumer-side interfaces ---

// Refresher schedules background fetches and reports their outcome.
type Refresher interface {
	Request(key cache.Key, force bool) bool
	Pending() map[cache.Key]bool
	Events() <-chan refresh.Event
}

// Sender starts a new message thread.
type Sender interface {
	CreateThread(ctx context.Context, recipientIDs []int64, body string) error
}

// --- tea.Msg types ---

// RefreshEventMsg carries one completed or failed background fetch.
type RefreshEventMsg struct {
	Event refresh.Event
}

// CacheChangedMsg signals that another process rewrote a cached dataset.
type CacheChangedMsg struct {
	Key cache.Key
}

// SentMsg carries the result of sending a composed message.
type SentMsg struct {
	Err error
}

// tickMsg advances the spinner while fetches are in flight.
type tickMsg struct{}
