package dashboard

import (
	"time"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/refresh"
)

// EventKind is a discrete dashboard input.
type EventKind int

const (
	EvNone EventKind = iota
	EvTabPrev
	EvTabNext
	EvUp
	EvDown
	EvToggleFocus
	EvDigit
	EvOpen
	EvRefresh
	EvRefreshAll
	EvCompose
	EvPrevDay
	EvNextDay
	EvToday
	EvToggleLang
	EvToggleHelp
	EvShrink
	EvGrow
	EvClose
	EvQuit
	EvSend
	EvNextField
)

// Event is one input to Transition. Digit is set for EvDigit only.
type Event struct {
	Kind  EventKind
	Digit int
}

// View carries the facts about the cached data that navigation depends on.
type View struct {
	// StudentIDs is empty until the Students dataset has loaded.
	StudentIDs []int64
	// ItemCount is the number of rows on the active tab.
	ItemCount int
	// ThreadIDs holds the thread behind each row of the Messages tab.
	ThreadIDs []int64
	Today     time.Time
}

// VisibleKey returns the dataset the state currently shows. It is false
// for a per-student tab before any student is known.
func VisibleKey(s State, v View) (cache.Key, bool) {
	kind := s.Tab.Kind()
	if !kind.PerStudent() {
		return cache.AccountKey(kind), true
	}
	if len(v.StudentIDs) == 0 {
		return cache.Key{}, false
	}
	id := v.StudentIDs[clampIndex(s.Selected, len(v.StudentIDs))]
	if kind.Dated() {
		return cache.Key{Kind: kind, StudentID: id, Date: s.ScheduleDate}, true
	}
	return cache.StudentKey(kind, id), true
}

// DetailKey returns the dataset an open detail view shows on top of the
// visible row. Only an opened messenger thread has one.
func DetailKey(s State, v View) (cache.Key, bool) {
	if s.Tab != TabMessages || !s.Detail || len(v.ThreadIDs) == 0 {
		return cache.Key{}, false
	}
	id := v.ThreadIDs[clampIndex(s.Cursor, len(v.ThreadIDs))]
	if id <= 0 {
		return cache.Key{}, false
	}
	return cache.ThreadKey(id), true
}

// Transition applies e to s and returns the next state together with the
// refreshes the change calls for. It never fails: an event that does not
// apply to s leaves it unchanged.
func Transition(s State, e Event, v View) (State, []refresh.Request) {
	// Any key dismisses the banner.
	s.Banner = nil

	if s.Modal != nil {
		return transitionModal(s, e)
	}

	hasStudents := len(v.StudentIDs) > 0

	switch e.Kind {
	case EvTabPrev, EvTabNext:
		step := 1
		if e.Kind == EvTabPrev {
			step = tabCount - 1
		}
		s.Tab = Tab((int(s.Tab) + step) % tabCount)
		s.Cursor = 0
		s.Detail = false
		if !s.Tab.PerStudent() {
			s.Focus = FocusContent
		}
		return s, visibleRequest(s, v)

	case EvUp, EvDown:
		delta := 1
		if e.Kind == EvUp {
			delta = -1
		}
		if s.Focus == FocusStudents && s.Tab.PerStudent() {
			if !hasStudents {
				return s, nil
			}
			next := clampIndex(s.Selected+delta, len(v.StudentIDs))
			if next == s.Selected {
				return s, nil
			}
			s.Selected = next
			s.Cursor = 0
			s.Detail = false
			return s, visibleRequest(s, v)
		}
		s.Cursor = clampIndex(s.Cursor+delta, v.ItemCount)
		return s, detailRequest(s, v)

	case EvToggleFocus:
		if !hasStudents || !s.Tab.PerStudent() {
			return s, nil
		}
		if s.Focus == FocusStudents {
			s.Focus = FocusContent
		} else {
			s.Focus = FocusStudents
		}
		return s, nil

	case EvDigit:
		if e.Digit < 1 || e.Digit > len(v.StudentIDs) {
			return s, nil
		}
		changed := s.Selected != e.Digit-1
		s.Selected = e.Digit - 1
		s.Focus = FocusContent
		if !changed {
			return s, nil
		}
		s.Cursor = 0
		s.Detail = false
		return s, visibleRequest(s, v)

	case EvOpen:
		if v.ItemCount > 0 {
			s.Detail = !s.Detail
		}
		return s, detailRequest(s, v)

	case EvRefresh:
		key, ok := DetailKey(s, v)
		if !ok {
			key, ok = VisibleKey(s, v)
		}
		if !ok {
			key = cache.StudentsKey()
		}
		return s, []refresh.Request{{Key: key}}

	case EvRefreshAll:
		return s, refreshAll(s, v)

	case EvCompose:
		if s.Tab == TabMessages {
			s.Modal = &Compose{}
		}
		return s, nil

	case EvPrevDay, EvNextDay, EvToday:
		if s.Tab != TabSchedule {
			return s, nil
		}
		day, err := time.Parse(cache.DateLayout, s.ScheduleDate)
		if err != nil {
			day = v.Today
		}
		switch e.Kind {
		case EvPrevDay:
			day = day.AddDate(0, 0, -1)
		case EvNextDay:
			day = day.AddDate(0, 0, 1)
		default:
			day = v.Today
		}
		next := day.Format(cache.DateLayout)
		if next == s.ScheduleDate {
			return s, nil
		}
		s.ScheduleDate = next
		s.Cursor = 0
		s.Detail = false
		return s, visibleRequest(s, v)

	case EvToggleLang:
		s.Lang = s.Lang.Toggle()
		return s, nil

	case EvToggleHelp:
		s.ShowHelp = !s.ShowHelp
		return s, nil

	case EvShrink:
		s.PaneRatio = clampRatio(s.PaneRatio - PaneRatioStep)
		return s, nil

	case EvGrow:
		s.PaneRatio = clampRatio(s.PaneRatio + PaneRatioStep)
		return s, nil

	case EvQuit:
		s.Quit = true
		return s, nil
	}

	return s, nil
}

// transitionModal handles events while the compose modal is open. Text
// editing happens in the model's input widgets and never reaches here.
func transitionModal(s State, e Event) (State, []refresh.Request) {
	switch e.Kind {
	case EvClose:
		s.Modal = nil
	case EvQuit:
		s.Modal = nil
		s.Quit = true
	case EvSend:
		if s.Modal.Ready() {
			s.Modal = nil
		}
	case EvNextField:
		c := *s.Modal
		if c.Field == FieldRecipient {
			c.Field = FieldBody
		} else {
			c.Field = FieldRecipient
		}
		s.Modal = &c
	}
	return s, nil
}

func visibleRequest(s State, v View) []refresh.Request {
	key, ok := VisibleKey(s, v)
	if !ok {
		return nil
	}
	return []refresh.Request{{Key: key}}
}

func detailRequest(s State, v View) []refresh.Request {
	key, ok := DetailKey(s, v)
	if !ok {
		return nil
	}
	return []refresh.Request{{Key: key}}
}

// refreshAll forces every key of the active tab, one per student for
// per-student tabs. Before students are known it forces the student list.
func refreshAll(s State, v View) []refresh.Request {
	kind := s.Tab.Kind()
	if !kind.PerStudent() {
		return []refresh.Request{{Key: cache.AccountKey(kind), Force: true}}
	}
	if len(v.StudentIDs) == 0 {
		return []refresh.Request{{Key: cache.StudentsKey(), Force: true}}
	}
	reqs := make([]refresh.Request, 0, len(v.StudentIDs))
	for _, id := range v.StudentIDs {
		key := cache.StudentKey(kind, id)
		if kind.Dated() {
			key.Date = s.ScheduleDate
		}
		reqs = append(reqs, refresh.Request{Key: key, Force: true})
	}
	return reqs
}
