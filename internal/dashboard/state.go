package dashboard

import (
	"math"
	"strings"
	"time"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/config"
	"github.com/smileynet/shkolo/internal/i18n"
)

// PaneRatioStep is how much - and + resize the student pane.
const PaneRatioStep = 0.05

// ComposeField is the focused field of the compose form.
type ComposeField int

const (
	FieldRecipient ComposeField = iota
	FieldBody
)

// Compose is a message draft. It is discarded when the modal closes.
type Compose struct {
	Recipient string
	Body      string
	Field     ComposeField
}

// Ready reports whether the draft has both recipients and a body.
func (c Compose) Ready() bool {
	return strings.TrimSpace(c.Recipient) != "" && strings.TrimSpace(c.Body) != ""
}

// Banner is a one-line notice shown until the next key press.
type Banner struct {
	Msg    i18n.Msg
	Detail string
}

// State is everything the dashboard shows apart from the cached data itself.
// It changes only through Transition.
type State struct {
	Tab          Tab
	Focus        Focus
	Selected     int // index into the student list
	Cursor       int // index into the visible dataset
	Detail       bool
	ScheduleDate string // YYYY-MM-DD
	PaneRatio    float64
	Lang         i18n.Lang
	Modal        *Compose
	Banner       *Banner
	ShowHelp     bool // expanded help bar
	Quit         bool
}

// NewState returns the startup state.
func NewState(today time.Time, lang i18n.Lang, paneRatio float64) State {
	return State{
		Tab:          TabGrades,
		Focus:        FocusStudents,
		ScheduleDate: today.Format(cache.DateLayout),
		PaneRatio:    clampRatio(paneRatio),
		Lang:         lang,
	}
}

func clampRatio(r float64) float64 {
	r = math.Round(r*100) / 100
	switch {
	case r < config.MinPaneRatio:
		return config.MinPaneRatio
	case r > config.MaxPaneRatio:
		return config.MaxPaneRatio
	}
	return r
}

func clampIndex(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
