package dashboard

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/refresh"
	"github.com/smileynet/shkolo/internal/school"
)

func init() {
	// Render tests compare plain text; pin lipgloss to no colors.
	lipgloss.SetColorProfile(termenv.Ascii)
}

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

const (
	anaID   int64 = 11
	borisID int64 = 22
)

// stripANSI removes ANSI escape sequences from a string.
func stripANSI(s string) string {
	var out []byte
	i := 0
	for i < len(s) {
		if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 'A' || s[j] > 'Z') && (s[j] < 'a' || s[j] > 'z') {
				j++
			}
			if j < len(s) {
				j++
			}
			i = j
		} else {
			out = append(out, s[i])
			i++
		}
	}
	return string(out)
}

// containsPlainText checks if s contains sub after stripping ANSI escapes.
func containsPlainText(s, sub string) bool {
	return strings.Contains(stripANSI(s), sub)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func entry(t *testing.T, v any, fetchedAt time.Time) cache.Entry {
	t.Helper()
	return cache.Entry{Payload: mustJSON(t, v), FetchedAt: fetchedAt, TTL: time.Hour}
}

func twoStudents() []school.Student {
	// Out of order on purpose: the dashboard sorts by name.
	return []school.Student{
		{ID: borisID, Name: "Борис Петров", ClassName: "7Б"},
		{ID: anaID, Name: "Ана Иванова", ClassName: "5А"},
	}
}

// twoStudentsView is the View for twoStudents once loaded.
func twoStudentsView(items int) View {
	return View{StudentIDs: []int64{anaID, borisID}, ItemCount: items, Today: testNow}
}

func sampleGrades() []school.Grade {
	return []school.Grade{
		{Subject: "Математика", Term1Grades: []string{"6", "5"}, Annual: "6"},
		{Subject: "Физика"},
		{Subject: "История", Term2Grades: []string{"4"}},
	}
}

// studentsSnapshot returns a snapshot with the two students and Ana's grades.
func studentsSnapshot(t *testing.T, gradesAt time.Time) cache.Snapshot {
	t.Helper()
	return cache.NewSnapshot(map[cache.Key]cache.Entry{
		cache.StudentsKey(): entry(t, twoStudents(), testNow.Add(-time.Minute)),
		cache.StudentKey(cache.KindGrades, anaID): entry(t, sampleGrades(), gradesAt),
	})
}

type fakeStore struct {
	mu   sync.Mutex
	snap cache.Snapshot
}

func (s *fakeStore) Snapshot() cache.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeStore) set(snap cache.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

type fakeRefresher struct {
	mu       sync.Mutex
	requests []refresh.Request
	pending  map[cache.Key]bool
	events   chan refresh.Event
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{events: make(chan refresh.Event, 8), pending: map[cache.Key]bool{}}
}

func (r *fakeRefresher) Request(key cache.Key, force bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, refresh.Request{Key: key, Force: force})
	return true
}

func (r *fakeRefresher) Pending() map[cache.Key]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[cache.Key]bool, len(r.pending))
	for k, v := range r.pending {
		out[k] = v
	}
	return out
}

func (r *fakeRefresher) Events() <-chan refresh.Event { return r.events }

func (r *fakeRefresher) requested() []refresh.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]refresh.Request(nil), r.requests...)
}

func (r *fakeRefresher) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}
