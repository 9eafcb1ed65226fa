// Package school defines the records shown by the dashboard and printed by
// JSON mode, in the normalized form they are cached in.
package school

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Student is a pupil linked to the signed-in account.
type Student struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ClassName  string `json:"class_name,omitempty"`
	SchoolName string `json:"school_name,omitempty"`
}

// Grade holds one subject's marks for the school year.
type Grade struct {
	Subject     string   `json:"subject"`
	Term1Grades []string `json:"term1_grades"`
	Term2Grades []string `json:"term2_grades"`
	Term1Final  string   `json:"term1_final,omitempty"`
	Term2Final  string   `json:"term2_final,omitempty"`
	Annual      string   `json:"annual,omitempty"`
}

// HasGrades reports whether any mark has been given.
func (g Grade) HasGrades() bool {
	return len(g.Term1Grades) > 0 || len(g.Term2Grades) > 0 ||
		g.Term1Final != "" || g.Term2Final != "" || g.Annual != ""
}

// Homework is one assignment.
type Homework struct {
	ID       int64  `json:"id,omitempty"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	Date     string `json:"date"`
	DueDate  string `json:"due_date,omitempty"`
	DateSort string `json:"date_sort,omitempty"`
}

// ScheduleHour is one lesson in a day's timetable.
type ScheduleHour struct {
	HourNumber int    `json:"hour_number"`
	FromTime   string `json:"from_time"`
	ToTime     string `json:"to_time"`
	Subject    string `json:"subject"`
	Teacher    string `json:"teacher,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Homework   string `json:"homework,omitempty"`
	Room       string `json:"room,omitempty"`
}

// Absence is one missed lesson.
type Absence struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	DateSort     string `json:"date_sort"`
	Hour         int    `json:"hour"`
	Subject      string `json:"subject"`
	IsExcused    bool   `json:"is_excused"`
	ExcuseReason string `json:"excuse_reason,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
}

// Feedback is a badge or remark left by a teacher.
type Feedback struct {
	ID         int64  `json:"id"`
	BadgeName  string `json:"badge_name"`
	BadgeIcon  string `json:"badge_icon,omitempty"`
	Comment    string `json:"comment,omitempty"`
	IsPositive bool   `json:"is_positive"`
	Date       string `json:"date"`
	Teacher    string `json:"teacher"`
	Subject    string `json:"subject"`
}

// Emoji returns the badge icon, or a marker for the feedback's tone.
func (f Feedback) Emoji() string {
	if f.BadgeIcon != "" {
		return f.BadgeIcon
	}
	if f.IsPositive {
		return "⭐"
	}
	return "⚠"
}

// Notification is an account-wide notice.
type Notification struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
	Date   string `json:"date"`
	IsRead bool   `json:"is_read"`
	Type   string `json:"notification_type,omitempty"`
}

// MessageThread is a conversation in the account's messenger.
type MessageThread struct {
	ID               int64  `json:"id"`
	Subject          string `json:"subject"`
	LastMessage      string `json:"last_message"`
	LastSender       string `json:"last_sender"`
	ParticipantCount int    `json:"participant_count"`
	IsUnread         bool   `json:"is_unread"`
	UpdatedAt        string `json:"updated_at"`
	Creator          string `json:"creator"`
}

// DisplayTime shortens "2026-02-18 09:47:18" to "18.02 09:47".
func (m MessageThread) DisplayTime() string { return shortTimestamp(m.UpdatedAt) }

// ThreadMessage is one message inside a messenger thread.
type ThreadMessage struct {
	ID     int64  `json:"id"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
	SentAt string `json:"sent_at"`
}

// DisplayTime shortens SentAt the same way as MessageThread.DisplayTime.
func (m ThreadMessage) DisplayTime() string { return shortTimestamp(m.SentAt) }

func shortTimestamp(ts string) string {
	date, clock, ok := strings.Cut(ts, " ")
	if !ok || len(ts) < 16 {
		return ts
	}
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return ts
	}
	if len(clock) > 5 {
		clock = clock[:5]
	}
	return parts[2] + "." + parts[1] + " " + clock
}

// Decode unmarshals a cached payload holding a list of records.
func Decode[T any](payload []byte) ([]T, error) {
	var out []T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("school: decoding %T: %w", out, err)
	}
	return out, nil
}

// SortStudents orders students by name.
func SortStudents(students []Student) {
	sort.SliceStable(students, func(i, j int) bool { return students[i].Name < students[j].Name })
}

// SelectStudents picks students by a 1-based index or a case-insensitive
// name fragment. An empty selector, or one that matches nothing, selects all.
func SelectStudents(students []Student, selector string) []Student {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return students
	}
	if n, err := strconv.Atoi(selector); err == nil {
		if n >= 1 && n <= len(students) {
			return students[n-1 : n]
		}
		return students
	}
	needle := strings.ToLower(selector)
	var out []Student
	for _, s := range students {
		if strings.Contains(strings.ToLower(s.Name), needle) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return students
	}
	return out
}

// SortHomework orders homework newest first.
func SortHomework(hw []Homework) {
	sort.SliceStable(hw, func(i, j int) bool { return hw[i].DateSort > hw[j].DateSort })
}

// SortSchedule orders lessons by hour.
func SortSchedule(hours []ScheduleHour) {
	sort.SliceStable(hours, func(i, j int) bool { return hours[i].HourNumber < hours[j].HourNumber })
}

// SortAbsences orders absences newest first, then by hour.
func SortAbsences(abs []Absence) {
	sort.SliceStable(abs, func(i, j int) bool {
		if abs[i].DateSort != abs[j].DateSort {
			return abs[i].DateSort > abs[j].DateSort
		}
		return abs[i].Hour < abs[j].Hour
	})
}

// FilterGrades drops subjects without any mark.
func FilterGrades(grades []Grade) []Grade {
	out := grades[:0:0]
	for _, g := range grades {
		if g.HasGrades() {
			out = append(out, g)
		}
	}
	return out
}

// SortableDate converts "DD.MM.YYYY" to "YYYY-MM-DD". Other input is returned unchanged.
func SortableDate(d string) string {
	parts := strings.Split(d, ".")
	if len(parts) != 3 || len(parts[2]) != 4 {
		return d
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0]
}

// DisplayDate converts the date part of "YYYY-MM-DD[ hh:mm:ss]" to "DD.MM.YYYY".
func DisplayDate(d string) string {
	if len(d) < 10 {
		return d
	}
	parts := strings.Split(d[:10], "-")
	if len(parts) != 3 {
		return d
	}
	return parts[2] + "." + parts[1] + "." + parts[0]
}
