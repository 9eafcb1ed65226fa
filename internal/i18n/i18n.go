// Package i18n holds the dashboard's Bulgarian and English labels.
package i18n

import "fmt"

// Lang is a display language.
type Lang int

const (
	BG Lang = iota // default
	EN
)

// Parse maps "bg"/"en" to a Lang. Anything else is Bulgarian.
func Parse(s string) Lang {
	if s == "en" {
		return EN
	}
	return BG
}

func (l Lang) String() string {
	if l == EN {
		return "en"
	}
	return "bg"
}

// Toggle switches between the two languages.
func (l Lang) Toggle() Lang {
	if l == EN {
		return BG
	}
	return EN
}

// Msg identifies a translatable label.
type Msg int

const (
	AppTitle Msg = iota
	TabGrades
	TabHomework
	TabSchedule
	TabAbsences
	TabFeedbacks
	TabNotifications
	TabMessages
	Students
	Loading
	NoStudents
	NoGrades
	NoHomework
	NoSchedule
	NoAbsences
	NoFeedbacks
	NoNotifications
	NoMessages
	Stale
	Today
	Term1
	Term2
	Final
	Annual
	Teacher
	Topic
	Room
	Due
	Excused
	Unexcused
	Hour
	Participants
	NewMarker
	ErrNetwork
	ErrAuthExpired
	ErrMalformed
	ErrOther
	ErrCacheWrite
	ErrSend
	MessageSent
	ComposeTitle
	ComposeRecipient
	ComposeBody
	ComposeHint
	DismissHint
)

var catalog = map[Msg][2]string{
	AppTitle:         {"Школо", "Shkolo"},
	TabGrades:        {"Оценки", "Grades"},
	TabHomework:      {"Домашни", "Homework"},
	TabSchedule:      {"Програма", "Schedule"},
	TabAbsences:      {"Отсъствия", "Absences"},
	TabFeedbacks:     {"Отзиви", "Feedbacks"},
	TabNotifications: {"Известия", "Notifications"},
	TabMessages:      {"Съобщения", "Messages"},
	Students:         {"Ученици", "Students"},
	Loading:          {"Зареждане...", "Loading..."},
	NoStudents:       {"Няма ученици", "No students"},
	NoGrades:         {"Няма оценки", "No grades found"},
	NoHomework:       {"Няма домашни", "No homework found"},
	NoSchedule:       {"Няма часове за този ден", "No classes scheduled"},
	NoAbsences:       {"Няма отсъствия", "No absences"},
	NoFeedbacks:      {"Няма отзиви", "No feedbacks"},
	NoNotifications:  {"Няма известия", "No notifications"},
	NoMessages:       {"Няма съобщения", "No messages"},
	Stale:            {"остаряло", "stale"},
	Today:            {"днес", "today"},
	Term1:            {"Срок 1", "Term 1"},
	Term2:            {"Срок 2", "Term 2"},
	Final:            {"Срочна", "Final"},
	Annual:           {"Годишна", "Annual"},
	Teacher:          {"Учител", "Teacher"},
	Topic:            {"Тема", "Topic"},
	Room:             {"Стая", "Room"},
	Due:              {"Срок", "Due"},
	Excused:          {"извинено", "excused"},
	Unexcused:        {"неизвинено", "unexcused"},
	Hour:             {"час", "hour"},
	Participants:     {"участници", "participants"},
	NewMarker:        {"[НОВО] ", "[NEW] "},
	ErrNetwork:       {"Няма връзка със сървъра", "Cannot reach the server"},
	ErrAuthExpired:   {"Сесията изтече. Изпълнете shkolo login", "Session expired. Run shkolo login"},
	ErrMalformed:     {"Неочакван отговор от сървъра", "Unexpected response from the server"},
	ErrOther:         {"Грешка при обновяване", "Refresh failed"},
	ErrCacheWrite:    {"Кешът не може да се запише на диска", "Cache could not be written to disk"},
	ErrSend:          {"Грешка при изпращане", "Send failed"},
	MessageSent:      {"Съобщението е изпратено!", "Message sent!"},
	ComposeTitle:     {"Ново съобщение", "New message"},
	ComposeRecipient: {"Получатели (ID)", "Recipients (IDs)"},
	ComposeBody:      {"Текст", "Body"},
	ComposeHint:      {"tab поле • ctrl+s изпрати • esc отказ", "tab field • ctrl+s send • esc cancel"},
	DismissHint:      {"натиснете клавиш", "press any key"},
}

// T returns the label for m in lang.
func T(lang Lang, m Msg) string {
	pair, ok := catalog[m]
	if !ok {
		return fmt.Sprintf("!msg(%d)", int(m))
	}
	if lang == EN {
		return pair[1]
	}
	return pair[0]
}
