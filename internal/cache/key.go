package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind names a dataset mirrored from the school service.
type Kind string

const (
	KindStudents      Kind = "students"
	KindGrades        Kind = "grades"
	KindHomework      Kind = "homework"
	KindSchedule      Kind = "schedule"
	KindAbsences      Kind = "absences"
	KindFeedbacks     Kind = "feedbacks"
	KindNotifications Kind = "notifications"
	KindMessages      Kind = "messages"
	KindThread        Kind = "thread"
)

// DateLayout is the format of the Date component of schedule keys.
const DateLayout = "2006-01-02"

// Kinds returns every dataset kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindStudents, KindGrades, KindHomework, KindSchedule,
		KindAbsences, KindFeedbacks, KindNotifications, KindMessages,
		KindThread,
	}
}

// ParseKind converts a user-supplied name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, s)
}

// PerStudent reports whether the dataset is fetched separately for each student.
func (k Kind) PerStudent() bool {
	switch k {
	case KindStudents, KindNotifications, KindMessages, KindThread:
		return false
	}
	return true
}

// Dated reports whether keys of this kind carry a date.
func (k Kind) Dated() bool { return k == KindSchedule }

// PerThread reports whether keys of this kind name one messenger thread.
func (k Kind) PerThread() bool { return k == KindThread }

// Key identifies one cached dataset. Two keys are the same dataset exactly
// when they compare equal. A zero StudentID or ThreadID and an empty Date
// mean "absent".
type Key struct {
	Kind      Kind
	StudentID int64
	Date      string
	ThreadID  int64
}

// StudentsKey is the key of the account-wide student list.
func StudentsKey() Key { return Key{Kind: KindStudents} }

// AccountKey returns the key of an account-wide dataset.
func AccountKey(kind Kind) Key { return Key{Kind: kind} }

// StudentKey returns the key of a per-student dataset.
func StudentKey(kind Kind, studentID int64) Key {
	return Key{Kind: kind, StudentID: studentID}
}

// ScheduleKey returns the key of one student's timetable for one day.
func ScheduleKey(studentID int64, day time.Time) Key {
	return Key{Kind: KindSchedule, StudentID: studentID, Date: day.Format(DateLayout)}
}

// ThreadKey returns the key of the messages in one messenger thread.
func ThreadKey(threadID int64) Key {
	return Key{Kind: KindThread, ThreadID: threadID}
}

// String renders the key as it appears in file names and logs,
// for example "grades_42", "schedule_42_2025-03-14" or "thread_310".
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(string(k.Kind))
	if k.StudentID != 0 {
		b.WriteByte('_')
		b.WriteString(strconv.FormatInt(k.StudentID, 10))
	}
	if k.Date != "" {
		b.WriteByte('_')
		b.WriteString(k.Date)
	}
	if k.ThreadID != 0 {
		b.WriteByte('_')
		b.WriteString(strconv.FormatInt(k.ThreadID, 10))
	}
	return b.String()
}

// Validate checks that the key's components agree with its kind.
func (k Key) Validate() error {
	if _, err := ParseKind(string(k.Kind)); err != nil {
		return err
	}
	if k.StudentID < 0 {
		return fmt.Errorf("%w: negative student id in %s", ErrInvalidKey, k)
	}
	if k.Kind.PerStudent() != (k.StudentID != 0) {
		return fmt.Errorf("%w: student id does not match kind in %s", ErrInvalidKey, k)
	}
	if k.ThreadID < 0 {
		return fmt.Errorf("%w: negative thread id in %s", ErrInvalidKey, k)
	}
	if k.Kind.PerThread() != (k.ThreadID != 0) {
		return fmt.Errorf("%w: thread id does not match kind in %s", ErrInvalidKey, k)
	}
	if k.Kind.Dated() != (k.Date != "") {
		return fmt.Errorf("%w: date does not match kind in %s", ErrInvalidKey, k)
	}
	if k.Date != "" {
		if _, err := time.Parse(DateLayout, k.Date); err != nil {
			return fmt.Errorf("%w: bad date in %s", ErrInvalidKey, k)
		}
	}
	return nil
}

func (k Key) filename() string { return k.String() + ".json" }
