package shkolo

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/smileynet/shkolo/internal/school"
)

// flexString accepts a JSON string, number, or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type usersAndYearsResponse struct {
	Users []struct {
		ID    int64  `json:"id"`
		Names string `json:"names"`
		Years []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"years"`
	} `json:"users"`
}

type childPupil struct {
	TargetID      int64  `json:"target_id"`
	TargetName    string `json:"target_name"`
	ClassYearName string `json:"class_year_name"`
	SchoolName    string `json:"school_name"`
}

type pupilsResponse struct {
	ChildPupils map[string]childPupil `json:"childPupils"`
	Pupils      []childPupil          `json:"pupils"`
}

func (r pupilsResponse) students() []school.Student {
	var out []school.Student
	add := func(id int64, p childPupil) {
		out = append(out, school.Student{
			ID:         id,
			Name:       firstNonEmpty(p.TargetName, "Unknown"),
			ClassName:  p.ClassYearName,
			SchoolName: p.SchoolName,
		})
	}
	for key, p := range r.ChildPupils {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			id = p.TargetID
		}
		add(id, p)
	}
	for _, p := range r.Pupils {
		add(p.TargetID, p)
	}
	school.SortStudents(out)
	return out
}

type gradeDetail struct {
	Grade          flexString `json:"grade"`
	GradeRaw       flexString `json:"grade_raw"`
	NumericalValue *float64   `json:"numerical_value"`
}

func (d gradeDetail) value() string {
	if d.Grade != "" {
		return string(d.Grade)
	}
	if d.GradeRaw != "" {
		return string(d.GradeRaw)
	}
	if d.NumericalValue != nil {
		return strconv.FormatFloat(*d.NumericalValue, 'f', -1, 64)
	}
	return ""
}

// termGrades is either an object keyed by grade id or a plain list.
type termGrades []gradeDetail

func (t *termGrades) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = nil
		return nil
	}
	if b[0] == '[' {
		var list []gradeDetail
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	var m map[string]gradeDetail
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]gradeDetail, 0, len(m))
	for _, k := range keys {
		list = append(list, m[k])
	}
	*t = list
	return nil
}

func (t termGrades) values() []string {
	out := []string{}
	for _, d := range t {
		if v := d.value(); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (t termGrades) final() string {
	for _, d := range t {
		if v := d.value(); v != "" {
			return v
		}
	}
	return ""
}

type courseGrades struct {
	TargetName string     `json:"target_name"`
	CourseName string     `json:"course_name"`
	Term1      termGrades `json:"term1"`
	Term2      termGrades `json:"term2"`
	Term1Final termGrades `json:"term1final"`
	Term2Final termGrades `json:"term2final"`
	Annual     termGrades `json:"annual"`
}

type gradesSummaryResponse struct {
	Grades  []courseGrades `json:"grades"`
	Courses []courseGrades `json:"courses"`
}

func (r gradesSummaryResponse) grades() []school.Grade {
	courses := r.Grades
	if courses == nil {
		courses = r.Courses
	}
	out := make([]school.Grade, 0, len(courses))
	for _, c := range courses {
		out = append(out, school.Grade{
			Subject:     firstNonEmpty(c.TargetName, c.CourseName, "Unknown"),
			Term1Grades: c.Term1.values(),
			Term2Grades: c.Term2.values(),
			Term1Final:  c.Term1Final.final(),
			Term2Final:  c.Term2Final.final(),
			Annual:      c.Annual.final(),
		})
	}
	return school.FilterGrades(out)
}

type homeworkCourse struct {
	CycGroupID      int64  `json:"cyc_group_id"`
	CourseName      string `json:"course_name"`
	CourseShortName string `json:"course_short_name"`
}

type homeworkCoursesResponse struct {
	Courses []homeworkCourse `json:"courses"`
}

type homeworkItem struct {
	ID              int64  `json:"id"`
	HomeworkText    string `json:"homework_text"`
	HomeworkDueDate string `json:"homework_due_date"`
	ShiDate         string `json:"shi_date"`
	ShiDateForSort  string `json:"shi_date_for_sort"`
}

type homeworkListResponse struct {
	Homeworks []homeworkItem `json:"homeworks"`
}

func (h homeworkItem) homework(subject string) school.Homework {
	return school.Homework{
		ID:       h.ID,
		Subject:  subject,
		Text:     h.HomeworkText,
		Date:     h.ShiDate,
		DueDate:  h.HomeworkDueDate,
		DateSort: firstNonEmpty(h.ShiDateForSort, school.SortableDate(h.ShiDate)),
	}
}

type scheduleHourRaw struct {
	SchoolHour   int    `json:"school_hour"`
	FromTime     string `json:"from_time"`
	ToTime       string `json:"to_time"`
	CourseName   string `json:"course_name"`
	TeacherName  string `json:"teacher_name"`
	Topic        string `json:"topic"`
	HomeworkText string `json:"homework_text"`
	RoomName     string `json:"room_name"`
}

type scheduleResponse struct {
	ScheduleHours []scheduleHourRaw `json:"scheduleHours"`
	Data          []scheduleHourRaw `json:"data"`
}

func (r scheduleResponse) hours() []school.ScheduleHour {
	raw := r.ScheduleHours
	if raw == nil {
		raw = r.Data
	}
	out := make([]school.ScheduleHour, 0, len(raw))
	for _, h := range raw {
		out = append(out, school.ScheduleHour{
			HourNumber: h.SchoolHour,
			FromTime:   h.FromTime,
			ToTime:     h.ToTime,
			Subject:    firstNonEmpty(h.CourseName, "Unknown"),
			Teacher:    h.TeacherName,
			Topic:      h.Topic,
			Homework:   h.HomeworkText,
			Room:       h.RoomName,
		})
	}
	school.SortSchedule(out)
	return out
}

type absenceRaw struct {
	ID                  flexString `json:"id"`
	Date                string     `json:"date"`
	SchoolHour          int        `json:"school_hour"`
	CourseName          string     `json:"course_name"`
	CourseShortName     string     `json:"course_short_name"`
	AbsenceExcuseTypeID int        `json:"absence_excuse_type_id"`
	AbsenceComment      string     `json:"absence_comment"`
	CreatedBy           string     `json:"created_by"`
}

type absencesResponse struct {
	Absences []absenceRaw `json:"absences"`
}

func (r absencesResponse) absences() []school.Absence {
	out := make([]school.Absence, 0, len(r.Absences))
	for _, a := range r.Absences {
		out = append(out, school.Absence{
			ID:           string(a.ID),
			Date:         a.Date,
			DateSort:     school.SortableDate(a.Date),
			Hour:         a.SchoolHour,
			Subject:      firstNonEmpty(a.CourseShortName, a.CourseName, "Unknown"),
			IsExcused:    a.AbsenceExcuseTypeID == 1,
			ExcuseReason: a.AbsenceComment,
			CreatedBy:    a.CreatedBy,
		})
	}
	school.SortAbsences(out)
	return out
}

type feedbackRaw struct {
	ID           int64  `json:"id"`
	BadgeName    string `json:"badge_name"`
	BadgeIcon    string `json:"badge_icon"`
	Comment      string `json:"comment"`
	IsPositive   *bool  `json:"is_positive"`
	CreatedAt    string `json:"created_at"`
	TeacherName  string `json:"teacher_name"`
	TeacherNames string `json:"teacher_names"`
	SubjectName  string `json:"subject_name"`
	CourseName   string `json:"course_name"`
}

type feedbacksResponse struct {
	Data      []feedbackRaw `json:"data"`
	Feedbacks []feedbackRaw `json:"feedbacks"`
}

func (r feedbacksResponse) feedbacks() []school.Feedback {
	raw := r.Data
	if raw == nil {
		raw = r.Feedbacks
	}
	out := make([]school.Feedback, 0, len(raw))
	for _, f := range raw {
		positive := true
		if f.IsPositive != nil {
			positive = *f.IsPositive
		}
		out = append(out, school.Feedback{
			ID:         f.ID,
			BadgeName:  firstNonEmpty(f.BadgeName, "Feedback"),
			BadgeIcon:  f.BadgeIcon,
			Comment:    f.Comment,
			IsPositive: positive,
			Date:       school.DisplayDate(f.CreatedAt),
			Teacher:    firstNonEmpty(f.TeacherNames, f.TeacherName),
			Subject:    firstNonEmpty(f.CourseName, f.SubjectName),
		})
	}
	return out
}

type notificationRaw struct {
	ID                      flexString `json:"id"`
	Text                    string     `json:"text"`
	Title                   string     `json:"title"`
	Subject                 string     `json:"subject"`
	Body                    string     `json:"body"`
	Message                 string     `json:"message"`
	CreatedAt               string     `json:"created_at"`
	Date                    string     `json:"date"`
	SeenAt                  *string    `json:"seen_at"`
	IsRead                  bool       `json:"is_read"`
	Read                    bool       `json:"read"`
	NotificationTriggerSlug string     `json:"notification_trigger_slug"`
	Type                    string     `json:"type"`
}

type notificationsResponse struct {
	Data          []notificationRaw `json:"data"`
	Notifications []notificationRaw `json:"notifications"`
}

func (r notificationsResponse) notifications() []school.Notification {
	raw := r.Data
	if raw == nil {
		raw = r.Notifications
	}
	out := make([]school.Notification, 0, len(raw))
	for _, n := range raw {
		out = append(out, school.Notification{
			ID:     string(n.ID),
			Title:  firstNonEmpty(n.Text, n.Title, n.Subject, "No title"),
			Body:   firstNonEmpty(n.Body, n.Message),
			Date:   firstNonEmpty(n.CreatedAt, n.Date),
			IsRead: n.SeenAt != nil || n.IsRead || n.Read,
			Type:   firstNonEmpty(n.NotificationTriggerSlug, n.Type),
		})
	}
	return out
}

type messageThreadRaw struct {
	ID               int64  `json:"id"`
	Subject          string `json:"subject"`
	LastMsgBody      string `json:"last_msg_body"`
	LastMsgUser      string `json:"last_msg_user"`
	ParticipantCount int    `json:"participant_count"`
	IsUnread         bool   `json:"is_unread"`
	UpdatedAt        string `json:"updated_at"`
	ThreadCreator    string `json:"thread_creator"`
}

func threads(raw []messageThreadRaw) []school.MessageThread {
	out := make([]school.MessageThread, 0, len(raw))
	for _, m := range raw {
		out = append(out, school.MessageThread{
			ID:               m.ID,
			Subject:          m.Subject,
			LastMessage:      m.LastMsgBody,
			LastSender:       m.LastMsgUser,
			ParticipantCount: m.ParticipantCount,
			IsUnread:         m.IsUnread,
			UpdatedAt:        m.UpdatedAt,
			Creator:          m.ThreadCreator,
		})
	}
	return out
}

// threadMessagesResponse accepts both {"messages": [...]} and a bare list.
type threadMessagesResponse struct {
	Messages []threadMessageRaw
}

func (r *threadMessagesResponse) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &r.Messages)
	}
	var wrapped struct {
		Messages []threadMessageRaw `json:"messages"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	r.Messages = wrapped.Messages
	return nil
}

type threadMessageRaw struct {
	ID         int64  `json:"id"`
	Body       string `json:"body"`
	Message    string `json:"message"`
	SenderName string `json:"sender_name"`
	UserName   string `json:"user_name"`
	CreatedAt  string `json:"created_at"`
	Date       string `json:"date"`
}

func (r threadMessagesResponse) messages() []school.ThreadMessage {
	out := make([]school.ThreadMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, school.ThreadMessage{
			ID:     m.ID,
			Sender: firstNonEmpty(m.SenderName, m.UserName),
			Body:   firstNonEmpty(m.Body, m.Message),
			SentAt: firstNonEmpty(m.CreatedAt, m.Date),
		})
	}
	return out
}

type createThreadRequest struct {
	RecipientIDs []int64 `json:"recipient_ids"`
	Subject      string  `json:"subject"`
	Body         string  `json:"body"`
}

// subjectFromBody uses the first non-blank line of a message as its subject.
func subjectFromBody(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
