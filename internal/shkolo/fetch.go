package shkolo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/school"
)

// Fetch retrieves one dataset and returns it normalized to the records in
// package school, encoded as JSON. It satisfies refresh.Fetcher.
func (c *Client) Fetch(ctx context.Context, key cache.Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var (
		v   any
		err error
	)
	switch key.Kind {
	case cache.KindStudents:
		v, err = c.Students(ctx)
	case cache.KindGrades:
		v, err = c.Grades(ctx, key.StudentID)
	case cache.KindHomework:
		v, err = c.Homework(ctx, key.StudentID)
	case cache.KindSchedule:
		v, err = c.Schedule(ctx, key.StudentID, key.Date)
	case cache.KindAbsences:
		v, err = c.Absences(ctx, key.StudentID)
	case cache.KindFeedbacks:
		v, err = c.Feedbacks(ctx, key.StudentID)
	case cache.KindNotifications:
		v, err = c.Notifications(ctx)
	case cache.KindMessages:
		v, err = c.Threads(ctx)
	case cache.KindThread:
		v, err = c.ThreadMessages(ctx, key.ThreadID)
	default:
		return nil, fmt.Errorf("shkolo: no endpoint for %s", key)
	}
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("shkolo: encoding %s: %w", key, err)
	}
	return data, nil
}

// Students lists the pupils linked to the account, sorted by name.
func (c *Client) Students(ctx context.Context) ([]school.Student, error) {
	var r pupilsResponse
	if err := c.get(ctx, "/v1/diary/pupils", &r); err != nil {
		return nil, err
	}
	return r.students(), nil
}

// Grades returns the subjects with at least one mark.
func (c *Client) Grades(ctx context.Context, pupilID int64) ([]school.Grade, error) {
	var r gradesSummaryResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/diary/pupils/%d/grades/summary", pupilID), &r); err != nil {
		return nil, err
	}
	return r.grades(), nil
}

// Homework collects assignments across every course, newest first.
func (c *Client) Homework(ctx context.Context, pupilID int64) ([]school.Homework, error) {
	var courses homeworkCoursesResponse
	if err := c.get(ctx, "/v1/diary/homeworks/courses?pupilId="+strconv.FormatInt(pupilID, 10), &courses); err != nil {
		return nil, err
	}
	out := []school.Homework{}
	for _, course := range courses.Courses {
		if course.CycGroupID == 0 {
			continue
		}
		var list homeworkListResponse
		if err := c.get(ctx, fmt.Sprintf("/v1/diary/homeworks/list/%d", course.CycGroupID), &list); err != nil {
			return nil, err
		}
		subject := firstNonEmpty(course.CourseName, course.CourseShortName, "Unknown")
		for _, item := range list.Homeworks {
			out = append(out, item.homework(subject))
		}
	}
	school.SortHomework(out)
	return out, nil
}

// Schedule returns one day's lessons in hour order. date is YYYY-MM-DD.
func (c *Client) Schedule(ctx context.Context, pupilID int64, date string) ([]school.ScheduleHour, error) {
	var r scheduleResponse
	path := fmt.Sprintf("/v1/diary/pupils/%d/scheduleHours?date=%s", pupilID, url.QueryEscape(date))
	if err := c.get(ctx, path, &r); err != nil {
		return nil, err
	}
	return r.hours(), nil
}

// Absences returns missed lessons, newest first.
func (c *Client) Absences(ctx context.Context, pupilID int64) ([]school.Absence, error) {
	var r absencesResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/diary/pupils/%d/absences", pupilID), &r); err != nil {
		return nil, err
	}
	return r.absences(), nil
}

func (c *Client) Feedbacks(ctx context.Context, pupilID int64) ([]school.Feedback, error) {
	var r feedbacksResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/diary/pupils/%d/feedbacks", pupilID), &r); err != nil {
		return nil, err
	}
	return r.feedbacks(), nil
}

// Notifications returns the first page of account notifications.
func (c *Client) Notifications(ctx context.Context) ([]school.Notification, error) {
	var r notificationsResponse
	if err := c.get(ctx, "/v1/notifications?page=1", &r); err != nil {
		return nil, err
	}
	return r.notifications(), nil
}

// Threads lists the account's messenger threads.
func (c *Client) Threads(ctx context.Context) ([]school.MessageThread, error) {
	var raw []messageThreadRaw
	if err := c.get(ctx, "/v1/messenger/threads", &raw); err != nil {
		return nil, err
	}
	return threads(raw), nil
}

// ThreadMessages returns the messages of one thread in the order the
// service lists them.
func (c *Client) ThreadMessages(ctx context.Context, threadID int64) ([]school.ThreadMessage, error) {
	var r threadMessagesResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/messenger/threads/%d/messages", threadID), &r); err != nil {
		return nil, err
	}
	return r.messages(), nil
}
