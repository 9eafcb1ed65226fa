package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/refresh"
	"github.com/smileynet/shkolo/internal/school"
)

// recentHomework is how many assignments the summary includes per student.
const recentHomework = 5

// JSONCmd prints one dataset, wrapped in an envelope that says whether it
// came from the cache.
type JSONCmd struct {
	Kind    string `arg:"" enum:"students,grades,homework,schedule,absences,feedbacks,notifications,messages,summary" help:"Dataset to print (${enum})."`
	Student string `arg:"" optional:"" help:"Student number (1-based) or part of a name. Default: all students."`
	Date    string `arg:"" optional:"" help:"Schedule date as YYYY-MM-DD. Default: today."`
	Format  string `default:"pretty" enum:"pretty,compact" help:"Output format (${enum})."`
}

// Run executes the json command.
func (j *JSONCmd) Run(g *Globals) error {
	e, err := g.open()
	if err != nil {
		return err
	}
	defer e.close()

	cred, err := e.credential()
	if err != nil {
		return err
	}
	coord := refresh.New(e.store, e.client(cred), g.policy(e.cfg), refresh.WithLogger(e.log))
	defer coord.Close()

	return j.run(context.Background(), os.Stdout, coord, time.Now())
}

// datasetSource is the part of the refresh coordinator the json command needs.
type datasetSource interface {
	Ensure(ctx context.Context, key cache.Key, force bool) (cache.Entry, error)
	Stale(key cache.Key) bool
}

type envelope struct {
	Success  bool   `json:"success"`
	Cached   bool   `json:"cached"`
	CachedAt string `json:"cached_at,omitempty"`
	Data     any    `json:"data"`
	Error    string `json:"error,omitempty"`
}

type indexedStudent struct {
	Index int `json:"index"`
	school.Student
}

type studentSummary struct {
	Student        school.Student        `json:"student"`
	TodaySchedule  []school.ScheduleHour `json:"today_schedule"`
	RecentHomework []school.Homework     `json:"recent_homework"`
	GradesCount    int                   `json:"grades_count"`
}

// reader loads datasets through a source and remembers whether every one
// of them was answered from the cache.
type reader struct {
	ctx      context.Context
	src      datasetSource
	cached   bool
	cachedAt time.Time
}

func (r *reader) load(key cache.Key) (json.RawMessage, error) {
	hit := !r.src.Stale(key)
	e, err := r.src.Ensure(r.ctx, key, false)
	if err != nil {
		return nil, err
	}
	r.cached = r.cached && hit
	if hit && (r.cachedAt.IsZero() || e.FetchedAt.Before(r.cachedAt)) {
		r.cachedAt = e.FetchedAt
	}
	return json.RawMessage(e.Payload), nil
}

func loadRecords[T any](r *reader, key cache.Key) ([]T, error) {
	raw, err := r.load(key)
	if err != nil {
		return nil, err
	}
	recs, err := school.Decode[T](raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return recs, nil
}

func (j *JSONCmd) run(ctx context.Context, w io.Writer, src datasetSource, now time.Time) error {
	r := &reader{ctx: ctx, src: src, cached: true}
	data, err := j.collect(r, now)
	if err != nil {
		_ = j.write(w, envelope{Success: false, Error: err.Error()})
		return err
	}
	env := envelope{Success: true, Cached: r.cached, Data: data}
	if r.cached && !r.cachedAt.IsZero() {
		env.CachedAt = r.cachedAt.UTC().Format(time.RFC3339)
	}
	return j.write(w, env)
}

func (j *JSONCmd) write(w io.Writer, env envelope) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if j.Format != "compact" {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(env)
}

func (j *JSONCmd) collect(r *reader, now time.Time) (any, error) {
	switch j.Kind {
	case "notifications":
		return r.load(cache.AccountKey(cache.KindNotifications))
	case "messages":
		return r.load(cache.AccountKey(cache.KindMessages))
	}

	students, err := loadRecords[school.Student](r, cache.StudentsKey())
	if err != nil {
		return nil, err
	}
	school.SortStudents(students)

	switch j.Kind {
	case "students":
		out := make([]indexedStudent, len(students))
		for i, s := range students {
			out[i] = indexedStudent{Index: i + 1, Student: s}
		}
		return out, nil
	case "schedule":
		day := now
		if j.Date != "" {
			if day, err = time.ParseInLocation(cache.DateLayout, j.Date, now.Location()); err != nil {
				return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", j.Date)
			}
		}
		var out []map[string]any
		for _, s := range school.SelectStudents(students, j.Student) {
			raw, err := r.load(cache.ScheduleKey(s.ID, day))
			if err != nil {
				return nil, err
			}
			out = append(out, map[string]any{"student": s, "date": day.Format(cache.DateLayout), "schedule": raw})
		}
		return out, nil
	case "summary":
		return j.summary(r, school.SelectStudents(students, j.Student), now)
	}

	kind, err := cache.ParseKind(j.Kind)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, s := range school.SelectStudents(students, j.Student) {
		raw, err := r.load(cache.StudentKey(kind, s.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"student": s, j.Kind: raw})
	}
	return out, nil
}

func (j *JSONCmd) summary(r *reader, students []school.Student, now time.Time) ([]studentSummary, error) {
	out := make([]studentSummary, 0, len(students))
	for _, s := range students {
		hours, err := loadRecords[school.ScheduleHour](r, cache.ScheduleKey(s.ID, now))
		if err != nil {
			return nil, err
		}
		school.SortSchedule(hours)
		hw, err := loadRecords[school.Homework](r, cache.StudentKey(cache.KindHomework, s.ID))
		if err != nil {
			return nil, err
		}
		school.SortHomework(hw)
		if len(hw) > recentHomework {
			hw = hw[:recentHomework]
		}
		grades, err := loadRecords[school.Grade](r, cache.StudentKey(cache.KindGrades, s.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, studentSummary{
			Student:        s,
			TodaySchedule:  hours,
			RecentHomework: hw,
			GradesCount:    len(school.FilterGrades(grades)),
		})
	}
	return out, nil
}
