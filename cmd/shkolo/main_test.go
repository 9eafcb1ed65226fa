package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang-jwt/jwt/v5"

	"github.com/smileynet/shkolo/internal/auth"
	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/config"
	"github.com/smileynet/shkolo/internal/refresh"
	"github.com/smileynet/shkolo/internal/school"
	"github.com/smileynet/shkolo/internal/shkolo"
)

// errExitCalled is a sentinel used to catch kong's os.Exit calls in tests.
var errExitCalled = errors.New("exit called")

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func TestCLI_Parsing(t *testing.T) {
	t.Run("version flag prints version commit and date", func(t *testing.T) {
		// Given: a CLI parser with version, commit, and date fields
		var cli CLI
		var buf bytes.Buffer
		versionStr := "v1.0.0 abc1234 2026-01-01T00:00:00Z"
		k, err := kong.New(&cli,
			kong.Vars{"version": versionStr},
			kong.Writers(&buf, &buf),
			kong.Exit(func(int) { panic(errExitCalled) }),
		)
		if err != nil {
			t.Fatal(err)
		}

		// When: --version flag is passed
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected panic from --version flag")
			}
			err, ok := r.(error)
			if !ok || !errors.Is(err, errExitCalled) {
				panic(r)
			}

			// Then: version, commit, and date are all present in output
			output := buf.String()
			for _, want := range []string{"v1.0.0", "abc1234", "2026-01-01T00:00:00Z"} {
				if !strings.Contains(output, want) {
					t.Errorf("version output = %q, want to contain %q", output, want)
				}
			}
		}()

		k.Parse([]string{"--version"}) //nolint:errcheck // --version triggers panic via Exit hook
	})

	t.Run("no args shows usage and errors", func(t *testing.T) {
		var cli CLI
		k, err := kong.New(&cli, kong.Vars{"version": "test"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err = k.Parse([]string{}); err == nil {
			t.Fatal("expected error when no command provided")
		}
	})

	t.Run("json arguments and global flags", func(t *testing.T) {
		// Given: a CLI parser
		var cli CLI
		k, err := kong.New(&cli, kong.Vars{"version": "test"})
		if err != nil {
			t.Fatal(err)
		}

		// When: parsing a json command with every optional part
		ctx, err := k.Parse([]string{"--refresh", "--cache-ttl", "60", "json", "schedule", "2", "2025-03-17", "--format", "compact"})
		if err != nil {
			t.Fatal(err)
		}

		// Then: arguments and flags land in the right fields
		if !strings.HasPrefix(ctx.Command(), "json") {
			t.Errorf("command = %q", ctx.Command())
		}
		if cli.JSON.Kind != "schedule" || cli.JSON.Student != "2" || cli.JSON.Date != "2025-03-17" || cli.JSON.Format != "compact" {
			t.Errorf("json = %+v", cli.JSON)
		}
		if !cli.Refresh || cli.CacheTTL != 60 {
			t.Errorf("globals = %+v", cli.Globals)
		}
	})

	t.Run("unknown json kind is rejected", func(t *testing.T) {
		var cli CLI
		k, err := kong.New(&cli, kong.Vars{"version": "test"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := k.Parse([]string{"json", "weather"}); err == nil {
			t.Error("expected an error for an unknown dataset")
		}
	})

	t.Run("cache actions are exclusive", func(t *testing.T) {
		var cli CLI
		k, err := kong.New(&cli, kong.Vars{"version": "test"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := k.Parse([]string{"cache", "--clear", "--refetch"}); err == nil {
			t.Error("expected an error for --clear with --refetch")
		}
	})

	t.Run("cache refetch and global refresh are distinct flags", func(t *testing.T) {
		// Given: a CLI parser
		var cli CLI
		k, err := kong.New(&cli, kong.Vars{"version": "test"})
		if err != nil {
			t.Fatal(err)
		}

		// When: both the global refresh and the cache action are given
		ctx, err := k.Parse([]string{"--refresh", "cache", "--refetch"})
		if err != nil {
			t.Fatal(err)
		}

		// Then: each lands in its own field
		if ctx.Command() != "cache" {
			t.Errorf("command = %q, want cache", ctx.Command())
		}
		if !cli.Refresh || !cli.Cache.Refetch || cli.Cache.Clear || cli.Cache.ClearAll {
			t.Errorf("refresh = %v, cache = %+v", cli.Refresh, cli.Cache)
		}
	})

	t.Run("tui is an alias for dashboard", func(t *testing.T) {
		var cli CLI
		k, err := kong.New(&cli, kong.Vars{"version": "test"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := k.Parse([]string{"tui", "--lang", "en"}); err != nil {
			t.Fatal(err)
		}
		if cli.Dashboard.Lang != "en" {
			t.Errorf("lang = %q, want en", cli.Dashboard.Lang)
		}
	})
}

func TestExitCode(t *testing.T) {
	key := cache.StudentsKey()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"fetch error", &refresh.FetchError{Key: key, Class: refresh.ClassNetwork, Err: errors.New("timeout")}, exitFetch},
		{"wrapped api error", fmt.Errorf("login failed: %w", &shkolo.APIError{Status: 500}), exitFetch},
		{"not logged in", fmt.Errorf("%w: run login", auth.ErrNotLoggedIn), exitFetch},
		{"config error", errors.New("config: cache.ttl must be positive"), exitSetup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestGlobals_LoadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Setenv("SHKOLO_CACHE_DIR", dir)

	t.Run("cache-ttl flag overrides the default", func(t *testing.T) {
		g := Globals{CacheTTL: 90}
		cfg, err := g.loadConfig()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Cache.TTL != 90*time.Second || cfg.Cache.Dir != dir {
			t.Errorf("cache = %+v", cfg.Cache)
		}
		p := g.policy(cfg)
		if p.TTL != 90*time.Second || p.BypassCache || p.ForceRefreshAll {
			t.Errorf("policy = %+v", p)
		}
	})

	t.Run("negative ttl is rejected", func(t *testing.T) {
		g := Globals{CacheTTL: -1}
		if _, err := g.loadConfig(); err == nil {
			t.Error("expected an error for a negative TTL")
		}
	})

	t.Run("flags select the policy", func(t *testing.T) {
		g := Globals{Refresh: true, NoCache: true}
		cfg, err := g.loadConfig()
		if err != nil {
			t.Fatal(err)
		}
		if p := g.policy(cfg); !p.BypassCache || !p.ForceRefreshAll || p.TTL != time.Hour {
			t.Errorf("policy = %+v", p)
		}
	})
}

// fakeService serves fixed school records and counts fetches per key.
type fakeService struct {
	mu      sync.Mutex
	data    map[cache.Key]any
	fail    map[cache.Key]error
	fetched map[cache.Key]int
}

func newFakeService() *fakeService {
	ana := school.Student{ID: 11, Name: "Ана Иванова", ClassName: "5А"}
	boris := school.Student{ID: 22, Name: "Борис Петров", ClassName: "3Б"}
	var hw []school.Homework
	for i := 1; i <= 7; i++ {
		hw = append(hw, school.Homework{Subject: "Математика", Text: fmt.Sprintf("Задача %d", i), DateSort: fmt.Sprintf("2025-03-%02d", i)})
	}
	data := map[cache.Key]any{
		cache.StudentsKey(): []school.Student{boris, ana},
		cache.StudentKey(cache.KindGrades, 11): []school.Grade{
			{Subject: "Математика", Term1Grades: []string{"6"}},
			{Subject: "Физика"},
		},
		cache.StudentKey(cache.KindGrades, 22):   []school.Grade{{Subject: "История", Term1Grades: []string{"5"}}},
		cache.StudentKey(cache.KindHomework, 11): hw,
		cache.ScheduleKey(11, testNow): []school.ScheduleHour{
			{HourNumber: 2, Subject: "Химия"},
			{HourNumber: 1, Subject: "Биология"},
		},
		cache.AccountKey(cache.KindNotifications): []school.Notification{{Title: "Родителска среща"}},
	}
	return &fakeService{data: data, fail: map[cache.Key]error{}, fetched: map[cache.Key]int{}}
}

func (f *fakeService) Fetch(_ context.Context, key cache.Key) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched[key]++
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	v, ok := f.data[key]
	if !ok {
		v = []struct{}{}
	}
	return json.Marshal(v)
}

func (f *fakeService) count(key cache.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[key]
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(t.TempDir(), cache.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func newCoordinator(t *testing.T, store *cache.Store, svc *fakeService, policy refresh.Policy) *refresh.Coordinator {
	t.Helper()
	c := refresh.New(store, svc, policy, refresh.WithClock(func() time.Time { return testNow }))
	t.Cleanup(c.Close)
	return c
}

func newTestCoordinator(t *testing.T, svc *fakeService, policy refresh.Policy) *refresh.Coordinator {
	t.Helper()
	return newCoordinator(t, newTestStore(t), svc, policy)
}

func decodeEnvelope(t *testing.T, out []byte, data any) envelope {
	t.Helper()
	var env struct {
		envelope
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decoding data: %v\n%s", err, env.Data)
		}
	}
	return env.envelope
}

func TestJSONCmd_Students(t *testing.T) {
	// Given: an empty cache
	svc := newFakeService()
	coord := newTestCoordinator(t, svc, refresh.Policy{})
	cmd := &JSONCmd{Kind: "students", Format: "pretty"}

	// When: students are printed twice
	var first, second bytes.Buffer
	if err := cmd.run(context.Background(), &first, coord, testNow); err != nil {
		t.Fatal(err)
	}
	if err := cmd.run(context.Background(), &second, coord, testNow); err != nil {
		t.Fatal(err)
	}

	// Then: the first answer is fetched and the second comes from the cache
	var students []indexedStudent
	env := decodeEnvelope(t, first.Bytes(), &students)
	if !env.Success || env.Cached || env.CachedAt != "" {
		t.Errorf("first envelope = %+v, want fetched", env)
	}
	if len(students) != 2 || students[0].Index != 1 || students[0].Name != "Ана Иванова" {
		t.Errorf("students = %+v, want sorted with 1-based index", students)
	}
	env = decodeEnvelope(t, second.Bytes(), nil)
	if !env.Cached || env.CachedAt != "2025-03-14T10:00:00Z" {
		t.Errorf("second envelope = %+v, want cached at fetch time", env)
	}
	if got := svc.count(cache.StudentsKey()); got != 1 {
		t.Errorf("students fetched %d times, want 1", got)
	}
	if !strings.Contains(first.String(), "\n  \"success\": true") {
		t.Errorf("pretty output should be indented:\n%s", first.String())
	}
}

func TestJSONCmd_GradesForSelectedStudent(t *testing.T) {
	svc := newFakeService()
	coord := newTestCoordinator(t, svc, refresh.Policy{})
	cmd := &JSONCmd{Kind: "grades", Student: "борис", Format: "compact"}

	var out bytes.Buffer
	if err := cmd.run(context.Background(), &out, coord, testNow); err != nil {
		t.Fatal(err)
	}

	var data []struct {
		Student school.Student `json:"student"`
		Grades  []school.Grade `json:"grades"`
	}
	decodeEnvelope(t, out.Bytes(), &data)
	if len(data) != 1 || data[0].Student.ID != 22 || len(data[0].Grades) != 1 || data[0].Grades[0].Subject != "История" {
		t.Errorf("data = %+v, want Boris's grades only", data)
	}
	if strings.Count(strings.TrimSpace(out.String()), "\n") != 0 {
		t.Errorf("compact output should be one line:\n%s", out.String())
	}
	if svc.count(cache.StudentKey(cache.KindGrades, 11)) != 0 {
		t.Error("unselected student should not be fetched")
	}
}

func TestJSONCmd_ScheduleDate(t *testing.T) {
	svc := newFakeService()
	coord := newTestCoordinator(t, svc, refresh.Policy{})

	// Given: no date, the schedule is for today
	var out bytes.Buffer
	if err := (&JSONCmd{Kind: "schedule", Student: "1"}).run(context.Background(), &out, coord, testNow); err != nil {
		t.Fatal(err)
	}
	var data []struct {
		Date     string                `json:"date"`
		Schedule []school.ScheduleHour `json:"schedule"`
	}
	decodeEnvelope(t, out.Bytes(), &data)
	if len(data) != 1 || data[0].Date != "2025-03-14" || len(data[0].Schedule) != 2 {
		t.Errorf("data = %+v, want today's two lessons", data)
	}

	// When: an explicit date is given, that day's key is fetched
	out.Reset()
	if err := (&JSONCmd{Kind: "schedule", Student: "1", Date: "2025-03-17"}).run(context.Background(), &out, coord, testNow); err != nil {
		t.Fatal(err)
	}
	if svc.count(cache.ScheduleKey(11, time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC))) != 1 {
		t.Error("expected the requested day to be fetched")
	}

	// A malformed date is an error.
	if err := (&JSONCmd{Kind: "schedule", Date: "17.03.2025"}).run(context.Background(), &out, coord, testNow); err == nil {
		t.Error("expected an error for a malformed date")
	}
}

func TestJSONCmd_Summary(t *testing.T) {
	svc := newFakeService()
	coord := newTestCoordinator(t, svc, refresh.Policy{})

	var out bytes.Buffer
	if err := (&JSONCmd{Kind: "summary", Student: "1"}).run(context.Background(), &out, coord, testNow); err != nil {
		t.Fatal(err)
	}

	var data []studentSummary
	decodeEnvelope(t, out.Bytes(), &data)
	if len(data) != 1 {
		t.Fatalf("summary has %d students, want 1", len(data))
	}
	s := data[0]
	if len(s.RecentHomework) != recentHomework || s.RecentHomework[0].Text != "Задача 7" {
		t.Errorf("recent homework = %+v, want newest five", s.RecentHomework)
	}
	if s.GradesCount != 1 {
		t.Errorf("grades_count = %d, want 1 (subjects with marks)", s.GradesCount)
	}
	if len(s.TodaySchedule) != 2 || s.TodaySchedule[0].Subject != "Биология" {
		t.Errorf("today_schedule = %+v, want sorted by hour", s.TodaySchedule)
	}
}

func TestJSONCmd_AccountWide(t *testing.T) {
	svc := newFakeService()
	coord := newTestCoordinator(t, svc, refresh.Policy{})

	var out bytes.Buffer
	if err := (&JSONCmd{Kind: "notifications"}).run(context.Background(), &out, coord, testNow); err != nil {
		t.Fatal(err)
	}
	var data []school.Notification
	decodeEnvelope(t, out.Bytes(), &data)
	if len(data) != 1 || data[0].Title != "Родителска среща" {
		t.Errorf("notifications = %+v", data)
	}
	if svc.count(cache.StudentsKey()) != 0 {
		t.Error("account-wide datasets should not need the student list")
	}
}

func TestJSONCmd_RefreshAndBypass(t *testing.T) {
	svc := newFakeService()
	store := newTestStore(t)
	coord := newCoordinator(t, store, svc, refresh.Policy{})
	var out bytes.Buffer
	if err := (&JSONCmd{Kind: "students"}).run(context.Background(), &out, coord, testNow); err != nil {
		t.Fatal(err)
	}

	// Given: a warm cache shared with a coordinator that bypasses it
	bypass := newCoordinator(t, store, svc, refresh.Policy{BypassCache: true})

	// When: printing with --no-cache
	out.Reset()
	if err := (&JSONCmd{Kind: "students"}).run(context.Background(), &out, bypass, testNow); err != nil {
		t.Fatal(err)
	}

	// Then: the data is refetched and not reported as cached
	if env := decodeEnvelope(t, out.Bytes(), nil); env.Cached {
		t.Errorf("envelope = %+v, want not cached", env)
	}
	if got := svc.count(cache.StudentsKey()); got != 2 {
		t.Errorf("students fetched %d times, want 2", got)
	}
}

func TestJSONCmd_FetchFailure(t *testing.T) {
	svc := newFakeService()
	svc.fail[cache.StudentsKey()] = fmt.Errorf("shkolo: %w", refresh.ErrAuthExpired)
	coord := newTestCoordinator(t, svc, refresh.Policy{})

	var out bytes.Buffer
	err := (&JSONCmd{Kind: "grades"}).run(context.Background(), &out, coord, testNow)

	var fe *refresh.FetchError
	if !errors.As(err, &fe) || fe.Class != refresh.ClassAuthExpired {
		t.Fatalf("err = %v, want auth-expired fetch error", err)
	}
	if exitCode(err) != exitFetch {
		t.Errorf("exitCode = %d, want %d", exitCode(err), exitFetch)
	}
	if env := decodeEnvelope(t, out.Bytes(), nil); env.Success || env.Error == "" {
		t.Errorf("envelope = %+v, want failure with message", env)
	}
}

func TestRefreshAll(t *testing.T) {
	// Given: a service where Boris's absences fail
	svc := newFakeService()
	failing := cache.StudentKey(cache.KindAbsences, 22)
	svc.fail[failing] = errors.New("connection reset")
	coord := newTestCoordinator(t, svc, refresh.Policy{})

	// When: refreshing everything
	var out bytes.Buffer
	if err := refreshAll(context.Background(), &out, coord, testNow); err != nil {
		t.Fatal(err)
	}

	// Then: every dataset was fetched and the failure was reported without aborting
	got := out.String()
	for _, want := range []string{
		"Refreshing all data...",
		"Refreshed 2 students",
		"Refreshed data for Ана Иванова",
		"warning: refresh: fetching " + failing.String(),
		"Refreshed messages",
		"All data refreshed!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Refreshed data for Борис Петров") {
		t.Errorf("a student with a failed dataset should not be reported as refreshed:\n%s", got)
	}
	for _, key := range []cache.Key{
		cache.ScheduleKey(22, testNow),
		cache.StudentKey(cache.KindFeedbacks, 11),
		cache.AccountKey(cache.KindNotifications),
	} {
		if svc.count(key) != 1 {
			t.Errorf("%s fetched %d times, want 1", key, svc.count(key))
		}
	}
}

func TestRefreshAll_StudentsFailure(t *testing.T) {
	svc := newFakeService()
	svc.fail[cache.StudentsKey()] = errors.New("no route to host")
	coord := newTestCoordinator(t, svc, refresh.Policy{})

	var out bytes.Buffer
	if err := refreshAll(context.Background(), &out, coord, testNow); err == nil {
		t.Fatal("expected an error when the student list cannot be fetched")
	}
	if strings.Contains(out.String(), "All data refreshed!") {
		t.Error("should not claim success")
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("test"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestPrintStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Dir = t.TempDir()

	t.Run("not authenticated", func(t *testing.T) {
		var out bytes.Buffer
		if err := printStatus(&out, &cfg, testNow); err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"Status: Not authenticated", "shkolo login", "Cache TTL: 3600 seconds"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("output missing %q:\n%s", want, out.String())
			}
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		cred := auth.Credential{Token: signedToken(t, testNow.Add(-time.Hour)), SchoolYear: 2024, UserName: "Мария Иванова"}
		if err := auth.Save(cfg.Cache.Dir, cred); err != nil {
			t.Fatal(err)
		}
		var out bytes.Buffer
		if err := printStatus(&out, &cfg, testNow); err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"Status: Authenticated", "User: Мария Иванова", "School Year ID: 2024", "Token expired:", "Cache directory: " + cfg.Cache.Dir} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("output missing %q:\n%s", want, out.String())
			}
		}
	})
}

func TestImportTokenCmd(t *testing.T) {
	dir := t.TempDir()
	cmd := &ImportTokenCmd{Token: "Bearer " + signedToken(t, testNow.Add(24*time.Hour)), SchoolYear: 2024}

	var out bytes.Buffer
	if err := cmd.run(&out, dir, testNow); err != nil {
		t.Fatal(err)
	}

	cred, err := auth.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(cred.Token, "Bearer") || cred.SchoolYear != 2024 {
		t.Errorf("credential = %+v", cred)
	}
	if !strings.Contains(out.String(), "Token expires:") {
		t.Errorf("output = %q, want expiry", out.String())
	}

	if err := (&ImportTokenCmd{Token: "x", SchoolYear: 0}).run(&out, dir, testNow); err == nil {
		t.Error("expected an error for a missing school year")
	}
}

type fakeAuthenticator struct {
	sess shkolo.Session
	err  error
}

func (f fakeAuthenticator) Login(context.Context, string, string) (shkolo.Session, error) {
	return f.sess, f.err
}

func TestLoginCmd(t *testing.T) {
	t.Run("saves the session", func(t *testing.T) {
		dir := t.TempDir()
		cmd := &LoginCmd{Username: "parent", Password: "secret"}
		var out bytes.Buffer
		a := fakeAuthenticator{sess: shkolo.Session{Token: "tok", SchoolYear: 2024, UserName: "Мария"}}

		if err := cmd.run(context.Background(), &out, a, dir); err != nil {
			t.Fatal(err)
		}
		cred, err := auth.Load(dir)
		if err != nil || cred.Token != "tok" || cred.SchoolYear != 2024 {
			t.Errorf("credential = %+v, %v", cred, err)
		}
		if !strings.Contains(out.String(), "Logged in as Мария (school year 2024)") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("failure stores nothing", func(t *testing.T) {
		dir := t.TempDir()
		cmd := &LoginCmd{Username: "parent", Password: "wrong"}
		err := cmd.run(context.Background(), &bytes.Buffer{}, fakeAuthenticator{err: &shkolo.APIError{Status: 422, Body: "invalid credentials"}}, dir)
		if exitCode(err) != exitFetch {
			t.Errorf("err = %v, want a fetch failure", err)
		}
		if _, err := auth.Load(dir); !errors.Is(err, auth.ErrNotLoggedIn) {
			t.Errorf("Load after failed login = %v, want ErrNotLoggedIn", err)
		}
	})
}

type fakeRunner struct {
	ran bool
	err error
}

func (f *fakeRunner) Run() (tea.Model, error) {
	f.ran = true
	return nil, f.err
}

func TestDashboardCmd_Run(t *testing.T) {
	t.Run("requires a terminal", func(t *testing.T) {
		prog := &fakeRunner{}
		err := (&DashboardCmd{}).run(false, prog)
		if err == nil || !strings.Contains(err.Error(), "TTY") {
			t.Errorf("err = %v, want TTY error", err)
		}
		if prog.ran {
			t.Error("program should not start without a terminal")
		}
	})

	t.Run("runs the program", func(t *testing.T) {
		prog := &fakeRunner{err: errors.New("boom")}
		if err := (&DashboardCmd{}).run(true, prog); err == nil || !prog.ran {
			t.Errorf("ran = %v, err = %v", prog.ran, err)
		}
	})
}

func TestDrain_BoundedByGrace(t *testing.T) {
	// Given: a fetch that never finishes on its own
	release := make(chan struct{})
	coord := refresh.New(newTestStore(t), refresh.FetcherFunc(func(context.Context, cache.Key) ([]byte, error) {
		<-release
		return []byte("[]"), nil
	}), refresh.Policy{})
	defer func() {
		close(release)
		coord.Wait()
	}()
	coord.Request(cache.StudentsKey(), false)

	// When: draining with a short grace period
	start := time.Now()
	drain(coord, 50*time.Millisecond)

	// Then: shutdown does not hang on the fetch
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("drain took %v", elapsed)
	}
}
