package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smileynet/shkolo/internal/cache"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// call is one pending fetch held open by gatedFetcher until the test replies.
type call struct {
	key   cache.Key
	reply chan reply
}

type reply struct {
	payload string
	err     error
}

// gatedFetcher blocks every fetch until the test answers it.
type gatedFetcher struct {
	calls chan call
	count atomic.Int32
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{calls: make(chan call, 8)}
}

func (f *gatedFetcher) Fetch(_ context.Context, key cache.Key) ([]byte, error) {
	f.count.Add(1)
	c := call{key: key, reply: make(chan reply, 1)}
	f.calls <- c
	r := <-c.reply
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.payload), nil
}

func (f *gatedFetcher) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("expected a fetch")
		return call{}
	}
}

func (f *gatedFetcher) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected fetch for %s", c.key)
	case <-time.After(50 * time.Millisecond):
	}
}

func newHarness(t *testing.T, policy Policy) (*cache.Store, *Coordinator, *gatedFetcher, *clock) {
	t.Helper()
	clk := &clock{now: t0}
	store, err := cache.Open(t.TempDir(), cache.WithClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}
	f := newGatedFetcher()
	c := New(store, f, policy, WithClock(clk.Now))
	t.Cleanup(c.Close)
	return store, c, f, clk
}

func nextEvent(t *testing.T, c *Coordinator) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("expected an event")
		return Event{}
	}
}

func mustPut(t *testing.T, store *cache.Store, key cache.Key, payload string) {
	t.Helper()
	if err := store.Put(key, []byte(payload), time.Hour); err != nil {
		t.Fatal(err)
	}
}

func payloadOf(t *testing.T, store *cache.Store, key cache.Key) string {
	t.Helper()
	e, ok := store.Get(key)
	if !ok {
		t.Fatalf("%s not cached", key)
	}
	return string(e.Payload)
}

func TestRequest_FreshnessBoundary(t *testing.T) {
	// Given: grades fetched at t0 with a one hour TTL
	store, c, f, clk := newHarness(t, Policy{TTL: time.Hour})
	key := cache.StudentKey(cache.KindGrades, 1)
	mustPut(t, store, key, `[]`)

	// When: a non-forced request arrives 3599s later
	clk.Set(t0.Add(3599 * time.Second))
	launched := c.Request(key, false)

	// Then: nothing is fetched
	if launched {
		t.Error("fresh entry should not be fetched")
	}
	f.assertIdle(t)

	// When: the request arrives 3601s after the fetch
	clk.Set(t0.Add(3601 * time.Second))
	launched = c.Request(key, false)

	// Then: exactly one fetch runs and its result replaces the entry
	if !launched {
		t.Fatal("stale entry should be fetched")
	}
	f.next(t).reply <- reply{payload: `["new"]`}
	if ev := nextEvent(t, c); ev.Failed() {
		t.Errorf("event failed: %v", ev.Err)
	}
	if got := payloadOf(t, store, key); got != `["new"]` {
		t.Errorf("payload = %s, want [\"new\"]", got)
	}
	if n := f.count.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestRequest_NonForcedJoinsInFlight(t *testing.T) {
	_, c, f, _ := newHarness(t, Policy{TTL: time.Hour})
	key := cache.StudentsKey()

	if !c.Request(key, false) {
		t.Fatal("first request should launch")
	}
	first := f.next(t)
	if c.Request(key, false) {
		t.Error("second plain request should join the fetch in flight")
	}
	if !c.InFlight(key) {
		t.Error("InFlight = false while fetching")
	}

	first.reply <- reply{payload: `[]`}
	nextEvent(t, c)
	f.assertIdle(t)
	c.Wait()
	if c.InFlight(key) {
		t.Error("InFlight = true after completion")
	}
}

func TestRequest_ForcedWhileInFlightRunsOneFollowUp(t *testing.T) {
	// Given: a fetch in flight
	store, c, f, _ := newHarness(t, Policy{TTL: time.Hour})
	key := cache.AccountKey(cache.KindMessages)
	if !c.Request(key, false) {
		t.Fatal("request should launch")
	}
	first := f.next(t)

	// When: two forced requests arrive before it completes
	for i := 0; i < 2; i++ {
		if !c.Request(key, true) {
			t.Fatalf("forced request #%d was ignored", i+1)
		}
	}

	// Then: the first result is discarded and one follow-up fetch is stored
	first.reply <- reply{payload: `["old"]`}
	second := f.next(t)
	second.reply <- reply{payload: `["new"]`}

	ev := nextEvent(t, c)
	if ev.Generation != store.Generation(key) {
		t.Errorf("event generation = %d, want %d", ev.Generation, store.Generation(key))
	}
	if got := payloadOf(t, store, key); got != `["new"]` {
		t.Errorf("payload = %s, want [\"new\"]", got)
	}
	f.assertIdle(t)
	if n := f.count.Load(); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}
}

func TestRequest_ForcedThenPlainMakesOneCall(t *testing.T) {
	// Given: an empty cache
	store, c, f, _ := newHarness(t, Policy{TTL: time.Hour})
	key := cache.StudentKey(cache.KindHomework, 2)

	// When: R (forced) then r (plain) are pressed back to back
	if !c.Request(key, true) {
		t.Fatal("forced request should launch")
	}
	if c.Request(key, false) {
		t.Error("plain request should join the forced fetch")
	}

	// Then: one network call, one stored result
	f.next(t).reply <- reply{payload: `[1]`}
	nextEvent(t, c)
	f.assertIdle(t)
	if n := f.count.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if _, ok := store.Get(key); !ok {
		t.Error("result not stored")
	}
}

func TestRequest_FailureLeavesEntryUntouched(t *testing.T) {
	// Given: a stale entry
	store, c, f, clk := newHarness(t, Policy{TTL: time.Hour})
	key := cache.StudentKey(cache.KindAbsences, 3)
	mustPut(t, store, key, `["prior"]`)
	clk.Set(t0.Add(2 * time.Hour))

	// When: the refresh is rejected by the service
	if !c.Request(key, false) {
		t.Fatal("stale entry should be fetched")
	}
	f.next(t).reply <- reply{err: fmt.Errorf("GET: %w", ErrAuthExpired)}

	// Then: a classified failure is reported and the prior data remains
	ev := nextEvent(t, c)
	var fe *FetchError
	if !ev.Failed() || !errors.As(ev.Err, &fe) {
		t.Fatalf("event err = %v, want *FetchError", ev.Err)
	}
	if fe.Class != ClassAuthExpired || fe.Key != key {
		t.Errorf("FetchError = %s for %s, want auth-expired for %s", fe.Class, fe.Key, key)
	}
	e, _ := store.Get(key)
	if string(e.Payload) != `["prior"]` || !e.FetchedAt.Equal(t0) {
		t.Errorf("entry = %s@%v, want prior data from t0", e.Payload, e.FetchedAt)
	}
}

func TestRequest_NonJSONResponseIsReportedMalformed(t *testing.T) {
	// Given: a service that answers with an HTML error page
	clk := &clock{now: t0}
	store, err := cache.Open(t.TempDir(), cache.WithClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}
	key := cache.StudentKey(cache.KindGrades, 1)
	mustPut(t, store, key, `["prior"]`)
	clk.Set(t0.Add(2 * time.Hour))
	html := FetcherFunc(func(context.Context, cache.Key) ([]byte, error) {
		return []byte(`<html>oops`), nil
	})
	c := New(store, html, Policy{TTL: time.Hour}, WithClock(clk.Now))
	t.Cleanup(c.Close)

	// When: the stale entry is refreshed
	if !c.Request(key, false) {
		t.Fatal("stale entry should be fetched")
	}

	// Then: a malformed failure is reported and the prior data remains
	ev := nextEvent(t, c)
	var fe *FetchError
	if !ev.Failed() || !errors.As(ev.Err, &fe) {
		t.Fatalf("event err = %v, want *FetchError", ev.Err)
	}
	if fe.Class != ClassMalformed {
		t.Errorf("Class = %s, want malformed", fe.Class)
	}
	if !errors.Is(ev.Err, cache.ErrCorruptEntry) {
		t.Errorf("err = %v, want it to wrap cache.ErrCorruptEntry", ev.Err)
	}
	if got := payloadOf(t, store, key); got != `["prior"]` {
		t.Errorf("payload = %s, want prior data", got)
	}

	// And: a blocking refresh fails the same way instead of returning the page
	e, err := c.Ensure(context.Background(), key, true)
	if !errors.As(err, &fe) || fe.Class != ClassMalformed {
		t.Fatalf("Ensure err = %v, want malformed *FetchError", err)
	}
	if len(e.Payload) != 0 {
		t.Errorf("Ensure payload = %s, want none", e.Payload)
	}
}

func TestRequest_SupersededFailureIsSilent(t *testing.T) {
	store, c, f, _ := newHarness(t, Policy{TTL: time.Hour})
	key := cache.StudentsKey()
	if !c.Request(key, false) {
		t.Fatal("request should launch")
	}
	first := f.next(t)
	if !c.Request(key, true) {
		t.Fatal("forced request should be accepted")
	}

	first.reply <- reply{err: errors.New("boom")}
	f.next(t).reply <- reply{payload: `[]`}

	if ev := nextEvent(t, c); ev.Failed() {
		t.Errorf("superseded failure was reported: %v", ev.Err)
	}
	if _, ok := store.Get(key); !ok {
		t.Error("follow-up result not stored")
	}
}

func TestPolicy_BypassCacheStillWrites(t *testing.T) {
	store, c, f, _ := newHarness(t, Policy{TTL: time.Hour, BypassCache: true})
	key := cache.StudentsKey()
	mustPut(t, store, key, `["cached"]`)

	if !c.Request(key, false) {
		t.Fatal("bypass should fetch a fresh entry")
	}
	f.next(t).reply <- reply{payload: `["fetched"]`}
	nextEvent(t, c)

	if got := payloadOf(t, store, key); got != `["fetched"]` {
		t.Errorf("payload = %s, want [\"fetched\"]", got)
	}
	if !c.Stale(key) {
		t.Error("bypass should keep every entry stale")
	}
}

func TestPolicy_ForceRefreshAllOncePerKey(t *testing.T) {
	store, c, f, _ := newHarness(t, Policy{TTL: time.Hour, ForceRefreshAll: true})
	key := cache.StudentsKey()
	mustPut(t, store, key, `[]`)

	if !c.Stale(key) {
		t.Fatal("entry should be stale before its first refresh")
	}
	if !c.Request(key, false) {
		t.Fatal("request should launch")
	}
	f.next(t).reply <- reply{payload: `[]`}
	nextEvent(t, c)

	if c.Stale(key) {
		t.Error("entry should be fresh once refreshed")
	}
	if c.Request(key, false) {
		t.Error("second request should not launch")
	}
}

func TestEnsure_SharesOneFetch(t *testing.T) {
	_, c, f, _ := newHarness(t, Policy{TTL: time.Hour})
	key := cache.StudentKey(cache.KindGrades, 4)

	var wg sync.WaitGroup
	results := make([]cache.Entry, 3)
	errs := make([]error, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Ensure(context.Background(), key, false)
		}(i)
	}
	first := f.next(t)
	// Give the other callers time to join the shared call.
	time.Sleep(50 * time.Millisecond)
	first.reply <- reply{payload: `["g"]`}
	wg.Wait()

	f.assertIdle(t)
	for i, e := range results {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if string(e.Payload) != `["g"]` {
			t.Errorf("caller %d payload = %s", i, e.Payload)
		}
	}
}

func TestEnsure_FreshEntrySkipsFetch(t *testing.T) {
	store, c, f, _ := newHarness(t, Policy{TTL: time.Hour})
	key := cache.StudentsKey()
	mustPut(t, store, key, `["s"]`)

	e, err := c.Ensure(context.Background(), key, false)

	if err != nil {
		t.Fatal(err)
	}
	if string(e.Payload) != `["s"]` {
		t.Errorf("payload = %s, want cached value", e.Payload)
	}
	f.assertIdle(t)
}

func TestEnsure_ReturnsFetchError(t *testing.T) {
	_, c, f, _ := newHarness(t, Policy{TTL: time.Hour})
	key := cache.StudentsKey()

	go func() {
		c := <-f.calls
		c.reply <- reply{err: context.DeadlineExceeded}
	}()
	_, err := c.Ensure(context.Background(), key, true)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Class != ClassNetwork {
		t.Errorf("Class = %s, want network", fe.Class)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"auth", fmt.Errorf("x: %w", ErrAuthExpired), ClassAuthExpired},
		{"malformed sentinel", fmt.Errorf("x: %w", ErrMalformed), ClassMalformed},
		{"json syntax", syntaxError(), ClassMalformed},
		{"deadline", context.DeadlineExceeded, ClassNetwork},
		{"other", errors.New("boom"), ClassOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func syntaxError() error {
	var v any
	return json.Unmarshal([]byte(`{"a":`), &v)
}
