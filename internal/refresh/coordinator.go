// Package refresh decides when cached datasets need fetching and runs those
// fetches in the background.
//
// Every fetch is stamped with the key's generation at launch. A result is
// stored only if that generation is still current, so a slow response can
// never overwrite a newer one.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/smileynet/shkolo/internal/cache"
)

// Fetcher retrieves the raw payload for one dataset.
type Fetcher interface {
	Fetch(ctx context.Context, key cache.Key) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, key cache.Key) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, key cache.Key) ([]byte, error) {
	return f(ctx, key)
}

// Policy controls freshness decisions.
type Policy struct {
	TTL time.Duration
	// BypassCache treats every entry as stale. Results are still written.
	BypassCache bool
	// ForceRefreshAll treats every key as stale until it has been
	// refreshed once in this session.
	ForceRefreshAll bool
}

// Request asks for one dataset to be refreshed.
type Request struct {
	Key   cache.Key
	Force bool
}

// Event reports the outcome of a background fetch.
type Event struct {
	Key        cache.Key
	Generation uint64
	// Err is a *FetchError when the fetch failed.
	Err error
	// WriteErr is a *cache.WriteError when the result was kept in memory
	// but could not be persisted.
	WriteErr error
}

// Failed reports whether the fetch failed.
func (e Event) Failed() bool { return e.Err != nil }

type flight struct {
	followUp bool
}

// Coordinator launches fetches for stale datasets, at most one per key at a time.
type Coordinator struct {
	store   *cache.Store
	fetcher Fetcher
	policy  Policy
	log     *zap.Logger
	now     func() time.Time
	ctx     context.Context

	events chan Event
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	group  singleflight.Group

	mu        sync.Mutex
	inflight  map[cache.Key]*flight
	refreshed map[cache.Key]bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithContext sets the context passed to background fetches.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) { c.ctx = ctx }
}

// New creates a Coordinator writing into store.
func New(store *cache.Store, fetcher Fetcher, policy Policy, opts ...Option) *Coordinator {
	if policy.TTL <= 0 {
		policy.TTL = cache.DefaultTTL
	}
	c := &Coordinator{
		store:     store,
		fetcher:   fetcher,
		policy:    policy,
		log:       zap.NewNop(),
		now:       time.Now,
		ctx:       context.Background(),
		events:    make(chan Event, 64),
		closed:    make(chan struct{}),
		inflight:  make(map[cache.Key]*flight),
		refreshed: make(map[cache.Key]bool),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Events delivers fetch outcomes in completion order.
func (c *Coordinator) Events() <-chan Event { return c.events }

// Policy returns the freshness policy in effect.
func (c *Coordinator) Policy() Policy { return c.policy }

// Close stops event delivery. Fetches still running complete and write
// their results, but nobody is told about them.
func (c *Coordinator) Close() {
	c.once.Do(func() { close(c.closed) })
}

// Wait blocks until no background fetch is running.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Stale reports whether key should be fetched under the current policy.
func (c *Coordinator) Stale(key cache.Key) bool {
	if c.policy.BypassCache {
		return true
	}
	if c.policy.ForceRefreshAll {
		c.mu.Lock()
		done := c.refreshed[key]
		c.mu.Unlock()
		if !done {
			return true
		}
	}
	e, ok := c.store.Get(key)
	return !ok || !e.Fresh(c.now())
}

// InFlight reports whether a fetch for key is running.
func (c *Coordinator) InFlight(key cache.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[key]
	return ok
}

// Pending returns the set of keys with a fetch running.
func (c *Coordinator) Pending() map[cache.Key]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[cache.Key]bool, len(c.inflight))
	for k := range c.inflight {
		out[k] = true
	}
	return out
}

// Request schedules a fetch for key unless its entry is fresh and force is
// false. It never blocks on the network and reports whether a fetch was
// launched or scheduled.
//
// A non-forced request for a key already being fetched joins that fetch.
// A forced one supersedes it: the running fetch's result is discarded and
// exactly one follow-up fetch runs after it.
func (c *Coordinator) Request(key cache.Key, force bool) bool {
	if !force && !c.Stale(key) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inflight[key]; ok {
		if !force {
			return false
		}
		c.store.BumpGeneration(key)
		f.followUp = true
		c.log.Debug("refresh superseded", zap.Stringer("key", key))
		return true
	}
	gen := c.store.BumpGeneration(key)
	c.inflight[key] = &flight{}
	c.launch(key, gen)
	return true
}

// RequestAll issues every request in reqs.
func (c *Coordinator) RequestAll(reqs []Request) {
	for _, r := range reqs {
		c.Request(r.Key, r.Force)
	}
}

// launch must be called with c.mu held.
func (c *Coordinator) launch(key cache.Key, gen uint64) {
	c.wg.Add(1)
	c.log.Debug("refresh started", zap.Stringer("key", key), zap.Uint64("generation", gen))
	go func() {
		defer c.wg.Done()
		payload, err := c.fetcher.Fetch(c.ctx, key)
		c.complete(key, gen, payload, err)
	}()
}

func (c *Coordinator) complete(key cache.Key, gen uint64, payload []byte, err error) {
	var ev *Event
	if err != nil {
		if gen == c.store.Generation(key) {
			fe := &FetchError{Key: key, Class: Classify(err), Err: err}
			c.log.Warn("refresh failed", zap.Stringer("key", key), zap.Stringer("class", fe.Class), zap.Error(err))
			ev = &Event{Key: key, Generation: gen, Err: fe}
		}
	} else {
		stored, werr := c.store.PutIfGeneration(key, gen, payload, c.policy.TTL)
		switch fe := rejected(key, werr); {
		case fe != nil:
			if gen == c.store.Generation(key) {
				c.log.Warn("refresh failed", zap.Stringer("key", key), zap.Stringer("class", fe.Class), zap.Error(werr))
				ev = &Event{Key: key, Generation: gen, Err: fe}
			}
		case stored:
			c.mu.Lock()
			c.refreshed[key] = true
			c.mu.Unlock()
			ev = &Event{Key: key, Generation: gen, WriteErr: werr}
		default:
			c.log.Debug("discarding superseded result", zap.Stringer("key", key), zap.Uint64("generation", gen))
		}
	}

	c.mu.Lock()
	if f := c.inflight[key]; f != nil && f.followUp {
		f.followUp = false
		c.launch(key, c.store.Generation(key))
	} else {
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	if ev != nil {
		c.emit(*ev)
	}
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

// Ensure returns the entry for key, fetching it first when it is stale or
// force is set, and waits for the result. Concurrent callers for the same
// key share one fetch. On failure the returned error is a *FetchError.
func (c *Coordinator) Ensure(ctx context.Context, key cache.Key, force bool) (cache.Entry, error) {
	if !force && !c.Stale(key) {
		e, _ := c.store.Get(key)
		return e, nil
	}
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		gen := c.store.BumpGeneration(key)
		payload, err := c.fetcher.Fetch(ctx, key)
		if err != nil {
			return cache.Entry{}, &FetchError{Key: key, Class: Classify(err), Err: err}
		}
		stored, werr := c.store.PutIfGeneration(key, gen, payload, c.policy.TTL)
		if fe := rejected(key, werr); fe != nil {
			return cache.Entry{}, fe
		}
		if werr != nil {
			c.log.Warn("cache write failed", zap.Stringer("key", key), zap.Error(werr))
		}
		if stored {
			c.mu.Lock()
			c.refreshed[key] = true
			c.mu.Unlock()
		}
		if e, ok := c.store.Get(key); ok {
			return e, nil
		}
		// Cleared while fetching; hand back what was fetched.
		return cache.Entry{Payload: payload, FetchedAt: c.now(), TTL: c.policy.TTL, Generation: gen}, nil
	})
	if err != nil {
		return cache.Entry{}, err
	}
	return v.(cache.Entry), nil
}

// rejected turns a put error other than a failed disk write into a
// malformed-response failure. The cache refuses payloads that are not JSON
// and keys it cannot name, and neither should surface as fresh data.
func rejected(key cache.Key, err error) *FetchError {
	var werr *cache.WriteError
	if err == nil || errors.As(err, &werr) {
		return nil
	}
	return &FetchError{Key: key, Class: ClassMalformed, Err: err}
}
