package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/config"
	"github.com/smileynet/shkolo/internal/refresh"
	"github.com/smileynet/shkolo/internal/school"
)

// refreshConcurrency bounds parallel fetches during cache --refetch.
const refreshConcurrency = 4

// CacheCmd shows the cache location or clears and refills it.
type CacheCmd struct {
	Clear    bool `help:"Remove cached data, keeping the sign-in." xor:"action"`
	ClearAll bool `help:"Remove cached data and the sign-in." name:"clear-all" xor:"action"`
	Refetch  bool `help:"Refetch every dataset for every student." xor:"action"`
}

// Run executes the cache command.
func (c *CacheCmd) Run(g *Globals) error {
	e, err := g.open()
	if err != nil {
		return err
	}
	defer e.close()

	switch {
	case c.ClearAll:
		if err := e.store.ClearAll(); err != nil {
			return err
		}
		fmt.Println("All cache cleared (including token)")
		return nil
	case c.Clear:
		if err := e.store.ClearData(); err != nil {
			return err
		}
		fmt.Println("Cache cleared (token preserved)")
		return nil
	case c.Refetch:
		cred, err := e.credential()
		if err != nil {
			return err
		}
		coord := refresh.New(e.store, e.client(cred), g.policy(e.cfg), refresh.WithLogger(e.log))
		defer coord.Close()
		return refreshAll(context.Background(), os.Stdout, coord, time.Now())
	}
	printCacheInfo(os.Stdout, e.cfg, e.store.Keys())
	return nil
}

func printCacheInfo(w io.Writer, cfg *config.Config, keys []cache.Key) {
	fmt.Fprintf(w, "Cache directory: %s\n", cfg.Cache.Dir)
	fmt.Fprintf(w, "Cache TTL: %d seconds\n", int(cfg.Cache.TTL.Seconds()))
	fmt.Fprintf(w, "Cached datasets: %d\n", len(keys))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  --clear      Clear cached data (keep token)")
	fmt.Fprintln(w, "  --clear-all  Clear everything including token")
	fmt.Fprintln(w, "  --refetch    Refetch all data now")
}

// studentKinds are refetched for each student by cache --refetch.
var studentKinds = []cache.Kind{
	cache.KindGrades, cache.KindHomework, cache.KindAbsences, cache.KindFeedbacks,
}

// refreshAll refetches the student list, then every dataset for every
// student plus the account-wide ones. A failing dataset is reported and
// skipped; only a failure to list students aborts.
func refreshAll(ctx context.Context, w io.Writer, src datasetSource, now time.Time) error {
	fmt.Fprintln(w, "Refreshing all data...")

	e, err := src.Ensure(ctx, cache.StudentsKey(), true)
	if err != nil {
		return err
	}
	students, err := school.Decode[school.Student](e.Payload)
	if err != nil {
		return fmt.Errorf("%s: %w", cache.StudentsKey(), err)
	}
	school.SortStudents(students)
	fmt.Fprintf(w, "  Refreshed %d students\n", len(students))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(refreshConcurrency)
	report := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format, args...)
	}
	fetch := func(key cache.Key) error {
		if _, err := src.Ensure(ctx, key, true); err != nil {
			report("warning: %s\n", err)
			return err
		}
		return nil
	}

	for _, s := range students {
		keys := []cache.Key{cache.ScheduleKey(s.ID, now)}
		for _, k := range studentKinds {
			keys = append(keys, cache.StudentKey(k, s.ID))
		}
		g.Go(func() error {
			var failed bool
			for _, key := range keys {
				failed = fetch(key) != nil || failed
			}
			if !failed {
				report("  Refreshed data for %s\n", s.Name)
			}
			return nil
		})
	}
	for _, k := range []cache.Kind{cache.KindNotifications, cache.KindMessages} {
		key := cache.AccountKey(k)
		g.Go(func() error {
			if fetch(key) == nil {
				report("  Refreshed %s\n", k)
			}
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintln(w, "All data refreshed!")
	return nil
}
