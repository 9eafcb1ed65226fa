package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTTL is how long a dataset stays fresh unless configured otherwise.
const DefaultTTL = time.Hour

// Entry is one cached dataset.
type Entry struct {
	Payload    json.RawMessage
	FetchedAt  time.Time
	TTL        time.Duration
	Generation uint64
}

// Fresh reports whether the entry is still within its TTL at now.
// The expiry instant itself is stale.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// Age is the time elapsed since the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Decode unmarshals the payload into v.
func (e Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("cache: decoding payload: %w", err)
	}
	return nil
}

// FormatAge renders a duration as a short "N<unit> ago" string.
func FormatAge(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	default:
		return fmt.Sprintf("%dd ago", secs/86400)
	}
}

// Snapshot is a read-only copy of the store's entries for one frame.
type Snapshot struct {
	entries map[Key]Entry
}

// NewSnapshot builds a snapshot from a set of entries.
func NewSnapshot(entries map[Key]Entry) Snapshot {
	cp := make(map[Key]Entry, len(entries))
	for k, e := range entries {
		cp[k] = e
	}
	return Snapshot{entries: cp}
}

// Get returns the entry for key, if present.
func (s Snapshot) Get(key Key) (Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// Len is the number of entries in the snapshot.
func (s Snapshot) Len() int { return len(s.entries) }
