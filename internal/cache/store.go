// Package cache implements the on-disk mirror of the school service's datasets.
//
// Each dataset lives in its own JSON file under a single directory. Writes
// go through a temp file and a rename so that a concurrent reader, in this
// process or another one, never observes a torn record.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CredentialFile is the name of the authentication artifact kept next to
// the cached datasets. Only ClearAll removes it.
const CredentialFile = "token.json"

var (
	// ErrInvalidKey indicates a key whose components do not agree with its kind.
	ErrInvalidKey = errors.New("cache: invalid key")
	// ErrCorruptEntry indicates a persisted record that could not be parsed.
	ErrCorruptEntry = errors.New("cache: corrupt entry")
)

// WriteError reports a failure to persist an entry. The entry is still
// held in memory.
type WriteError struct {
	Key Key
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache: writing %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// record is the persisted form of an Entry.
type record struct {
	Kind       Kind            `json:"kind"`
	StudentID  int64           `json:"student_id,omitempty"`
	Date       string          `json:"date,omitempty"`
	ThreadID   int64           `json:"thread_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	FetchedAt  time.Time       `json:"fetched_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
}

func (r record) key() Key {
	return Key{Kind: r.Kind, StudentID: r.StudentID, Date: r.Date, ThreadID: r.ThreadID}
}

// Store holds every cached dataset in memory and mirrors it to disk.
type Store struct {
	dir string
	log *zap.Logger
	now func() time.Time

	// writeMu orders disk writes so the file always matches the last
	// in-memory value. mu guards the maps and is never held across I/O.
	writeMu sync.Mutex
	mu      sync.RWMutex
	entries map[Key]Entry
	gens    map[Key]uint64

	loadErrs []error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load and write diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the time source used to stamp FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates dir if needed and loads every persisted record in it.
// Records that cannot be parsed are skipped and reported by LoadErrors.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:     dir,
		log:     zap.NewNop(),
		now:     time.Now,
		entries: make(map[Key]Entry),
		gens:    make(map[Key]uint64),
	}
	for _, o := range opts {
		o(s)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: creating directory: %w", err)
	}

	names, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: listing %s: %w", dir, err)
	}
	for _, de := range names {
		if de.IsDir() || !isRecordFile(de.Name()) {
			continue
		}
		p := filepath.Join(dir, de.Name())
		rec, err := readRecord(p)
		if err != nil {
			s.loadErrs = append(s.loadErrs, err)
			s.log.Warn("skipping cache record", zap.String("path", p), zap.Error(err))
			continue
		}
		s.entries[rec.key()] = entryFromRecord(rec, 0)
	}
	return s, nil
}

// Dir returns the directory the store persists to.
func (s *Store) Dir() string { return s.dir }

// LoadErrors returns the problems found while loading persisted records.
// Each wraps ErrCorruptEntry.
func (s *Store) LoadErrors() []error {
	return append([]error(nil), s.loadErrs...)
}

// Get returns the entry for key regardless of freshness.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Keys returns the keys currently held, sorted by their string form.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Snapshot copies the current entries for read-only use.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewSnapshot(s.entries)
}

// Generation returns the current fetch generation for key.
func (s *Store) Generation(key Key) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[key]
}

// BumpGeneration increments and returns the fetch generation for key.
// Call it before starting a fetch whose result should supersede older ones.
func (s *Store) BumpGeneration(key Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[key]++
	return s.gens[key]
}

// Put overwrites the entry for key, stamping FetchedAt with the current time.
// It keeps the key's generation as it is: generations only move forward
// through BumpGeneration, so a plain Put never supersedes a fetch in flight.
// The payload is stored in compact form, byte for byte as it is persisted.
// The in-memory value is replaced even when persisting fails; in that case
// the returned error is a *WriteError.
func (s *Store) Put(key Key, payload []byte, ttl time.Duration) error {
	_, err := s.put(key, payload, ttl, nil)
	return err
}

// PutIfGeneration stores payload only if gen is still the key's current
// generation. It reports whether the value was stored.
func (s *Store) PutIfGeneration(key Key, gen uint64, payload []byte, ttl time.Duration) (bool, error) {
	return s.put(key, payload, ttl, &gen)
}

func (s *Store) put(key Key, payload []byte, ttl time.Duration, gen *uint64) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return false, fmt.Errorf("%w: payload for %s is not JSON", ErrCorruptEntry, key)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	current := s.gens[key]
	if gen != nil && *gen != current {
		s.mu.Unlock()
		return false, nil
	}
	e := Entry{
		Payload:    json.RawMessage(compact.Bytes()),
		FetchedAt:  s.now(),
		TTL:        ttl,
		Generation: current,
	}
	s.entries[key] = e
	s.mu.Unlock()

	rec := record{
		Kind:       key.Kind,
		StudentID:  key.StudentID,
		Date:       key.Date,
		ThreadID:   key.ThreadID,
		Payload:    e.Payload,
		FetchedAt:  e.FetchedAt,
		TTLSeconds: int64(ttl / time.Second),
	}
	data, err := json.Marshal(rec)
	if err == nil {
		err = WriteFileAtomic(s.dir, key.filename(), data, 0o644)
	}
	if err != nil {
		s.log.Error("cache write failed", zap.Stringer("key", key), zap.Error(err))
		return true, &WriteError{Key: key, Err: err}
	}
	s.log.Debug("cache write", zap.Stringer("key", key), zap.Uint64("generation", current))
	return true, nil
}

// Invalidate drops the entry for key from memory and disk.
func (s *Store) Invalidate(key Key) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	p := filepath.Join(s.dir, key.filename())
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cache: removing %s: %w", p, err)
	}
	return nil
}

// ClearData removes every cached dataset but keeps the credential file.
func (s *Store) ClearData() error {
	return s.clear(false)
}

// ClearAll removes every cached dataset and the credential file. Fetches
// already in flight are superseded so their results are not stored.
func (s *Store) ClearAll() error {
	return s.clear(true)
}

func (s *Store) clear(credential bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.entries = make(map[Key]Entry)
	if credential {
		for k := range s.gens {
			s.gens[k]++
		}
	}
	s.mu.Unlock()

	names, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("cache: listing %s: %w", s.dir, err)
	}
	var errs []error
	for _, de := range names {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name == CredentialFile && !credential {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("cache: removing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Reload re-reads the file for one dataset, typically after another process
// wrote it. It reports whether the in-memory view changed. A missing file
// drops the entry.
func (s *Store) Reload(key Key) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p := filepath.Join(s.dir, key.filename())
	rec, err := readRecord(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			_, had := s.entries[key]
			delete(s.entries, key)
			s.mu.Unlock()
			return had, nil
		}
		return false, err
	}
	if rec.key() != key {
		return false, fmt.Errorf("%w: %s holds %s", ErrCorruptEntry, p, rec.key())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && !rec.FetchedAt.After(cur.FetchedAt) {
		return false, nil
	}
	s.entries[key] = entryFromRecord(rec, s.gens[key])
	return true, nil
}

// keyForFile maps a dataset file name back to its key by reading the record.
func (s *Store) keyForFile(name string) (Key, bool) {
	if !isRecordFile(name) {
		return Key{}, false
	}
	rec, err := readRecord(filepath.Join(s.dir, name))
	if err == nil {
		return rec.key(), true
	}
	// The file may be gone already; fall back to what memory knows.
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.entries {
		if k.filename() == name {
			return k, true
		}
	}
	return Key{}, false
}

func isRecordFile(name string) bool {
	return strings.HasSuffix(name, ".json") && name != CredentialFile
}

func readRecord(p string) (record, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, p, err)
	}
	if err := rec.key().Validate(); err != nil {
		return record{}, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, p, err)
	}
	if len(rec.Payload) == 0 || rec.FetchedAt.IsZero() {
		return record{}, fmt.Errorf("%w: %s: missing payload or timestamp", ErrCorruptEntry, p)
	}
	if filepath.Base(p) != rec.key().filename() {
		return record{}, fmt.Errorf("%w: %s holds %s", ErrCorruptEntry, p, rec.key())
	}
	// Records written by hand or by older versions may be indented.
	var compact bytes.Buffer
	if err := json.Compact(&compact, rec.Payload); err != nil {
		return record{}, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, p, err)
	}
	rec.Payload = compact.Bytes()
	return rec, nil
}

func entryFromRecord(rec record, gen uint64) Entry {
	return Entry{
		Payload:    rec.Payload,
		FetchedAt:  rec.FetchedAt,
		TTL:        time.Duration(rec.TTLSeconds) * time.Second,
		Generation: gen,
	}
}

// WriteFileAtomic writes data to dir/name through a synced temp file and a
// rename, so readers see either the old content or the new one.
func WriteFileAtomic(dir, name string, data []byte, perm os.FileMode) (err error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
