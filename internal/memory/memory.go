// Package memory keeps the per-category list of recently used identifiers so
// the same item is not posted twice.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultMax is the number of identifiers remembered per category.
const DefaultMax = 25

// ErrPersist is returned when a memory file could not be written. The
// in-process state still reflects the update.
var ErrPersist = errors.New("memory persist failure")

const fileSuffix = "_memory.json"

// Record is the usage memory of one category, oldest identifier first.
type Record struct {
	Category string
	Key      string
	Used     []string
}

// Contains reports whether id is remembered.
func (r *Record) Contains(id string) bool {
	return slices.Contains(r.Used, id)
}

// Recent returns up to n of the most recently recorded identifiers, newest last.
func (r *Record) Recent(n int) []string {
	if n >= len(r.Used) {
		return slices.Clone(r.Used)
	}
	return slices.Clone(r.Used[len(r.Used)-n:])
}

func (r *Record) field() string {
	return "used_" + r.Key
}

func (r *Record) MarshalJSON() ([]byte, error) {
	used := r.Used
	if used == nil {
		used = []string{}
	}
	return json.Marshal(map[string][]string{r.field(): used})
}

// UnmarshalJSON reads the list stored under "used_<key>". If the file uses a
// different key, a single used_* list is accepted.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	raw, ok := fields[r.field()]
	if !ok {
		var candidates []string
		for k := range fields {
			if strings.HasPrefix(k, "used_") {
				candidates = append(candidates, k)
			}
		}
		if len(candidates) != 1 {
			r.Used = nil
			return nil
		}
		raw = fields[candidates[0]]
	}
	return json.Unmarshal(raw, &r.Used)
}

func (r *Record) clone() *Record {
	return &Record{Category: r.Category, Key: r.Key, Used: slices.Clone(r.Used)}
}

// normalize drops duplicates, keeping the latest position, and applies the cap.
func (r *Record) normalize(max int) {
	seen := make(map[string]bool, len(r.Used))
	out := make([]string, 0, len(r.Used))
	for i := len(r.Used) - 1; i >= 0; i-- {
		id := r.Used[i]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	slices.Reverse(out)
	if len(out) > max {
		out = out[len(out)-max:]
	}
	r.Used = out
}

// Status summarises one category for display.
type Status struct {
	Category string
	Count    int
	Max      int
	Recent   []string
	Path     string
}

// Store loads and persists category records under a directory.
type Store struct {
	mu      sync.Mutex
	dir     string
	max     int
	keys    map[string]string
	records map[string]*Record
	log     logrus.FieldLogger
}

// NewStore creates a store. keys maps a category to the item noun used in
// its file ("articles", "books", ...); unknown categories use "items".
func NewStore(dir string, max int, keys map[string]string, log logrus.FieldLogger) *Store {
	if max <= 0 {
		max = DefaultMax
	}
	return &Store{
		dir:     dir,
		max:     max,
		keys:    keys,
		records: make(map[string]*Record),
		log:     log,
	}
}

// Path returns the file backing category.
func (s *Store) Path(category string) string {
	return filepath.Join(s.dir, category+fileSuffix)
}

func (s *Store) keyFor(category string) string {
	if k, ok := s.keys[category]; ok && k != "" {
		return k
	}
	return "items"
}

// Load returns a snapshot of the category memory. A missing or unreadable
// file yields an empty record; the file is read once per process.
func (s *Store) Load(category string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(category).clone()
}

func (s *Store) load(category string) *Record {
	if rec, ok := s.records[category]; ok {
		return rec
	}
	rec := &Record{Category: category, Key: s.keyFor(category)}
	data, err := os.ReadFile(s.Path(category))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		s.log.WithField("category", category).Warnf("reading memory: %v, starting empty", err)
	default:
		if err := json.Unmarshal(data, rec); err != nil {
			s.log.WithField("category", category).Warnf("corrupt memory file %s: %v, starting empty", s.Path(category), err)
			rec.Used = nil
		}
	}
	rec.normalize(s.max)
	s.records[category] = rec
	return rec
}

// Contains reports whether id is in the category memory.
func (s *Store) Contains(category, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(category).Contains(id)
}

// Record appends id to the category memory if absent, evicting the oldest
// entries beyond the cap, and persists the result before returning.
func (s *Store) Record(category, id string) error {
	if id == "" {
		return fmt.Errorf("recording %s: empty identifier", category)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load(category)
	if rec.Contains(id) {
		return nil
	}
	rec.Used = append(rec.Used, id)
	if over := len(rec.Used) - s.max; over > 0 {
		s.log.WithField("category", category).Debugf("evicting %d oldest entries", over)
		rec.Used = rec.Used[over:]
	}
	s.log.WithField("category", category).Infof("recorded %q (%d/%d)", id, len(rec.Used), s.max)
	return s.persist(rec)
}

// Available returns the options not present in the category memory. When
// every option has been used the memory is reset and all options are
// returned with reset set to true.
func (s *Store) Available(category string, options []string) (available []string, reset bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load(category)
	for _, o := range options {
		if !rec.Contains(o) {
			available = append(available, o)
		}
	}
	if len(available) > 0 || len(options) == 0 {
		return available, false, nil
	}
	s.log.WithField("category", category).Infof("all %d options used recently, resetting memory", len(options))
	rec.Used = nil
	return slices.Clone(options), true, s.persist(rec)
}

// Reset empties the category memory and persists the empty record.
func (s *Store) Reset(category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.load(category)
	rec.Used = nil
	return s.persist(rec)
}

// Clear removes the category memory file and forgets the cached record.
func (s *Store) Clear(category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, category)
	if err := os.Remove(s.Path(category)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", s.Path(category), err)
	}
	return nil
}

// ClearAll removes every memory file in the store directory.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	s.records = make(map[string]*Record)
	s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileSuffix))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", m, err)
		}
	}
	return nil
}

// Status reports every configured category, sorted by name.
func (s *Store) Status() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories := make([]string, 0, len(s.keys))
	for c := range s.keys {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	out := make([]Status, 0, len(categories))
	for _, c := range categories {
		rec := s.load(c)
		out = append(out, Status{
			Category: c,
			Count:    len(rec.Used),
			Max:      s.max,
			Recent:   rec.Recent(3),
			Path:     s.Path(c),
		})
	}
	return out
}

func (s *Store) persist(rec *Record) error {
	if err := s.write(rec); err != nil {
		s.log.WithField("category", rec.Category).Warnf("could not save memory: %v", err)
		return fmt.Errorf("%w: %s: %v", ErrPersist, rec.Category, err)
	}
	return nil
}

func (s *Store) write(rec *Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, rec.Category+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path(rec.Category))
}

// FilterUnused returns the items whose identifier is not in rec, preserving
// order. Items with an empty identifier are dropped. The result depends only
// on rec, so applying it twice gives the same output.
func FilterUnused[T any](rec *Record, items []T, identify func(T) string, log logrus.FieldLogger) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		id := identify(it)
		switch {
		case id == "":
			log.WithField("category", rec.Category).Debug("skipping item without identifier")
		case rec.Contains(id):
			log.WithField("category", rec.Category).Infof("skipping recently used %q", id)
		default:
			out = append(out, it)
		}
	}
	return out
}
