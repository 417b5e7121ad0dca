package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheuskafuri/autoposter/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, dir string) *Store {
	t.Helper()
	keys := map[string]string{"technews": "articles", "books": "books", "quotes": "quotes"}
	return NewStore(dir, DefaultMax, keys, logging.Discard())
}

func TestRecordThenContains(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	require.NoError(t, s.Record("technews", "example.com/a"))
	assert.True(t, s.Contains("technews", "example.com/a"))

	reloaded := newStore(t, dir)
	assert.True(t, reloaded.Contains("technews", "example.com/a"))
}

func TestRecordIsIdempotent(t *testing.T) {
	s := newStore(t, t.TempDir())
	require.NoError(t, s.Record("technews", "x"))
	require.NoError(t, s.Record("technews", "x"))
	assert.Equal(t, []string{"x"}, s.Load("technews").Used)
}

func TestRecordEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	for i := 1; i <= 30; i++ {
		require.NoError(t, s.Record("technews", fmt.Sprintf("id%d", i)))
	}

	rec := s.Load("technews")
	require.Len(t, rec.Used, DefaultMax)
	assert.Equal(t, "id6", rec.Used[0])
	assert.Equal(t, "id30", rec.Used[len(rec.Used)-1])
	for i := 1; i <= 5; i++ {
		assert.False(t, rec.Contains(fmt.Sprintf("id%d", i)))
	}

	reloaded := newStore(t, dir).Load("technews")
	assert.Equal(t, rec.Used, reloaded.Used)
}

func TestFileFormat(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Record("books", "Meditations"))

	data, err := os.ReadFile(filepath.Join(dir, "books_memory.json"))
	require.NoError(t, err)

	var doc map[string][]string
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, map[string][]string{"used_books": {"Meditations"}}, doc)
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quotes_memory.json"), []byte("{not json"), 0o644))

	s := newStore(t, dir)
	assert.Empty(t, s.Load("technews").Used)
	assert.Empty(t, s.Load("quotes").Used)
}

func TestLoadNormalizesFile(t *testing.T) {
	dir := t.TempDir()
	var ids []string
	for i := 0; i < 30; i++ {
		ids = append(ids, fmt.Sprintf("id%d", i))
	}
	ids = append(ids, "id29")
	data, _ := json.Marshal(map[string][]string{"used_articles": ids})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "technews_memory.json"), data, 0o644))

	rec := newStore(t, dir).Load("technews")
	assert.Len(t, rec.Used, DefaultMax)
	assert.Equal(t, "id29", rec.Used[len(rec.Used)-1])
}

func TestLoadReturnsSnapshot(t *testing.T) {
	s := newStore(t, t.TempDir())
	snap := s.Load("technews")
	require.NoError(t, s.Record("technews", "later"))
	assert.False(t, snap.Contains("later"))
	assert.True(t, s.Load("technews").Contains("later"))
}

func TestPersistFailureKeepsInMemoryState(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := newStore(t, filepath.Join(blocker, "memory"))
	err := s.Record("technews", "example.com/a")
	require.ErrorIs(t, err, ErrPersist)
	assert.True(t, s.Contains("technews", "example.com/a"))
}

func TestFilterUnused(t *testing.T) {
	rec := &Record{Category: "technews", Key: "articles", Used: []string{"b"}}
	items := []string{"a", "b", "", "c"}
	identity := func(s string) string { return s }

	once := FilterUnused(rec, items, identity, logging.Discard())
	assert.Equal(t, []string{"a", "c"}, once)

	twice := FilterUnused(rec, once, identity, logging.Discard())
	assert.Equal(t, once, twice)
}

func TestFilterUnusedAllUsed(t *testing.T) {
	rec := &Record{Used: []string{"a", "b"}}
	got := FilterUnused(rec, []string{"a", "b"}, func(s string) string { return s }, logging.Discard())
	assert.Empty(t, got)
}

func TestAvailableResetsWhenExhausted(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	options := []string{"Leadership", "Courage", "Wisdom"}
	for _, o := range options {
		require.NoError(t, s.Record("quotes", o))
	}

	avail, reset, err := s.Available("quotes", options)
	require.NoError(t, err)
	assert.True(t, reset)
	assert.Equal(t, options, avail)
	assert.Empty(t, s.Load("quotes").Used)
	assert.Empty(t, newStore(t, dir).Load("quotes").Used)
}

func TestAvailableExcludesUsed(t *testing.T) {
	s := newStore(t, t.TempDir())
	require.NoError(t, s.Record("quotes", "Courage"))

	avail, reset, err := s.Available("quotes", []string{"Leadership", "Courage", "Wisdom"})
	require.NoError(t, err)
	assert.False(t, reset)
	assert.Equal(t, []string{"Leadership", "Wisdom"}, avail)
}

func TestClearAndClearAll(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Record("technews", "a"))
	require.NoError(t, s.Record("books", "b"))

	require.NoError(t, s.Clear("technews"))
	assert.False(t, s.Contains("technews", "a"))
	assert.True(t, s.Contains("books", "b"))
	_, err := os.Stat(filepath.Join(dir, "technews_memory.json"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.ClearAll())
	assert.False(t, s.Contains("books", "b"))
	matches, _ := filepath.Glob(filepath.Join(dir, "*_memory.json"))
	assert.Empty(t, matches)
}

func TestStatus(t *testing.T) {
	s := newStore(t, t.TempDir())
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Record("technews", id))
	}
	st := s.Status()
	require.Len(t, st, 3)
	assert.Equal(t, "books", st[0].Category)
	assert.Equal(t, "technews", st[2].Category)
	assert.Equal(t, 4, st[2].Count)
	assert.Equal(t, []string{"b", "c", "d"}, st[2].Recent)
}
