package recency

import (
	"testing"
	"time"

	"github.com/matheuskafuri/autoposter/internal/feed"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestFilterDropsStale(t *testing.T) {
	p := Policy{MaxAge: map[string]time.Duration{"technews": 24 * time.Hour}}
	cands := []feed.Candidate{
		{Title: "fresh", Published: ptr(now.Add(-2 * time.Hour))},
		{Title: "stale", Published: ptr(now.Add(-25 * time.Hour))},
	}
	got := p.Filter(cands, "technews", now)
	if len(got) != 1 || got[0].Title != "fresh" {
		t.Errorf("expected only fresh entry, got %+v", got)
	}
}

func TestFilterKeepsUndated(t *testing.T) {
	p := Policy{}
	cands := []feed.Candidate{
		{Title: "no date"},
		{Title: "garbage date", PublishedRaw: "sometime last week-ish"},
	}
	got := p.Filter(cands, "technews", now)
	if len(got) != 2 {
		t.Errorf("expected undated entries to be kept, got %d", len(got))
	}
}

func TestFilterKeepsExactCutoff(t *testing.T) {
	p := Policy{}
	cands := []feed.Candidate{{Title: "edge", Published: ptr(now.Add(-24 * time.Hour))}}
	if got := p.Filter(cands, "technews", now); len(got) != 1 {
		t.Errorf("expected entry at the cutoff to be kept, got %d", len(got))
	}
}

func TestFilterPerCategoryWindow(t *testing.T) {
	p := Policy{MaxAge: map[string]time.Duration{"product": 48 * time.Hour}, Default: 24 * time.Hour}
	cands := []feed.Candidate{{Title: "day and a half", Published: ptr(now.Add(-36 * time.Hour))}}
	if got := p.Filter(cands, "product", now); len(got) != 1 {
		t.Errorf("expected product entry within 48h to be kept")
	}
	if got := p.Filter(cands, "reddit", now); len(got) != 0 {
		t.Errorf("expected reddit entry beyond default 24h to be dropped")
	}
}

func TestMaxAgeForDefaults(t *testing.T) {
	if got := (Policy{}).MaxAgeFor("anything"); got != DefaultMaxAge {
		t.Errorf("expected %v, got %v", DefaultMaxAge, got)
	}
	if got := (Policy{Default: time.Hour}).MaxAgeFor("anything"); got != time.Hour {
		t.Errorf("expected 1h, got %v", got)
	}
}

func TestDeriveOrder(t *testing.T) {
	pub := now.Add(-time.Hour)
	upd := now.Add(-2 * time.Hour)

	if got := Derive(feed.Candidate{Published: &pub, Updated: &upd}); !got.Equal(pub) {
		t.Errorf("expected published time first, got %v", got)
	}
	if got := Derive(feed.Candidate{Updated: &upd, PublishedRaw: "Mon, 10 Mar 2025 01:00:00 +0000"}); !got.Equal(upd) {
		t.Errorf("expected updated time before raw string, got %v", got)
	}
}

func TestDeriveRawFormats(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"Mon, 10 Mar 2025 09:30:00 +0000", time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)},
		{"Mon, 10 Mar 2025 09:30:00", time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)},
		{"2025-03-10 09:30:00", time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)},
		{"2025-03-10T09:30:00Z", time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := Derive(feed.Candidate{PublishedRaw: tt.raw})
		if got == nil {
			t.Errorf("Derive(%q) = nil", tt.raw)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Derive(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDeriveUnparseable(t *testing.T) {
	if got := Derive(feed.Candidate{PublishedRaw: "not a date at all"}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := Derive(feed.Candidate{}); got != nil {
		t.Errorf("expected nil for empty candidate, got %v", got)
	}
}

func TestDeriveZonelessIsUTC(t *testing.T) {
	defer func(l *time.Location) { time.Local = l }(time.Local)
	time.Local = time.FixedZone("UTC+5", 5*60*60)

	want := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	for _, raw := range []string{"2025-03-10 09:30:00", "2025/03/10 09:30:00"} {
		got := Derive(feed.Candidate{PublishedRaw: raw})
		if got == nil {
			t.Errorf("Derive(%q) = nil", raw)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("Derive(%q) = %v, want %v", raw, got, want)
		}
	}
}
