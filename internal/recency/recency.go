// Package recency drops feed candidates that are too old to post.
package recency

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/matheuskafuri/autoposter/internal/feed"
	"github.com/sirupsen/logrus"
)

// DefaultMaxAge applies to categories without an explicit window.
const DefaultMaxAge = 24 * time.Hour

// knownLayouts are tried in order before falling back to lenient parsing.
var knownLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"Mon, 02 Jan 2006 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Derive returns the publish time of c: the structured published time,
// then the structured updated time, then the raw published string.
// It returns nil when no time can be determined.
func Derive(c feed.Candidate) *time.Time {
	if c.Published != nil {
		return c.Published
	}
	if c.Updated != nil {
		return c.Updated
	}
	raw := strings.TrimSpace(c.PublishedRaw)
	if raw == "" {
		return nil
	}
	for _, layout := range knownLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
		return &t
	}
	return nil
}

// Policy holds the per-category maximum age.
type Policy struct {
	MaxAge  map[string]time.Duration
	Default time.Duration
	Log     logrus.FieldLogger
}

// MaxAgeFor returns the window for category.
func (p Policy) MaxAgeFor(category string) time.Duration {
	if d, ok := p.MaxAge[category]; ok && d > 0 {
		return d
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultMaxAge
}

// Filter keeps candidates published within the category window ending at
// now. Candidates without a derivable time are kept. A candidate exactly at
// the cutoff is kept; only strictly older ones are dropped.
func (p Policy) Filter(cands []feed.Candidate, category string, now time.Time) []feed.Candidate {
	cutoff := now.Add(-p.MaxAgeFor(category))
	kept := make([]feed.Candidate, 0, len(cands))
	dropped := 0
	for _, c := range cands {
		if t := Derive(c); t != nil && t.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	if p.Log != nil && dropped > 0 {
		p.Log.WithField("category", category).Infof("filtered out %d entries older than %s", dropped, p.MaxAgeFor(category))
	}
	return kept
}
