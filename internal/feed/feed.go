package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Candidate is a normalized feed entry considered for posting.
type Candidate struct {
	Title       string
	Link        string
	Source      string
	Description string

	// Raw time stamps as found in the feed. The effective publish time is
	// derived from these by the recency package.
	Published    *time.Time
	Updated      *time.Time
	PublishedRaw string

	Score int
}

// SourceError reports a feed source that could not be fetched or parsed.
type SourceError struct {
	URL string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source unavailable %s: %v", e.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]Candidate, error)
}

// Options configures the HTTP behaviour of RSSFetcher.
type Options struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
}

type RSSFetcher struct {
	parser *gofeed.Parser
}

func NewRSSFetcher(opts Options) *RSSFetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.Retries
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	return newRSSFetcher(rc.StandardClient(), opts.UserAgent)
}

func newRSSFetcher(client *http.Client, userAgent string) *RSSFetcher {
	p := gofeed.NewParser()
	p.Client = client
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	return &RSSFetcher{parser: p}
}

func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]Candidate, error) {
	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", feedURL, err)
	}

	source := hostOf(feedURL)
	cands := make([]Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		cands = append(cands, Candidate{
			Title:        strings.TrimSpace(item.Title),
			Link:         strings.TrimSpace(item.Link),
			Source:       source,
			Description:  truncate(stripHTML(desc), 300),
			Published:    item.PublishedParsed,
			Updated:      item.UpdatedParsed,
			PublishedRaw: item.Published,
		})
	}
	return cands, nil
}

// hostOf returns the host portion of a feed URL, used as the candidate source.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

type Result struct {
	Candidates []Candidate
	Errors     []error
}

// Aggregator fetches a list of sources and merges their entries.
type Aggregator struct {
	fetcher     Fetcher
	concurrency int
	log         logrus.FieldLogger
}

func NewAggregator(f Fetcher, concurrency int, log logrus.FieldLogger) *Aggregator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Aggregator{fetcher: f, concurrency: concurrency, log: log}
}

// Aggregate fetches every source and returns the merged candidates. Entries
// are merged in source order, so on duplicate links the first source listed
// wins. Entries without a title or link are dropped. perSource caps the
// number of entries taken from each source; zero means no cap. A failing
// source contributes nothing and is reported in Result.Errors.
func (a *Aggregator) Aggregate(ctx context.Context, sources []string, perSource int) Result {
	return a.aggregate(ctx, sources, perSource, make(map[string]bool))
}

// AggregateWithFallback aggregates primary and passes the result through
// keep. When keep leaves nothing, the fallback sources are aggregated with
// at most perFallback entries each and returned unfiltered; links already
// seen in the primary pass are skipped. The boolean reports whether the
// fallback result was used.
func (a *Aggregator) AggregateWithFallback(ctx context.Context, primary, fallback []string, perFallback int, keep func([]Candidate) []Candidate) (Result, bool) {
	seen := make(map[string]bool)
	res := a.aggregate(ctx, primary, 0, seen)
	if keep != nil {
		res.Candidates = keep(res.Candidates)
	}
	if len(res.Candidates) > 0 || len(fallback) == 0 {
		return res, false
	}

	a.log.Infof("no usable entries from %d primary sources, trying %d fallback sources", len(primary), len(fallback))
	fb := a.aggregate(ctx, fallback, perFallback, seen)
	fb.Errors = append(res.Errors, fb.Errors...)
	return fb, true
}

func (a *Aggregator) aggregate(ctx context.Context, sources []string, perSource int, seen map[string]bool) Result {
	fetched := make([][]Candidate, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			cands, err := a.fetcher.Fetch(ctx, src)
			if err != nil {
				errs[i] = &SourceError{URL: src, Err: err}
				return nil
			}
			fetched[i] = cands
			return nil
		})
	}
	_ = g.Wait()

	var result Result
	for i, cands := range fetched {
		if errs[i] != nil {
			a.log.WithField("source", sources[i]).Warnf("%v", errs[i])
			result.Errors = append(result.Errors, errs[i])
			continue
		}
		taken := 0
		for _, c := range cands {
			if perSource > 0 && taken >= perSource {
				break
			}
			if c.Title == "" || c.Link == "" || seen[c.Link] {
				continue
			}
			seen[c.Link] = true
			result.Candidates = append(result.Candidates, c)
			taken++
		}
		a.log.WithField("source", sources[i]).Debugf("%d entries, %d kept", len(cands), taken)
	}
	return result
}
