package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/matheuskafuri/autoposter/internal/ai"
	"github.com/matheuskafuri/autoposter/internal/classify"
	"github.com/matheuskafuri/autoposter/internal/config"
	"github.com/matheuskafuri/autoposter/internal/feed"
	"github.com/matheuskafuri/autoposter/internal/identity"
	"github.com/matheuskafuri/autoposter/internal/memory"
	"github.com/matheuskafuri/autoposter/internal/publish"
	"github.com/matheuskafuri/autoposter/internal/shorten"
	"github.com/sirupsen/logrus"
)

// run carries the state of one target run.
type run struct {
	*Runner
	t   config.Target
	rep *Report
	log logrus.FieldLogger
}

func (x *run) enter(s State) {
	x.rep.State = s
	x.log.Debugf("-> %s", s)
}

func (x *run) count(stage string, n int) {
	x.metrics.Candidates(x.t.Category, stage, n)
}

func (x *run) news(ctx context.Context) error {
	x.enter(StateAggregating)
	res, _ := x.agg.AggregateWithFallback(ctx, x.t.Feeds, nil, 0, nil)
	x.metrics.SourceErrors(x.t.Category, len(res.Errors))
	x.count("aggregated", len(res.Candidates))
	if len(res.Candidates) == 0 {
		return fmt.Errorf("%w from %d sources", ErrNoCandidates, len(x.t.Feeds))
	}

	x.enter(StateFilteringRecency)
	recent := x.recency.Filter(res.Candidates, x.t.Category, x.now())
	x.count("recent", len(recent))
	if len(recent) == 0 {
		return fmt.Errorf("%w: %d aggregated, none within %s", ErrAllStale, len(res.Candidates), x.recency.MaxAgeFor(x.t.Category))
	}

	x.enter(StateScoring)
	scorer, ok := x.scorers[x.t.Scoring]
	if !ok {
		return fmt.Errorf("no scoring table %q", x.t.Scoring)
	}
	ranked := scorer.Rank(recent, x.t.GetLimit())
	x.count("scored", len(ranked))
	if len(ranked) == 0 {
		return fmt.Errorf("%w: none of %d scored above zero", ErrNoCandidates, len(recent))
	}

	x.enter(StateFilteringMemory)
	unused := memory.FilterUnused(x.memory.Load(x.t.Category), ranked, articleID, x.log)
	x.count("unused", len(unused))
	if len(unused) == 0 {
		return fmt.Errorf("%w: %d ranked", ErrAllUsed, len(ranked))
	}

	x.enter(StateGenerating)
	draft, err := x.generate(ctx, ai.Request{Candidates: toAI(unused, nil)})
	if err != nil {
		return err
	}
	id := identity.Article(draft.SourceURL)
	if !hasArticle(unused, id) {
		return fmt.Errorf("%w: source_url %q is not one of the candidates", ErrGeneration, draft.SourceURL)
	}

	if err := x.record(id); err != nil {
		return err
	}
	return x.publishSingle(ctx, publish.WithLink(draft.Text, draft.SourceURL, x.maxGraphemes))
}

func (x *run) digest(ctx context.Context) error {
	unused, err := x.collect(ctx, func(c feed.Candidate) string {
		return identity.Post(identity.Subreddit(c.Link), c.Title)
	})
	if err != nil {
		return err
	}
	if size := x.t.GetDigestSize(); len(unused) > size {
		unused = unused[:size]
	}

	links := make([]string, len(unused))
	for i, c := range unused {
		links[i] = c.Link
	}
	short := shorten.All(ctx, x.shortener, links)
	cands := toAI(unused, short)
	for i, c := range unused {
		cands[i].Community = identity.Subreddit(c.Link)
	}

	x.enter(StateGenerating)
	draft, err := x.generate(ctx, ai.Request{Candidates: cands})
	if err != nil {
		return err
	}

	// a draft that names links covers only those still present once fitted
	text := publish.FitLines(draft.Text, x.maxGraphemes)
	var ids []string
	for i, c := range unused {
		link := cands[i].Link
		if len(draft.Items) > 0 && (!slices.Contains(draft.Items, link) || !strings.Contains(text, link)) {
			continue
		}
		ids = append(ids, identity.Post(identity.Subreddit(c.Link), c.Title))
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: digest lost every link when fitted", ErrGeneration)
	}
	if err := x.record(ids...); err != nil {
		return err
	}
	return x.publishSingle(ctx, text)
}

func (x *run) product(ctx context.Context) error {
	categories := make(map[string]classify.Category)
	categoryOf := func(c feed.Candidate) classify.Category {
		if cat, ok := categories[c.Link]; ok {
			return cat
		}
		text := c.Description
		if text == "" {
			text = c.Title
		}
		cat := classify.Classify(text)
		categories[c.Link] = cat
		return cat
	}
	productID := func(c feed.Candidate) string {
		return identity.Product(string(categoryOf(c)), c.Title)
	}

	unused, err := x.collect(ctx, productID)
	if err != nil {
		return err
	}
	chosen := unused[0]
	short := shorten.All(ctx, x.shortener, []string{chosen.Link})
	cands := toAI([]feed.Candidate{chosen}, short)
	cands[0].Category = string(categoryOf(chosen))

	x.enter(StateGenerating)
	draft, err := x.generate(ctx, ai.Request{Candidates: cands})
	if err != nil {
		return err
	}

	if err := x.record(productID(chosen)); err != nil {
		return err
	}
	return x.publishSingle(ctx, publish.WithLink(draft.Text, cands[0].Link, x.maxGraphemes))
}

func (x *run) options(ctx context.Context) error {
	x.enter(StateFilteringMemory)
	available, reset, err := x.memory.Available(x.t.Category, x.t.Options)
	if err != nil {
		x.persistFailed(err)
	}
	if reset {
		x.rep.MemoryReset = true
		x.log.Infof("memory reset, choosing from all %d options", len(available))
	}
	x.count("unused", len(available))
	if len(available) == 0 {
		return fmt.Errorf("%w: no options configured", ErrNoCandidates)
	}

	x.enter(StateGenerating)
	draft, err := x.generate(ctx, ai.Request{Options: available})
	if err != nil {
		return err
	}
	if !slices.Contains(available, draft.Option) {
		return fmt.Errorf("%w: option %q was not offered", ErrGeneration, draft.Option)
	}

	if err := x.record(draft.Option); err != nil {
		return err
	}

	x.enter(StatePublishing)
	thread := draft.Thread
	if len(thread) == 0 {
		thread = []string{draft.Text}
	}
	texts := make([]string, len(thread))
	for i, t := range thread {
		texts[i] = publish.Fit(t, x.maxGraphemes)
	}
	receipts, err := x.pub.PublishThread(ctx, x.t.Account, texts)
	x.rep.Receipts = receipts
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	x.enter(StateDone)
	return nil
}

// collect runs aggregation with fallback, recency filtering of the primary
// sources and the memory filter. Fallback entries skip the recency filter.
func (x *run) collect(ctx context.Context, identify func(feed.Candidate) string) ([]feed.Candidate, error) {
	x.enter(StateAggregating)
	aggregated := 0
	keep := func(cands []feed.Candidate) []feed.Candidate {
		aggregated = len(cands)
		x.enter(StateFilteringRecency)
		return x.recency.Filter(cands, x.t.Category, x.now())
	}
	res, usedFallback := x.agg.AggregateWithFallback(ctx, x.t.Feeds, x.t.FallbackFeeds, x.t.GetFallbackLimit(), keep)
	x.metrics.SourceErrors(x.t.Category, len(res.Errors))
	x.count("aggregated", aggregated)
	if usedFallback {
		x.log.Infof("using %d fallback entries", len(res.Candidates))
		x.count("fallback", len(res.Candidates))
	}
	if len(res.Candidates) == 0 {
		if aggregated > 0 {
			return nil, fmt.Errorf("%w: %d aggregated, none within %s", ErrAllStale, aggregated, x.recency.MaxAgeFor(x.t.Category))
		}
		return nil, fmt.Errorf("%w from %d sources", ErrNoCandidates, len(x.t.Feeds)+len(x.t.FallbackFeeds))
	}
	x.count("recent", len(res.Candidates))

	x.enter(StateFilteringMemory)
	unused := memory.FilterUnused(x.memory.Load(x.t.Category), res.Candidates, identify, x.log)
	x.count("unused", len(unused))
	if len(unused) == 0 {
		return nil, fmt.Errorf("%w: %d candidates", ErrAllUsed, len(res.Candidates))
	}
	return unused, nil
}

func (x *run) generate(ctx context.Context, req ai.Request) (ai.Draft, error) {
	req.Category = x.t.Category
	req.Account = x.t.Account
	req.Kind = x.t.Kind
	draft, err := x.gen.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ai.Draft{}, ctx.Err()
		}
		return ai.Draft{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(draft.Text) == "" {
		return ai.Draft{}, fmt.Errorf("%w: empty draft", ErrGeneration)
	}
	return draft, nil
}

// record stores ids in memory. A persist failure is logged and the run
// continues on the in-memory state.
func (x *run) record(ids ...string) error {
	x.enter(StateRecordingMemory)
	for _, id := range ids {
		err := x.memory.Record(x.t.Category, id)
		switch {
		case errors.Is(err, memory.ErrPersist):
			x.persistFailed(err)
		case err != nil:
			return err
		}
		x.rep.Selected = append(x.rep.Selected, id)
	}
	return nil
}

func (x *run) persistFailed(err error) {
	x.log.Warnf("%v, memory is not durable for this run", err)
	x.metrics.PersistFailure()
}

// publishSingle posts text, which the caller has already fitted.
func (x *run) publishSingle(ctx context.Context, text string) error {
	x.enter(StatePublishing)
	receipt, err := x.pub.PublishSingle(ctx, x.t.Account, text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	x.rep.Receipts = []publish.Receipt{receipt}
	x.enter(StateDone)
	return nil
}

func articleID(c feed.Candidate) string {
	return identity.Article(c.Link)
}

func hasArticle(cands []feed.Candidate, id string) bool {
	if id == "" {
		return false
	}
	for _, c := range cands {
		if articleID(c) == id {
			return true
		}
	}
	return false
}

// toAI converts candidates for the generator, replacing links found in
// short.
func toAI(cands []feed.Candidate, short map[string]string) []ai.Candidate {
	out := make([]ai.Candidate, len(cands))
	for i, c := range cands {
		link := c.Link
		if s, ok := short[link]; ok && s != "" {
			link = s
		}
		out[i] = ai.Candidate{
			Title:       c.Title,
			Link:        link,
			Source:      c.Source,
			Description: c.Description,
			Score:       c.Score,
		}
	}
	return out
}
