// Package pipeline runs one content target at a time through aggregation,
// filtering, generation, memory recording and publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/matheuskafuri/autoposter/internal/ai"
	"github.com/matheuskafuri/autoposter/internal/config"
	"github.com/matheuskafuri/autoposter/internal/feed"
	"github.com/matheuskafuri/autoposter/internal/history"
	"github.com/matheuskafuri/autoposter/internal/memory"
	"github.com/matheuskafuri/autoposter/internal/metrics"
	"github.com/matheuskafuri/autoposter/internal/publish"
	"github.com/matheuskafuri/autoposter/internal/recency"
	"github.com/matheuskafuri/autoposter/internal/shorten"
	"github.com/matheuskafuri/autoposter/internal/signal"
	"github.com/sirupsen/logrus"
)

// State is a step of a target run.
type State string

const (
	StateAggregating      State = "aggregating"
	StateFilteringRecency State = "filtering_recency"
	StateScoring          State = "scoring"
	StateFilteringMemory  State = "filtering_memory"
	StateGenerating       State = "generating"
	StateRecordingMemory  State = "recording_memory"
	StatePublishing       State = "publishing"
	StateDone             State = "done"
)

var (
	ErrNoCandidates = errors.New("no candidates")
	ErrAllStale     = errors.New("all candidates stale")
	ErrAllUsed      = errors.New("all candidates already used")
	ErrGeneration   = errors.New("generation failure")
	ErrPublish      = errors.New("publish failure")
	ErrPanic        = errors.New("run panicked")
)

// Skipped reports whether err ends a run as skipped rather than failed.
func Skipped(err error) bool {
	return errors.Is(err, ErrNoCandidates) ||
		errors.Is(err, ErrAllStale) ||
		errors.Is(err, ErrAllUsed) ||
		errors.Is(err, ErrGeneration)
}

// Report is the outcome of one target run. State is the last state entered.
type Report struct {
	RunID       string
	Category    string
	Account     string
	Kind        config.Kind
	State       State
	Outcome     history.Outcome
	Err         error
	Selected    []string
	Receipts    []publish.Receipt
	MemoryReset bool
	Started     time.Time
	Finished    time.Time
}

func (r Report) historyRun() history.Run {
	run := history.Run{
		ID:       r.RunID,
		Category: r.Category,
		Account:  r.Account,
		Kind:     string(r.Kind),
		State:    string(r.State),
		Outcome:  r.Outcome,
		Selected: r.Selected,
		Started:  r.Started,
		Finished: r.Finished,
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	for i, rc := range r.Receipts {
		run.Posts = append(run.Posts, history.Post{Seq: i, URI: rc.URI, CID: rc.CID, PostedAt: rc.PostedAt})
	}
	return run
}

// Aggregator is the feed collaborator.
type Aggregator interface {
	AggregateWithFallback(ctx context.Context, primary, fallback []string, perFallback int, keep func([]feed.Candidate) []feed.Candidate) (feed.Result, bool)
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(r history.Run) error
}

// Deps wires a Runner. History, Metrics, Shortener, Now and Sleep are
// optional.
type Deps struct {
	Aggregator Aggregator
	Recency    recency.Policy
	Scoring    map[string]signal.Table
	Memory     *memory.Store
	Generator  ai.Generator
	Publisher  publish.Publisher
	Shortener  shorten.Shortener
	History    Recorder
	Metrics    *metrics.Metrics
	Log        logrus.FieldLogger

	CategoryDelay time.Duration
	MaxGraphemes  int

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type Runner struct {
	agg       Aggregator
	recency   recency.Policy
	scorers   map[string]*signal.Scorer
	memory    *memory.Store
	gen       ai.Generator
	pub       publish.Publisher
	shortener shorten.Shortener
	history   Recorder
	metrics   *metrics.Metrics
	log       logrus.FieldLogger

	delay        time.Duration
	maxGraphemes int
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func New(d Deps) *Runner {
	r := &Runner{
		agg:          d.Aggregator,
		recency:      d.Recency,
		scorers:      make(map[string]*signal.Scorer, len(d.Scoring)),
		memory:       d.Memory,
		gen:          d.Generator,
		pub:          d.Publisher,
		shortener:    d.Shortener,
		history:      d.History,
		metrics:      d.Metrics,
		log:          d.Log,
		delay:        d.CategoryDelay,
		maxGraphemes: d.MaxGraphemes,
		now:          d.Now,
		sleep:        d.Sleep,
	}
	for name, t := range d.Scoring {
		r.scorers[name] = signal.NewScorer(t)
	}
	if r.shortener == nil {
		r.shortener = shorten.Identity{}
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.maxGraphemes <= 0 {
		r.maxGraphemes = publish.MaxGraphemes
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.sleep == nil {
		r.sleep = publish.Sleep
	}
	return r
}

// RunAll runs targets in order, pausing between them. A failing or
// panicking target does not stop the ones after it. Cancelling ctx stops
// the batch before the next target starts.
func (r *Runner) RunAll(ctx context.Context, targets []config.Target) []Report {
	reports := make([]Report, 0, len(targets))
	for i, t := range targets {
		if i > 0 {
			r.log.Debugf("waiting %s before %s", r.delay, t.Category)
			if err := r.sleep(ctx, r.delay); err != nil {
				r.log.Warnf("batch interrupted before %s: %v", t.Category, err)
				break
			}
		}
		reports = append(reports, r.Run(ctx, t))
	}
	return reports
}

// Run executes one target and never panics.
func (r *Runner) Run(ctx context.Context, t config.Target) (rep Report) {
	rep = Report{
		RunID:    uuid.NewString(),
		Category: t.Category,
		Account:  t.Account,
		Kind:     t.Kind,
		Started:  r.now(),
	}
	x := &run{
		Runner: r,
		t:      t,
		rep:    &rep,
		log: r.log.WithFields(logrus.Fields{
			"run_id":   rep.RunID,
			"category": t.Category,
			"account":  t.Account,
		}),
	}

	defer func() {
		if p := recover(); p != nil {
			x.log.Errorf("panic in state %s: %v\n%s", rep.State, p, debug.Stack())
			rep.Err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
		r.finish(x, &rep)
	}()

	x.log.Infof("starting %s run", t.Kind)
	switch t.Kind {
	case config.KindNews:
		rep.Err = x.news(ctx)
	case config.KindDigest:
		rep.Err = x.digest(ctx)
	case config.KindProduct:
		rep.Err = x.product(ctx)
	case config.KindOptions:
		rep.Err = x.options(ctx)
	default:
		rep.Err = fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return rep
}

func (r *Runner) finish(x *run, rep *Report) {
	rep.Finished = r.now()
	switch {
	case rep.Err == nil:
		rep.Outcome = history.OutcomeDone
		x.log.Infof("done, published %d post(s)", len(rep.Receipts))
	case Skipped(rep.Err):
		rep.Outcome = history.OutcomeSkipped
		x.log.Infof("skipped in %s: %v", rep.State, rep.Err)
	default:
		rep.Outcome = history.OutcomeFailed
		x.log.Errorf("failed in %s: %v", rep.State, rep.Err)
	}

	r.metrics.Run(rep.Category, string(rep.Outcome), rep.Finished.Sub(rep.Started))
	r.metrics.Published(rep.Category, rep.Account, len(rep.Receipts))
	if rep.MemoryReset {
		r.metrics.MemoryReset(rep.Category)
	}

	if r.history != nil {
		if err := r.history.RecordRun(rep.historyRun()); err != nil {
			x.log.Warnf("recording run history: %v", err)
		}
	}
}
