package signal

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/matheuskafuri/autoposter/internal/feed"
)

// Tier awards Bonus when the candidate source contains any of Sources.
type Tier struct {
	Bonus   int      `yaml:"bonus"`
	Sources []string `yaml:"sources"`
}

// Rule adds Weight when any of Keywords appears in the lower-cased title.
// Penalties are rules with a negative weight.
type Rule struct {
	Weight   int      `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// Table is a declarative scoring configuration for one category.
type Table struct {
	Tiers           []Tier `yaml:"tiers"`
	Rules           []Rule `yaml:"rules"`
	LengthThreshold int    `yaml:"length_threshold"`
	LengthBonus     int    `yaml:"length_bonus"`
}

// Input holds the data needed to score a candidate.
type Input struct {
	Title  string
	Source string
}

// Breakdown shows how each component contributed to the final score.
type Breakdown struct {
	Source   int
	Keywords int
	Length   int
	Final    int
}

// Scorer applies a Table to candidates.
type Scorer struct {
	table Table
}

func NewScorer(t Table) *Scorer {
	return &Scorer{table: t}
}

// Score returns the clamped score for a single input.
func (s *Scorer) Score(in Input) int {
	return s.ScoreWithBreakdown(in).Final
}

// ScoreWithBreakdown computes the score with component details.
func (s *Scorer) ScoreWithBreakdown(in Input) Breakdown {
	title := strings.ToLower(in.Title)
	b := Breakdown{
		Source:   s.sourceScore(strings.ToLower(in.Source)),
		Keywords: s.keywordScore(title),
	}
	if s.table.LengthThreshold > 0 && utf8.RuneCountInString(title) > s.table.LengthThreshold {
		b.Length = s.table.LengthBonus
	}
	b.Final = b.Source + b.Keywords + b.Length
	if b.Final < 0 {
		b.Final = 0
	}
	return b
}

// sourceScore returns the bonus of the first matching tier only.
func (s *Scorer) sourceScore(source string) int {
	for _, tier := range s.table.Tiers {
		if containsAny(source, tier.Sources) {
			return tier.Bonus
		}
	}
	return 0
}

func (s *Scorer) keywordScore(title string) int {
	total := 0
	for _, r := range s.table.Rules {
		if containsAny(title, r.Keywords) {
			total += r.Weight
		}
	}
	return total
}

// Rank scores every candidate, drops those scoring zero, and returns the rest
// ordered by descending score, truncated to limit. Equal scores keep their
// input order. A limit of zero or less disables truncation.
func (s *Scorer) Rank(cands []feed.Candidate, limit int) []feed.Candidate {
	ranked := make([]feed.Candidate, 0, len(cands))
	for _, c := range cands {
		c.Score = s.Score(Input{Title: c.Title, Source: c.Source})
		if c.Score <= 0 {
			continue
		}
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
