package history

import "time"

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type Run struct {
	ID       string
	Category string
	Account  string
	Kind     string
	State    string
	Outcome  Outcome
	Error    string
	Selected []string
	Started  time.Time
	Finished time.Time
	Posts    []Post
}

// Post is one published post of a run, Seq being its position in a thread.
type Post struct {
	Seq      int
	URI      string
	CID      string
	PostedAt time.Time
}

type QueryOpts struct {
	Since    time.Time
	Category string
	Outcome  Outcome
	Limit    int
}

type Stats struct {
	Runs    int
	Done    int
	Skipped int
	Failed  int
	Posts   int
	Size    int64
}
