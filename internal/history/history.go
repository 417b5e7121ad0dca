// Package history keeps a local sqlite log of pipeline runs and the posts
// they published.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	path    string
	readDB  *sql.DB
	writeDB *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &Store{path: dbPath, readDB: readDB, writeDB: writeDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id        TEXT PRIMARY KEY,
			category  TEXT NOT NULL,
			account   TEXT NOT NULL DEFAULT '',
			kind      TEXT NOT NULL DEFAULT '',
			state     TEXT NOT NULL,
			outcome   TEXT NOT NULL,
			error     TEXT NOT NULL DEFAULT '',
			selected  TEXT NOT NULL DEFAULT '',
			started   DATETIME NOT NULL,
			finished  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_category ON runs(category);

		CREATE TABLE IF NOT EXISTS posts (
			run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq       INTEGER NOT NULL,
			uri       TEXT NOT NULL,
			cid       TEXT NOT NULL DEFAULT '',
			posted_at DATETIME NOT NULL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// RecordRun stores a finished run and its posts, replacing any earlier
// record with the same id.
func (s *Store) RecordRun(r Run) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, category, account, kind, state, outcome, error, selected, started, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			outcome = excluded.outcome,
			error = excluded.error,
			selected = excluded.selected,
			finished = excluded.finished
	`, r.ID, r.Category, r.Account, r.Kind, r.State, string(r.Outcome), r.Error,
		strings.Join(r.Selected, "\n"), r.Started.UTC(), r.Finished.UTC())
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}

	if _, err := tx.Exec("DELETE FROM posts WHERE run_id = ?", r.ID); err != nil {
		return fmt.Errorf("clearing posts of run %s: %w", r.ID, err)
	}
	stmt, err := tx.Prepare("INSERT INTO posts (run_id, seq, uri, cid, posted_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range r.Posts {
		if _, err := stmt.Exec(r.ID, p.Seq, p.URI, p.CID, p.PostedAt.UTC()); err != nil {
			return fmt.Errorf("recording post %d of run %s: %w", p.Seq, r.ID, err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, "last_run:"+r.Category, r.Finished.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RecentRuns returns runs newest first, with their posts.
func (s *Store) RecentRuns(opts QueryOpts) ([]Run, error) {
	var (
		where []string
		args  []interface{}
	)

	if !opts.Since.IsZero() {
		where = append(where, "started >= ?")
		args = append(args, opts.Since.UTC())
	}
	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(opts.Outcome))
	}

	query := "SELECT id, category, account, kind, state, outcome, error, selected, started, finished FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.readDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var (
		runs  []Run
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			r        Run
			outcome  string
			selected string
		)
		if err := rows.Scan(&r.ID, &r.Category, &r.Account, &r.Kind, &r.State, &outcome, &r.Error, &selected, &r.Started, &r.Finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Outcome = Outcome(outcome)
		if selected != "" {
			r.Selected = strings.Split(selected, "\n")
		}
		index[r.ID] = len(runs)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return runs, nil
	}

	placeholders := make([]string, len(runs))
	ids := make([]interface{}, len(runs))
	for i, r := range runs {
		placeholders[i] = "?"
		ids[i] = r.ID
	}
	prows, err := s.readDB.Query(
		"SELECT run_id, seq, uri, cid, posted_at FROM posts WHERE run_id IN ("+strings.Join(placeholders, ",")+") ORDER BY run_id, seq", //nolint:gosec
		ids...)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var (
			runID string
			p     Post
		)
		if err := prows.Scan(&runID, &p.Seq, &p.URI, &p.CID, &p.PostedAt); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		if i, ok := index[runID]; ok {
			runs[i].Posts = append(runs[i].Posts, p)
		}
	}
	return runs, prows.Err()
}

// LastRun returns when category last finished a run.
func (s *Store) LastRun(category string) (time.Time, bool) {
	var value string
	err := s.readDB.QueryRow("SELECT value FROM meta WHERE key = ?", "last_run:"+category).Scan(&value)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Prune deletes runs started before now minus olderThan and returns how
// many were removed.
func (s *Store) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()

	tx, err := s.writeDB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM posts WHERE run_id IN (SELECT id FROM runs WHERE started < ?)", cutoff); err != nil {
		return 0, fmt.Errorf("pruning posts: %w", err)
	}
	res, err := tx.Exec("DELETE FROM runs WHERE started < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		_, _ = s.writeDB.Exec("VACUUM")
	}
	return n, nil
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	rows, err := s.readDB.Query("SELECT outcome, COUNT(*) FROM runs GROUP BY outcome")
	if err != nil {
		return st, fmt.Errorf("counting runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return st, err
		}
		st.Runs += n
		switch Outcome(outcome) {
		case OutcomeDone:
			st.Done = n
		case OutcomeSkipped:
			st.Skipped = n
		case OutcomeFailed:
			st.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	if err := s.readDB.QueryRow("SELECT COUNT(*) FROM posts").Scan(&st.Posts); err != nil {
		return st, fmt.Errorf("counting posts: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		st.Size = info.Size()
	}
	return st, nil
}
