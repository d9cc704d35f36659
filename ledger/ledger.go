// Package ledger records conformance runs in SQLite and detects drift between
// runs of the same suite.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/conformance"
)

//go:embed schema.sql
var schema string

const busyTimeoutMs = 5000

// Store is an open ledger database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// RunMeta is the context of a run that the report itself does not carry.
type RunMeta struct {
	SuitePath string
	Hash      cfphash.Algorithm
	StartedAt time.Time // zero means now
}

// Run is a recorded run summary.
type Run struct {
	ID          string
	SuiteDigest string
	SuitePath   string
	Mode        conformance.Mode
	Hash        cfphash.Algorithm
	Passed      bool
	Pairs       int
	Failed      int
	Skipped     int
	StartedAt   time.Time
}

// Regression is a pair that matched in the previous run of a suite and fails
// now.
type Regression struct {
	Vector         string             `json:"vector"`
	Implementation string             `json:"implementation"`
	Reason         conformance.Reason `json:"reason"`
	PreviousRunID  string             `json:"previous_run_id"`
}

// Open opens or creates the ledger at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, cfperr.Wrap(cfperr.InternalIO, -1, "ledger mkdir", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "ledger open", err)
	}
	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)
	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "ledger schema apply", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "ledger wal", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "ledger foreign_keys", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "ledger busy_timeout", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores the report and returns the new run id.
func (s *Store) Record(ctx context.Context, meta RunMeta, report *conformance.Report) (string, error) {
	started := meta.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	hash := meta.Hash
	if hash == "" {
		hash = cfphash.Default
	}
	runID := uuid.NewString()
	_, failed := report.Counts()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", cfperr.Wrap(cfperr.InternalIO, -1, "ledger begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
  run_id, suite_digest, suite_path, mode, hash, passed, pairs, failed, skipped, started_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		report.SuiteDigest,
		meta.SuitePath,
		string(report.Mode),
		string(hash),
		boolInt(report.Passed),
		len(report.Results),
		failed,
		len(report.Skipped),
		started.UnixMilli(),
	)
	if err != nil {
		return "", cfperr.Wrap(cfperr.InternalIO, -1, "insert run", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results (
  run_id, vector_index, vector, implementation, passed, reason, expected, actual
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", cfperr.Wrap(cfperr.InternalIO, -1, "prepare result insert", err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	for _, r := range report.Results {
		if _, err := stmt.ExecContext(ctx,
			runID,
			r.Index,
			r.Vector,
			r.Implementation,
			boolInt(r.Passed),
			string(r.Reason),
			r.Expected,
			nullIfEmpty(r.Actual),
		); err != nil {
			return "", cfperr.Wrap(cfperr.InternalIO, -1, fmt.Sprintf("insert result %s/%s", r.Vector, r.Implementation), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", cfperr.Wrap(cfperr.InternalIO, -1, "ledger commit", err)
	}
	return runID, nil
}

// Runs returns up to limit recorded runs, newest first. A limit of 0 or less
// returns all of them.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, suite_digest, suite_path, mode, hash, passed, pairs, failed, skipped, started_at_ms
FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "query runs", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			mode      string
			hash      string
			passed    int
			startedMs int64
		)
		if err := rows.Scan(&r.ID, &r.SuiteDigest, &r.SuitePath, &mode, &hash, &passed, &r.Pairs, &r.Failed, &r.Skipped, &startedMs); err != nil {
			return nil, cfperr.Wrap(cfperr.InternalIO, -1, "scan run", err)
		}
		r.Mode = conformance.Mode(mode)
		r.Hash = cfphash.Algorithm(hash)
		r.Passed = passed != 0
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "iterate runs", err)
	}
	return out, nil
}

// Regressions compares report with the most recent recorded run of the same
// suite digest and hash algorithm and returns the pairs that matched then and
// fail in report. Call it before recording report. With no previous run the
// result is empty. An empty hash means cfphash.Default.
func (s *Store) Regressions(ctx context.Context, suiteDigest string, hash cfphash.Algorithm, report *conformance.Report) ([]Regression, error) {
	if hash == "" {
		hash = cfphash.Default
	}
	var prevID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs WHERE suite_digest = ? AND hash = ? ORDER BY seq DESC LIMIT 1`, suiteDigest, string(hash),
	).Scan(&prevID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "query previous run", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT vector, implementation FROM results WHERE run_id = ? AND passed = 1`, prevID)
	if err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "query previous results", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	type pair struct{ vector, impl string }
	passedBefore := map[pair]bool{}
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.vector, &p.impl); err != nil {
			return nil, cfperr.Wrap(cfperr.InternalIO, -1, "scan previous result", err)
		}
		passedBefore[p] = true
	}
	if err := rows.Err(); err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "iterate previous results", err)
	}

	var out []Regression
	for _, r := range report.Failures() {
		if passedBefore[pair{r.Vector, r.Implementation}] {
			out = append(out, Regression{
				Vector:         r.Vector,
				Implementation: r.Implementation,
				Reason:         r.Reason,
				PreviousRunID:  prevID,
			})
		}
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
