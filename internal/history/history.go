// Package history keeps a local ledger of merge runs: which run added
// which V-keys to which profile, and when. It is append-only; the XML
// audit comment only remembers the latest run, the ledger remembers all
// of them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Run is one profile's additions within one invocation.
type Run struct {
	RunID   string // uuid shared by all profiles of the invocation
	Profile string
	Added   []string
	RanAt   time.Time
}

type RunRow struct {
	Run
	ID int
}

func (r RunRow) String() string {
	return fmt.Sprintf("run: %q, profile: %q, added: %q, ran_at: %s",
		r.RunID, r.Profile, strings.Join(r.Added, ", "), r.RanAt.Format(time.RFC3339))
}

// Open opens (creating if needed) the ledger database at dbPath.
func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_uuid TEXT NOT NULL,
			profile TEXT NOT NULL,
			added TEXT NOT NULL,
			ran_at TEXT NOT NULL
		)`,
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Record appends one run row. Runs that added nothing are not recorded;
// the ledger mirrors the audit comments, not every attempt.
func Record(ctx context.Context, db *sql.DB, run Run) error {
	if len(run.Added) == 0 {
		return nil
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_uuid, profile, added, ran_at) VALUES (?,?,?,?);`,
		run.RunID, run.Profile, strings.Join(run.Added, ","), run.RanAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	return nil
}

// List returns all recorded runs, oldest first.
func List(ctx context.Context, db *sql.DB) ([]RunRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, run_uuid, profile, added, ran_at FROM runs ORDER BY id;`,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []RunRow
	for rows.Next() {
		var (
			row   RunRow
			added string
			ranAt string
		)
		if err := rows.Scan(&row.ID, &row.RunID, &row.Profile, &added, &ranAt); err != nil {
			return nil, fmt.Errorf("scanning sql row failed: %w", err)
		}
		if added != "" {
			row.Added = strings.Split(added, ",")
		}
		row.RanAt, err = time.Parse(time.RFC3339, ranAt)
		if err != nil {
			return nil, fmt.Errorf("parsing ran_at %q: %w", ranAt, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Profile returns the runs recorded for one profile, oldest first, or
// ErrNotFound when the profile never added anything.
func Profile(ctx context.Context, db *sql.DB, profile string) ([]RunRow, error) {
	all, err := List(ctx, db)
	if err != nil {
		return nil, err
	}
	var out []RunRow
	for _, row := range all {
		if row.Profile == profile {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("profile %s: %w", profile, ErrNotFound)
	}
	return out, nil
}
