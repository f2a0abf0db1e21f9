// Package store persists module completion times and session records in
// a sqlite database, so cooldowns survive restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Run is one recorded session of a module.
type Run struct {
	ID        string
	Module    string
	Battles   int
	Exhausted bool
	Reason    string
	Started   time.Time
	Stopped   time.Time
}

func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS completions (
			module TEXT PRIMARY KEY,
			completed_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			module TEXT NOT NULL,
			battles INTEGER NOT NULL,
			exhausted BOOLEAN NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			stopped_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_module ON runs (module, stopped_at)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
	}
	return db, nil
}

// Completions stores the last completion time of every module.
type Completions struct {
	db *sql.DB
}

func NewCompletions(db *sql.DB) *Completions {
	return &Completions{db: db}
}

// Save records t as the last completion of module, replacing older values.
func (c *Completions) Save(ctx context.Context, module string, t time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, module)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO completions (module, completed_at) VALUES (?, ?)
		ON CONFLICT(module) DO UPDATE SET completed_at=excluded.completed_at`,
		module, t.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Get returns the last completion of module or ErrNotFound.
func (c *Completions) Get(ctx context.Context, module string) (time.Time, error) {
	var nanos int64
	row := c.db.QueryRowContext(ctx,
		`SELECT completed_at FROM completions WHERE module=?`, module,
	)
	err := row.Scan(&nanos)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, ErrNotFound
	case err != nil:
		return time.Time{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return time.Unix(0, nanos), nil
}

func (c *Completions) All(ctx context.Context) (map[string]time.Time, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT module, completed_at FROM completions`)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			module string
			nanos  int64
		)
		if err := rows.Scan(&module, &nanos); err != nil {
			return nil, fmt.Errorf("scanning row failed: %w", err)
		}
		out[module] = time.Unix(0, nanos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows failed: %w", err)
	}
	return out, nil
}

// SaveRun inserts a session record. Saving the same id twice is an error.
func (c *Completions) SaveRun(ctx context.Context, r Run) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, module, battles, exhausted, reason, started_at, stopped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Module, r.Battles, r.Exhausted, r.Reason, r.Started.UnixNano(), r.Stopped.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	return nil
}

// LastRun returns the most recently stopped session of module or
// ErrNotFound.
func (c *Completions) LastRun(ctx context.Context, module string) (Run, error) {
	var r Run
	var started, stopped int64
	row := c.db.QueryRowContext(ctx,
		`SELECT id, module, battles, exhausted, reason, started_at, stopped_at
		FROM runs WHERE module=? ORDER BY stopped_at DESC LIMIT 1`, module,
	)
	err := row.Scan(&r.ID, &r.Module, &r.Battles, &r.Exhausted, &r.Reason, &started, &stopped)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Run{}, ErrNotFound
	case err != nil:
		return Run{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	r.Started = time.Unix(0, started)
	r.Stopped = time.Unix(0, stopped)
	return r, nil
}

func rollback(ctx context.Context, tx *sql.Tx, module string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.ErrorContext(ctx, "calling tx.Rollback() failed", slog.String("module", module), slog.String("error", err.Error()))
	}
}
