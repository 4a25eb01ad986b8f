// Package cache is the durable, append-only log of completed time entries
// fetched from the time-tracking service.
//
// Entries are stored in the order they were appended, which must be
// non-decreasing by start. Range scans rely on that order to stop early.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tiliavir/billy/internal/model"
)

var (
	// ErrCorrupt is returned when a stored entry cannot be read back.
	// The only remedy is clearing the cache.
	ErrCorrupt = errors.New("corrupt entry cache (clear it with `billy cache clear`)")
	// ErrOutOfOrder is returned when an appended entry starts before the
	// last cached one.
	ErrOutOfOrder = errors.New("entry appended out of start order")
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS time_entries (
		seq                INTEGER PRIMARY KEY AUTOINCREMENT,
		id                 INTEGER NOT NULL UNIQUE,
		project_id         INTEGER NOT NULL,
		project_alias      TEXT NOT NULL,
		project_start_date TEXT NOT NULL,
		description        TEXT NOT NULL,
		start              TEXT NOT NULL,
		stop               TEXT NOT NULL
	)`,
}

const selectEntries = `SELECT id, project_id, project_alias, project_start_date, description, start, stop
	FROM time_entries ORDER BY seq`

// Cache is the SQLite-backed entry log.
type Cache struct {
	db   *sql.DB
	path string
}

// Open opens the cache at path. A missing file is an empty cache.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening entry cache: %w", err)
	}
	// Single writer; one connection keeps appends strictly ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: migration %d: %v", ErrCorrupt, path, i, err)
		}
	}
	return &Cache{db: db, path: path}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Remove deletes the cache at path together with its WAL files.
// Removing a missing cache is not an error.
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing entry cache: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Append writes the completed entries in the given order within a single
// transaction. Ongoing entries and entries already cached (by id) are
// skipped. It returns the number of entries written.
func (c *Cache) Append(ctx context.Context, entries []model.TimeEntry) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning cache append: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var lastRaw sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT start FROM time_entries ORDER BY seq DESC LIMIT 1`).Scan(&lastRaw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reading cache watermark: %w", err)
	}
	var last time.Time
	if lastRaw.Valid {
		if last, err = time.Parse(timeLayout, lastRaw.String); err != nil {
			return 0, fmt.Errorf("%w: start %q: %v", ErrCorrupt, lastRaw.String, err)
		}
	}

	written := 0
	for _, e := range entries {
		if e.Ongoing() {
			continue
		}
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM time_entries WHERE id = ?`, e.ID).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("checking cached entry %d: %w", e.ID, err)
		}
		if e.Start.Before(last) {
			return 0, fmt.Errorf("%w: entry %d starts %s, cache is at %s",
				ErrOutOfOrder, e.ID, e.Start.Format(time.RFC3339), last.Format(time.RFC3339))
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO time_entries
			(id, project_id, project_alias, project_start_date, description, start, stop)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID,
			e.Project.ID,
			e.Project.Alias,
			formatTime(e.Project.StartDate),
			e.Description,
			formatTime(e.Start),
			formatTime(*e.Stop),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting cached entry %d: %w", e.ID, err)
		}
		last = e.Start
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing cache append: %w", err)
	}
	committed = true
	return written, nil
}

// Scan yields cached entries in storage order. With a nil range every entry
// is yielded. Otherwise entries starting before r.After are skipped and the
// scan stops at the first entry whose stop is after r.Until.
// A malformed row yields ErrCorrupt and ends the scan.
func (c *Cache) Scan(ctx context.Context, r *model.TimeRange) iter.Seq2[model.TimeEntry, error] {
	return func(yield func(model.TimeEntry, error) bool) {
		rows, err := c.db.QueryContext(ctx, selectEntries)
		if err != nil {
			yield(model.TimeEntry{}, fmt.Errorf("scanning entry cache: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				yield(model.TimeEntry{}, err)
				return
			}
			if r != nil {
				if r.Until != nil && e.Stop.After(*r.Until) {
					return
				}
				if e.Start.Before(r.After) {
					continue
				}
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.TimeEntry{}, fmt.Errorf("scanning entry cache: %w", err))
		}
	}
}

func scanEntry(rows *sql.Rows) (model.TimeEntry, error) {
	var (
		e                            model.TimeEntry
		projectStart, start, stopRaw string
	)
	if err := rows.Scan(&e.ID, &e.Project.ID, &e.Project.Alias, &projectStart, &e.Description, &start, &stopRaw); err != nil {
		return model.TimeEntry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var err error
	if e.Project.StartDate, err = time.Parse(timeLayout, projectStart); err != nil {
		return model.TimeEntry{}, fmt.Errorf("%w: entry %d project start %q: %v", ErrCorrupt, e.ID, projectStart, err)
	}
	if e.Start, err = time.Parse(timeLayout, start); err != nil {
		return model.TimeEntry{}, fmt.Errorf("%w: entry %d start %q: %v", ErrCorrupt, e.ID, start, err)
	}
	stop, err := time.Parse(timeLayout, stopRaw)
	if err != nil {
		return model.TimeEntry{}, fmt.Errorf("%w: entry %d stop %q: %v", ErrCorrupt, e.ID, stopRaw, err)
	}
	e.Stop = &stop
	return e, nil
}

// ResolveResumePoint returns the range still to be fetched for requested,
// together with the cached entries that cover the rest of it.
//
// When the cache holds matching entries the next range starts one second
// after the last cached start; requested.Until is kept. Otherwise requested
// is returned unchanged.
func (c *Cache) ResolveResumePoint(ctx context.Context, requested *model.TimeRange) (*model.TimeRange, []model.TimeEntry, error) {
	var cached []model.TimeEntry
	for e, err := range c.Scan(ctx, requested) {
		if err != nil {
			return nil, nil, err
		}
		cached = append(cached, e)
	}
	if len(cached) == 0 {
		return requested, nil, nil
	}

	next := &model.TimeRange{After: cached[len(cached)-1].Start.Add(time.Second)}
	if requested != nil {
		next.Until = requested.Until
	}
	return next, cached, nil
}

// Stats summarises the cache content.
type Stats struct {
	Entries int
	First   time.Time
	// Watermark is the start of the last cached entry.
	Watermark time.Time
}

// Stats returns the entry count and the first and last cached starts.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var (
		s           Stats
		first, last sql.NullString
	)
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*),
		(SELECT start FROM time_entries ORDER BY seq LIMIT 1),
		(SELECT start FROM time_entries ORDER BY seq DESC LIMIT 1)
		FROM time_entries`).Scan(&s.Entries, &first, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	if first.Valid {
		if s.First, err = time.Parse(timeLayout, first.String); err != nil {
			return Stats{}, fmt.Errorf("%w: start %q: %v", ErrCorrupt, first.String, err)
		}
	}
	if last.Valid {
		if s.Watermark, err = time.Parse(timeLayout, last.String); err != nil {
			return Stats{}, fmt.Errorf("%w: start %q: %v", ErrCorrupt, last.String, err)
		}
	}
	return s, nil
}
