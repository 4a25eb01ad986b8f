// Package bill runs one synchronization of a project's time entries into its
// spreadsheet tab.
package bill

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tiliavir/billy/internal/aggregate"
	"github.com/Tiliavir/billy/internal/cache"
	"github.com/Tiliavir/billy/internal/config"
	"github.com/Tiliavir/billy/internal/model"
	"github.com/Tiliavir/billy/internal/reconcile"
	"github.com/Tiliavir/billy/internal/toggl"
)

// EntrySource returns every entry of a range, resuming from the cache.
type EntrySource interface {
	Entries(ctx context.Context, c toggl.EntryCache, requested *model.TimeRange) (toggl.Result, error)
}

// Env is the caller-owned context of one run. Clients are created by the
// caller and live as long as the run.
type Env struct {
	Config *config.Config
	Source EntrySource
	// OpenSheet is called only when the run reaches the spreadsheet, so a
	// fetch-only run never needs spreadsheet credentials.
	OpenSheet func(ctx context.Context) (reconcile.Spreadsheet, error)
	Log       zerolog.Logger
	// Out receives progress lines for the user.
	Out io.Writer
}

// Options selects what a run does.
type Options struct {
	Project string
	// After defaults to the project's start date.
	After *time.Time
	Until *time.Time
	// CleanCache deletes the entry cache before anything else.
	CleanCache bool
	// FetchOnly stops after aggregation.
	FetchOnly bool
	// AppendOnly appends every record without deleting or skipping.
	AppendOnly bool
}

// Result summarises a run.
type Result struct {
	RunID   string
	Project model.Project
	Range   model.TimeRange
	Fetch   toggl.Result
	Entries int
	Stats   []model.ProjectDailyStats
	Sheet   reconcile.Result
}

// Run fetches, caches and aggregates the project's entries and, unless
// FetchOnly is set, reconciles them against the spreadsheet. A failure part
// way leaves the cache and the spreadsheet consistent; the next run picks up
// from there.
func Run(ctx context.Context, env Env, opts Options) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := env.Log.With().Str("run_id", res.RunID).Str("project", opts.Project).Logger()
	out := env.Out
	if out == nil {
		out = io.Discard
	}
	cfg := env.Config

	if opts.CleanCache {
		fmt.Fprint(out, "Deleting cache file...")
		if err := cache.Remove(cfg.CachePath); err != nil {
			fmt.Fprintln(out)
			return res, err
		}
		fmt.Fprintln(out, " done!")
		log.Info().Str("path", cfg.CachePath).Msg("cache removed")
	}

	project, err := cfg.Project(opts.Project)
	if err != nil {
		return res, err
	}
	res.Project = project

	res.Range = model.TimeRange{After: project.StartDate, Until: opts.Until}
	if opts.After != nil {
		res.Range.After = *opts.After
	}

	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		return res, err
	}
	defer c.Close()

	fetched, err := env.Source.Entries(ctx, c, &res.Range)
	res.Fetch = fetched
	if err != nil {
		return res, err
	}
	log.Info().
		Int("cached", fetched.Cached).
		Int("fetched", fetched.Fetched).
		Int("appended", fetched.Appended).
		Int("skipped", fetched.Skipped).
		Msg("entries resolved")

	var entries []model.TimeEntry
	for _, e := range fetched.Entries {
		if e.Project.ID == project.ID {
			entries = append(entries, e)
		}
	}
	res.Entries = len(entries)
	fmt.Fprintf(out, "Entries fetched: %d\n", len(entries))

	res.Stats = aggregate.Entries(entries, cfg.Location())
	fmt.Fprintf(out, "Stats: %d\n", len(res.Stats))

	if opts.FetchOnly {
		return res, nil
	}

	fmt.Fprintln(out, "Updating GSheet")
	sheet, err := env.OpenSheet(ctx)
	if err != nil {
		return res, fmt.Errorf("opening spreadsheet: %w", err)
	}
	r := reconcile.New(sheet, reconcile.Options{
		AppendOnly:     opts.AppendOnly,
		DateColumn:     cfg.Sheet.DateColumn,
		InvoicedColumn: cfg.Sheet.InvoicedColumn,
	}, log)
	res.Sheet, err = r.Reconcile(ctx, res.Stats)
	if err != nil {
		return res, err
	}
	log.Info().
		Int("rows_appended", res.Sheet.Appended).
		Int("days_skipped", res.Sheet.Skipped).
		Int("rows_deleted", res.Sheet.Deleted).
		Msg("spreadsheet updated")
	return res, nil
}
