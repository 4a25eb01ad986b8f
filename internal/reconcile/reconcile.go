// Package reconcile writes daily stats into per-project spreadsheet tabs so
// that repeated, possibly interrupted runs converge without duplicating rows
// or touching invoiced ones.
//
// On the first record of a tab in a run the tab is checked once: the bottom
// run of rows sharing the last date is deleted and re-written unless it is
// invoiced, in which case only later dates are appended. That gives a
// cut-over date; records before it are skipped, the rest appended.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tiliavir/billy/internal/model"
	"github.com/Tiliavir/billy/internal/timecalc"
)

// ErrTabNotFound is returned for a project alias without a destination tab.
// Tabs are never created automatically.
var ErrTabNotFound = errors.New("tab not found in spreadsheet (create it manually)")

// Spreadsheet is the set of cell primitives the reconciler needs.
type Spreadsheet interface {
	TabNames(ctx context.Context) ([]string, error)
	ReadColumn(ctx context.Context, tab, column string) ([]string, error)
	AppendRows(ctx context.Context, tab string, rows [][]any) error
	// DeleteRows deletes rows first..last, 1-based and inclusive.
	DeleteRows(ctx context.Context, tab string, first, last int) error
}

// Options configures a run.
type Options struct {
	// AppendOnly never deletes and never skips.
	AppendOnly     bool
	DateColumn     string
	InvoicedColumn string
}

// Result holds counters for a reconciliation run.
type Result struct {
	Appended int
	Skipped  int
	Deleted  int
}

// TabState is what a run knows about one tab once it has been checked.
type TabState struct {
	// LastDate is the date of the bottom row run; zero if the tab has no
	// dated rows.
	LastDate time.Time
	Invoiced bool
	// CutOver is the first date this run may write.
	CutOver time.Time
}

// Reconciler holds the per-tab state of one run. It is not safe for
// concurrent use and must not be reused across runs.
type Reconciler struct {
	sheet Spreadsheet
	opts  Options
	log   zerolog.Logger

	tabNames map[string]bool
	tabs     map[string]*TabState
}

// New creates a Reconciler for one run.
func New(sheet Spreadsheet, opts Options, log zerolog.Logger) *Reconciler {
	if opts.DateColumn == "" {
		opts.DateColumn = "A"
	}
	if opts.InvoicedColumn == "" {
		opts.InvoicedColumn = "I"
	}
	return &Reconciler{
		sheet: sheet,
		opts:  opts,
		log:   log,
		tabs:  map[string]*TabState{},
	}
}

// Rows converts stats into spreadsheet rows: date, description, seconds, billable.
func Rows(stats model.ProjectDailyStats) [][]any {
	date := timecalc.FormatDate(stats.Date)
	rows := make([][]any, 0, len(stats.Entries))
	for _, e := range stats.Entries {
		rows = append(rows, []any{date, e.Description, e.Duration, e.Billable()})
	}
	return rows
}

// State returns the checked state of a tab, if this run has checked it.
func (r *Reconciler) State(alias string) (TabState, bool) {
	st, ok := r.tabs[alias]
	if !ok {
		return TabState{}, false
	}
	return *st, true
}

// Reconcile writes stats, processed in ascending date order, to the tab named
// after each record's alias.
func (r *Reconciler) Reconcile(ctx context.Context, stats []model.ProjectDailyStats) (Result, error) {
	var res Result

	sorted := slices.Clone(stats)
	slices.SortStableFunc(sorted, func(a, b model.ProjectDailyStats) int {
		return a.Date.Compare(b.Date)
	})

	for _, rec := range sorted {
		st, err := r.check(ctx, rec.Alias, &res)
		if err != nil {
			return res, err
		}
		if rec.Date.Before(st.CutOver) {
			r.log.Debug().Str("tab", rec.Alias).Str("date", timecalc.FormatDate(rec.Date)).Msg("skipping, before cut-over")
			res.Skipped++
			continue
		}
		rows := Rows(rec)
		if err := r.sheet.AppendRows(ctx, rec.Alias, rows); err != nil {
			return res, err
		}
		r.log.Debug().Str("tab", rec.Alias).Str("date", timecalc.FormatDate(rec.Date)).Int("rows", len(rows)).Msg("appended")
		res.Appended += len(rows)
	}
	return res, nil
}

// check returns the tab state, computing it on the first record of the tab.
func (r *Reconciler) check(ctx context.Context, alias string, res *Result) (*TabState, error) {
	if st, ok := r.tabs[alias]; ok {
		return st, nil
	}

	if err := r.ensureTab(ctx, alias); err != nil {
		return nil, err
	}

	st := &TabState{CutOver: timecalc.MinDate}
	if r.opts.AppendOnly {
		r.tabs[alias] = st
		r.log.Info().Str("tab", alias).Msg("append-only, no rows deleted")
		return st, nil
	}

	dates, err := r.sheet.ReadColumn(ctx, alias, r.opts.DateColumn)
	if err != nil {
		return nil, err
	}
	last, first, end, ok := lastDateRun(dates)
	if !ok {
		r.tabs[alias] = st
		r.log.Info().Str("tab", alias).Msg("no dated rows yet")
		return st, nil
	}
	st.LastDate = last

	marks, err := r.sheet.ReadColumn(ctx, alias, r.opts.InvoicedColumn)
	if err != nil {
		return nil, err
	}
	st.Invoiced = first <= countNonEmpty(marks)

	if st.Invoiced {
		st.CutOver = timecalc.NextDay(last)
	} else {
		if err := r.sheet.DeleteRows(ctx, alias, first, end); err != nil {
			return nil, err
		}
		res.Deleted += end - first + 1
		st.CutOver = last
	}
	r.tabs[alias] = st
	r.log.Info().
		Str("tab", alias).
		Str("last_date", timecalc.FormatDate(last)).
		Bool("invoiced", st.Invoiced).
		Str("cut_over", timecalc.FormatDate(st.CutOver)).
		Msg("tab checked")
	return st, nil
}

func (r *Reconciler) ensureTab(ctx context.Context, alias string) error {
	if r.tabNames == nil {
		names, err := r.sheet.TabNames(ctx)
		if err != nil {
			return err
		}
		r.tabNames = make(map[string]bool, len(names))
		for _, n := range names {
			r.tabNames[n] = true
		}
	}
	if !r.tabNames[alias] {
		return fmt.Errorf("%w: %q", ErrTabNotFound, alias)
	}
	return nil
}

// lastDateRun finds the contiguous bottom run of cells equal to the last
// cell. It returns the run's date and its 1-based first and last row. ok is
// false when the last cell is not a date (an empty tab or a header only).
func lastDateRun(cells []string) (date time.Time, first, last int, ok bool) {
	if len(cells) == 0 {
		return time.Time{}, 0, 0, false
	}
	value := strings.TrimSpace(cells[len(cells)-1])
	date, err := timecalc.ParseDate(value)
	if err != nil {
		return time.Time{}, 0, 0, false
	}
	i := len(cells) - 1
	for i > 0 && strings.TrimSpace(cells[i-1]) == value {
		i--
	}
	return date, i + 1, len(cells), true
}

func countNonEmpty(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}
