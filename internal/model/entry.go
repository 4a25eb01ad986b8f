package model

import (
	"math"
	"strings"
	"time"
)

// NoChargeMarker in a task description marks the work as not billable.
const NoChargeMarker = "(no charge)"

// Project is a configured project of the time-tracking service.
type Project struct {
	ID    int64
	Alias string
	// StartDate is the earliest billable date; fetches default to it.
	StartDate time.Time
}

// TimeEntry is one tracked work interval. Stop is nil while the entry is running.
type TimeEntry struct {
	ID          int64
	Project     Project
	Description string
	Start       time.Time
	Stop        *time.Time
}

// Ongoing reports whether the entry is still running.
func (e TimeEntry) Ongoing() bool {
	return e.Stop == nil
}

// Duration returns the entry length in whole seconds, rounded.
// ok is false while the entry is ongoing.
func (e TimeEntry) Duration() (seconds int64, ok bool) {
	if e.Stop == nil {
		return 0, false
	}
	return int64(math.Round(e.Stop.Sub(e.Start).Seconds())), true
}

// TimeRange is a fetch or query window. After is inclusive; a nil Until is
// unbounded forward.
type TimeRange struct {
	After time.Time
	Until *time.Time
}

// EntrySummary is the total time spent on one task description.
type EntrySummary struct {
	Description string
	Duration    int64
}

// Billable reports whether the summary should be charged.
func (s EntrySummary) Billable() bool {
	return !strings.Contains(s.Description, NoChargeMarker)
}

// ProjectDailyStats holds the summaries of one project for one calendar day.
// Date is midnight UTC of that day.
type ProjectDailyStats struct {
	Alias   string
	Date    time.Time
	Entries []EntrySummary
}
