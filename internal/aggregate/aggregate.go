// Package aggregate collapses time entries into per-project daily totals.
package aggregate

import (
	"time"

	"github.com/Tiliavir/billy/internal/model"
	"github.com/Tiliavir/billy/internal/timecalc"
)

type dayKey struct {
	alias string
	date  time.Time
}

type group struct {
	key   dayKey
	order []string
	total map[string]int64
}

// Entries sums entry durations per project alias, calendar date of start
// (in loc) and description. Ongoing entries are ignored.
//
// Groups come out in the order their first entry was seen; within a group
// descriptions keep first-seen order.
func Entries(entries []model.TimeEntry, loc *time.Location) []model.ProjectDailyStats {
	var groups []*group
	byKey := map[dayKey]*group{}

	for _, e := range entries {
		seconds, ok := e.Duration()
		if !ok {
			continue
		}
		key := dayKey{alias: e.Project.Alias, date: timecalc.DateOf(e.Start, loc)}
		g, found := byKey[key]
		if !found {
			g = &group{key: key, total: map[string]int64{}}
			byKey[key] = g
			groups = append(groups, g)
		}
		if _, seen := g.total[e.Description]; !seen {
			g.order = append(g.order, e.Description)
		}
		g.total[e.Description] += seconds
	}

	stats := make([]model.ProjectDailyStats, 0, len(groups))
	for _, g := range groups {
		summaries := make([]model.EntrySummary, 0, len(g.order))
		for _, desc := range g.order {
			summaries = append(summaries, model.EntrySummary{Description: desc, Duration: g.total[desc]})
		}
		stats = append(stats, model.ProjectDailyStats{Alias: g.key.alias, Date: g.key.date, Entries: summaries})
	}
	return stats
}
