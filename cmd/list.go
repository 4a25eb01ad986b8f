package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/billy/internal/cache"
	"github.com/Tiliavir/billy/internal/model"
	"github.com/Tiliavir/billy/internal/timecalc"
)

var (
	listProject string
	listToday   bool
	listWeek    bool
)

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached time entries",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	cacheListCmd.Flags().StringVar(&listProject, "project", "", "Only show entries of this project alias")
	cacheListCmd.Flags().BoolVar(&listToday, "today", false, "Show today's entries")
	cacheListCmd.Flags().BoolVar(&listWeek, "week", false, "Show this week's entries")
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var projectID int64
	if listProject != "" {
		p, err := s.cfg.Project(listProject)
		if err != nil {
			return err
		}
		projectID = p.ID
	}

	now := time.Now().In(s.cfg.Location())
	var r *model.TimeRange
	switch {
	case listWeek:
		from, to := timecalc.WeekRange(now)
		r = &model.TimeRange{After: from, Until: &to}
	case listToday:
		to := timecalc.EndOfDay(now)
		r = &model.TimeRange{After: timecalc.StartOfDay(now), Until: &to}
	}

	c, err := cache.Open(s.cfg.CachePath)
	if err != nil {
		return err
	}
	defer c.Close()

	var entries []model.TimeEntry
	for e, err := range c.Scan(cmd.Context(), r) {
		if err != nil {
			return err
		}
		if projectID != 0 && e.Project.ID != projectID {
			continue
		}
		entries = append(entries, e)
	}

	printList(cmd.OutOrStdout(), entries, s.cfg.Location())
	return nil
}

// printList groups entries by day in loc and prints them.
func printList(w io.Writer, entries []model.TimeEntry, loc *time.Location) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return
	}

	var current time.Time
	for i, e := range entries {
		start := e.Start.In(loc)
		if i == 0 || !timecalc.SameDay(start, current) {
			fmt.Fprintln(w, start.Format(timecalc.DateLayout))
			current = start
		}

		endStr := "ongoing"
		durStr := ""
		if e.Stop != nil {
			endStr = e.Stop.In(loc).Format("15:04")
		}
		if d, ok := e.Duration(); ok {
			durStr = fmt.Sprintf(" (%s)", timecalc.FormatDuration(d))
		}

		desc := ""
		if e.Description != "" {
			desc = "  " + e.Description
		}

		fmt.Fprintf(w, "%s–%s  %s%s%s\n", start.Format("15:04"), endStr, e.Project.Alias, desc, durStr)
	}
}
