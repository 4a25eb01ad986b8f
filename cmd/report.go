package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/billy/internal/aggregate"
	"github.com/Tiliavir/billy/internal/cache"
	"github.com/Tiliavir/billy/internal/model"
	"github.com/Tiliavir/billy/internal/timecalc"
)

var (
	reportFormat string
	reportAfter  string
)

var reportCmd = &cobra.Command{
	Use:   "report <project>",
	Short: "Show the cached daily summaries of a project",
	Long: `report aggregates the cached entries of a project the same way bill does,
without contacting any service. Run bill --fetch-only first to refresh the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, csv, json")
	reportCmd.Flags().StringVar(&reportAfter, "after", "", "Start date (YYYY-MM-DD); defaults to the project's start date")
}

func runReport(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	project, err := s.cfg.Project(args[0])
	if err != nil {
		return err
	}
	r := model.TimeRange{After: project.StartDate}
	after, err := parseDateFlag("after", reportAfter, s.cfg.Location())
	if err != nil {
		return err
	}
	if after != nil {
		r.After = *after
	}

	c, err := cache.Open(s.cfg.CachePath)
	if err != nil {
		return err
	}
	defer c.Close()

	var entries []model.TimeEntry
	for e, err := range c.Scan(cmd.Context(), &r) {
		if err != nil {
			return err
		}
		if e.Project.ID == project.ID {
			entries = append(entries, e)
		}
	}

	stats := aggregate.Entries(entries, s.cfg.Location())
	return writeReport(cmd.OutOrStdout(), reportFormat, project.Alias, stats)
}

type reportRow struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Seconds     int64  `json:"seconds"`
	Billable    bool   `json:"billable"`
}

type reportJSON struct {
	Project         string      `json:"project"`
	Rows            []reportRow `json:"rows"`
	TotalSeconds    int64       `json:"total_seconds"`
	BillableSeconds int64       `json:"billable_seconds"`
}

// writeReport prints daily summaries in the requested format.
func writeReport(w io.Writer, format, alias string, stats []model.ProjectDailyStats) error {
	rep := reportJSON{Project: alias, Rows: []reportRow{}}
	for _, day := range stats {
		for _, e := range day.Entries {
			rep.Rows = append(rep.Rows, reportRow{
				Date:        timecalc.FormatDate(day.Date),
				Description: e.Description,
				Seconds:     e.Duration,
				Billable:    e.Billable(),
			})
			rep.TotalSeconds += e.Duration
			if e.Billable() {
				rep.BillableSeconds += e.Duration
			}
		}
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case "csv":
		fmt.Fprintln(w, "date,description,seconds,billable")
		for _, r := range rep.Rows {
			fmt.Fprintf(w, "%s,%s,%d,%t\n", r.Date, csvEscape(r.Description), r.Seconds, r.Billable)
		}
	case "md":
		fmt.Fprintf(w, "Project %s\n", alias)
		fmt.Fprintln(w, "--------------------------------")
		current := ""
		for _, r := range rep.Rows {
			if r.Date != current {
				fmt.Fprintln(w, r.Date)
				current = r.Date
			}
			fmt.Fprintf(w, "  %-40s%s\n", r.Description, timecalc.FormatDurationHHMMSS(r.Seconds))
		}
		fmt.Fprintln(w, "--------------------------------")
		fmt.Fprintf(w, "%-42s%s\n", "Total", timecalc.FormatDuration(rep.TotalSeconds))
		fmt.Fprintf(w, "%-42s%s\n", "Billable", timecalc.FormatDuration(rep.BillableSeconds))
	default:
		return fmt.Errorf("unknown format %q (want md, csv or json)", format)
	}
	return nil
}
