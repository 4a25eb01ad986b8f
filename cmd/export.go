package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/billy/internal/cache"
	"github.com/Tiliavir/billy/internal/model"
	"github.com/Tiliavir/billy/internal/timecalc"
)

var exportFormat string

var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every cached time entry to stdout",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	cacheExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, json")
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := cache.Open(s.cfg.CachePath)
	if err != nil {
		return err
	}
	defer c.Close()

	var entries []model.TimeEntry
	for e, err := range c.Scan(cmd.Context(), nil) {
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	out := cmd.OutOrStdout()
	switch exportFormat {
	case "json":
		return printJSON(out, entries)
	case "csv":
		printCSV(out, entries, s.cfg.Location())
		return nil
	default:
		return fmt.Errorf("unknown format %q (want csv or json)", exportFormat)
	}
}

type exportEntry struct {
	ID          int64     `json:"id"`
	Project     string    `json:"project"`
	ProjectID   int64     `json:"project_id"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
	Seconds     int64     `json:"seconds"`
}

func printJSON(w io.Writer, entries []model.TimeEntry) error {
	out := make([]exportEntry, 0, len(entries))
	for _, e := range entries {
		// Cached entries are always completed.
		d, _ := e.Duration()
		out = append(out, exportEntry{
			ID:          e.ID,
			Project:     e.Project.Alias,
			ProjectID:   e.Project.ID,
			Description: e.Description,
			Start:       e.Start,
			Stop:        *e.Stop,
			Seconds:     d,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printCSV(w io.Writer, entries []model.TimeEntry, loc *time.Location) {
	fmt.Fprintln(w, "id,date,project,description,start,stop,seconds")
	for _, e := range entries {
		stop := ""
		if e.Stop != nil {
			stop = e.Stop.Format(time.RFC3339)
		}
		d, _ := e.Duration()
		fmt.Fprintf(w, "%d,%s,%s,%s,%s,%s,%d\n",
			e.ID,
			timecalc.FormatDate(timecalc.DateOf(e.Start, loc)),
			csvEscape(e.Project.Alias),
			csvEscape(e.Description),
			e.Start.Format(time.RFC3339),
			stop,
			d,
		)
	}
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	// Escape internal double quotes by doubling them.
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
