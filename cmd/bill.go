package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/billy/internal/bill"
	"github.com/Tiliavir/billy/internal/config"
	"github.com/Tiliavir/billy/internal/reconcile"
	"github.com/Tiliavir/billy/internal/sheets"
	"github.com/Tiliavir/billy/internal/toggl"
)

var (
	billFetchOnly  bool
	billAppendOnly bool
	billCleanCache bool
	billAfter      string
	billUntil      string
)

var billCmd = &cobra.Command{
	Use:   "bill <project>",
	Short: "Sync a project's time entries into its spreadsheet tab",
	Long: `bill fetches the project's new time entries, caches them and rewrites the
project's tab from the last day that is not yet invoiced.`,
	Args: cobra.ExactArgs(1),
	RunE: runBill,
}

func init() {
	billCmd.Flags().BoolVar(&billFetchOnly, "fetch-only", false, "Fetch and cache entries without touching the spreadsheet")
	billCmd.Flags().BoolVar(&billAppendOnly, "append-only", false, "Append every day without deleting or skipping rows")
	billCmd.Flags().BoolVar(&billCleanCache, "clean-cache", false, "Delete the entry cache before syncing")
	billCmd.Flags().StringVar(&billAfter, "after", "", "Start date (YYYY-MM-DD); defaults to the project's start date")
	billCmd.Flags().StringVar(&billUntil, "until", "", "Last date to include (YYYY-MM-DD); defaults to now")
}

func runBill(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	cfg := s.cfg
	out := cmd.OutOrStdout()

	after, err := parseDateFlag("after", billAfter, cfg.Location())
	if err != nil {
		return err
	}
	until, err := parseDateFlag("until", billUntil, cfg.Location())
	if err != nil {
		return err
	}
	if until != nil {
		// Include the whole --until day.
		next := until.AddDate(0, 0, 1)
		until = &next
	}

	if cfg.Credentials.TogglAPIToken == "" {
		return fmt.Errorf("%w: toggl_api_token is empty (or set %s)", config.ErrMissingCredentials, config.TokenEnv)
	}
	client := toggl.NewClient(nil, "", cfg.Credentials.TogglAPIToken)

	env := bill.Env{
		Config: cfg,
		Source: toggl.NewSource(client, cfg, s.log),
		OpenSheet: func(ctx context.Context) (reconcile.Spreadsheet, error) {
			id, err := cfg.SpreadsheetID()
			if err != nil {
				return nil, err
			}
			oc, err := sheets.OAuth2Config(cfg.ClientSecretPath())
			if err != nil {
				return nil, err
			}
			tok, err := sheets.Authorize(ctx, oc, cfg.TokenPath(), false, out, s.log)
			if err != nil {
				return nil, fmt.Errorf("authentication failed: %w", err)
			}
			return sheets.NewClient(ctx, tok, oc, cfg.TokenPath(), id), nil
		},
		Log: s.log,
		Out: out,
	}

	res, err := bill.Run(cmd.Context(), env, bill.Options{
		Project:    args[0],
		After:      after,
		Until:      until,
		CleanCache: billCleanCache,
		FetchOnly:  billFetchOnly,
		AppendOnly: billAppendOnly,
	})
	if err != nil {
		return err
	}

	if billFetchOnly {
		fmt.Fprintf(out, "Cached: %d new, %d skipped, %d ongoing\n",
			res.Fetch.Appended, res.Fetch.Skipped, res.Fetch.Ongoing)
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  %d rows appended\n", res.Sheet.Appended)
	fmt.Fprintf(out, "  %d days skipped\n", res.Sheet.Skipped)
	fmt.Fprintf(out, "  %d rows deleted\n", res.Sheet.Deleted)
	return nil
}
