package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/billy/internal/sheets"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to Google and store the spreadsheet token",
	Long: `auth runs the browser sign-in for the Google Sheets API and saves the token
next to the configuration. bill signs in on demand; use auth to replace a token
or to sign in ahead of time.`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func runAuth(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	oc, err := sheets.OAuth2Config(s.cfg.ClientSecretPath())
	if err != nil {
		return err
	}
	if _, err := sheets.Authorize(cmd.Context(), oc, s.cfg.TokenPath(), true, cmd.OutOrStdout(), s.log); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Authenticated. Token saved to %s\n", s.cfg.TokenPath())
	return nil
}
