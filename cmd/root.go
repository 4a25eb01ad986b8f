package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/billy/internal/config"
	"github.com/Tiliavir/billy/internal/logger"
	"github.com/Tiliavir/billy/internal/timecalc"
)

var (
	configDir string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "billy",
	Short: "billy – sync Toggl time entries into a billing spreadsheet",
	Long: `billy fetches time entries from Toggl, caches them locally and writes
per-project daily summaries into one Google Sheets tab per project.
Configuration lives in ~/.config/billy/.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default $BILLY_CONFIG_DIR or ~/.config/billy)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Mirror the log on stderr")

	rootCmd.AddCommand(billCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(authCmd)
}

// session is what every command needs: the loaded config and a logger.
type session struct {
	cfg      *config.Config
	log      logger.Logger
	closeLog io.Closer
}

func (s *session) Close() {
	_ = s.closeLog.Close()
}

func openSession(cmd *cobra.Command) (*session, error) {
	dir := configDir
	if dir == "" {
		var err error
		if dir, err = config.Dir(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	opts := logger.Options{Path: cfg.LogPath, Level: "debug"}
	if verbose {
		opts.Console = cmd.ErrOrStderr()
	}
	log, closer := logger.New(opts)
	log = log.With().Str("cmd", cmd.Name()).Logger()
	return &session{cfg: cfg, log: log, closeLog: closer}, nil
}

// parseDateFlag parses a YYYY-MM-DD flag value as midnight in loc. An empty
// value yields nil.
func parseDateFlag(name, value string, loc *time.Location) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := timecalc.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	t := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return &t, nil
}
