package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/billy/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or remove the local entry cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the size and watermark of the entry cache",
	Args:  cobra.NoArgs,
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the entry cache; the next bill fetches everything again",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheExportCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
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

	st, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache: %s\n", c.Path())
	if st.Entries == 0 {
		fmt.Fprintln(out, "  empty")
		return nil
	}
	loc := s.cfg.Location()
	fmt.Fprintf(out, "  Entries:   %d\n", st.Entries)
	fmt.Fprintf(out, "  First:     %s\n", st.First.In(loc).Format(time.DateTime))
	fmt.Fprintf(out, "  Watermark: %s\n", st.Watermark.In(loc).Format(time.DateTime))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := cache.Remove(s.cfg.CachePath); err != nil {
		return err
	}
	s.log.Info().Str("path", s.cfg.CachePath).Msg("cache removed")
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", s.cfg.CachePath)
	return nil
}
