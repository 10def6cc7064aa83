package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sbd-checker/internal/ledger"
	"sbd-checker/internal/profiles"
	"sbd-checker/internal/staging"
)

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list [device]",
		Short: "List staged files, optionally for one device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Staging.Root == "" {
				return errors.New("no staging root configured")
			}
			store, err := staging.Open(cfg.Staging.Root)
			if err != nil {
				return err
			}

			var names []string
			if len(args) == 1 {
				names, err = store.List(args[0])
			} else {
				names, err = store.ListAll()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

func newLedgerCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recently staged files and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Ledger.Path == "" {
				return errors.New("ledger is not enabled")
			}
			l, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer l.Close()

			entries, err := l.Recent(limit)
			if err != nil {
				return err
			}
			stats, err := l.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-6s %6d  %s\n", e.ItemTime.UTC().Format(time.RFC3339), e.Source, e.Size, e.Name)
			}
			fmt.Fprintf(out, "%d files from %d devices", stats.Files, stats.Devices)
			if stats.Newest != nil {
				fmt.Fprintf(out, ", newest %s", stats.Newest.UTC().Format(time.RFC3339))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}

func newExpectedCmd(opts *options) *cobra.Command {
	var cycle time.Duration

	cmd := &cobra.Command{
		Use:   "expected <index.csv>",
		Short: "List floats whose next profile was due in the last 24 hours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.load(cmd); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			index, err := profiles.ReadIndex(f)
			if err != nil {
				return err
			}
			wmos, err := profiles.Expected(profiles.Last(index, 1), cycle, profiles.LastDay(time.Now()))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, wmo := range wmos {
				fmt.Fprintln(out, wmo)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&cycle, "cycle", 240*time.Hour, "Time between profiles")
	return cmd
}
