package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sbd-checker/internal/config"
	"sbd-checker/internal/credentials"
	"sbd-checker/internal/ledger"
	"sbd-checker/internal/sources"
	"sbd-checker/internal/sources/drive"
	"sbd-checker/internal/sources/gmail"
	"sbd-checker/internal/staging"
	"sbd-checker/internal/sync"
)

func newSyncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Stage new sbd files from every enabled source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			srcs, err := buildSources(ctx, cfg)
			if err != nil {
				return err
			}
			if len(srcs) == 0 {
				return fmt.Errorf("no sources enabled in %s", opts.configPath)
			}
			return runSync(ctx, cmd.OutOrStdout(), cfg, srcs)
		},
	}
}

// newDummyCmd stages the two fixed test files, which exercises the staging
// path without any credentials.
func newDummyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dummy",
		Short: "Stage the built-in test files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cmd.OutOrStdout(), cfg, []sources.Source{sources.TestSource{}})
		},
	}
}

// buildSources constructs every source enabled in cfg. Drive authenticates
// with the service account, Gmail with the authorized user token.
func buildSources(ctx context.Context, cfg *config.Config) ([]sources.Source, error) {
	var srcs []sources.Source

	if cfg.Sources.Drive.Enabled {
		opt, err := credentials.ServiceAccountOption(ctx, cfg.Credentials, credentials.ScopeDriveReadonly)
		if err != nil {
			return nil, fmt.Errorf("drive credentials: %w", err)
		}
		src, err := drive.New(ctx, cfg.Sources.Drive, opt)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, src)
	}

	if cfg.Sources.Gmail.Enabled {
		opt, err := credentials.GmailOption(ctx, cfg.Credentials)
		if err != nil {
			return nil, fmt.Errorf("gmail credentials: %w", err)
		}
		src, err := gmail.New(ctx, cfg.Sources.Gmail, opt)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, src)
	}

	if cfg.Sources.Test.Enabled {
		srcs = append(srcs, sources.TestSource{})
	}
	return srcs, nil
}

// openStore opens the configured staging root, creating it if needed. With
// no root configured the store is temporary and removed on Close.
func openStore(cfg config.StagingConfig) (*staging.Store, error) {
	if cfg.Root == "" {
		log.Warn().Msg("No staging root configured, staged files are discarded on exit")
		return staging.NewTemp()
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}
	return staging.Open(cfg.Root)
}

func runSync(ctx context.Context, out io.Writer, cfg *config.Config, srcs []sources.Source) error {
	store, err := openStore(cfg.Staging)
	if err != nil {
		return err
	}
	defer store.Close()

	manager := sync.NewManager(store, cfg.Sync)

	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer l.Close()
		manager.SetLedger(l)
	}
	if cfg.Sync.StatePath != "" {
		manager.SetState(sync.NewState(cfg.Sync.StatePath))
	}

	for _, src := range srcs {
		manager.RegisterSource(src)
	}

	results, err := manager.Run(ctx)
	for _, res := range results {
		fmt.Fprintf(out, "%-6s staged %d, known %d, skipped %d of %d\n",
			res.Source, res.Staged, res.Known, res.Skipped, res.Scanned)
	}
	return err
}
