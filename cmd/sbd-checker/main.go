package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sbd-checker/internal/config"
)

type options struct {
	configPath  string
	interactive bool
	logLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "sbd-checker",
		Short:         "Collect float sbd messages from Google Drive and Gmail into a local staging directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&opts.interactive, "interactive", false, "Allow the browser OAuth flow and persist refreshed tokens")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(
		newSyncCmd(opts),
		newDummyCmd(opts),
		newListCmd(opts),
		newLedgerCmd(opts),
		newExpectedCmd(opts),
		newAuthCmd(opts),
	)
	return rootCmd
}

// load reads the config file and sets up logging. A missing config file is
// only an error when the path was given explicitly.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if o.interactive {
		cfg.Credentials.Interactive = true
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output = os.Stderr
	if cfg.Path != "" {
		file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to open log file, using stderr")
		} else {
			output = file
		}
	}

	if cfg.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
}
