package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sbd-checker/internal/credentials"
)

func newAuthCmd(opts *options) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Obtain credentials",
	}

	authCmd.AddCommand(&cobra.Command{
		Use:   "gmail",
		Short: "Authorize read-only Gmail access in a browser and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			creds := cfg.Credentials
			conf, tok, err := credentials.AuthorizeInteractive(ctx, creds.GmailClientSecret, creds.RedirectPort, credentials.ScopeGmailReadonly)
			if err != nil {
				return err
			}
			if err := credentials.SaveAuthorizedUser(creds.GmailTokenFile, conf, tok); err != nil {
				return fmt.Errorf("unable to save token: %w", err)
			}
			log.Info().Str("path", creds.GmailTokenFile).Msg("Saved gmail token")
			return nil
		},
	})
	return authCmd
}
