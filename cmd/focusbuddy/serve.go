package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/code-100-precent/FocusBuddy/cmd/bootstrap"
	"github.com/code-100-precent/FocusBuddy/pkg/logger"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var banner string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event stream for the UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if banner != "" {
				if err := bootstrap.PrintBannerFromFile(cmd.OutOrStdout(), banner); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			bootstrap.LogConfigInfo(logger.Lg, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.NewApp(ctx, cfg, logger.Lg)
			if err != nil {
				return err
			}
			return app.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&banner, "banner", "banner.txt", "banner file printed at startup")
	return cmd
}
