package main

import (
	"fmt"
	"os"

	"github.com/code-100-precent/FocusBuddy/pkg/config"
	"github.com/code-100-precent/FocusBuddy/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "focusbuddy",
		Short:         "Screen-aware focus sessions with periodic check-ins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newCaptureCmd())
	root.AddCommand(newDevicesCmd())
	root.AddCommand(newDBCmd())
	return root
}

// loadConfig reads the environment into config.GlobalConfig and starts the
// global logger.
func loadConfig() (*config.Config, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	cfg := config.GlobalConfig
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	if err := logger.Init(&cfg.Log, cfg.Server.Mode); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
