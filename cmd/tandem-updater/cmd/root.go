package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tandem-updater/internal/config"
	"github.com/oshokin/tandem-updater/internal/logger"
	"github.com/oshokin/tandem-updater/internal/service/updater"
	"github.com/oshokin/tandem-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// logLevel selects the minimum level for log output.
	logLevel string

	// checkOnly stops the run after the check stage without downloading anything.
	checkOnly bool

	// rootCmd represents the base command that checks for and applies updates.
	rootCmd = &cobra.Command{
		Use:   "tandem-updater",
		Short: "Check the release feed and update the tandem distribution in place",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			applyLogLevel()

			options := &updater.Options{
				ConfigPath: configPath,
				CheckOnly:  checkOnly,
			}

			return updater.Run(ctx, options)
		},
	}

	// checkCmd reports per-component update decisions without touching the install.
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Report whether the installed components are behind the release feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			applyLogLevel()

			decisions, err := updater.Check(ctx, &updater.Options{ConfigPath: configPath})
			if err != nil {
				return err
			}

			for _, decision := range decisions {
				current := decision.Current
				if current == "" {
					current = "(not installed)"
				}

				state := "up to date"
				if decision.Needed {
					state = "update available"
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (installed %s, latest %s)\n",
					decision.Component, state, current, decision.Latest)
			}

			return nil
		},
	}
)

// Execute runs the tandem-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyLogLevel configures the global logger from the --log-level flag.
func applyLogLevel() {
	if level, ok := logger.ParseLogLevel(logLevel); ok {
		logger.SetLevel(level)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l",
		"info", "minimum log level (debug|info|warn|error)")
	rootCmd.Flags().BoolVar(&checkOnly, "check-only",
		false, "stop after the update check without downloading anything")
	rootCmd.AddCommand(checkCmd)
}
