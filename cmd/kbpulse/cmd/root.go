// Package cmd provides the CLI commands for kbpulse.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbpulse/internal/config"
	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
	"github.com/Aman-CERP/kbpulse/internal/logging"
	"github.com/Aman-CERP/kbpulse/internal/ui"
	"github.com/Aman-CERP/kbpulse/pkg/version"
)

// Persistent flags
var (
	debugMode      bool
	projectDir     string
	noColor        bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the kbpulse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbpulse",
		Short: "Live change feed and search cache for a markdown knowledge base",
		Long: `kbpulse watches a directory of markdown articles, streams a live
activity feed of saved and deleted articles to connected clients, and
serves a cached search dataset with full-text queries.

Run 'kbpulse serve' in the project directory to start the server.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("kbpulse version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.kbpulse/logs/")
	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDatasetCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newTailCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables debug logging if --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, kberrors.FormatForCLI(err))
	}
	return err
}

// loadConfig loads the effective configuration for --dir.
func loadConfig() (*config.Config, error) {
	return config.Load(projectDir)
}

// newPrinter returns a printer for cmd's stdout honoring --no-color.
func newPrinter(cmd *cobra.Command, opts ...ui.ConfigOption) *ui.Printer {
	cfg := ui.NewConfig(cmd.OutOrStdout(), opts...)
	if noColor {
		cfg.NoColor = true
	}
	return ui.NewPrinter(cfg)
}
