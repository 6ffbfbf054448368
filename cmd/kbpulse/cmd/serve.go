package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbpulse/internal/lock"
	"github.com/Aman-CERP/kbpulse/internal/logging"
	"github.com/Aman-CERP/kbpulse/pkg/version"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the activity stream and search server",
		Long: `Start the HTTP server. Saved and deleted articles are streamed to
connected clients on /api/events (with replay of recent activity) and
/api/activity/stream (live only). The search dataset is served from
/api/search/index and queried through /api/search.

Only one server may run per state directory (~/.kbpulse).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, addr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	// --debug already installed a file logger; otherwise honor the config level.
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return err
		}
		defer cleanup()
		slog.SetDefault(logger)
	}
	logger := slog.Default()

	fl := lock.ForRoot(logging.StateDir(), cfg.Content.Root)
	if err := fl.Acquire(); err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting kbpulse",
		slog.String("version", version.Version),
		slog.String("content_root", cfg.Content.Root),
		slog.String("addr", cfg.Server.Addr),
		slog.Bool("telemetry", cfg.Telemetry.Enabled))

	if err := a.server.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
