package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbpulse/internal/activity"
	"github.com/Aman-CERP/kbpulse/internal/stream"
	"github.com/Aman-CERP/kbpulse/internal/ui"
)

// newTailCmd creates the tail command.
func newTailCmd() *cobra.Command {
	var (
		server     string
		live       bool
		heartbeats bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the activity stream of a running server",
		Long: `Connect to a running server and print saved and deleted articles as
they happen. Recent activity is replayed first unless --live is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if server == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				server = cfg.Server.Addr
			}
			path := "/api/events"
			if live {
				path = "/api/activity/stream"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := newPrinter(cmd, ui.WithHeartbeats(heartbeats))
			err := tailStream(ctx, &http.Client{}, baseURL(server)+path, p)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&server, "url", "", "Server address (default server.addr)")
	cmd.Flags().BoolVar(&live, "live", false, "Skip the replay of recent activity")
	cmd.Flags().BoolVar(&heartbeats, "heartbeats", false, "Print heartbeat comments")

	return cmd
}

// tailStream prints every record from the event stream at url until the
// server ends the stream or ctx is cancelled.
func tailStream(ctx context.Context, client *http.Client, url string, p *ui.Printer) error {
	resp, err := apiGet(ctx, client, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = stream.Read(resp.Body, func(f stream.Frame) error {
		switch {
		case f.IsComment():
			p.Heartbeat(f.Comment)
		case f.Event == activity.EventName:
			var payload activity.Payload
			if err := json.Unmarshal([]byte(f.Data), &payload); err != nil {
				slog.Warn("undecodable activity record", slog.String("error", err.Error()))
				return nil
			}
			p.Record(payload)
		}
		return nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
