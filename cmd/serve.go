package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/vqa/internal/server"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the local dashboard until interrupted. It holds the poller lock for its lifetime.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker, _, release, err := r.openTracker(ctx)
	if err != nil {
		return err
	}
	defer release()

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	dashboard := server.NewDashboard(r.sessions, tracker, r.api, r.logger)
	router := server.NewRouter(dashboard, r.logger.With("component", "dashboard"))

	ready := make(chan string, 1)
	go func() {
		select {
		case bound := <-ready:
			url := "http://" + bound
			r.writePlain("Dashboard running at %s (Ctrl-C to stop)\n", url)
			if cmd.Bool("open") {
				if err := shared.OpenBrowser(url); err != nil {
					r.logger.Warn("failed to open browser", "error", err)
				}
			}
		case <-ctx.Done():
		}
	}()

	return server.Serve(ctx, addr, router, r.logger, ready)
}
