package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/desertthunder/vqa/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal client.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	if err := shared.SetLogLevel(fileLogger, r.config.Log.Level); err != nil {
		r.logger.Warn("ignoring log level", "error", err)
	}
	r.SetLogger(fileLogger)

	tracker, _, release, err := r.openTracker(ctx)
	if err != nil {
		return err
	}
	defer release()

	model := ui.NewModel(ctx, r.sessions, tracker, r.api)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
