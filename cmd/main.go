package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/vqa/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger, ConfigPath: defaultConfigPath})

	app := &cli.Command{
		Name:    "vqa",
		Usage:   "Video quality analysis client: submit videos, track analyses and browse reports",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   defaultConfigPath,
				Sources: cli.EnvVars("VQA_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override [log] level (debug, info, warn, error)",
			},
		},
		Before:   runner.configure,
		After:    func(context.Context, *cli.Command) error { return runner.Close() },
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotImplemented):
			logger.Warn("not implemented")
			os.Exit(0)
		case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrForbidden):
			logger.Error(err)
			os.Exit(2)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}

// configure loads the --config file (defaults when it does not exist) and applies the log level.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	config, err := shared.LoadConfigOrDefault(path)
	if err != nil {
		return ctx, err
	}
	r.config, r.configPath = config, path

	level := config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	if err := shared.SetLogLevel(r.logger, level); err != nil {
		return ctx, err
	}
	return ctx, nil
}
