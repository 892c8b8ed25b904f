// submodule cmd contains command definitions
package main

import (
	"context"

	"github.com/desertthunder/vqa/internal/guard"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/urfave/cli/v3"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// reportFlags are shared by every command that prints tables.
func reportFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		jsonFlag(),
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Table format: table, plain or markdown (default: table on a terminal, plain otherwise)",
		},
		&cli.StringFlag{
			Name:    "export",
			Aliases: []string{"o"},
			Usage:   "Also write the report to a Markdown file",
		},
	}
	return append(flags, extra...)
}

func (r *Runner) connectBefore(ctx context.Context, _ *cli.Command) (context.Context, error) {
	return ctx, r.connect(ctx)
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml populated with defaults",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "status",
				Usage:  "List migrations and whether they are applied",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the signed-in session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with username and password",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "username",
						Aliases: []string{"u"},
						Usage:   "Account username (prompted when omitted)",
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password (read from stdin when omitted)",
						Sources: cli.EnvVars("VQA_PASSWORD"),
					},
				},
				Before: r.connectBefore,
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored session",
				Before: r.connectBefore,
				Action: r.AuthLogout,
			},
			{
				Name:   "whoami",
				Usage:  "Show the signed-in user, role and token expiry",
				Flags:  []cli.Flag{jsonFlag()},
				Before: r.requireRoles(),
				Action: r.AuthWhoami,
			},
			{
				Name:  "profile",
				Usage: "Update your own profile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Usage: "New username"},
					&cli.StringFlag{Name: "email", Usage: "New email address"},
					&cli.StringFlag{Name: "full-name", Usage: "New display name"},
					&cli.StringFlag{Name: "new-password", Usage: "New password"},
					jsonFlag(),
				},
				Before: r.requireRoles(),
				Action: r.AuthProfile,
			},
		},
	}
}

func analyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Submit videos for quality analysis",
		Commands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "Analyze a CitNOW video URL and track the task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "lang",
						Usage: "Transcription language",
						Value: services.DefaultTranscriptionLanguage,
					},
					&cli.StringFlag{
						Name:  "target",
						Usage: "Target language for translated output",
						Value: services.DefaultTargetLanguage,
					},
					&cli.BoolFlag{
						Name:    "wait",
						Aliases: []string{"w"},
						Usage:   "Poll until the analysis finishes",
					},
					jsonFlag(),
				},
				Before: r.requireRoute(session.NewAnalysisRoute),
				Action: r.AnalyzeSubmit,
			},
		},
	}
}

func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tasks",
		Aliases: []string{"t"},
		Usage:   "Inspect and manage tracked analysis tasks",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List tracked tasks",
				Flags:  reportFlags(),
				Before: r.connectBefore,
				Action: r.TasksList,
			},
			{
				Name:  "add",
				Usage: "Track a task started elsewhere",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "bulk",
						Usage: "Track a bulk upload batch",
					},
				},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					if cmd.Bool("bulk") {
						return r.requireRoute(guard.BulkUploadRoute)(ctx, cmd)
					}
					return r.requireRoute(session.NewAnalysisRoute)(ctx, cmd)
				},
				Action: r.TasksAdd,
			},
			{
				Name:  "remove",
				Usage: "Stop tracking a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Before: r.connectBefore,
				Action: r.TasksRemove,
			},
			{
				Name:   "prune",
				Usage:  "Stop tracking every completed or failed task",
				Before: r.connectBefore,
				Action: r.TasksPrune,
			},
			{
				Name:   "watch",
				Usage:  "Poll active tasks until they finish (Ctrl-C to stop)",
				Flags:  reportFlags(),
				Before: r.requireRoles(),
				Action: r.TasksWatch,
			},
			{
				Name:  "history",
				Usage: "Show the recorded status changes of a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  reportFlags(),
				Before: r.connectBefore,
				Action: r.TasksHistory,
			},
		},
	}
}

func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage user accounts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List users (all users for super admins, your dealer's users otherwise)",
				Flags: reportFlags(
					&cli.StringFlag{Name: "dealer", Usage: "Dealer to list (super admins only)"},
				),
				Before: r.requireRoles(),
				Action: r.UsersList,
			},
			{
				Name:  "create",
				Usage: "Create a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{
						Name:  "role",
						Usage: "super_admin, dealer_admin, branch_admin or dealer_user",
						Value: string(models.RoleDealerUser),
					},
					&cli.StringFlag{Name: "dealer", Usage: "Dealer id (defaults to your own)"},
					&cli.StringFlag{Name: "branch", Usage: "Branch id"},
					&cli.StringFlag{Name: "full-name"},
					&cli.StringFlag{Name: "showroom", Usage: "Showroom name"},
					jsonFlag(),
				},
				Before: r.requireRoles(adminRoles...),
				Action: r.UsersCreate,
			},
			{
				Name:  "update",
				Usage: "Update a user",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username"},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "password"},
					&cli.StringFlag{Name: "role"},
					&cli.StringFlag{Name: "dealer", Usage: "Dealer id; an empty value clears it"},
					&cli.StringFlag{Name: "full-name"},
					jsonFlag(),
				},
				Before: r.requireRoles(adminRoles...),
				Action: r.UsersUpdate,
			},
			{
				Name:  "delete",
				Usage: "Delete a user",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Before: r.requireRoles(adminRoles...),
				Action: r.UsersDelete,
			},
		},
	}
}

func resultsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "results",
		Usage: "Browse completed analyses",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List analysis results",
				Flags: reportFlags(
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of results", Value: 50},
					&cli.StringFlag{Name: "dealer", Usage: "Dealer to list (super admins only)"},
				),
				Before: r.requireRoles(),
				Action: r.ResultsList,
			},
			{
				Name:  "delete",
				Usage: "Delete an analysis result",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Before: r.requireRoles(models.RoleSuperAdmin, models.RoleDealerAdmin),
				Action: r.ResultsDelete,
			},
		},
	}
}

func dashboardCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Summary reports",
		Commands: []*cli.Command{
			{
				Name:   "overview",
				Usage:  "Network-wide analysis overview",
				Flags:  reportFlags(),
				Before: r.requireRoute(session.SuperAdminDashboardRoute),
				Action: r.DashboardOverview,
			},
			{
				Name:   "dealers",
				Usage:  "Per-dealer video counts and quality",
				Flags:  reportFlags(),
				Before: r.requireRoute(guard.SuperAdminDealersRoute),
				Action: r.DashboardDealers,
			},
			{
				Name:  "user-stats",
				Usage: "Per-user statistics for a dealer",
				Flags: reportFlags(
					&cli.StringFlag{Name: "dealer", Usage: "Dealer id (defaults to your own)"},
				),
				Before: r.requireRoles(adminRoles...),
				Action: r.DashboardUserStats,
			},
		},
	}
}

func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the analysis API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Before: r.connectBefore,
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Before: r.connectBefore,
				Action: r.APIPost,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from [server] config)",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the dashboard in a browser",
			},
		},
		Before: r.connectBefore,
		Action: r.Serve,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive terminal client",
		Action:  r.TUI,
	}
}
