package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vqa/internal/formatter"
	"github.com/desertthunder/vqa/internal/repositories"
	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/desertthunder/vqa/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	db         *sql.DB
	ownsDB     bool
	kv         *repositories.KVRepository
	events     *repositories.TaskEventRepository
	sessions   *session.Manager
	api        *services.APIService
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	now        func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	// DB is used instead of opening [shared.DatabaseConfig.Path]. It must already be migrated.
	DB         *sql.DB
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		db:         opts.DB,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		now:        time.Now,
	}
}

// SetLogger replaces the logger used by the runner and everything it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, analyzeCommand, tasksCommand, usersCommand, resultsCommand,
		dashboardCommand, apiCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// connect opens the database, builds the session manager and API client around it and restores
// the stored session. Subsequent calls are no-ops.
func (r *Runner) connect(ctx context.Context) error {
	if r.sessions != nil {
		return nil
	}

	if r.db == nil {
		r.logger.Debug("opening database", "path", r.config.Database.Path)
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		r.db, r.ownsDB = db, true
	}

	r.kv = repositories.NewKVRepository(r.db)
	r.events = repositories.NewTaskEventRepository(r.db)
	r.sessions = session.NewManager(nil, repositories.NewSessionStore(r.kv), r.logger)
	r.api = services.NewAPIService(r.config.API.BaseURL, r.httpClient,
		services.WithCredentials(r.sessions),
		services.WithTimeout(r.config.API.Timeout.Duration),
		services.WithLogger(r.logger),
	)
	r.sessions.SetBackend(r.api)

	if _, err := r.sessions.Restore(ctx); err != nil {
		r.logger.Warn("failed to restore session", "error", err)
	}
	return nil
}

// Close releases the database when the runner opened it.
func (r *Runner) Close() error {
	if r.db != nil && r.ownsDB {
		return r.db.Close()
	}
	return nil
}

// expired wraps err for display after a rejected credential destroyed the session.
func (r *Runner) expired(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if r.sessions != nil && r.sessions.HandleUnauthorized(ctx, err) {
		return fmt.Errorf("%w: session expired, run `vqa auth login` again", shared.ErrNotAuthenticated)
	}
	return err
}

func (r *Runner) trackerOptions() tasks.Options {
	return tasks.Options{
		Interval:             r.config.Tasks.PollInterval.Duration,
		Workers:              r.config.Tasks.Workers,
		RateLimit:            r.config.Tasks.RateLimit,
		RequestTimeout:       r.config.API.Timeout.Duration,
		MaxTransientFailures: r.config.Tasks.MaxTransientFailures,
		Logger:               r.logger,
		Now:                  r.now,
	}
}

func (r *Runner) taskStore() *repositories.TaskStore {
	return repositories.NewTaskStore(r.kv, r.config.Tasks.StorageKey)
}

// openTracker takes the poller lock and builds a tracker over the persisted task set. Task
// additions and status changes are recorded in the task history until release is called.
func (r *Runner) openTracker(ctx context.Context) (*tasks.Tracker, *sessionPoller, func(), error) {
	if err := r.connect(ctx); err != nil {
		return nil, nil, nil, err
	}

	lock, err := tasks.AcquireLock(r.config.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	poller := newSessionPoller(r.api, r.sessions)
	tracker := tasks.New(ctx, poller, r.taskStore(), r.trackerOptions())

	events, _ := tracker.Subscribe(eventBuffer)
	recorded := make(chan struct{})
	go func() {
		defer close(recorded)
		r.events.RecordEvents(context.WithoutCancel(ctx), events, r.logger)
	}()

	release := func() {
		tracker.Close()
		<-recorded
		if err := lock.Release(); err != nil {
			r.logger.Warn("failed to release poller lock", "path", lock.Path(), "error", err)
		}
	}
	return tracker, poller, release, nil
}

// format resolves the --format flag, falling back to what the output supports.
func (r *Runner) format(cmd *cli.Command) (formatter.Format, error) {
	if v := cmd.String("format"); v != "" {
		return formatter.ParseFormat(v)
	}
	return formatter.DetectFormat(r.output), nil
}

// render writes tables in the requested format, or data as JSON when --json is set. With
// --export the tables are also written to a Markdown file.
func (r *Runner) render(cmd *cli.Command, data any, tables ...formatter.Table) error {
	if cmd.Bool("json") {
		return r.writeJSON(data, true)
	}

	f, err := r.format(cmd)
	if err != nil {
		return err
	}
	if err := formatter.Write(r.output, f, tables...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if path := cmd.String("export"); path != "" {
		title := cmd.FullName()
		if len(tables) > 0 && tables[0].Title != "" {
			title = tables[0].Title
		}
		if err := formatter.WriteExport(path, formatter.ExportToMarkdown(title, tables...)); err != nil {
			return err
		}
		r.logger.Info("report exported", "path", path)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
