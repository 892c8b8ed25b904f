package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/desertthunder/vqa/internal/formatter"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/desertthunder/vqa/internal/tasks"
	"github.com/urfave/cli/v3"
)

// AnalyzeSubmit starts an analysis and tracks the returned task. With --wait it keeps polling
// until the task finishes.
func (r *Runner) AnalyzeSubmit(ctx context.Context, cmd *cli.Command) error {
	target := strings.TrimSpace(cmd.StringArg("url"))
	if target == "" {
		return fmt.Errorf("%w: video URL", shared.ErrMissingArgument)
	}

	tracker, poller, release, err := r.openTracker(ctx)
	if err != nil {
		return err
	}
	defer release()

	accepted, err := r.api.SubmitAnalysis(ctx, models.AnalysisRequest{
		URL:                   target,
		TranscriptionLanguage: cmd.String("lang"),
		TargetLanguage:        cmd.String("target"),
	})
	if err != nil {
		return r.expired(ctx, err)
	}

	tracker.Add(models.Task{ID: accepted.TaskID, Status: accepted.Status, Message: accepted.Message})
	task, _ := tracker.Get(accepted.TaskID)
	r.logger.Info("analysis submitted", "task_id", task.ID, "status", task.Status)

	if !cmd.Bool("wait") {
		if cmd.Bool("json") {
			return r.writeJSON(task, true)
		}
		r.writePlain("✓ Analysis submitted: %s (%s)\n", task.ID, task.Status)
		return r.writePlain("Run `vqa tasks watch` to follow it.\n")
	}

	r.writePlain("Analysis submitted: %s\n", task.ID)
	if err := r.follow(ctx, tracker, poller, map[string]bool{task.ID: true}); err != nil {
		return err
	}

	task, _ = tracker.Get(task.ID)
	if cmd.Bool("json") {
		return r.writeJSON(task, true)
	}
	switch task.Status {
	case models.TaskCompleted:
		return r.writePlain("✓ Analysis complete: result %s\n", task.ResultID)
	case models.TaskFailed:
		return fmt.Errorf("analysis %s failed: %s", task.ID, task.ErrorMessage)
	default:
		return r.writePlain("Analysis %s is still %s.\n", task.ID, task.Status)
	}
}

// TasksList prints the persisted task set. It reads the store directly and does not poll.
func (r *Runner) TasksList(ctx context.Context, cmd *cli.Command) error {
	list, err := r.taskStore().Load(ctx)
	if err != nil {
		var storageErr *tasks.StorageError
		if !errors.As(err, &storageErr) {
			return err
		}
		r.logger.Warn("tracked tasks are unreadable", "error", err)
		list = nil
	}
	if list == nil {
		list = []models.Task{}
	}
	return r.render(cmd, list, formatter.TasksTable(list, r.now()))
}

// TasksAdd tracks a task or bulk batch that was started outside this client.
func (r *Runner) TasksAdd(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	tracker, _, release, err := r.openTracker(ctx)
	if err != nil {
		return err
	}
	defer release()

	task := models.Task{ID: id}
	if cmd.Bool("bulk") {
		task.Kind, task.BatchID = models.TaskBulk, id
	}
	if !tracker.Add(task) {
		return r.writePlain("Task %s is already tracked.\n", id)
	}
	return r.writePlain("✓ Tracking %s\n", id)
}

// TasksRemove stops tracking a task. Its recorded history is kept.
func (r *Runner) TasksRemove(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	tracker, _, release, err := r.openTracker(ctx)
	if err != nil {
		return err
	}
	defer release()

	if !tracker.Remove(id) {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	return r.writePlain("✓ Removed %s\n", id)
}

// TasksPrune removes every task in a terminal status.
func (r *Runner) TasksPrune(ctx context.Context, cmd *cli.Command) error {
	tracker, _, release, err := r.openTracker(ctx)
	if err != nil {
		return err
	}
	defer release()

	removed := 0
	for _, task := range tracker.List() {
		if task.Status.Terminal() && tracker.Remove(task.ID) {
			removed++
		}
	}
	return r.writePlain("✓ Removed %d finished task(s)\n", removed)
}

// TasksWatch polls until no tracked task is active, printing status changes as they happen.
func (r *Runner) TasksWatch(ctx context.Context, cmd *cli.Command) error {
	tracker, poller, release, err := r.openTracker(ctx)
	if err != nil {
		return err
	}
	defer release()

	if tracker.ActiveCount() == 0 {
		r.writePlain("No active tasks.\n")
	} else {
		r.writePlain("Watching %d active task(s), polling every %s. Press Ctrl-C to stop.\n",
			tracker.ActiveCount(), r.config.Tasks.PollInterval.Duration)
		if err := r.follow(ctx, tracker, poller, nil); err != nil {
			return err
		}
	}

	list := tracker.List()
	return r.render(cmd, list, formatter.TasksTable(list, r.now()))
}

// TasksHistory prints the recorded status changes of a task.
func (r *Runner) TasksHistory(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	history, err := r.events.History(ctx, id)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("%w: no history for %s", shared.ErrTaskNotFound, id)
	}
	return r.render(cmd, history, formatter.HistoryTable(id, history))
}

// follow polls until none of the tasks in ids is active. A nil ids follows every task.
// Interrupts stop following without an error.
func (r *Runner) follow(ctx context.Context, tracker *tasks.Tracker, poller *sessionPoller, ids map[string]bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, unsubscribe := tracker.Subscribe(eventBuffer)
	defer unsubscribe()

	watched := func(id string) bool { return ids == nil || ids[id] }
	active := func() int {
		n := 0
		for _, task := range tracker.List() {
			if task.Status.Active() && watched(task.ID) {
				n++
			}
		}
		return n
	}

	report := func(ev tasks.Event) {
		if ev.StatusChanged() && watched(ev.Task.ID) {
			r.writeTransition(ev)
		}
	}
	drain := func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				report(ev)
			default:
				return
			}
		}
	}

	tracker.PollOnce(ctx)

	// Events are dropped when the buffer is full; the ticker bounds how long that can stall the loop.
	ticker := time.NewTicker(r.config.Tasks.PollInterval.Duration)
	defer ticker.Stop()

	for active() > 0 {
		select {
		case <-ctx.Done():
			drain()
			r.writePlainln("Stopped; %d task(s) still active. Run `vqa tasks watch` to resume.", active())
			return nil
		case <-poller.Expired():
			return fmt.Errorf("%w: session expired, run `vqa auth login` again", shared.ErrNotAuthenticated)
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			report(ev)
		}
	}
	drain()
	return nil
}

func (r *Runner) writeTransition(ev tasks.Event) {
	detail := ev.Task.Message
	if ev.Task.ErrorMessage != "" {
		detail = ev.Task.ErrorMessage
	}
	if detail != "" {
		detail = "  " + detail
	}
	r.writePlain("%s  %s  %s → %s%s\n", r.now().Format("15:04:05"), ev.Task.ID, ev.Previous, ev.Task.Status, detail)
}
