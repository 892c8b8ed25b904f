package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/tasks"
)

// TaskEvent is one observed status of a task.
type TaskEvent struct {
	ID           int64
	TaskID       string
	Status       models.TaskStatus
	Message      string
	ErrorMessage string
	ObservedAt   time.Time
}

// TaskEventRepository appends and reads task status history.
type TaskEventRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTaskEventRepository creates a new [TaskEventRepository] with the given database connection
func NewTaskEventRepository(db *sql.DB) *TaskEventRepository {
	return &TaskEventRepository{db: db, now: time.Now}
}

// Record appends the current status of task.
func (r *TaskEventRepository) Record(ctx context.Context, task models.Task) error {
	query := `
		INSERT INTO task_events (task_id, status, message, error_message, observed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, task.ID, task.Status, task.Message, task.ErrorMessage, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert task event: %w", err)
	}
	return nil
}

// History returns the recorded statuses of taskID, oldest first.
func (r *TaskEventRepository) History(ctx context.Context, taskID string) ([]TaskEvent, error) {
	query := `
		SELECT id, task_id, status, message, error_message, observed_at
		FROM task_events
		WHERE task_id = ?
		ORDER BY observed_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task events: %w", err)
	}
	defer rows.Close()

	var events []TaskEvent
	for rows.Next() {
		var ev TaskEvent
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.Status, &ev.Message, &ev.ErrorMessage, &ev.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune deletes the history of taskID.
func (r *TaskEventRepository) Prune(ctx context.Context, taskID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM task_events WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("failed to delete task events: %w", err)
	}
	return nil
}

// RecordEvents writes every task addition and status change from events until the channel
// closes or ctx is done. Write failures are logged and skipped.
func (r *TaskEventRepository) RecordEvents(ctx context.Context, events <-chan tasks.Event, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != tasks.TaskAdded && !ev.StatusChanged() {
				continue
			}
			if err := r.Record(ctx, ev.Task); err != nil && logger != nil {
				logger.Error("failed to record task event", "task_id", ev.Task.ID, "error", err)
			}
		}
	}
}
