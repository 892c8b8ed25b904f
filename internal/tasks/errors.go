package tasks

import (
	"fmt"

	"github.com/desertthunder/vqa/internal/shared"
)

// TaskNotFoundMessage is recorded on tasks whose status endpoint returned 404.
const TaskNotFoundMessage = "Task not found"

// PollTransientError is a status request that failed for a reason other than not-found.
type PollTransientError struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *PollTransientError) Error() string {
	return fmt.Sprintf("poll task %s (attempt %d): %v", e.TaskID, e.Attempts, e.Err)
}

func (e *PollTransientError) Unwrap() []error {
	return []error{shared.ErrPollTransient, e.Err}
}

// TaskNotFoundError is a status request answered with 404. The task is marked failed.
type TaskNotFoundError struct {
	TaskID string
	Err    error
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("poll task %s: %s", e.TaskID, TaskNotFoundMessage)
}

func (e *TaskNotFoundError) Unwrap() []error {
	return []error{shared.ErrTaskNotFound, e.Err}
}

// StorageError is persisted task state that could not be read.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%v: %v", shared.ErrStorage, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{shared.ErrStorage, e.Err}
}
