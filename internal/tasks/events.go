package tasks

import "github.com/desertthunder/vqa/internal/models"

// EventKind identifies what changed.
type EventKind int

const (
	TaskAdded EventKind = iota
	TaskUpdated
	TaskRemoved
	PollingStarted
	PollingStopped
)

func (k EventKind) String() string {
	switch k {
	case TaskAdded:
		return "added"
	case TaskUpdated:
		return "updated"
	case TaskRemoved:
		return "removed"
	case PollingStarted:
		return "polling_started"
	case PollingStopped:
		return "polling_stopped"
	default:
		return ""
	}
}

// Event describes one change to the tracked set.
//
// Task is the state after the change (before it, for [TaskRemoved]). Previous holds the status
// before an update.
type Event struct {
	Kind     EventKind
	Task     models.Task
	Previous models.TaskStatus
}

// StatusChanged reports whether the event moved a task to a different status.
func (e Event) StatusChanged() bool {
	return e.Kind == TaskUpdated && e.Previous != e.Task.Status
}

// send delivers ev without blocking; a full channel misses the event.
func send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}
