package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/vqa/internal/formatter"
	"github.com/desertthunder/vqa/internal/models"
)

var _ list.Item = taskItem{}

// taskItem wraps [models.Task] to implement [list.Item].
type taskItem struct {
	task models.Task
	now  time.Time
}

func (i taskItem) FilterValue() string { return i.task.ID }
func (i taskItem) Title() string {
	title := fmt.Sprintf("%s  %s", i.task.ID, styles.status(i.task.Status))
	if i.task.Kind == models.TaskBulk {
		title += "  (bulk)"
	}
	return title
}
func (i taskItem) Description() string {
	desc := formatter.Age(i.task.AddedAt, i.now)
	switch {
	case i.task.ErrorMessage != "":
		desc = fmt.Sprintf("%s • %s", desc, i.task.ErrorMessage)
	case i.task.Message != "":
		desc = fmt.Sprintf("%s • %s", desc, i.task.Message)
	}
	if i.task.ResultID != "" {
		desc = fmt.Sprintf("%s • result %s", desc, i.task.ResultID)
	}
	return desc
}

// taskItems converts tasks into list items stamped with now.
func taskItems(tasks []models.Task, now time.Time) []list.Item {
	items := make([]list.Item, len(tasks))
	for i, t := range tasks {
		items[i] = taskItem{task: t, now: now}
	}
	return items
}
