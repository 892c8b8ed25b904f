package models

import (
	"fmt"
	"net/url"
	"time"
)

// TaskStatus is the last observed state of a server-side analysis job.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Active reports whether the poll loop should keep checking a task in this status.
func (s TaskStatus) Active() bool {
	return s == TaskPending || s == TaskProcessing
}

// Terminal reports whether no further transitions can occur.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskKind selects which status endpoint is polled for a task.
type TaskKind string

const (
	TaskSingle TaskKind = ""
	TaskBulk   TaskKind = "bulk"
)

// Task is an analysis job tracked on the client until it reaches a terminal status.
type Task struct {
	ID           string     `json:"task_id"`
	Kind         TaskKind   `json:"type,omitempty"`
	BatchID      string     `json:"batch_id,omitempty"`
	Status       TaskStatus `json:"status"`
	Message      string     `json:"message,omitempty"`
	ResultID     string     `json:"result_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	AddedAt      time.Time  `json:"added_at"`
}

// StatusEndpoint returns the API path that reports this task's status.
func (t Task) StatusEndpoint() string {
	if t.Kind == TaskBulk {
		id := t.BatchID
		if id == "" {
			id = t.ID
		}
		return fmt.Sprintf("/bulk-status/%s", url.PathEscape(id))
	}
	return fmt.Sprintf("/analyze-status/%s", url.PathEscape(t.ID))
}

// TaskUpdate carries the task fields to overwrite. Nil fields are left unchanged.
type TaskUpdate struct {
	Status       *TaskStatus
	Message      *string
	ResultID     *string
	ErrorMessage *string
}

// Apply returns a copy of t with u merged in.
func (t Task) Apply(u TaskUpdate) Task {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Message != nil {
		t.Message = *u.Message
	}
	if u.ResultID != nil {
		t.ResultID = *u.ResultID
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	return t
}

// StatusReport is the body returned by the analyze-status and bulk-status endpoints.
type StatusReport struct {
	Status       TaskStatus `json:"status"`
	Message      string     `json:"message"`
	ResultID     string     `json:"result_id"`
	ErrorMessage string     `json:"error_message"`
}

// Update converts a status report into the overwrite applied to the tracked task.
func (r StatusReport) Update() TaskUpdate {
	status, message, resultID, errMsg := r.Status, r.Message, r.ResultID, r.ErrorMessage
	return TaskUpdate{Status: &status, Message: &message, ResultID: &resultID, ErrorMessage: &errMsg}
}

// AnalysisRequest is the body of POST /analyze.
type AnalysisRequest struct {
	URL                   string `json:"citnow_url"`
	TranscriptionLanguage string `json:"transcription_language"`
	TargetLanguage        string `json:"target_language"`
}

// AnalysisAccepted is the response of POST /analyze.
type AnalysisAccepted struct {
	TaskID  string     `json:"task_id"`
	Status  TaskStatus `json:"status,omitempty"`
	Message string     `json:"message,omitempty"`
}
