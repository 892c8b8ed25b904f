package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgLoginDone MsgKind = iota
	MsgSubmitted
	MsgTaskEvent
	MsgEventsClosed
)

// loginDoneMsg is the constructor for [MsgLoginDone]
func loginDoneMsg(err error) Msg {
	return Msg{kind: MsgLoginDone, data: err}
}

// submitted is the payload of [MsgSubmitted]
type submitted struct {
	task models.Task
	err  error
}

// submittedMsg is the constructor for [MsgSubmitted]
func submittedMsg(task models.Task, err error) Msg {
	return Msg{kind: MsgSubmitted, data: submitted{task: task, err: err}}
}

// taskEventMsg is the constructor for [MsgTaskEvent]
func taskEventMsg(ev tasks.Event) Msg {
	return Msg{kind: MsgTaskEvent, data: ev}
}

// eventsClosedMsg is the constructor for [MsgEventsClosed]
func eventsClosedMsg() Msg {
	return Msg{kind: MsgEventsClosed}
}
