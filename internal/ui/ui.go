package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/vqa/internal/guard"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/desertthunder/vqa/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	LoginView
	TasksView
	SubmitView
	ForbiddenView
)

const eventBuffer = 64

// Sessions is the session manager as seen by the TUI.
type Sessions interface {
	Snapshot() session.State
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context)
	HandleUnauthorized(ctx context.Context, err error) bool
}

// Tracker is the task tracker as seen by the TUI.
type Tracker interface {
	Add(task models.Task) bool
	Remove(id string) bool
	List() []models.Task
	Subscribe(buffer int) (<-chan tasks.Event, func())
}

// Submitter starts server-side analyses.
type Submitter interface {
	SubmitAnalysis(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisAccepted, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	path     string
	from     string
	sessions Sessions
	tracker  Tracker
	api      Submitter
	now      func() time.Time

	width  int
	height int

	loginInputs  []textinput.Model
	submitInputs []textinput.Model
	focus        int
	taskList     list.Model

	events      <-chan tasks.Event
	unsubscribe func()

	busy  bool
	flash string
	err   error
	help  help.Model
	keys  keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, sessions Sessions, tracker Tracker, api Submitter) *Model {
	m := &Model{
		ctx:      ctx,
		sessions: sessions,
		tracker:  tracker,
		api:      api,
		now:      time.Now,
		help:     help.New(),
		keys:     newKeyMap(),
	}

	username := textinput.New()
	username.Placeholder = "username"
	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	m.loginInputs = []textinput.Model{username, password}

	url := textinput.New()
	url.Placeholder = "https://citnow.example/video"
	lang := textinput.New()
	lang.Placeholder = services.DefaultTranscriptionLanguage
	target := textinput.New()
	target.Placeholder = services.DefaultTargetLanguage
	m.submitInputs = []textinput.Model{url, lang, target}

	m.taskList = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.taskList.Title = "Tracked analyses"
	m.taskList.SetFilteringEnabled(false)
	m.taskList.SetShowHelp(false)

	return m
}

// Init subscribes to tracker events and opens the landing view for the current session.
func (m *Model) Init() tea.Cmd {
	m.events, m.unsubscribe = m.tracker.Subscribe(eventBuffer)

	state := m.sessions.Snapshot()
	path := session.NewAnalysisRoute
	if state.Authenticated {
		path = session.LandingRoute(state.Role)
	}
	return tea.Batch(m.navigate(path), m.waitForEvent(), textinput.Blink)
}

// Close releases the tracker subscription.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// ViewState returns the view currently shown.
func (m *Model) ViewState() ViewState {
	return m.view
}

// navigate switches to the view for path if the guard allows it.
func (m *Model) navigate(path string) tea.Cmd {
	m.path = path
	m.flash = ""

	d := guard.Check(m.sessions.Snapshot(), path)
	switch d.Action {
	case guard.Placeholder:
		m.view = LoadingView
		return nil
	case guard.Redirect:
		m.from = d.From
		m.view = LoginView
		return m.focusInputs(m.loginInputs, 0)
	case guard.Forbidden:
		m.view = ForbiddenView
		return nil
	}

	if strings.HasPrefix(path, "/dealer/") {
		m.view = TasksView
		return m.refreshTasks()
	}
	m.view = ForbiddenView
	m.flash = fmt.Sprintf("%s has no terminal view. Run vqa serve to open the dashboard.", path)
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.view {
		case LoginView:
			return m.handleLoginKeys(msg)
		case TasksView:
			return m.handleTaskKeys(msg)
		case SubmitView:
			return m.handleSubmitKeys(msg)
		case ForbiddenView:
			return m.handleForbiddenKeys(msg)
		}
		return m, nil

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateInputs(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgLoginDone:
		m.busy = false
		if err, _ := msg.data.(error); err != nil {
			m.view = LoginView
			m.flash = loginMessage(err)
			m.loginInputs[1].SetValue("")
			return m, m.focusInputs(m.loginInputs, 1)
		}
		state := m.sessions.Snapshot()
		target := session.LandingRoute(state.Role)
		if m.from != "" && guard.Check(state, m.from).Allowed() {
			target = m.from
		}
		m.from = ""
		for i := range m.loginInputs {
			m.loginInputs[i].SetValue("")
		}
		return m, m.navigate(target)

	case MsgSubmitted:
		m.busy = false
		res := msg.data.(submitted)
		if res.err != nil {
			if m.sessions.HandleUnauthorized(m.ctx, res.err) {
				cmd := m.navigate(m.path)
				m.flash = "Your session expired. Sign in again."
				return m, cmd
			}
			m.flash = services.ErrorMessage(res.err)
			return m, nil
		}
		for i := range m.submitInputs {
			m.submitInputs[i].SetValue("")
		}
		cmd := m.navigate(session.NewAnalysisRoute)
		m.flash = fmt.Sprintf("Tracking task %s", res.task.ID)
		return m, cmd

	case MsgTaskEvent:
		return m, tea.Batch(m.refreshTasks(), m.waitForEvent())

	case MsgEventsClosed:
		m.events = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) handleLoginKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.next), msg.String() == "up", msg.String() == "down":
		return m, m.focusInputs(m.loginInputs, (m.focus+1)%len(m.loginInputs))
	case key.Matches(msg, m.keys.enter):
		if m.focus == 0 {
			return m, m.focusInputs(m.loginInputs, 1)
		}
		return m, m.login()
	case msg.String() == "esc":
		return m, tea.Quit
	}
	return m.updateInputs(msg)
}

func (m *Model) handleTaskKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.create):
		m.view = SubmitView
		m.flash = ""
		return m, m.focusInputs(m.submitInputs, 0)
	case key.Matches(msg, m.keys.remove):
		if item, ok := m.taskList.SelectedItem().(taskItem); ok {
			m.tracker.Remove(item.task.ID)
			m.flash = fmt.Sprintf("Stopped tracking %s", item.task.ID)
			return m, m.refreshTasks()
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.refreshTasks()
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleSubmitKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.back):
		return m, m.navigate(session.NewAnalysisRoute)
	case key.Matches(msg, m.keys.next), msg.String() == "up", msg.String() == "down":
		step := 1
		if msg.String() == "shift+tab" || msg.String() == "up" {
			step = len(m.submitInputs) - 1
		}
		return m, m.focusInputs(m.submitInputs, (m.focus+step)%len(m.submitInputs))
	case key.Matches(msg, m.keys.enter):
		if strings.TrimSpace(m.submitInputs[0].Value()) == "" {
			m.flash = "Enter the CitNOW video URL."
			return m, nil
		}
		return m, m.submit()
	}
	return m.updateInputs(msg)
}

func (m *Model) handleForbiddenKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.back):
		return m, tea.Quit
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	}
	return m, nil
}

// updateInputs forwards msg to the focused input of the current form.
func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var inputs []textinput.Model
	switch m.view {
	case LoginView:
		inputs = m.loginInputs
	case SubmitView:
		inputs = m.submitInputs
	default:
		return m, nil
	}
	if m.focus >= len(inputs) {
		return m, nil
	}
	var cmd tea.Cmd
	inputs[m.focus], cmd = inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) focusInputs(inputs []textinput.Model, n int) tea.Cmd {
	m.focus = n
	var cmd tea.Cmd
	for i := range inputs {
		if i == n {
			cmd = inputs[i].Focus()
		} else {
			inputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) refreshTasks() tea.Cmd {
	return m.taskList.SetItems(taskItems(m.tracker.List(), m.now()))
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg()
		}
		return taskEventMsg(ev)
	}
}

func (m *Model) login() tea.Cmd {
	username := strings.TrimSpace(m.loginInputs[0].Value())
	password := m.loginInputs[1].Value()
	if username == "" || password == "" {
		m.flash = "Enter your username and password."
		return nil
	}

	m.busy = true
	m.flash = ""
	ctx := m.ctx
	return func() tea.Msg {
		return loginDoneMsg(m.sessions.Login(ctx, username, password))
	}
}

func (m *Model) logout() tea.Cmd {
	m.sessions.Logout(m.ctx)
	cmd := m.navigate(session.NewAnalysisRoute)
	m.flash = "Signed out."
	return cmd
}

func (m *Model) submit() tea.Cmd {
	req := models.AnalysisRequest{
		URL:                   strings.TrimSpace(m.submitInputs[0].Value()),
		TranscriptionLanguage: strings.TrimSpace(m.submitInputs[1].Value()),
		TargetLanguage:        strings.TrimSpace(m.submitInputs[2].Value()),
	}
	m.busy = true
	m.flash = ""
	ctx, api, tracker := m.ctx, m.api, m.tracker

	return func() tea.Msg {
		accepted, err := api.SubmitAnalysis(ctx, req)
		if err != nil {
			return submittedMsg(models.Task{}, err)
		}
		task := models.Task{ID: accepted.TaskID, Status: accepted.Status, Message: accepted.Message}
		if task.Status == "" {
			task.Status = models.TaskPending
		}
		tracker.Add(task)
		return submittedMsg(task, nil)
	}
}

func loginMessage(err error) string {
	var authErr *session.AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	return fmt.Sprintf("Login failed: %v", err)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case LoadingView:
		body = ""
	case LoginView:
		body = m.renderLogin()
	case TasksView:
		body = m.renderTasks()
	case SubmitView:
		body = m.renderSubmit()
	case ForbiddenView:
		body = m.renderForbidden()
	}
	return body
}

func (m *Model) renderFlash() string {
	if m.flash == "" {
		return ""
	}
	return "\n" + styles.warn.Render(m.flash) + "\n"
}

func (m *Model) renderLogin() string {
	title := styles.title.Render("Video Quality Analysis · Sign in")
	status := ""
	if m.busy {
		status = "\n" + styles.help.Render("Signing in...")
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.next, m.keys.enter, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s\n%s%s\n\n%s",
		title, m.loginInputs[0].View(), m.loginInputs[1].View(), m.renderFlash(), status, helpView)
}

func (m *Model) renderTasks() string {
	header := ""
	if u := m.sessions.Snapshot().User; u != nil {
		header = styles.help.Render(fmt.Sprintf("%s · %s", u.DisplayName(), u.Role.Label())) + "\n"
	}
	body := m.taskList.View()
	if len(m.taskList.Items()) == 0 {
		body = styles.title.Render("Tracked analyses") + "\nNo tracked tasks. Press n to submit a video."
	}
	helpKeys := []key.Binding{m.keys.create, m.keys.remove, m.keys.refresh, m.keys.logout, m.keys.quit}
	return fmt.Sprintf("%s%s\n%s\n%s", header, body, m.renderFlash(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderSubmit() string {
	title := styles.title.Render("New Analysis")
	labels := []string{"CitNOW URL", "Transcription language", "Target language"}
	var b strings.Builder
	for i, in := range m.submitInputs {
		fmt.Fprintf(&b, "%s\n%s\n\n", labels[i], in.View())
	}
	status := ""
	if m.busy {
		status = styles.help.Render("Submitting...") + "\n"
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.next, m.keys.enter, m.keys.back})
	return fmt.Sprintf("%s\n%s%s%s\n%s", title, b.String(), status, m.renderFlash(), helpView)
}

func (m *Model) renderForbidden() string {
	state := m.sessions.Snapshot()
	title := styles.err.Render("Not authorized")
	msg := fmt.Sprintf("\nThe %s role cannot open this view.", state.Role.Label())
	if m.flash != "" {
		title = styles.warn.Render("Not available here")
		msg = "\n" + m.flash
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.logout, m.keys.quit})
	return fmt.Sprintf("%s%s\n\n%s", title, msg, helpView)
}
