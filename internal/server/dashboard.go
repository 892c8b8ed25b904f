package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vqa/internal/guard"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/desertthunder/vqa/internal/tasks"
	"github.com/desertthunder/vqa/internal/web"
)

const (
	dashboardResultLimit = 10
	resultsPageLimit     = 100
	eventBuffer          = 32
)

// loader fetches the summary shown on a page for user.
type loader func(ctx context.Context, user models.User) (any, error)

// Dashboard serves the login flow, the task API and one page per protected route.
type Dashboard struct {
	sessions Sessions
	tracker  Tracker
	backend  Backend
	logger   *log.Logger
	loaders  map[string]loader
}

// NewDashboard creates a [Dashboard] over the shared session, tracker and API client.
func NewDashboard(sessions Sessions, tracker Tracker, backend Backend, logger *log.Logger) *Dashboard {
	d := &Dashboard{sessions: sessions, tracker: tracker, backend: backend, logger: logger}
	d.loaders = map[string]loader{
		session.SuperAdminDashboardRoute: d.overview,
		guard.SuperAdminUsersRoute:       d.allUsers,
		guard.SuperAdminDealersRoute:     d.dealers,
		session.DealerDashboardRoute:     d.dealerDashboard,
		guard.ResultsRoute:               d.results,
		guard.DealerUsersRoute:           d.dealerUsers,
	}
	return d
}

// Register adds every dashboard route to router.
func (d *Dashboard) Register(router *BasicRouter) {
	anyRole := RequireRoles(d.sessions)
	dealers := RequireRoles(d.sessions, models.RoleDealerAdmin, models.RoleDealerUser, models.RoleBranchAdmin)

	router.HandleFunc(http.MethodGet, "/", d.root)
	router.HandleFunc(http.MethodGet, session.LoginRoute, d.loginForm)
	router.HandleFunc(http.MethodPost, session.LoginRoute, d.login)
	router.HandleFunc(http.MethodPost, "/logout", d.logout)
	router.HandleFunc(http.MethodGet, "/api/session", d.sessionInfo)

	router.Handle(http.MethodGet, "/api/tasks", anyRole(http.HandlerFunc(d.listTasks)))
	router.Handle(http.MethodGet, "/api/tasks/events", anyRole(http.HandlerFunc(d.taskEvents)))
	router.Handle(http.MethodPost, "/api/tasks", dealers(http.HandlerFunc(d.submitTask)))
	router.Handle(http.MethodDelete, "/api/tasks/{id}", anyRole(http.HandlerFunc(d.removeTask)))

	for _, route := range guard.Routes {
		router.Handle(http.MethodGet, route.Path, RequireRoles(d.sessions, route.Roles...)(d.page(route)))
	}
}

// root sends a signed-in user to their landing view and everyone else, including every
// unknown path, to the login view.
func (d *Dashboard) root(w http.ResponseWriter, r *http.Request) {
	state := d.sessions.Snapshot()
	target := session.LoginRoute
	if r.URL.Path == "/" && state.Authenticated {
		target = session.LandingRoute(state.Role)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (d *Dashboard) loginForm(w http.ResponseWriter, r *http.Request) {
	state := d.sessions.Snapshot()
	from := r.URL.Query().Get("from")
	if state.Authenticated {
		http.Redirect(w, r, returnTo(state, from), http.StatusSeeOther)
		return
	}

	p := web.NewPage("Sign in", session.LoginRoute, nil)
	p.From = from
	web.Render(w, http.StatusOK, "login.html", p)
}

func (d *Dashboard) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	from := r.PostForm.Get("from")

	err := d.sessions.Login(r.Context(), username, r.PostForm.Get("password"))
	if err != nil {
		d.logger.Warn("login failed", "username", username, "error", err)

		status := http.StatusUnauthorized
		var authErr *session.AuthError
		if !errors.As(err, &authErr) {
			status = http.StatusBadGateway
		}

		if web.WantsJSON(r) {
			web.WriteJSON(w, status, errorBody(loginMessage(err)))
			return
		}
		p := web.NewPage("Sign in", session.LoginRoute, nil)
		p.From = from
		p.Flash = loginMessage(err)
		web.Render(w, status, "login.html", p)
		return
	}

	state := d.sessions.Snapshot()
	if web.WantsJSON(r) {
		web.WriteJSON(w, http.StatusOK, sessionBody(state))
		return
	}
	http.Redirect(w, r, returnTo(state, from), http.StatusSeeOther)
}

func (d *Dashboard) logout(w http.ResponseWriter, r *http.Request) {
	d.sessions.Logout(r.Context())
	if web.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, session.LoginRoute, http.StatusSeeOther)
}

func (d *Dashboard) sessionInfo(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, sessionBody(d.sessions.Snapshot()))
}

func (d *Dashboard) listTasks(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, d.tracker.List())
}

func (d *Dashboard) taskEvents(w http.ResponseWriter, r *http.Request) {
	events, cancel := d.tracker.Subscribe(eventBuffer)
	defer cancel()

	if err := web.StreamEvents(w, r, events); err != nil {
		d.logger.Warn("event stream ended", "error", err)
	}
}

func (d *Dashboard) submitTask(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	isForm := !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	if isForm {
		if err := r.ParseForm(); err != nil {
			web.WriteJSON(w, http.StatusBadRequest, errorBody("invalid form"))
			return
		}
		req = models.AnalysisRequest{
			URL:                   r.PostForm.Get("citnow_url"),
			TranscriptionLanguage: r.PostForm.Get("transcription_language"),
			TargetLanguage:        r.PostForm.Get("target_language"),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	accepted, err := d.backend.SubmitAnalysis(r.Context(), req)
	if err != nil {
		d.writeAPIError(w, r, err)
		return
	}

	status := accepted.Status
	if status == "" {
		status = models.TaskPending
	}
	task := models.Task{ID: accepted.TaskID, Status: status, Message: accepted.Message}
	d.tracker.Add(task)
	if tracked, ok := d.tracker.Get(task.ID); ok {
		task = tracked
	}

	if isForm && !web.WantsJSON(r) {
		http.Redirect(w, r, session.NewAnalysisRoute, http.StatusSeeOther)
		return
	}
	web.WriteJSON(w, http.StatusAccepted, task)
}

func (d *Dashboard) removeTask(w http.ResponseWriter, r *http.Request) {
	if !d.tracker.Remove(r.PathValue("id")) {
		web.WriteJSON(w, http.StatusNotFound, errorBody(tasks.TaskNotFoundMessage))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// page renders one protected route, loading its summary from the backend when it has one.
func (d *Dashboard) page(route guard.Route) http.Handler {
	load := d.loaders[route.Path]

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := d.sessions.Snapshot()
		p := web.NewPage(route.Title, route.Path, state.User)
		p.Tasks = d.tracked(route.Path)
		p.Submit = route.Path == session.NewAnalysisRoute
		status := http.StatusOK

		if load != nil && state.User != nil {
			data, err := load(r.Context(), *state.User)
			if err != nil {
				if d.sessions.HandleUnauthorized(r.Context(), err) {
					http.Redirect(w, r, guard.Decision{Location: session.LoginRoute, From: route.Path}.LoginURL(), http.StatusSeeOther)
					return
				}
				d.logger.Error("failed to load page", "path", route.Path, "error", err)
				status = apiStatus(err)
				p.Flash = services.ErrorMessage(err)
			}
			p.Data = data
		}

		if web.WantsJSON(r) {
			body := map[string]any{"title": route.Title, "data": p.Data, "tasks": p.Tasks}
			if p.Flash != "" {
				body["detail"] = p.Flash
			}
			web.WriteJSON(w, status, body)
			return
		}
		web.Render(w, status, "page.html", p)
	})
}

// tracked returns the tasks listed on the page at path.
func (d *Dashboard) tracked(path string) []models.Task {
	all := d.tracker.List()
	if path != guard.BulkUploadRoute {
		return all
	}
	bulk := make([]models.Task, 0, len(all))
	for _, t := range all {
		if t.Kind == models.TaskBulk {
			bulk = append(bulk, t)
		}
	}
	return bulk
}

func (d *Dashboard) overview(ctx context.Context, _ models.User) (any, error) {
	return d.backend.Overview(ctx)
}

func (d *Dashboard) allUsers(ctx context.Context, _ models.User) (any, error) {
	return d.backend.Users(ctx)
}

func (d *Dashboard) dealers(ctx context.Context, _ models.User) (any, error) {
	o, err := d.backend.Overview(ctx)
	if err != nil {
		return nil, err
	}
	return o.DealersSummary, nil
}

func (d *Dashboard) dealerDashboard(ctx context.Context, u models.User) (any, error) {
	results, err := d.backend.Results(ctx, models.ResultFilter{Limit: dashboardResultLimit, DealerID: u.DealerID})
	if err != nil {
		return nil, err
	}
	summary := map[string]any{"recent_results": results}
	if u.Role != models.RoleDealerUser && u.DealerID != "" {
		stats, err := d.backend.DealerUserStats(ctx, u.DealerID)
		if err != nil {
			return nil, err
		}
		summary["user_stats"] = stats
	}
	return summary, nil
}

func (d *Dashboard) results(ctx context.Context, u models.User) (any, error) {
	return d.backend.Results(ctx, models.ResultFilter{Limit: resultsPageLimit, DealerID: u.DealerID})
}

func (d *Dashboard) dealerUsers(ctx context.Context, u models.User) (any, error) {
	if u.DealerID == "" {
		return []models.User{}, nil
	}
	return d.backend.DealerUsers(ctx, u.DealerID)
}

// writeAPIError reports a failed backend call, ending the session when the token was rejected.
func (d *Dashboard) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	d.sessions.HandleUnauthorized(r.Context(), err)
	d.logger.Warn("backend request failed", "path", r.URL.Path, "error", err)
	web.WriteJSON(w, apiStatus(err), errorBody(services.ErrorMessage(err)))
}

// apiStatus maps a backend error onto the status the dashboard answers with.
func apiStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	if code := services.StatusCode(err); code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}

// returnTo picks where a freshly signed-in user goes: the requested page when their role may
// open it, their landing view otherwise.
func returnTo(state session.State, from string) string {
	if from != "" && guard.Check(state, from).Allowed() {
		return from
	}
	return session.LandingRoute(state.Role)
}

func loginMessage(err error) string {
	var authErr *session.AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	return "Login failed: the server could not be reached"
}

type sessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	Loading       bool          `json:"loading"`
	Role          models.Role   `json:"role,omitempty"`
	RoleLabel     string        `json:"role_label,omitempty"`
	Landing       string        `json:"landing,omitempty"`
	User          *models.User  `json:"user,omitempty"`
	Menu          []guard.Route `json:"menu,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

func sessionBody(state session.State) sessionResponse {
	resp := sessionResponse{
		Authenticated: state.Authenticated,
		Loading:       state.Loading,
		User:          state.User,
		CheckedAt:     time.Now().UTC(),
	}
	if state.Authenticated {
		resp.Role = state.Role
		resp.RoleLabel = state.Role.Label()
		resp.Landing = session.LandingRoute(state.Role)
		resp.Menu = guard.MenuFor(state.Role)
	}
	return resp
}
