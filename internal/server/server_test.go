package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/desertthunder/vqa/internal/tasks"
)

type fakeSessions struct {
	mu       sync.Mutex
	state    session.State
	loginErr error
	users    map[string]models.User
	logouts  int
}

func (f *fakeSessions) Snapshot() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSessions) Login(_ context.Context, username, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return f.loginErr
	}
	u := f.users[username]
	f.state = session.State{Authenticated: true, Role: u.Role, User: &u}
	return nil
}

func (f *fakeSessions) Logout(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.state = session.State{}
}

func (f *fakeSessions) HandleUnauthorized(ctx context.Context, err error) bool {
	if !services.IsUnauthorized(err) {
		return false
	}
	f.Logout(ctx)
	return true
}

func signedIn(role models.Role) *fakeSessions {
	u := models.User{ID: "u1", Username: "casey", Role: role, DealerID: "d1"}
	return &fakeSessions{state: session.State{Authenticated: true, Role: role, User: &u}}
}

type fakeTracker struct {
	mu    sync.Mutex
	tasks []models.Task
	subs  []chan tasks.Event
}

func (f *fakeTracker) Add(task models.Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == task.ID {
			return false
		}
	}
	if task.AddedAt.IsZero() {
		task.AddedAt = time.Now()
	}
	f.tasks = append(f.tasks, task)
	return true
}

func (f *fakeTracker) Remove(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeTracker) List() []models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Task(nil), f.tasks...)
}

func (f *fakeTracker) Get(id string) (models.Task, bool) {
	for _, t := range f.List() {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

func (f *fakeTracker) Subscribe(buffer int) (<-chan tasks.Event, func()) {
	ch := make(chan tasks.Event, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

type fakeBackend struct {
	accepted  *models.AnalysisAccepted
	submitErr error
	submitted []models.AnalysisRequest
	overview  *models.Overview
	users     []models.User
	results   []models.Result
	stats     []models.UserStat
	err       error
	filters   []models.ResultFilter
}

func (f *fakeBackend) SubmitAnalysis(_ context.Context, req models.AnalysisRequest) (*models.AnalysisAccepted, error) {
	f.submitted = append(f.submitted, req)
	return f.accepted, f.submitErr
}

func (f *fakeBackend) Overview(context.Context) (*models.Overview, error) {
	return f.overview, f.err
}

func (f *fakeBackend) Users(context.Context) ([]models.User, error) {
	return f.users, f.err
}

func (f *fakeBackend) DealerUsers(context.Context, string) ([]models.User, error) {
	return f.users, f.err
}

func (f *fakeBackend) Results(_ context.Context, filter models.ResultFilter) ([]models.Result, error) {
	f.filters = append(f.filters, filter)
	return f.results, f.err
}

func (f *fakeBackend) DealerUserStats(context.Context, string) ([]models.UserStat, error) {
	return f.stats, f.err
}

func newTestRouter(s Sessions, tr Tracker, b Backend) (*BasicRouter, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := shared.NewLogger(buf)
	return NewRouter(NewDashboard(s, tr, b, logger), logger), buf
}

func serve(h http.Handler, method, target string, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Patterns Share A Path", func(t *testing.T) {
		router := NewBasicRouter()
		router.HandleFunc(http.MethodGet, "/items", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("get")) })
		router.HandleFunc(http.MethodPost, "/items", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("post")) })

		if w := serve(router, http.MethodGet, "/items", ""); w.Body.String() != "get" {
			t.Errorf("expected get, got %s", w.Body.String())
		}
		if w := serve(router, http.MethodPost, "/items", ""); w.Body.String() != "post" {
			t.Errorf("expected post, got %s", w.Body.String())
		}
		if w := serve(router, http.MethodPut, "/items", ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", w.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mw("first"), mw("second"))
		router.HandleFunc(http.MethodGet, "/", func(w http.ResponseWriter, r *http.Request) {})
		serve(router, http.MethodGet, "/", "")

		if strings.Join(order, ",") != "first,second" {
			t.Errorf("unexpected middleware order %v", order)
		}
	})

	t.Run("Path Values", func(t *testing.T) {
		router := NewBasicRouter()
		router.HandleFunc(http.MethodDelete, "/things/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(r.PathValue("id")))
		})

		if w := serve(router, http.MethodDelete, "/things/abc", ""); w.Body.String() != "abc" {
			t.Errorf("expected abc, got %s", w.Body.String())
		}
	})
}

func TestRequireRoles(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("content")) })

	t.Run("Loading", func(t *testing.T) {
		s := &fakeSessions{state: session.State{Loading: true}}
		w := serve(RequireRoles(s, models.RoleSuperAdmin)(ok), http.MethodGet, "/super-admin/users", "")

		if w.Code != http.StatusAccepted {
			t.Errorf("expected 202, got %d", w.Code)
		}
		if w.Header().Get("Retry-After") != "1" {
			t.Error("expected Retry-After header")
		}
		if w.Body.Len() != 0 {
			t.Errorf("expected empty body, got %q", w.Body.String())
		}
	})

	t.Run("Unauthenticated Page", func(t *testing.T) {
		w := serve(RequireRoles(&fakeSessions{})(ok), http.MethodGet, "/dealer/results", "")

		if w.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "/login?from=%2Fdealer%2Fresults" {
			t.Errorf("unexpected location %s", loc)
		}
	})

	t.Run("Unauthenticated API", func(t *testing.T) {
		w := serve(RequireRoles(&fakeSessions{})(ok), http.MethodGet, "/api/tasks", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("Wrong Role", func(t *testing.T) {
		w := serve(RequireRoles(signedIn(models.RoleDealerUser), models.RoleSuperAdmin)(ok), http.MethodGet, "/super-admin/users", "")

		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
		if strings.Contains(w.Body.String(), "content") {
			t.Error("protected content must not render")
		}
	})

	t.Run("Allowed", func(t *testing.T) {
		w := serve(RequireRoles(signedIn(models.RoleBranchAdmin), models.RoleDealerAdmin, models.RoleBranchAdmin)(ok), http.MethodGet, "/dealer/users", "")
		if w.Code != http.StatusOK || w.Body.String() != "content" {
			t.Errorf("expected content, got %d %q", w.Code, w.Body.String())
		}
	})
}

func TestDashboardSession(t *testing.T) {
	t.Run("Root Redirects", func(t *testing.T) {
		router, _ := newTestRouter(&fakeSessions{}, &fakeTracker{}, &fakeBackend{})
		if w := serve(router, http.MethodGet, "/", ""); w.Header().Get("Location") != session.LoginRoute {
			t.Errorf("expected login redirect, got %s", w.Header().Get("Location"))
		}

		router, _ = newTestRouter(signedIn(models.RoleSuperAdmin), &fakeTracker{}, &fakeBackend{})
		if w := serve(router, http.MethodGet, "/", ""); w.Header().Get("Location") != session.SuperAdminDashboardRoute {
			t.Errorf("expected landing redirect, got %s", w.Header().Get("Location"))
		}
		if w := serve(router, http.MethodGet, "/no/such/page", ""); w.Header().Get("Location") != session.LoginRoute {
			t.Errorf("unknown paths should redirect to login, got %s", w.Header().Get("Location"))
		}
	})

	t.Run("Login Returns To Requested Page", func(t *testing.T) {
		s := &fakeSessions{users: map[string]models.User{"dana": {ID: "u2", Username: "dana", Role: models.RoleDealerAdmin}}}
		router, _ := newTestRouter(s, &fakeTracker{}, &fakeBackend{})

		form := url.Values{"username": {"dana"}, "password": {"pw"}, "from": {"/dealer/results"}}
		w := serve(router, http.MethodPost, "/login", form.Encode(), "Content-Type", "application/x-www-form-urlencoded")

		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/dealer/results" {
			t.Errorf("expected redirect to /dealer/results, got %d %s", w.Code, w.Header().Get("Location"))
		}
	})

	t.Run("Login Ignores Disallowed From", func(t *testing.T) {
		s := &fakeSessions{users: map[string]models.User{"dana": {ID: "u2", Role: models.RoleDealerUser}}}
		router, _ := newTestRouter(s, &fakeTracker{}, &fakeBackend{})

		form := url.Values{"username": {"dana"}, "password": {"pw"}, "from": {"/super-admin/users"}}
		w := serve(router, http.MethodPost, "/login", form.Encode(), "Content-Type", "application/x-www-form-urlencoded")

		if loc := w.Header().Get("Location"); loc != session.NewAnalysisRoute {
			t.Errorf("expected landing route, got %s", loc)
		}
	})

	t.Run("Login Failure", func(t *testing.T) {
		s := &fakeSessions{loginErr: &session.AuthError{Message: "Incorrect username or password"}}
		router, _ := newTestRouter(s, &fakeTracker{}, &fakeBackend{})

		form := url.Values{"username": {"x"}, "password": {"y"}}
		w := serve(router, http.MethodPost, "/login", form.Encode(), "Content-Type", "application/x-www-form-urlencoded")

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "Incorrect username or password") {
			t.Error("expected server message in form")
		}
		if s.Snapshot().Authenticated {
			t.Error("failed login must not authenticate")
		}
	})

	t.Run("Login Network Failure", func(t *testing.T) {
		s := &fakeSessions{loginErr: errors.New("dial tcp: connection refused")}
		router, _ := newTestRouter(s, &fakeTracker{}, &fakeBackend{})

		w := serve(router, http.MethodPost, "/login", "username=x&password=y",
			"Content-Type", "application/x-www-form-urlencoded", "Accept", "application/json")

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", w.Code)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		s := signedIn(models.RoleDealerAdmin)
		router, _ := newTestRouter(s, &fakeTracker{}, &fakeBackend{})

		w := serve(router, http.MethodPost, "/logout", "")

		if w.Code != http.StatusSeeOther || s.Snapshot().Authenticated {
			t.Errorf("expected session cleared and redirect, got %d", w.Code)
		}
	})

	t.Run("Session Info", func(t *testing.T) {
		router, _ := newTestRouter(signedIn(models.RoleBranchAdmin), &fakeTracker{}, &fakeBackend{})

		w := serve(router, http.MethodGet, "/api/session", "")

		var body struct {
			Authenticated bool   `json:"authenticated"`
			RoleLabel     string `json:"role_label"`
			Landing       string `json:"landing"`
			Menu          []struct {
				Path string `json:"path"`
			} `json:"menu"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if !body.Authenticated || body.RoleLabel != "Branch Admin" || body.Landing != session.DealerDashboardRoute {
			t.Errorf("unexpected session body %+v", body)
		}
		if len(body.Menu) == 0 {
			t.Error("expected menu entries")
		}
	})
}

func TestDashboardTasks(t *testing.T) {
	t.Run("Submit JSON", func(t *testing.T) {
		tr := &fakeTracker{}
		b := &fakeBackend{accepted: &models.AnalysisAccepted{TaskID: "t-1", Message: "queued"}}
		router, _ := newTestRouter(signedIn(models.RoleDealerUser), tr, b)

		w := serve(router, http.MethodPost, "/api/tasks", `{"citnow_url":"https://citnow.example/v/1"}`,
			"Content-Type", "application/json")

		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
		}
		task, ok := tr.Get("t-1")
		if !ok || task.Status != models.TaskPending || task.Message != "queued" {
			t.Errorf("expected pending task to be tracked, got %+v", task)
		}
		if b.submitted[0].URL != "https://citnow.example/v/1" {
			t.Errorf("unexpected request %+v", b.submitted[0])
		}
	})

	t.Run("Submit Form Redirects", func(t *testing.T) {
		b := &fakeBackend{accepted: &models.AnalysisAccepted{TaskID: "t-2", Status: models.TaskProcessing}}
		router, _ := newTestRouter(signedIn(models.RoleDealerAdmin), &fakeTracker{}, b)

		form := url.Values{"citnow_url": {"https://citnow.example/v/2"}, "target_language": {"de"}}
		w := serve(router, http.MethodPost, "/api/tasks", form.Encode(), "Content-Type", "application/x-www-form-urlencoded")

		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != session.NewAnalysisRoute {
			t.Errorf("expected redirect to new analysis, got %d %s", w.Code, w.Header().Get("Location"))
		}
		if b.submitted[0].TargetLanguage != "de" {
			t.Errorf("unexpected request %+v", b.submitted[0])
		}
	})

	t.Run("Submit Forbidden For Super Admin", func(t *testing.T) {
		b := &fakeBackend{}
		router, _ := newTestRouter(signedIn(models.RoleSuperAdmin), &fakeTracker{}, b)

		w := serve(router, http.MethodPost, "/api/tasks", `{}`, "Content-Type", "application/json")

		if w.Code != http.StatusForbidden || len(b.submitted) != 0 {
			t.Errorf("expected 403 without backend call, got %d", w.Code)
		}
	})

	t.Run("Submit Invalid URL", func(t *testing.T) {
		b := &fakeBackend{submitErr: shared.ErrInvalidInput}
		router, _ := newTestRouter(signedIn(models.RoleDealerUser), &fakeTracker{}, b)

		w := serve(router, http.MethodPost, "/api/tasks", `{"citnow_url":"nope"}`, "Content-Type", "application/json")

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("Submit With Rejected Token Ends Session", func(t *testing.T) {
		s := signedIn(models.RoleDealerUser)
		b := &fakeBackend{submitErr: &services.APIError{Method: "POST", Path: "/analyze", StatusCode: http.StatusUnauthorized}}
		router, _ := newTestRouter(s, &fakeTracker{}, b)

		w := serve(router, http.MethodPost, "/api/tasks", `{"citnow_url":"https://x.example/v"}`, "Content-Type", "application/json")

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
		if s.Snapshot().Authenticated {
			t.Error("expected session to be destroyed")
		}
	})

	t.Run("List And Remove", func(t *testing.T) {
		tr := &fakeTracker{}
		tr.Add(models.Task{ID: "t-1", Status: models.TaskPending})
		router, _ := newTestRouter(signedIn(models.RoleDealerUser), tr, &fakeBackend{})

		w := serve(router, http.MethodGet, "/api/tasks", "")
		var list []models.Task
		json.Unmarshal(w.Body.Bytes(), &list)
		if len(list) != 1 {
			t.Fatalf("expected 1 task, got %d", len(list))
		}

		if w := serve(router, http.MethodDelete, "/api/tasks/t-1", ""); w.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", w.Code)
		}
		if w := serve(router, http.MethodDelete, "/api/tasks/t-1", ""); w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("Events Stream", func(t *testing.T) {
		tr := &fakeTracker{}
		router, _ := newTestRouter(signedIn(models.RoleDealerUser), tr, &fakeBackend{})

		ctx, cancel := context.WithCancel(context.Background())
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/events", nil).WithContext(ctx)
		w := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			router.ServeHTTP(w, req)
			close(done)
		}()

		deadline := time.After(2 * time.Second)
		for {
			tr.mu.Lock()
			n := len(tr.subs)
			tr.mu.Unlock()
			if n > 0 {
				break
			}
			select {
			case <-deadline:
				t.Fatal("stream never subscribed")
			case <-time.After(5 * time.Millisecond):
			}
		}

		tr.mu.Lock()
		tr.subs[0] <- tasks.Event{Kind: tasks.TaskAdded, Task: models.Task{ID: "t-9", Status: models.TaskPending}}
		close(tr.subs[0])
		tr.mu.Unlock()
		<-done
		cancel()

		if !strings.Contains(w.Body.String(), "event: task_added") {
			t.Errorf("expected task event, got %q", w.Body.String())
		}
	})
}

func TestDashboardPages(t *testing.T) {
	score := 8.5

	t.Run("Dealer Results JSON", func(t *testing.T) {
		b := &fakeBackend{results: []models.Result{{ID: "r1", OverallQualityScore: &score}}}
		router, _ := newTestRouter(signedIn(models.RoleDealerAdmin), &fakeTracker{}, b)

		w := serve(router, http.MethodGet, "/dealer/results", "", "Accept", "application/json")

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"r1"`) {
			t.Errorf("expected result in body, got %s", w.Body.String())
		}
		if b.filters[0].DealerID != "d1" || b.filters[0].Limit != resultsPageLimit {
			t.Errorf("unexpected filter %+v", b.filters[0])
		}
	})

	t.Run("Super Admin Overview HTML", func(t *testing.T) {
		b := &fakeBackend{overview: &models.Overview{TotalVideosAnalyzed: 42}}
		router, _ := newTestRouter(signedIn(models.RoleSuperAdmin), &fakeTracker{}, b)

		w := serve(router, http.MethodGet, "/super-admin/dashboard", "")

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "total_videos_analyzed") {
			t.Errorf("expected overview page, got %d", w.Code)
		}
	})

	t.Run("Dealer User Dashboard Skips Stats", func(t *testing.T) {
		b := &fakeBackend{stats: []models.UserStat{{UserID: "u1"}}}
		router, _ := newTestRouter(signedIn(models.RoleDealerUser), &fakeTracker{}, b)

		w := serve(router, http.MethodGet, "/dealer/dashboard?format=json", "")

		if strings.Contains(w.Body.String(), "user_stats") {
			t.Error("dealer users should not load user stats")
		}
	})

	t.Run("Wrong Role Page", func(t *testing.T) {
		router, _ := newTestRouter(signedIn(models.RoleDealerAdmin), &fakeTracker{}, &fakeBackend{})

		w := serve(router, http.MethodGet, "/super-admin/users", "")

		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("Rejected Token Redirects To Login", func(t *testing.T) {
		s := signedIn(models.RoleSuperAdmin)
		b := &fakeBackend{err: &services.APIError{StatusCode: http.StatusUnauthorized}}
		router, _ := newTestRouter(s, &fakeTracker{}, b)

		w := serve(router, http.MethodGet, "/super-admin/users", "")

		if w.Code != http.StatusSeeOther || !strings.HasPrefix(w.Header().Get("Location"), session.LoginRoute) {
			t.Errorf("expected redirect to login, got %d %s", w.Code, w.Header().Get("Location"))
		}
		if s.Snapshot().Authenticated {
			t.Error("expected session destroyed")
		}
	})

	t.Run("Backend Failure Is Reported", func(t *testing.T) {
		b := &fakeBackend{err: &services.APIError{StatusCode: http.StatusServiceUnavailable, Detail: "Analyzer offline"}}
		router, logs := newTestRouter(signedIn(models.RoleSuperAdmin), &fakeTracker{}, b)

		w := serve(router, http.MethodGet, "/super-admin/dealers", "", "Accept", "application/json")

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "Analyzer offline") {
			t.Errorf("expected detail in body, got %s", w.Body.String())
		}
		if !strings.Contains(logs.String(), "failed to load page") {
			t.Error("expected failure to be logged")
		}
	})
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	errs := make(chan error, 1)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	go func() { errs <- Serve(ctx, "127.0.0.1:0", handler, shared.NewLogger(&bytes.Buffer{}), ready) }()

	addr := <-ready
	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errs:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
