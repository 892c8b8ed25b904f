package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/tasks"
)

func TestRender(t *testing.T) {
	t.Run("Login Form Carries From", func(t *testing.T) {
		w := httptest.NewRecorder()
		p := NewPage("Sign in", "/login", nil)
		p.From = "/dealer/results"

		if err := Render(w, http.StatusOK, "login.html", p); err != nil {
			t.Fatalf("render failed: %v", err)
		}

		body := w.Body.String()
		if !strings.Contains(body, `name="from" value="/dealer/results"`) {
			t.Errorf("expected from field in form, got %s", body)
		}
		if strings.Contains(body, "<nav>") {
			t.Error("anonymous page should not render the menu")
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("unexpected content type %s", ct)
		}
	})

	t.Run("Page With Menu And Tasks", func(t *testing.T) {
		w := httptest.NewRecorder()
		user := &models.User{ID: "u1", Username: "dana", Role: models.RoleDealerUser}
		p := NewPage("New Analysis", "/dealer/new", user)
		p.Submit = true
		p.Tasks = []models.Task{{ID: "t-1", Status: models.TaskProcessing, Message: "Transcribing"}}

		if err := Render(w, http.StatusOK, "page.html", p); err != nil {
			t.Fatalf("render failed: %v", err)
		}

		body := w.Body.String()
		for _, want := range []string{"Dealer User", `href="/dealer/results"`, "t-1", "Transcribing", `action="/api/tasks"`} {
			if !strings.Contains(body, want) {
				t.Errorf("expected %q in body", want)
			}
		}
		if strings.Contains(body, "/dealer/bulk") {
			t.Error("dealer users should not see bulk upload in the menu")
		}
	})

	t.Run("Forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		p := NewPage("Forbidden", "/super-admin/users", &models.User{Role: models.RoleDealerAdmin})
		p.Landing = "/dealer/dashboard"

		Render(w, http.StatusForbidden, "forbidden.html", p)

		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `href="/dealer/dashboard"`) {
			t.Error("expected link to landing route")
		}
	})

	t.Run("Unknown Template", func(t *testing.T) {
		w := httptest.NewRecorder()
		if err := Render(w, http.StatusOK, "missing.html", Page{}); err == nil {
			t.Error("expected error for unknown template")
		}
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
	})
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/dealer/results", nil)
	if WantsJSON(req) {
		t.Error("plain request should not want JSON")
	}

	req.Header.Set("Accept", "application/json")
	if !WantsJSON(req) {
		t.Error("expected JSON for Accept header")
	}

	req = httptest.NewRequest(http.MethodGet, "/dealer/results?format=json", nil)
	if !WantsJSON(req) {
		t.Error("expected JSON for format parameter")
	}
}

func TestStreamEvents(t *testing.T) {
	events := make(chan tasks.Event, 3)
	events <- tasks.Event{Kind: tasks.PollingStarted}
	events <- tasks.Event{Kind: tasks.TaskUpdated, Task: models.Task{ID: "t-1", Status: models.TaskCompleted}}
	close(events)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/events", nil).WithContext(context.Background())

	if err := StreamEvents(w, req, events); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: polling_started\ndata: {}\n\n") {
		t.Errorf("missing polling event in %q", body)
	}
	if !strings.Contains(body, "event: task_updated\ndata: {\"task_id\":\"t-1\"") {
		t.Errorf("missing task event in %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %s", ct)
	}
}
