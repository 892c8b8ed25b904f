// Package web renders the pages and event streams of the local dashboard.
//
// Templates are embedded and parsed once. Every page shares the layout in layout.html, which
// draws the role menu for the signed-in user and the tracked-task table.
//
// # Event Streams
//
// [StreamEvents] forwards tracker events as Server-Sent Events so a page can follow task
// progress without polling the dashboard:
//
//	event: task_updated
//	data: {"task_id":"...","status":"completed",...}
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/desertthunder/vqa/internal/guard"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/desertthunder/vqa/internal/tasks"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("web").Funcs(template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := shared.MarshalJSON(v, true)
		return string(b), err
	},
	"kind": func(k models.TaskKind) string {
		if k == models.TaskBulk {
			return "bulk"
		}
		return "single"
	},
}).ParseFS(templateFS, "templates/*.html"))

// Page is the data every template receives.
type Page struct {
	Title   string
	Path    string
	From    string
	Flash   string
	Landing string
	Submit  bool
	User    *models.User
	Menu    []guard.Route
	Tasks   []models.Task
	Data    any
}

// NewPage fills the navigation fields of a page for user.
func NewPage(title, path string, user *models.User) Page {
	p := Page{Title: title, Path: path, User: user}
	if user != nil {
		p.Menu = guard.MenuFor(user.Role)
	}
	return p
}

// Render executes the template name into w with the given status code.
func Render(w http.ResponseWriter, status int, name string, p Page) error {
	var buf strings.Builder
	if err := templates.ExecuteTemplate(&buf, name, p); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write([]byte(buf.String()))
	return err
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WantsJSON reports whether the client asked for JSON rather than HTML.
func WantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") || r.URL.Query().Get("format") == "json"
}

// eventName maps an event kind to its stream event name.
func eventName(k tasks.EventKind) string {
	switch k {
	case tasks.TaskAdded:
		return "task_added"
	case tasks.TaskUpdated:
		return "task_updated"
	case tasks.TaskRemoved:
		return "task_removed"
	case tasks.PollingStarted:
		return "polling_started"
	case tasks.PollingStopped:
		return "polling_stopped"
	default:
		return "message"
	}
}

// StreamEvents writes events to w as Server-Sent Events until the channel closes or the
// request context ends.
func StreamEvents(w http.ResponseWriter, r *http.Request, events <-chan tasks.Event) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return fmt.Errorf("%w: response writer cannot flush", shared.ErrNotImplemented)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			var data []byte
			if ev.Kind == tasks.PollingStarted || ev.Kind == tasks.PollingStopped {
				data = []byte("{}")
			} else {
				b, err := json.Marshal(ev.Task)
				if err != nil {
					return fmt.Errorf("failed to encode event: %w", err)
				}
				data = b
			}

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName(ev.Kind), data); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
