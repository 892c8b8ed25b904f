// package server contains middleware & handlers for the local analysis dashboard
package server

import (
	"context"
	"net/http"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/desertthunder/vqa/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, role gating, panic recovery, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the dashboard.
// Implementations handle specific endpoints (session, tasks, report pages).
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Sessions is the session manager as seen by the dashboard.
type Sessions interface {
	Snapshot() session.State
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context)
	HandleUnauthorized(ctx context.Context, err error) bool
}

// Tracker is the task tracker as seen by the dashboard.
type Tracker interface {
	Add(task models.Task) bool
	Remove(id string) bool
	List() []models.Task
	Get(id string) (models.Task, bool)
	Subscribe(buffer int) (<-chan tasks.Event, func())
}

// Backend is the subset of the API client the report pages read from.
type Backend interface {
	SubmitAnalysis(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisAccepted, error)
	Overview(ctx context.Context) (*models.Overview, error)
	Users(ctx context.Context) ([]models.User, error)
	DealerUsers(ctx context.Context, dealerID string) ([]models.User, error)
	Results(ctx context.Context, filter models.ResultFilter) ([]models.Result, error)
	DealerUserStats(ctx context.Context, dealerID string) ([]models.UserStat, error)
}
