package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/vqa/internal/guard"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/desertthunder/vqa/internal/tasks"
	"github.com/urfave/cli/v3"
)

const eventBuffer = 64

var adminRoles = []models.Role{models.RoleSuperAdmin, models.RoleDealerAdmin, models.RoleBranchAdmin}

// requireRoute gates a command on the roles of the dashboard route it stands in for.
func (r *Runner) requireRoute(path string) cli.BeforeFunc {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		route, ok := guard.Lookup(path)
		if !ok {
			return ctx, fmt.Errorf("%w: unknown route %s", shared.ErrInvalidArgument, path)
		}
		return ctx, r.authorize(ctx, route.Roles, route.Title)
	}
}

// requireRoles gates a command on an explicit role set. No roles admits any signed-in user.
func (r *Runner) requireRoles(roles ...models.Role) cli.BeforeFunc {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		return ctx, r.authorize(ctx, roles, cmd.FullName())
	}
}

func (r *Runner) authorize(ctx context.Context, roles []models.Role, what string) error {
	if err := r.connect(ctx); err != nil {
		return err
	}

	state := r.sessions.Snapshot()
	switch d := guard.Decide(state, roles, what); d.Action {
	case guard.Placeholder:
		return fmt.Errorf("%w: a login is still in progress", shared.ErrServiceUnavailable)
	case guard.Redirect:
		return fmt.Errorf("%w: run `vqa auth login` first", shared.ErrNotAuthenticated)
	case guard.Forbidden:
		return fmt.Errorf("%w: %s cannot use %s", shared.ErrForbidden, state.Role.Label(), what)
	}
	return nil
}

// sessionPoller destroys the session when a status request is rejected for its credential.
// Expired is closed the first time that happens.
type sessionPoller struct {
	poller   tasks.Poller
	sessions *session.Manager
	once     sync.Once
	expired  chan struct{}
}

func newSessionPoller(p tasks.Poller, sessions *session.Manager) *sessionPoller {
	return &sessionPoller{poller: p, sessions: sessions, expired: make(chan struct{})}
}

func (p *sessionPoller) TaskStatus(ctx context.Context, task models.Task) (*models.StatusReport, error) {
	report, err := p.poller.TaskStatus(ctx, task)
	if err != nil && services.IsUnauthorized(err) {
		p.sessions.HandleUnauthorized(ctx, err)
		p.once.Do(func() { close(p.expired) })
	}
	return report, err
}

// Expired is closed once the backend rejected the session.
func (p *sessionPoller) Expired() <-chan struct{} {
	return p.expired
}
