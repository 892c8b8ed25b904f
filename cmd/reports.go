package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/vqa/internal/formatter"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/urfave/cli/v3"
)

// dealerScope returns the dealer a command operates on. Super admins may pick any dealer (or
// none); everyone else is pinned to their own.
func (r *Runner) dealerScope(cmd *cli.Command) (string, error) {
	user := r.sessions.User()
	requested := strings.TrimSpace(cmd.String("dealer"))

	if user.Role == models.RoleSuperAdmin {
		return requested, nil
	}
	if user.DealerID == "" {
		return "", fmt.Errorf("%w: %s has no dealer assigned", shared.ErrForbidden, user.Username)
	}
	if requested != "" && requested != user.DealerID {
		return "", fmt.Errorf("%w: %s cannot access dealer %s", shared.ErrForbidden, user.Role.Label(), requested)
	}
	return user.DealerID, nil
}

// UsersList lists every user for super admins and the caller's dealer users otherwise.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	dealer, err := r.dealerScope(cmd)
	if err != nil {
		return err
	}

	var users []models.User
	if dealer == "" {
		users, err = r.api.Users(ctx)
	} else {
		users, err = r.api.DealerUsers(ctx, dealer)
	}
	if err != nil {
		return r.expired(ctx, err)
	}
	return r.render(cmd, users, formatter.UsersTable(users))
}

// UsersCreate creates a user. Dealer-side admins can only create dealer roles in their own dealer.
func (r *Runner) UsersCreate(ctx context.Context, cmd *cli.Command) error {
	role, err := models.ParseRole(cmd.String("role"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if role == models.RoleSuperAdmin && r.sessions.Role() != models.RoleSuperAdmin {
		return fmt.Errorf("%w: only super admins can create super admins", shared.ErrForbidden)
	}

	dealer, err := r.dealerScope(cmd)
	if err != nil {
		return err
	}

	in := models.UserCreate{
		Username:     cmd.String("username"),
		Email:        cmd.String("email"),
		Password:     cmd.String("password"),
		Role:         role,
		DealerID:     dealer,
		BranchID:     cmd.String("branch"),
		FullName:     cmd.String("full-name"),
		ShowroomName: cmd.String("showroom"),
	}

	user, err := r.api.CreateUser(ctx, in)
	if err != nil {
		return r.expired(ctx, err)
	}
	r.logger.Info("user created", "id", user.ID, "username", user.Username, "role", user.Role)

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}
	return r.writePlain("✓ Created %s (%s) with id %s\n", user.Username, user.Role.Label(), user.ID)
}

// UsersUpdate applies the flags that were set to the user identified by the id argument.
func (r *Runner) UsersUpdate(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	var in models.UserUpdate
	set := func(flag string) *string {
		if !cmd.IsSet(flag) {
			return nil
		}
		v := cmd.String(flag)
		return &v
	}
	in.Username, in.Email, in.Password, in.FullName = set("username"), set("email"), set("password"), set("full-name")
	in.DealerID = set("dealer")

	if v := set("role"); v != nil {
		role, err := models.ParseRole(*v)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		if role == models.RoleSuperAdmin && r.sessions.Role() != models.RoleSuperAdmin {
			return fmt.Errorf("%w: only super admins can grant %s", shared.ErrForbidden, role.Label())
		}
		in.Role = &role
	}
	if in.DealerID != nil && r.sessions.Role() != models.RoleSuperAdmin {
		return fmt.Errorf("%w: only super admins can move users between dealers", shared.ErrForbidden)
	}

	user, err := r.api.UpdateUser(ctx, id, in)
	if err != nil {
		return r.expired(ctx, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}
	return r.writePlain("✓ Updated %s\n", user.Username)
}

// UsersDelete removes a user.
func (r *Runner) UsersDelete(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if err := r.api.DeleteUser(ctx, id); err != nil {
		return r.expired(ctx, err)
	}
	r.logger.Info("user deleted", "id", id)
	return r.writePlain("✓ Deleted user %s\n", id)
}

// ResultsList lists analysis results, scoped to the caller's dealer unless they are a super admin.
func (r *Runner) ResultsList(ctx context.Context, cmd *cli.Command) error {
	dealer, err := r.dealerScope(cmd)
	if err != nil {
		return err
	}

	results, err := r.api.Results(ctx, models.ResultFilter{Limit: cmd.Int("limit"), DealerID: dealer})
	if err != nil {
		return r.expired(ctx, err)
	}
	return r.render(cmd, results, formatter.ResultsTable(results))
}

// ResultsDelete removes an analysis result.
func (r *Runner) ResultsDelete(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if err := r.api.DeleteResult(ctx, id); err != nil {
		return r.expired(ctx, err)
	}
	r.logger.Info("result deleted", "id", id)
	return r.writePlain("✓ Deleted result %s\n", id)
}

// DashboardOverview prints the network-wide aggregates.
func (r *Runner) DashboardOverview(ctx context.Context, cmd *cli.Command) error {
	overview, err := r.api.Overview(ctx)
	if err != nil {
		return r.expired(ctx, err)
	}
	return r.render(cmd, overview, formatter.OverviewTables(*overview)...)
}

// DashboardDealers prints the per-dealer part of the overview.
func (r *Runner) DashboardDealers(ctx context.Context, cmd *cli.Command) error {
	overview, err := r.api.Overview(ctx)
	if err != nil {
		return r.expired(ctx, err)
	}
	dealers := overview.DealersSummary
	if dealers == nil {
		dealers = []models.DealerSummary{}
	}
	return r.render(cmd, dealers, formatter.OverviewTables(*overview)[1])
}

// DashboardUserStats prints per-user activity for a dealer.
func (r *Runner) DashboardUserStats(ctx context.Context, cmd *cli.Command) error {
	dealer, err := r.dealerScope(cmd)
	if err != nil {
		return err
	}
	if dealer == "" {
		return fmt.Errorf("%w: --dealer is required for super admins", shared.ErrMissingArgument)
	}

	stats, err := r.api.DealerUserStats(ctx, dealer)
	if err != nil {
		return r.expired(ctx, err)
	}
	return r.render(cmd, stats, formatter.UserStatsTable(stats))
}
