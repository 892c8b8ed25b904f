package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/desertthunder/vqa/internal/guard"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin exchanges username and password for a session and stores it for later commands.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	in := bufio.NewReader(r.input)

	username := cmd.String("username")
	if username == "" {
		r.writePlain("Username: ")
		line, err := readLine(in)
		if err != nil {
			return err
		}
		username = line
	}

	password := cmd.String("password")
	if password == "" {
		r.writePlain("Password: ")
		line, err := readLine(in)
		if err != nil {
			return err
		}
		password = line
	}

	r.logger.Info("signing in", "user", username, "api", r.api.BaseURL())

	if err := r.sessions.Login(ctx, username, password); err != nil {
		var authErr *session.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("%w: %s", shared.ErrAuthFailed, authErr.Message)
		}
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	user := r.sessions.User()
	r.writePlain("✓ Signed in as %s (%s)\n", user.DisplayName(), user.Role.Label())
	return r.writePlain("Start at %s, or run `vqa serve` to open the dashboard.\n", session.LandingRoute(user.Role))
}

// AuthLogout clears the stored session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if !r.sessions.IsAuthenticated() {
		return r.writePlain("Not signed in.\n")
	}
	r.sessions.Logout(ctx)
	return r.writePlain("✓ Signed out\n")
}

type whoami struct {
	User      models.User   `json:"user"`
	RoleLabel string        `json:"role_label"`
	Landing   string        `json:"landing"`
	Menu      []guard.Route `json:"menu"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

// AuthWhoami prints the signed-in user and what they can open.
func (r *Runner) AuthWhoami(ctx context.Context, cmd *cli.Command) error {
	user := r.sessions.User()
	info := whoami{
		User:      *user,
		RoleLabel: user.Role.Label(),
		Landing:   session.LandingRoute(user.Role),
		Menu:      guard.MenuFor(user.Role),
	}
	if exp := r.sessions.ExpiresAt(); !exp.IsZero() {
		info.ExpiresAt = &exp
	}

	if cmd.Bool("json") {
		return r.writeJSON(info, true)
	}

	r.writePlainHeader(user.DisplayName())
	r.writePlain("Username: %s\n", user.Username)
	r.writePlain("Email:    %s\n", user.Email)
	r.writePlain("Role:     %s\n", info.RoleLabel)
	if user.DealerID != "" {
		r.writePlain("Dealer:   %s\n", user.DealerID)
	}
	if user.BranchID != "" {
		r.writePlain("Branch:   %s\n", user.BranchID)
	}
	if info.ExpiresAt != nil {
		r.writePlain("Expires:  %s (%s)\n", info.ExpiresAt.Local().Format(time.RFC1123), info.ExpiresAt.Sub(r.now()).Round(time.Minute))
	}

	r.writePlainln("Views:")
	for _, route := range info.Menu {
		r.writePlain("  %-24s %s\n", route.Path, route.Title)
	}
	return nil
}

// AuthProfile sends a partial profile update.
func (r *Runner) AuthProfile(ctx context.Context, cmd *cli.Command) error {
	update := models.ProfileUpdate{
		Username:    cmd.String("username"),
		Email:       cmd.String("email"),
		FullName:    cmd.String("full-name"),
		NewPassword: cmd.String("new-password"),
	}

	user, err := r.sessions.UpdateProfile(ctx, update)
	if err != nil {
		return r.expired(ctx, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}
	return r.writePlain("✓ Profile updated for %s\n", user.DisplayName())
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("%w: failed to read input: %v", shared.ErrMissingArgument, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
