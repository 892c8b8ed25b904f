package guard

import (
	"net/url"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/session"
)

// Action is the outcome of a guard decision.
type Action int

const (
	Render Action = iota
	Placeholder
	Redirect
	Forbidden
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Decision tells a surface what to do with a request for a protected view.
//
// Location is set for [Redirect]. From is the location originally requested so the login
// flow can return there.
type Decision struct {
	Action   Action
	Location string
	From     string
}

// Allowed reports whether the protected content may be shown.
func (d Decision) Allowed() bool {
	return d.Action == Render
}

// Decide gates a view requiring one of required for the session in state.
//
// An empty required set admits any authenticated role.
func Decide(state session.State, required []models.Role, from string) Decision {
	switch {
	case state.Loading:
		return Decision{Action: Placeholder, From: from}
	case !state.Authenticated:
		return Decision{Action: Redirect, Location: session.LoginRoute, From: from}
	case len(required) > 0 && !state.Role.In(required):
		return Decision{Action: Forbidden, From: from}
	default:
		return Decision{Action: Render, From: from}
	}
}

// LoginURL returns the login location with the requested path attached as a from parameter.
func (d Decision) LoginURL() string {
	if d.Location == "" {
		return ""
	}
	if d.From == "" || d.From == d.Location {
		return d.Location
	}
	return d.Location + "?" + url.Values{"from": {d.From}}.Encode()
}
