// Package guard decides whether a view may be shown for the current session.
//
// [Decide] is the single gate used by every surface: the HTTP dashboard wraps it in middleware,
// the CLI calls it from a command's Before hook and the TUI consults it before switching views.
// A decision never depends on anything but the session [session.State] and the roles a route
// requires, so the same inputs produce the same outcome everywhere.
//
// # Outcomes
//
//   - [Placeholder] while a session operation is in flight. No redirect is decided yet.
//   - [Redirect] to the login view when unauthenticated, carrying the requested location.
//   - [Forbidden] when authenticated with a role outside the required set.
//   - [Render] otherwise.
//
// # Routes
//
// [Routes] is the table of views and the roles each one requires. [Lookup] resolves a path
// against it and [MenuFor] lists the entries a role can navigate to.
package guard
