// Package server provides HTTP routing, middleware, and the handlers of the local dashboard.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so several methods
// can share a path and wildcards like {id} are read with [http.Request.PathValue].
//
// # Role Gating
//
// [RequireRoles] adapts guard.Decide to HTTP:
//   - a resolving session gets 202 Accepted with Retry-After and no body
//   - a missing session is sent to /login with 303 See Other and ?from= (API routes get 401)
//   - a role outside the required set gets 403
//
// # Dashboard
//
// [Dashboard] serves the login flow, the tracked-task API and one page per entry of
// guard.Routes. Pages render HTML by default and JSON when the client sends
// Accept: application/json or ?format=json.
//
//	GET    /                  → landing view or /login
//	GET    /login             → sign-in form
//	POST   /login             → password login
//	POST   /logout            → end the session
//	GET    /api/session       → session projection
//	GET    /api/tasks         → tracked tasks
//	POST   /api/tasks         → submit an analysis and track it
//	DELETE /api/tasks/{id}    → stop tracking a task
//	GET    /api/tasks/events  → Server-Sent Events of tracker changes
//
// The server listens on loopback only; it acts on behalf of the single session held by the
// process that runs it.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
