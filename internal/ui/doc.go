// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI mirrors the dealer workflow of the dashboard:
//  1. [LoginView] : Sign in with username and password
//  2. [TasksView] : Follow tracked analysis tasks as the poll loop updates them
//  3. [SubmitView] : Submit a CitNOW video URL for analysis
//  4. [ForbiddenView] : Shown when the signed-in role cannot open a view
//  5. [LoadingView] : Neutral placeholder while a session operation is in flight
//
// Every view switch goes through guard.Check, so the TUI gates views exactly like the HTTP dashboard.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Task changes arrive from the tracker's subscription channel, one message per event, without blocking the poll loop.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, tab, d, n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
