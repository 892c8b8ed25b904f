// Package models defines the domain entities shared by the session manager, the task tracker and the
// client surfaces (CLI, TUI, local dashboard).
//
// The package contains two categories of types:
//
// 1. Identity: who is logged in
//   - [Role] : Closed set of authorization levels
//   - [User] : Profile returned by GET /users/me
//   - [ProfileUpdate] : Partial profile sent to PUT /users/me
//
// 2. Analysis tasks: long-running server jobs tracked on the client
//   - [Task] : A tracked job with its last observed status
//   - [TaskStatus] : pending → processing → completed | failed
//   - [TaskKind] : single analysis or bulk batch, selects the status endpoint
//   - [TaskUpdate] : Partial task fields applied by the poll loop
//
// 3. Administration and reports
//   - [UserCreate], [UserUpdate] : user management payloads
//   - [Result], [Overview], [UserStat] : analysis results and dashboard aggregates
//
// JSON tags follow the backend wire names so the same structs are used for decoding API responses
// and for persisting the tracked set.
package models
