// Package repositories implements SQLite persistence for client state.
//
// Key Implementations:
//   - [KVRepository] : string keys to serialized values in the kv_store table
//   - [TaskStore] : the tracked task set under one key, implementing tasks.Store
//   - [SessionStore] : the persisted login, implementing session.Store
//   - [TaskEventRepository] : append-only history of observed task status changes
//
// Values written through the KV table are JSON. Readers treat undecodable rows as corrupt and
// report them to the caller instead of failing silently.
package repositories
