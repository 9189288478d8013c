// Package storage provides BoltDB-backed persistence for the subset
// of manager state that must survive a restart: category allocation
// history, blocklist entries, and factory info (spec §4.12). Each
// entity kind gets its own bucket, values are JSON-encoded, and writes
// are upserts keyed by the entity's natural name. Task and worker
// state is intentionally absent — it is rebuilt as workers reconnect.
package storage
