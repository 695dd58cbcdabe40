// Package store provides SQLite-backed storage for brand records, local
// result snapshots and the sync attempt log.
//
// # Tables
//
//   - records: one JSON document per brand record, with a write version
//   - snapshots: completed results awaiting confirmation, keyed by (record, mission)
//   - sync_attempts: append-only log of persistence attempts, ordered by seq
//
// # Record merges
//
// Patch runs read-modify-write inside a single transaction on the store's
// only connection. brand.ApplyPatch redoes the mission merge against the row
// as it is now, so two patches computed from the same stale read both keep
// their xp award. Progress fields never move backwards and unknown document
// fields survive.
//
// # Schema versions
//
// user_version tracks the applied migrations. Open runs the ones a database
// is missing, one transaction each. WAL is used when the path supports it.
//
// Snapshot documents are stored as canonical JSON so a snapshot's bytes are
// stable for the same result.
package store
