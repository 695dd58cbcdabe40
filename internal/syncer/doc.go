// Package syncer persists completed mission results into the shared record
// exactly once per distinct result.
//
// The Coordinator keeps, per (record, mission) pair, the fingerprint of the
// last result it durably wrote and a single in-flight slot. EnsureSynced:
//   - returns Success without writing when the fingerprint matches
//   - joins the running write for the pair when there is one
//   - otherwise reads the record, merges the completion and patches it back
//
// A write that has been dispatched always runs to completion, even when every
// waiting caller has gone away, so the fingerprint reflects what was stored.
// Failures are reported, never retried here; the fingerprint stays stale and
// the next EnsureSynced call tries again.
package syncer
