// Package engine wires the mission components into sessions.
//
// An Engine holds what every session shares: the catalog, the record and
// snapshot stores, the generation invoker and one persistence Coordinator.
// A Session is opened per brand record; Start restores one mission into a
// Run, which exposes the phase machine operations and persists the result
// when the run reaches Complete.
//
// Completion order is fixed:
//  1. write the local snapshot
//  2. EnsureSynced with the record store
//  3. on success remove the snapshot and publish the new metrics
//
// A failed sync leaves the snapshot in place. The run stays Complete with
// Synced() false, and ReconcileAll (or the next Start) tries again.
//
// Every observable change is published as an Event stamped with a seq from
// the engine's logical Clock, so traces are ordered without wall time.
package engine
