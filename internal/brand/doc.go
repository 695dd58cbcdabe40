// Package brand defines the shared per-user Brand Record and the patches
// that advance it.
//
// The record is owned by the record store. Everything outside the store
// proposes changes as a Patch, and ApplyPatch folds a patch into a stored
// record without ever moving a progress field backwards:
//   - CompletedMissions only grows
//   - UnlockedMission, XP, ClarityScore and ComparativePercentile only rise
//   - Strategy entries are replaced per mission key, never removed
//
// Fields the engine does not know about are carried in Record.Extra so a
// read-modify-write cycle never drops them.
package brand
