// Package mission defines the mission catalog model and the MissionResult
// tagged union.
//
// Every mission type has exactly one Result variant. Code that needs
// per-mission behaviour switches on the concrete variant (or on ID) so that
// adding a mission type surfaces every site that must handle it.
package mission
