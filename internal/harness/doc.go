// Package harness runs YAML mission scenarios against a real engine.
//
// # Scenario Format
//
//	name: discovery_then_naming
//	description: "What this scenario validates"
//	record_id: brand-1
//	record:                  # optional seed for the shared record
//	  xp: 0
//	  unlocked_mission: 1
//	steps:
//	  - play: discovery
//	    answers: { business: "Bike repair", audience: "Commuters" }
//	    fail_stages: [positioning]   # each listed stage fails once
//	    reject: [archetype]          # each listed review is rejected once
//	    select: { candidates: 1 }    # option index per stage, default 0
//	    outputs:                     # scripted stage outputs
//	      positioning: { text: "Fast fixes for commuters" }
//	    fail_sync: true              # the next record write fails
//	    expect: { error: persistence, phase: complete, synced: false }
//	  - reconcile: true
//	  - reopen: true                 # fresh engine on the same stores
//	assertions:
//	  - type: trace_contains
//	    contains: "status=failed"
//	  - type: trace_order
//	    events: ["phase=complete", "status=success"]
//	  - type: trace_count
//	    kind: sync_outcome
//	    count: 2
//	  - type: final_record
//	    expect: { xp: 80, unlockedMission: 2 }
//	  - type: attempts
//	    statuses: [failed, success]
//	  - type: pending
//	    missions: []
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory SQLite store with a step clock,
// sequential attempt ids and the scripted invoker, so the event trace is
// byte-identical across runs and can be compared to a golden file.
package harness
