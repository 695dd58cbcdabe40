// Package phase implements the per-mission phase machine.
//
// A run moves Intro → Collecting → Generating(stage) → Reviewing → Complete.
// Error(stage) is entered when a generation stage fails or the final result
// cannot be built; the stage can be run again from there. Reject returns a
// review to the stage that produced it and Restart discards the run.
//
// RunGenerationStage is the only operation that blocks. The machine lock is
// released for the duration of the invoker call, so State can be observed
// (with Loading set) while a stage is in flight. A Restart or Hydrate during
// that window invalidates the call and its output is dropped.
//
// Nothing leaves the machine until Complete. Persistence is the caller's job.
package phase
