// Package generate provides the stage invokers used by the phase machine.
//
// Gemini calls the Google generative language API and validates every
// response against a JSON schema for the stage kind before converting it.
// Scripted returns queued outputs and is used by tests, the scenario
// harness and offline play.
package generate
