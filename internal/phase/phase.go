package phase

import (
	"github.com/roach88/brandquest/internal/mission"
)

// Phase is the coarse position of a mission run.
type Phase int

const (
	Intro Phase = iota
	Collecting
	Generating
	Reviewing
	Complete
	Error
)

var phaseNames = [...]string{
	Intro:      "intro",
	Collecting: "collecting",
	Generating: "generating",
	Reviewing:  "reviewing",
	Complete:   "complete",
	Error:      "error",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// State is a point-in-time copy of a machine's state.
type State struct {
	Mission mission.ID
	Phase   Phase
	// Stage is the stage being generated, reviewed or retried. Empty outside
	// Generating, Reviewing and Error.
	Stage string
	// Loading names the stage whose generation call is in flight.
	Loading string
	// Err is the failure that put the machine into Error.
	Err   error
	Draft mission.Draft
}

// Input is what the user submits to Advance.
type Input struct {
	// Answers are consumed while Collecting.
	Answers map[string]string
	// Selection is the chosen option index while Reviewing a stage that
	// offers options.
	Selection *int
}

// Select is a convenience for building an Input with a selection.
func Select(i int) Input {
	return Input{Selection: &i}
}
