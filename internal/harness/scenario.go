package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/brandquest/internal/mission"
)

// Scenario drives one brand record through a sequence of mission steps and
// asserts on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RecordID is the brand record used. Defaults to "brand-1".
	RecordID string `yaml:"record_id,omitempty"`

	// Record seeds the shared record before the first step.
	Record *RecordSeed `yaml:"record,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// RecordSeed is the initial content of the shared record.
type RecordSeed struct {
	XP              int      `yaml:"xp"`
	UnlockedMission int      `yaml:"unlocked_mission"`
	Completed       []string `yaml:"completed,omitempty"`
	Clarity         int      `yaml:"clarity,omitempty"`
	Percentile      int      `yaml:"percentile,omitempty"`
}

// Step is one scenario action. Exactly one of Play, Reconcile and Reopen
// must be set.
type Step struct {
	// Play starts the named mission and drives it to completion.
	Play string `yaml:"play,omitempty"`

	Answers    map[string]string     `yaml:"answers,omitempty"`
	Select     map[string]int        `yaml:"select,omitempty"`
	Outputs    map[string]OutputSeed `yaml:"outputs,omitempty"`
	FailStages []string              `yaml:"fail_stages,omitempty"`
	Reject     []string              `yaml:"reject,omitempty"`
	FailSync   bool                  `yaml:"fail_sync,omitempty"`

	// Reconcile retries every pending local snapshot.
	Reconcile bool `yaml:"reconcile,omitempty"`

	// Reopen replaces the engine and session, keeping the stores, as a
	// second device would.
	Reopen bool `yaml:"reopen,omitempty"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// OutputSeed is a scripted stage output.
type OutputSeed struct {
	Text     string            `yaml:"text,omitempty"`
	Fields   map[string]string `yaml:"fields,omitempty"`
	Options  []OptionSeed      `yaml:"options,omitempty"`
	ImageRef string            `yaml:"image_ref,omitempty"`
}

// OptionSeed is one scripted option.
type OptionSeed struct {
	Label  string   `yaml:"label"`
	Values []string `yaml:"values,omitempty"`
}

// StageOutput converts the seed.
func (o OutputSeed) StageOutput() mission.StageOutput {
	out := mission.StageOutput{Text: o.Text, Fields: o.Fields, ImageRef: o.ImageRef}
	for _, opt := range o.Options {
		out.Options = append(out.Options, mission.Option{Label: opt.Label, Values: opt.Values})
	}
	return out
}

// StepExpect checks the outcome of a step.
type StepExpect struct {
	// Error is the expected error class: locked, persistence, generation
	// or none. Empty means none.
	Error string `yaml:"error,omitempty"`

	// Phase is the expected final phase name.
	Phase string `yaml:"phase,omitempty"`

	// Synced is the expected run sync status.
	Synced *bool `yaml:"synced,omitempty"`
}

// Error classes.
const (
	ErrorNone        = "none"
	ErrorLocked      = "locked"
	ErrorPersistence = "persistence"
	ErrorGeneration  = "generation"
)

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// final_record, attempts, pending.
	Type string `yaml:"type"`

	// Kind restricts trace assertions to one event kind.
	Kind string `yaml:"kind,omitempty"`

	// Contains is a substring an event line must contain.
	Contains string `yaml:"contains,omitempty"`

	// Events are substrings that must match events in order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect holds record fields for final_record. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Statuses is the expected attempt log status sequence (attempts).
	Statuses []string `yaml:"statuses,omitempty"`

	// Missions are the expected pending snapshot mission keys (pending).
	Missions []string `yaml:"missions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalRecord   = "final_record"
	AssertAttempts      = "attempts"
	AssertPending       = "pending"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.RecordID == "" {
		scenario.RecordID = "brand-1"
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.Record != nil {
		for _, key := range s.Record.Completed {
			if _, err := mission.ParseID(key); err != nil {
				return fmt.Errorf("record.completed: %w", err)
			}
		}
	}

	for i, step := range s.Steps {
		set := 0
		for _, b := range []bool{step.Play != "", step.Reconcile, step.Reopen} {
			if b {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of play, reconcile, reopen is required", i)
		}
		if step.Play != "" {
			if _, err := mission.ParseID(step.Play); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
		if step.Expect != nil {
			switch step.Expect.Error {
			case "", ErrorNone, ErrorLocked, ErrorPersistence, ErrorGeneration:
			default:
				return fmt.Errorf("steps[%d].expect: unknown error class %q", i, step.Expect.Error)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Contains == "" && a.Kind == "" {
			return fmt.Errorf("assertions[%d]: contains or kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalRecord:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_record", index)
		}
	case AssertAttempts, AssertPending:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
