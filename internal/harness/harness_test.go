package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenariosMatchGolden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRunIsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "sync_retry.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRunReportsUnmetExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectations
steps:
  - play: naming
    expect:
      phase: complete
  - play: discovery
    answers: {business: Bakery, audience: Neighbours}
    expect:
      synced: false
assertions:
  - type: final_record
    expect: {xp: 999}
  - type: attempts
    statuses: [failed]
  - type: trace_count
    kind: sync_outcome
    count: 5
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "steps[0]: expected error none, got locked")
	assert.Contains(t, joined, "steps[0]: expected phase complete, got none")
	assert.Contains(t, joined, "steps[1]: expected synced=false, got true")
	assert.Contains(t, joined, "xp=80 want 999")
	assert.Contains(t, joined, "Assertion failed: attempts")
	assert.Contains(t, joined, "Assertion failed: trace_count")
}

func TestSeededRecordUnlocksLaterMission(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: seeded
record:
  xp: 300
  unlocked_mission: 4
  completed: [discovery, naming, voice]
  clarity: 60
  percentile: 60
steps:
  - play: palette
    answers: {mood: sunny, preference: vivid}
    reject: [palettes]
    select: {palettes: 2}
    outputs:
      logo: {image_ref: "logo://sun"}
assertions:
  - type: trace_order
    events: ["phase=reviewing stage=palettes", "phase=generating stage=palettes", "phase=reviewing stage=logo"]
  - type: final_record
    expect:
      xp: 450
      levelLabel: Architect
      unlockedMission: 5
      clarityScore: 80
      completedMissions: [discovery, naming, voice, palette]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
	assert.Equal(t, "brand-1", scenario.RecordID)
}

func TestParseScenarioRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "steps: [{reconcile: true}]", "name is required"},
		{"no steps", "name: x", "steps list is required"},
		{"unknown field", "name: x\nstepz: []", "failed to parse YAML"},
		{"two actions", "name: x\nsteps: [{reconcile: true, reopen: true}]", "exactly one of"},
		{"unknown mission", "name: x\nsteps: [{play: checkout}]", "unknown mission"},
		{"bad error class", "name: x\nsteps: [{reconcile: true, expect: {error: boom}}]", "unknown error class"},
		{"bad seed", "name: x\nrecord: {completed: [nope]}\nsteps: [{reconcile: true}]", "record.completed"},
		{"unknown assertion", "name: x\nsteps: [{reconcile: true}]\nassertions: [{type: vibes}]", "unknown assertion type"},
		{"empty final record", "name: x\nsteps: [{reconcile: true}]\nassertions: [{type: final_record}]", "expect is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestTraceAssertions(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Kind: "phase_changed", Line: "seq=1 phase_changed mission=voice phase=collecting"},
		{Seq: 2, Kind: "sync_outcome", Line: "seq=2 sync_outcome mission=voice status=success"},
		{Seq: 3, Kind: "sync_outcome", Line: "seq=3 sync_outcome mission=voice status=success skipped=true"},
	}

	assert.NoError(t, assertTraceContains(trace, Assertion{Contains: "skipped=true"}))
	assert.Error(t, assertTraceContains(trace, Assertion{Kind: "metrics_updated"}))

	assert.NoError(t, assertTraceOrder(trace, Assertion{Events: []string{"collecting", "skipped"}}))
	err := assertTraceOrder(trace, Assertion{Events: []string{"skipped", "collecting"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Full trace:")

	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: "sync_outcome", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: "sync_outcome", Contains: "skipped", Count: 1}))
	assert.Error(t, assertTraceCount(trace, Assertion{Kind: "phase_changed", Count: 0}))
}
