package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/catalog"
	"github.com/roach88/brandquest/internal/engine"
	"github.com/roach88/brandquest/internal/generate"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
	"github.com/roach88/brandquest/internal/store"
	"github.com/roach88/brandquest/internal/syncer"
	"github.com/roach88/brandquest/internal/testutil"
)

// Epoch is the first wall time handed out in every scenario.
var Epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// maxDriveSteps bounds the generate/review loop of one play step.
const maxDriveSteps = 64

var (
	errScriptedGeneration = errors.New("scripted generation failure")
	errScriptedPatch      = errors.New("scripted patch failure")
)

// faultyRecords fails a queued number of Patch calls before delegating.
type faultyRecords struct {
	*store.Store

	mu   sync.Mutex
	fail int
}

func (f *faultyRecords) failNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail++
}

func (f *faultyRecords) Patch(ctx context.Context, id string, p brand.Patch) error {
	f.mu.Lock()
	if f.fail > 0 {
		f.fail--
		f.mu.Unlock()
		return errScriptedPatch
	}
	f.mu.Unlock()
	return f.Store.Patch(ctx, id, p)
}

// Harness is the scenario execution engine.
type Harness struct {
	scenario *Scenario
	catalog  *mission.Catalog
	store    *store.Store
	records  *faultyRecords
	scripted *generate.Scripted
	clock    *testutil.StepClock
	ids      *testutil.SequentialIDs
	events   *engine.EventStream

	engine  *engine.Engine
	session *engine.Session
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Seed the shared record, if the scenario has one
//  2. Execute steps in order, checking step expectations
//  3. Collect the trace and final state
//  4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewStepClock(Epoch, time.Second)
	st.SetNow(clock.Now)

	h := &Harness{
		scenario: scenario,
		catalog:  catalog.Default(),
		store:    st,
		records:  &faultyRecords{Store: st},
		scripted: generate.NewScripted(),
		clock:    clock,
		ids:      testutil.NewSequentialIDs("attempt"),
		events:   engine.NewEventStream(),
	}

	ctx := context.Background()
	if err := h.seed(ctx); err != nil {
		return nil, err
	}
	if err := h.open(ctx, 0); err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}
	h.session.Wait()

	for _, ev := range h.events.Drain() {
		result.Trace = append(result.Trace, TraceEvent{Seq: ev.Seq, Kind: ev.Kind.String(), Line: ev.String()})
	}
	if err := h.collectState(ctx, result); err != nil {
		return nil, err
	}
	for _, a := range scenario.Assertions {
		if err := evaluate(result, a); err != nil {
			result.AddError(err.Error())
		}
	}

	log.Debug().Str("scenario", scenario.Name).Bool("pass", result.Pass).Int("events", len(result.Trace)).Msg("scenario finished")
	return result, nil
}

func (h *Harness) seed(ctx context.Context) error {
	seed := h.scenario.Record
	if seed == nil {
		return nil
	}
	rec := brand.Fresh(h.scenario.RecordID)
	rec.XP = seed.XP
	rec.UnlockedMission = max(seed.UnlockedMission, rec.UnlockedMission)
	rec.ClarityScore = seed.Clarity
	rec.ComparativePercentile = seed.Percentile
	for _, key := range seed.Completed {
		id, err := mission.ParseID(key)
		if err != nil {
			return err
		}
		rec.Complete(id)
	}
	rec.LevelLabel, rec.XPToNextLevel = h.catalog.Level(rec.XP)
	if err := h.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("seed record: %w", err)
	}
	return nil
}

// open starts a new engine and session on the shared stores, continuing
// the logical clock from startSeq.
func (h *Harness) open(ctx context.Context, startSeq int64) error {
	eng, err := engine.New(engine.Config{
		Catalog:   h.catalog,
		Records:   h.records,
		Snapshots: h.store,
		Invoker:   h.scripted,
		Attempts:  h.store,
		Events:    h.events,
		IDs:       h.ids,
		Now:       h.clock.Now,
		StartSeq:  startSeq,
	})
	if err != nil {
		return err
	}
	sess, err := eng.Open(ctx, h.scenario.RecordID)
	if err != nil {
		return err
	}
	h.engine, h.session = eng, sess
	return nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	if step.FailSync {
		h.records.failNext()
	}

	switch {
	case step.Reopen:
		h.session.Wait()
		return h.open(ctx, h.engine.Clock().Last())

	case step.Reconcile:
		_, err := h.session.ReconcileAll(ctx)
		h.check(i, step, nil, err, result)
		return nil
	}

	id, err := mission.ParseID(step.Play)
	if err != nil {
		return err
	}
	for _, stage := range step.FailStages {
		h.scripted.Fail(stage, errScriptedGeneration)
	}
	for stage, out := range step.Outputs {
		h.scripted.Queue(stage, out.StageOutput())
	}

	run, err := h.session.Start(ctx, id)
	h.session.Wait()
	if err == nil {
		err = h.drive(ctx, run, step)
	}
	h.check(i, step, run, err, result)
	return nil
}

// drive plays run to completion. A run restored into Complete is left as is.
func (h *Harness) drive(ctx context.Context, run *engine.Run, step Step) error {
	if run.State().Phase == phase.Complete {
		return nil
	}
	if err := run.Begin(); err != nil {
		return err
	}
	if err := run.Advance(ctx, phase.Input{Answers: step.Answers}); err != nil {
		return err
	}

	spec := h.catalog.MustSpec(run.Mission())
	rejected := map[string]bool{}
	for range maxDriveSteps {
		st := run.State()
		switch st.Phase {
		case phase.Generating, phase.Error:
			if _, err := run.Generate(ctx); err != nil && !phase.IsRetryable(err) {
				return err
			}
		case phase.Reviewing:
			if slices.Contains(step.Reject, st.Stage) && !rejected[st.Stage] {
				rejected[st.Stage] = true
				if err := run.Reject(); err != nil {
					return err
				}
				continue
			}
			in := phase.Input{}
			if stage, _, ok := spec.Stage(st.Stage); ok && stage.Selectable() {
				in = phase.Select(step.Select[st.Stage])
			}
			if err := run.Advance(ctx, in); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return fmt.Errorf("mission %s did not finish within %d steps", run.Mission().Key(), maxDriveSteps)
}

func (h *Harness) check(i int, step Step, run *engine.Run, err error, result *Result) {
	got := classify(err)
	want := ErrorNone
	if step.Expect != nil && step.Expect.Error != "" {
		want = step.Expect.Error
	}
	if got != want {
		result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %s (%v)", i, want, got, err))
	}
	if step.Expect == nil {
		return
	}

	if step.Expect.Phase != "" {
		actual := "none"
		if run != nil {
			actual = run.State().Phase.String()
		}
		if actual != step.Expect.Phase {
			result.AddError(fmt.Sprintf("steps[%d]: expected phase %s, got %s", i, step.Expect.Phase, actual))
		}
	}
	if step.Expect.Synced != nil && run != nil && run.Synced() != *step.Expect.Synced {
		result.AddError(fmt.Sprintf("steps[%d]: expected synced=%t, got %t", i, *step.Expect.Synced, run.Synced()))
	}
}

func classify(err error) string {
	var gerr *phase.GenerationError
	switch {
	case err == nil:
		return ErrorNone
	case engine.IsLocked(err):
		return ErrorLocked
	case syncer.IsPersistenceError(err):
		return ErrorPersistence
	case errors.As(err, &gerr):
		return ErrorGeneration
	}
	return "other"
}

func (h *Harness) collectState(ctx context.Context, result *Result) error {
	id := h.scenario.RecordID

	rec, err := h.store.Get(ctx, id)
	switch {
	case errors.Is(err, brand.ErrNotFound):
		result.State["record"] = map[string]any{}
	case err != nil:
		return fmt.Errorf("read final record: %w", err)
	default:
		result.State["record"] = recordState(rec)
	}

	attempts, err := h.store.ReadSyncAttempts(ctx, id, 0)
	if err != nil {
		return err
	}
	statuses := make([]string, len(attempts))
	for i, a := range attempts {
		statuses[i] = a.Status
	}
	result.State["attempts"] = statuses

	snaps, err := h.store.ListSnapshots(ctx, id)
	if err != nil {
		return err
	}
	pending := make([]string, len(snaps))
	for i, s := range snaps {
		pending[i] = s.Mission.Key()
	}
	result.State["pending"] = pending
	return nil
}

func recordState(rec *brand.Record) map[string]any {
	completed := make([]string, len(rec.CompletedMissions))
	for i, id := range rec.CompletedMissions {
		completed[i] = id.Key()
	}
	return map[string]any{
		"xp":                    rec.XP,
		"xpToNextLevel":         rec.XPToNextLevel,
		"unlockedMission":       rec.UnlockedMission,
		"completedMissions":     completed,
		"clarityScore":          rec.ClarityScore,
		"comparativePercentile": rec.ComparativePercentile,
		"levelLabel":            rec.LevelLabel,
	}
}
