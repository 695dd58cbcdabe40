package engine

import (
	"context"
	"sync"

	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
)

// Run is one mission being played in a Session.
type Run struct {
	s       *Session
	machine *phase.Machine

	mu        sync.Mutex
	synced    bool
	syncErr   error
	lastPhase phase.Phase
	lastStage string
	announced bool
}

func newRun(s *Session, spec mission.Spec) *Run {
	r := &Run{s: s}
	r.machine = phase.New(spec, s.eng.invoker,
		phase.WithNow(s.eng.now),
		phase.WithListener(r.observe),
	)
	return r
}

// observe forwards phase and stage changes. Loading toggles within the same
// stage are not reported.
func (r *Run) observe(st phase.State) {
	r.mu.Lock()
	if r.announced && st.Phase == r.lastPhase && st.Stage == r.lastStage {
		r.mu.Unlock()
		return
	}
	r.announced = true
	r.lastPhase, r.lastStage = st.Phase, st.Stage
	r.mu.Unlock()
	r.s.phaseChanged(st)
}

// Mission returns the mission being played.
func (r *Run) Mission() mission.ID {
	return r.machine.Mission()
}

// State returns the machine state.
func (r *Run) State() phase.State {
	return r.machine.State()
}

// Result returns the completed result, if any.
func (r *Run) Result() (mission.Result, bool) {
	return r.machine.Result()
}

// Synced reports whether the current result is confirmed by the record
// store. SyncErr returns the last persistence failure for it.
func (r *Run) Synced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced
}

func (r *Run) SyncErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncErr
}

func (r *Run) setSynced(ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = ok
	r.syncErr = err
}

// Begin leaves Intro.
func (r *Run) Begin() error {
	return r.machine.Begin()
}

// Advance submits answers or a selection. When the run completes the result
// is persisted before Advance returns; a *syncer.PersistenceError means the
// run is Complete but not yet synced.
func (r *Run) Advance(ctx context.Context, in phase.Input) error {
	if err := r.machine.Advance(in); err != nil {
		return err
	}
	if r.machine.State().Phase != phase.Complete {
		return nil
	}
	return r.Sync(ctx)
}

// Generate runs the stage the machine is waiting on, with the generation
// context built from earlier missions.
func (r *Run) Generate(ctx context.Context) (mission.StageOutput, error) {
	stage, ok := r.machine.NextStage()
	if !ok {
		return r.machine.RunGenerationStage(ctx, r.State().Stage, r.s.contextFor(ctx, r.Mission()))
	}
	return r.machine.RunGenerationStage(ctx, stage.ID, r.s.contextFor(ctx, r.Mission()))
}

// Reject discards the output under review.
func (r *Run) Reject() error {
	return r.machine.Reject()
}

// Restart returns the run to Intro. Stored results and pending snapshots
// are kept; a new completion replaces them.
func (r *Run) Restart() error {
	if err := r.machine.Restart(); err != nil {
		return err
	}
	r.setSynced(false, nil)
	return nil
}

// Sync persists the completed result. Repeating it after success is a no-op.
func (r *Run) Sync(ctx context.Context) error {
	res, ok := r.machine.Result()
	if !ok {
		return &RuntimeError{
			Code:     ErrCodeNoResult,
			Message:  "run has no completed result",
			RecordID: r.s.id,
			Mission:  r.Mission(),
		}
	}
	r.s.mu.Lock()
	r.s.runs[r.Mission()] = r
	r.s.mu.Unlock()

	out := r.s.persist(ctx, res)
	if !out.OK() {
		return out.Err
	}
	return nil
}
