package phase

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/missionctx"
)

// StageRequest is everything an invoker needs to run one stage.
type StageRequest struct {
	Mission  mission.ID
	Stage    mission.StageSpec
	Context  missionctx.Context
	Answers  map[string]string
	Previous map[string]mission.StageOutput
}

// Invoker performs the external generative call for a stage.
type Invoker interface {
	Invoke(ctx context.Context, req StageRequest) (mission.StageOutput, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req StageRequest) (mission.StageOutput, error)

func (f InvokerFunc) Invoke(ctx context.Context, req StageRequest) (mission.StageOutput, error) {
	return f(ctx, req)
}

// Listener observes every state change. It runs after the machine lock is
// released and may read the machine, but must not block for long.
type Listener func(State)

// Option configures a Machine.
type Option func(*Machine)

// WithNow sets the wall clock used to stamp completed results.
func WithNow(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithListener registers a state change observer.
func WithListener(l Listener) Option {
	return func(m *Machine) { m.listener = l }
}

// Machine drives one mission run. Safe for concurrent use.
type Machine struct {
	spec     mission.Spec
	invoker  Invoker
	now      func() time.Time
	listener Listener

	mu      sync.Mutex
	phase   Phase
	stage   int
	loading bool
	err     error
	draft   mission.Draft
	result  mission.Result
	epoch   uint64
}

// New creates a machine in Intro for spec.
func New(spec mission.Spec, invoker Invoker, opts ...Option) *Machine {
	m := &Machine{
		spec:    spec,
		invoker: invoker,
		now:     time.Now,
		draft:   mission.NewDraft(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mission returns the mission this machine runs.
func (m *Machine) Mission() mission.ID {
	return m.spec.ID
}

// Spec returns the mission spec.
func (m *Machine) Spec() mission.Spec {
	return m.spec
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	st := State{
		Mission: m.spec.ID,
		Phase:   m.phase,
		Err:     m.err,
		Draft:   m.draft.Clone(),
	}
	switch m.phase {
	case Generating, Reviewing, Error:
		st.Stage = m.spec.Stages[m.stage].ID
		if m.loading {
			st.Loading = st.Stage
		}
	}
	return st
}

// Result returns the completed result. ok is false until Complete.
func (m *Machine) Result() (mission.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != Complete {
		return nil, false
	}
	return m.result, true
}

// NextStage returns the stage that RunGenerationStage expects, if any.
func (m *Machine) NextStage() (mission.StageSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (m.phase == Generating || m.phase == Error) && !m.loading {
		return m.spec.Stages[m.stage], true
	}
	return mission.StageSpec{}, false
}

// Begin moves Intro to Collecting.
func (m *Machine) Begin() error {
	m.mu.Lock()
	if m.phase != Intro {
		defer m.mu.Unlock()
		return m.transitionErr("begin", "")
	}
	m.phase = Collecting
	m.err = nil
	return m.unlockAndNotify()
}

// Advance submits user input for the current step. While Collecting the
// input carries answers; while Reviewing it confirms the stage output and,
// for stages that offer options, carries the selection. Invalid input
// returns a ValidationError and leaves the state unchanged.
func (m *Machine) Advance(in Input) error {
	m.mu.Lock()
	if m.loading {
		defer m.mu.Unlock()
		return m.transitionErr("advance", "generation in progress")
	}

	switch m.phase {
	case Collecting:
		answers, err := validateAnswers(m.spec, in.Answers)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.draft.Answers = answers
		m.phase = Generating
		m.stage = 0
		return m.unlockAndNotify()

	case Reviewing:
		stage := m.spec.Stages[m.stage]
		if stage.Selectable() {
			idx, err := validateSelection(m.spec, stage, m.draft.Outputs[stage.ID], in)
			if err != nil {
				m.mu.Unlock()
				return err
			}
			m.draft.Selections[stage.ID] = idx
		}
		if m.stage+1 < len(m.spec.Stages) {
			m.stage++
			m.phase = Generating
			return m.unlockAndNotify()
		}

		res, err := mission.Build(m.spec.ID, m.draft, m.now())
		if err != nil {
			gerr := &GenerationError{Mission: m.spec.ID, Stage: stage.ID, Err: err, Retryable: true}
			m.phase = Error
			m.err = gerr
			m.notifyAfterUnlock()
			return gerr
		}
		m.result = res
		m.phase = Complete
		m.err = nil
		return m.unlockAndNotify()
	}

	defer m.mu.Unlock()
	return m.transitionErr("advance", "")
}

// RunGenerationStage runs stageID through the invoker. It is valid in
// Generating(stageID) and, as a retry, in Error(stageID). On failure the
// machine enters Error(stageID) and a retryable GenerationError is returned.
func (m *Machine) RunGenerationStage(ctx context.Context, stageID string, snapshot missionctx.Context) (mission.StageOutput, error) {
	m.mu.Lock()
	if m.loading {
		defer m.mu.Unlock()
		return mission.StageOutput{}, m.transitionErr("generate "+stageID, "generation in progress")
	}
	if m.phase != Generating && m.phase != Error {
		defer m.mu.Unlock()
		return mission.StageOutput{}, m.transitionErr("generate "+stageID, "")
	}
	stage := m.spec.Stages[m.stage]
	if stage.ID != stageID {
		defer m.mu.Unlock()
		return mission.StageOutput{}, m.transitionErr("generate "+stageID, fmt.Sprintf("expected stage %s", stage.ID))
	}

	req := StageRequest{
		Mission:  m.spec.ID,
		Stage:    stage,
		Context:  snapshot,
		Answers:  maps.Clone(m.draft.Answers),
		Previous: maps.Clone(m.draft.Outputs),
	}
	epoch := m.epoch
	m.phase = Generating
	m.loading = true
	m.err = nil
	m.notifyAfterUnlock()

	out, err := m.invoker.Invoke(ctx, req)
	if err == nil {
		err = validateOutput(stage, out)
	}

	m.mu.Lock()
	if m.epoch != epoch {
		defer m.mu.Unlock()
		return mission.StageOutput{}, m.transitionErr("generate "+stageID, "run was restarted")
	}
	m.loading = false
	if err != nil {
		gerr := &GenerationError{Mission: m.spec.ID, Stage: stageID, Err: err, Retryable: true}
		m.phase = Error
		m.err = gerr
		m.notifyAfterUnlock()
		return mission.StageOutput{}, gerr
	}

	m.draft.Outputs[stageID] = out
	delete(m.draft.Selections, stageID)
	if stage.Selectable() || m.stage+1 == len(m.spec.Stages) {
		m.phase = Reviewing
	} else {
		m.stage++
	}
	m.notifyAfterUnlock()
	return out, nil
}

// Reject discards the output under review and returns to generating the
// same stage. Outputs of earlier stages are kept.
func (m *Machine) Reject() error {
	m.mu.Lock()
	if m.phase != Reviewing {
		defer m.mu.Unlock()
		return m.transitionErr("reject", "")
	}
	id := m.spec.Stages[m.stage].ID
	delete(m.draft.Outputs, id)
	delete(m.draft.Selections, id)
	m.phase = Generating
	return m.unlockAndNotify()
}

// Restart discards the run and returns to Intro. The result of a previous
// completion, wherever it was persisted, is not touched.
func (m *Machine) Restart() error {
	m.mu.Lock()
	switch m.phase {
	case Reviewing, Complete, Error:
	default:
		defer m.mu.Unlock()
		return m.transitionErr("restart", "")
	}
	m.reset(Intro)
	return m.unlockAndNotify()
}

// Hydrate puts the machine directly into Complete with res. Used when a run
// is restored from storage.
func (m *Machine) Hydrate(res mission.Result) error {
	m.mu.Lock()
	if res == nil || res.Mission() != m.spec.ID {
		defer m.mu.Unlock()
		return m.transitionErr("hydrate", "result belongs to another mission")
	}
	m.reset(Complete)
	m.result = res
	return m.unlockAndNotify()
}

// reset clears the run and invalidates any in-flight generation.
func (m *Machine) reset(to Phase) {
	m.epoch++
	m.phase = to
	m.stage = 0
	m.loading = false
	m.err = nil
	m.draft = mission.NewDraft()
	m.result = nil
}

func (m *Machine) transitionErr(action, detail string) error {
	return &TransitionError{Mission: m.spec.ID, Action: action, From: m.phase, Detail: detail}
}

// notifyAfterUnlock snapshots the state, releases the lock and calls the listener.
func (m *Machine) notifyAfterUnlock() {
	st := m.stateLocked()
	m.mu.Unlock()
	if m.listener != nil {
		m.listener(st)
	}
}

func (m *Machine) unlockAndNotify() error {
	m.notifyAfterUnlock()
	return nil
}
