package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/catalog"
	"github.com/roach88/brandquest/internal/codec"
	"github.com/roach88/brandquest/internal/generate"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
	"github.com/roach88/brandquest/internal/store"
	"github.com/roach88/brandquest/internal/syncer"
	"github.com/roach88/brandquest/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

var answers = map[mission.ID]map[string]string{
	mission.Discovery: {"business": "Bike repair", "audience": "Commuters"},
	mission.Naming:    {"keywords": "wheel", "style": "playful"},
	mission.Voice:     {"tone": "warm"},
	mission.Palette:   {"mood": "sunny", "preference": "vivid"},
	mission.Launch:    {"channels": "Instagram", "budget": "900"},
}

type memAttempts struct {
	mu       sync.Mutex
	attempts []store.SyncAttempt
}

func (m *memAttempts) WriteSyncAttempt(_ context.Context, a store.SyncAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memAttempts) statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.attempts))
	for i, a := range m.attempts {
		out[i] = a.Status
	}
	return out
}

// sharedLog is an attempt log another process has already written to.
type sharedLog struct {
	memAttempts
	last int64
}

func (l *sharedLog) LastSeq(context.Context) (int64, error) {
	return l.last, nil
}

type fixture struct {
	records  *testutil.MemoryRecordStore
	snaps    *testutil.MemorySnapshotStore
	attempts *memAttempts
	invoker  phase.Invoker
}

func newFixture() *fixture {
	return &fixture{
		records:  testutil.NewMemoryRecordStore(),
		snaps:    testutil.NewMemorySnapshotStore(),
		attempts: &memAttempts{},
		invoker:  generate.NewScripted(),
	}
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{
		Catalog:   catalog.Default(),
		Records:   f.records,
		Snapshots: f.snaps,
		Invoker:   f.invoker,
		Attempts:  f.attempts,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) session(t *testing.T) (*Engine, *Session) {
	t.Helper()
	e := f.engine(t)
	s, err := e.Open(context.Background(), "brand-1")
	require.NoError(t, err)
	return e, s
}

// putSnapshot stores res as a local snapshot of brand-1.
func (f *fixture) putSnapshot(t *testing.T, res mission.Result) {
	t.Helper()
	doc, err := codec.Encode(res)
	require.NoError(t, err)
	fp, err := mission.Fingerprint(res)
	require.NoError(t, err)
	require.NoError(t, f.snaps.PutSnapshot(context.Background(), brand.Snapshot{
		RecordID: "brand-1", Mission: res.Mission(), Document: doc, Fingerprint: fp, SavedAt: fixedNow,
	}))
}

// play drives r to Complete choosing the first option at every review and
// returns the error of the final Advance.
func play(t *testing.T, r *Run, in map[string]string) error {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.Begin())
	require.NoError(t, r.Advance(ctx, phase.Input{Answers: in}))
	for {
		st := r.State()
		switch st.Phase {
		case phase.Generating, phase.Error:
			_, err := r.Generate(ctx)
			require.NoError(t, err)
		case phase.Reviewing:
			stage, _, ok := r.machine.Spec().Stage(st.Stage)
			require.True(t, ok)
			in := phase.Input{}
			if stage.Selectable() {
				in = phase.Select(0)
			}
			if err := r.Advance(ctx, in); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func traceLines(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Catalog: catalog.Default()})
	assert.Error(t, err)
	_, err = New(Config{Catalog: catalog.Default(), Records: testutil.NewMemoryRecordStore()})
	assert.Error(t, err)
}

func TestPlayDiscoveryPersistsAndPublishes(t *testing.T) {
	f := newFixture()
	f.attempts = nil
	e, err := New(Config{
		Catalog:   catalog.Default(),
		Records:   f.records,
		Snapshots: f.snaps,
		Invoker:   f.invoker,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	s, err := e.Open(context.Background(), "brand-1")
	require.NoError(t, err)

	r, err := s.Start(context.Background(), mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))

	assert.Equal(t, phase.Complete, r.State().Phase)
	assert.True(t, r.Synced())
	assert.NoError(t, r.SyncErr())

	assert.Equal(t, []string{
		"seq=1 phase_changed record=brand-1 mission=discovery phase=collecting",
		"seq=2 phase_changed record=brand-1 mission=discovery phase=generating stage=positioning",
		"seq=3 phase_changed record=brand-1 mission=discovery phase=generating stage=archetype",
		"seq=4 phase_changed record=brand-1 mission=discovery phase=reviewing stage=archetype",
		"seq=5 phase_changed record=brand-1 mission=discovery phase=complete",
		"seq=6 sync_outcome record=brand-1 mission=discovery status=success",
		"seq=7 metrics_updated record=brand-1 xp=80 next=70 clarity=20 percentile=20 unlocked=2 level=Newcomer",
	}, traceLines(e.Events().Drain()))

	rec := f.records.Record("brand-1")
	require.NotNil(t, rec)
	assert.Equal(t, 80, rec.XP)
	assert.Equal(t, 2, rec.UnlockedMission)
	assert.Equal(t, []mission.ID{mission.Discovery}, rec.CompletedMissions)
	assert.NotNil(t, rec.StrategyFor(mission.Discovery))

	assert.Empty(t, s.Pending(context.Background()), "synced snapshot is removed")
	assert.Equal(t, Metrics{
		XP: 80, XPToNextLevel: 70, Clarity: 20, Percentile: 20, Unlocked: 2,
		Level: "Newcomer", Completed: []mission.ID{mission.Discovery},
	}, s.Metrics())
}

func TestStartGating(t *testing.T) {
	f := newFixture()
	_, s := f.session(t)
	ctx := context.Background()

	_, err := s.Start(ctx, mission.Naming)
	require.Error(t, err)
	assert.True(t, IsLocked(err))
	assert.Contains(t, err.Error(), "MISSION_LOCKED")

	_, err = s.Start(ctx, mission.ID(9))
	assert.True(t, IsUnknownMission(err))

	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))

	_, err = s.Start(ctx, mission.Naming)
	assert.NoError(t, err)
	_, err = s.Start(ctx, mission.Voice)
	assert.True(t, IsLocked(err))
}

func TestAllMissionsReachVisionary(t *testing.T) {
	f := newFixture()
	_, s := f.session(t)
	ctx := context.Background()

	for _, id := range mission.All {
		r, err := s.Start(ctx, id)
		require.NoError(t, err, "start %s", id.Key())
		require.NoError(t, play(t, r, answers[id]), "play %s", id.Key())
	}

	m := s.Metrics()
	assert.Equal(t, 650, m.XP)
	assert.Equal(t, "Visionary", m.Level)
	assert.Equal(t, 6, m.Unlocked)
	assert.Equal(t, 100, m.Clarity)
	assert.Equal(t, mission.All, m.Completed)
	assert.Equal(t, []string{"success", "success", "success", "success", "success"}, f.attempts.statuses())
}

func TestPersistenceFailureKeepsLocalCompletion(t *testing.T) {
	f := newFixture()
	e, s := f.session(t)
	ctx := context.Background()
	f.records.FailNextPatch(errors.New("store offline"))

	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	err = play(t, r, answers[mission.Discovery])
	require.Error(t, err)
	assert.True(t, syncer.IsPersistenceError(err))

	assert.Equal(t, phase.Complete, r.State().Phase)
	assert.False(t, r.Synced())
	assert.Error(t, r.SyncErr())
	assert.Nil(t, f.records.Record("brand-1"))
	assert.Equal(t, []mission.ID{mission.Discovery}, s.Pending(ctx))
	assert.Equal(t, 2, s.Unlocked(ctx), "local completion unlocks the next mission")
	assert.Equal(t, 1, s.Metrics().Unlocked, "confirmed metrics are unchanged")

	events := e.Events().Drain()
	last := events[len(events)-1]
	assert.Equal(t, KindSyncOutcome, last.Kind)
	assert.Equal(t, syncer.StatusFailed, last.Status)
	assert.Contains(t, last.String(), "status=failed")

	outcomes, err := s.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].OK())
	assert.True(t, r.Synced())
	assert.Empty(t, s.Pending(ctx))
	assert.Equal(t, 80, f.records.Record("brand-1").XP)
	assert.Equal(t, []string{"failed", "success"}, f.attempts.statuses())
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture()
	_, s := f.session(t)
	ctx := context.Background()

	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))
	require.NoError(t, r.Sync(ctx))
	require.NoError(t, r.Sync(ctx))

	assert.Len(t, f.records.Patches(), 1)
	assert.Equal(t, 80, f.records.Record("brand-1").XP)
	assert.Equal(t, []string{"success", "skipped", "skipped"}, f.attempts.statuses())
	assert.Empty(t, s.Pending(ctx))
}

func TestRestoreFromRecordSkipsRewrite(t *testing.T) {
	f := newFixture()
	_, s := f.session(t)
	ctx := context.Background()
	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))
	want, _ := r.Result()

	// A second device: new engine, new coordinator, same stores.
	e2, s2 := f.session(t)
	r2, err := s2.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	assert.Equal(t, phase.Complete, r2.State().Phase)
	assert.True(t, r2.Synced())

	got, ok := r2.Result()
	require.True(t, ok)
	wantFP, _ := mission.Fingerprint(want)
	gotFP, _ := mission.Fingerprint(got)
	assert.Equal(t, wantFP, gotFP)

	require.NoError(t, r2.Sync(ctx))
	assert.Len(t, f.records.Patches(), 1, "restored result is not written again")
	assert.Equal(t, int64(1), e2.Coordinator().Stats().Skipped)
}

func TestRestoreFromLocalSnapshotReconciles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res := mission.DiscoveryResult{
		Answers:     mission.DiscoveryAnswers{Business: "Bike repair", Audience: "Commuters"},
		Positioning: "Fast fixes for commuters",
		Archetype:   mission.Archetype{Name: "Caregiver", Rationale: "keeps riders moving"},
		GeneratedAt: fixedNow,
	}
	doc, err := codec.Encode(res)
	require.NoError(t, err)
	fp, err := mission.Fingerprint(res)
	require.NoError(t, err)
	require.NoError(t, f.snaps.PutSnapshot(ctx, brand.Snapshot{
		RecordID: "brand-1", Mission: mission.Discovery, Document: doc, Fingerprint: fp, SavedAt: fixedNow,
	}))

	_, s := f.session(t)
	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	assert.Equal(t, phase.Complete, r.State().Phase)
	s.Wait()

	assert.True(t, r.Synced())
	assert.Empty(t, s.Pending(ctx))
	rec := f.records.Record("brand-1")
	require.NotNil(t, rec)
	assert.Equal(t, 80, rec.XP)
	assert.Equal(t, 80, s.Metrics().XP)
}

func TestShadowedMatchingSnapshotIsDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, s := f.session(t)
	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))
	res, _ := r.Result()

	// Simulate a crash between the write and the snapshot removal.
	doc, err := codec.Encode(res)
	require.NoError(t, err)
	fp, _ := mission.Fingerprint(res)
	require.NoError(t, f.snaps.PutSnapshot(ctx, brand.Snapshot{
		RecordID: "brand-1", Mission: mission.Discovery, Document: doc, Fingerprint: fp, SavedAt: fixedNow,
	}))

	_, s2 := f.session(t)
	_, err = s2.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	s2.Wait()
	assert.Empty(t, s2.Pending(ctx))
	assert.Len(t, f.records.Patches(), 1)
}

func TestShadowedDifferingSnapshotIsDiscarded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, s := f.session(t)
	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))
	stored := string(f.records.Record("brand-1").StrategyFor(mission.Discovery))

	f.putSnapshot(t, mission.DiscoveryResult{
		Answers:     mission.DiscoveryAnswers{Business: "Bike repair", Audience: "Tourists"},
		Positioning: "Rentals for visitors",
		Archetype:   mission.Archetype{Name: "Explorer"},
		GeneratedAt: fixedNow,
	})

	_, s2 := f.session(t)
	r2, err := s2.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	s2.Wait()
	assert.True(t, r2.Synced())
	assert.Empty(t, s2.Pending(ctx))

	outcomes, err := s2.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Len(t, f.records.Patches(), 1)
	assert.Equal(t, stored, string(f.records.Record("brand-1").StrategyFor(mission.Discovery)))
}

func TestConcurrentSyncsNeverLowerMetrics(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.putSnapshot(t, mission.DiscoveryResult{
		Answers:     mission.DiscoveryAnswers{Business: "Bike repair", Audience: "Commuters"},
		Positioning: "Fast fixes for commuters",
		Archetype:   mission.Archetype{Name: "Caregiver"},
		GeneratedAt: fixedNow,
	})
	f.putSnapshot(t, mission.NamingResult{
		Answers:     mission.NamingAnswers{Keywords: "wheel", Style: "playful"},
		Candidates:  []string{"Spokesmith", "Chainline"},
		GeneratedAt: fixedNow,
	})
	f.records.Gate = make(chan struct{})
	f.records.Entered = make(chan struct{}, 2)

	e, s := f.session(t)
	_, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	_, err = s.Start(ctx, mission.Naming)
	require.NoError(t, err)

	// Both background syncs read the empty record before either writes.
	<-f.records.Entered
	<-f.records.Entered
	close(f.records.Gate)
	s.Wait()

	var last Metrics
	updates := 0
	for _, ev := range e.Events().Drain() {
		if ev.Kind != KindMetricsUpdated {
			continue
		}
		updates++
		assert.GreaterOrEqual(t, ev.Metrics.XP, last.XP)
		assert.GreaterOrEqual(t, ev.Metrics.Unlocked, last.Unlocked)
		assert.GreaterOrEqual(t, ev.Metrics.Clarity, last.Clarity)
		assert.Subset(t, ev.Metrics.Completed, last.Completed)
		last = ev.Metrics
	}
	assert.Equal(t, 2, updates)
	assert.Equal(t, 180, last.XP)
	assert.Equal(t, "Explorer", last.Level)
	assert.Equal(t, 3, last.Unlocked)
	assert.Equal(t, []mission.ID{mission.Discovery, mission.Naming}, last.Completed)
	assert.Equal(t, last, s.Metrics())
	assert.Equal(t, 180, f.records.Record("brand-1").XP)
	assert.Empty(t, s.Pending(ctx))
}

func TestOpenContinuesSharedAttemptLog(t *testing.T) {
	f := newFixture()
	shared := &sharedLog{last: 40}
	e, err := New(Config{
		Catalog:   catalog.Default(),
		Records:   f.records,
		Snapshots: f.snaps,
		Invoker:   f.invoker,
		Attempts:  shared,
		StartSeq:  7,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.Clock().Last())

	s, err := e.Open(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), e.Clock().Last())

	r, err := s.Start(context.Background(), mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))

	events := e.Events().Drain()
	require.NotEmpty(t, events)
	assert.Equal(t, int64(41), events[0].Seq)
	shared.mu.Lock()
	defer shared.mu.Unlock()
	require.Len(t, shared.attempts, 1)
	assert.Greater(t, shared.attempts[0].Seq, int64(40))
}

func TestOpenOffline(t *testing.T) {
	f := newFixture()
	f.records.FailNextGet(errors.New("no network"))
	e := f.engine(t)

	s, err := e.Open(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.True(t, s.Offline())
	assert.Equal(t, 1, s.Metrics().Unlocked)

	_, err = e.Open(context.Background(), "")
	assert.Error(t, err)
}

func TestGenerateSeesEarlierMissions(t *testing.T) {
	f := newFixture()
	scripted := generate.NewScripted()
	var mu sync.Mutex
	var seen []phase.StageRequest
	f.invoker = phase.InvokerFunc(func(ctx context.Context, req phase.StageRequest) (mission.StageOutput, error) {
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		return scripted.Invoke(ctx, req)
	})
	_, s := f.session(t)
	ctx := context.Background()

	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))
	r, err = s.Start(ctx, mission.Naming)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Naming]))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	first := seen[0]
	assert.True(t, first.Context.Empty(), "discovery has no prior context")
	last := seen[len(seen)-1]
	assert.Equal(t, mission.Naming, last.Mission)
	require.NotNil(t, last.Context.Discovery)
	assert.Equal(t, "Bike repair", last.Context.Discovery.Business)
	assert.Nil(t, last.Context.Naming)
}

func TestSyncWithoutResult(t *testing.T) {
	f := newFixture()
	_, s := f.session(t)
	r, err := s.Start(context.Background(), mission.Discovery)
	require.NoError(t, err)

	err = r.Sync(context.Background())
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeNoResult, re.Code)
}

func TestRestartKeepsStoredResult(t *testing.T) {
	f := newFixture()
	_, s := f.session(t)
	ctx := context.Background()
	r, err := s.Start(ctx, mission.Discovery)
	require.NoError(t, err)
	require.NoError(t, play(t, r, answers[mission.Discovery]))

	require.NoError(t, r.Restart())
	assert.Equal(t, phase.Intro, r.State().Phase)
	assert.False(t, r.Synced())
	assert.True(t, f.records.Record("brand-1").Has(mission.Discovery))

	// Redo with the same answers produces the same result and is skipped.
	require.NoError(t, play(t, r, answers[mission.Discovery]))
	assert.True(t, r.Synced())
	assert.Len(t, f.records.Patches(), 1)
	assert.Equal(t, 80, f.records.Record("brand-1").XP)
}
