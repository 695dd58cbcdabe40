package engine

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/codec"
	"github.com/roach88/brandquest/internal/ir"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/missionctx"
	"github.com/roach88/brandquest/internal/phase"
	"github.com/roach88/brandquest/internal/restore"
	"github.com/roach88/brandquest/internal/store"
	"github.com/roach88/brandquest/internal/syncer"
)

// Session is one user's view of a brand record. Safe for concurrent use.
type Session struct {
	eng *Engine
	id  string

	mu      sync.Mutex
	record  *brand.Record
	offline bool
	runs    map[mission.ID]*Run

	bg sync.WaitGroup
}

// RecordID returns the brand record this session works on.
func (s *Session) RecordID() string {
	return s.id
}

// Record returns a copy of the last record read or written.
func (s *Session) Record() *brand.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Offline reports whether the last record read failed.
func (s *Session) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// Metrics returns the gamification values of the confirmed record.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MetricsOf(s.record)
}

// Unlocked returns the highest mission the user may start. Completions held
// only in local snapshots count, so an offline user is not locked out of
// the mission after one they finished.
func (s *Session) Unlocked(ctx context.Context) int {
	s.mu.Lock()
	unlocked := max(s.record.UnlockedMission, int(mission.Discovery))
	s.mu.Unlock()

	for _, snap := range s.pending(ctx) {
		unlocked = max(unlocked, int(snap.Mission)+1)
	}
	return unlocked
}

// Start restores mission id into a Run. The run begins in Intro, or in
// Complete when a stored result exists. A result found only locally is
// reconciled in the background; Wait blocks until that finishes.
func (s *Session) Start(ctx context.Context, id mission.ID) (*Run, error) {
	spec, ok := s.eng.catalog.Spec(id)
	if !ok {
		return nil, newUnknownMissionError(s.id, id)
	}
	if unlocked := s.Unlocked(ctx); int(id) > unlocked {
		return nil, NewLockedError(s.id, id, unlocked)
	}

	dec, rec, err := restore.Load(ctx, s.eng.records, s.eng.snapshots, s.id, id)
	s.mu.Lock()
	if err == nil && rec != nil {
		s.record = brand.Ratchet(rec, s.record)
		s.offline = false
	} else if err != nil {
		s.offline = true
	}
	s.mu.Unlock()

	r := newRun(s, spec)
	if err := dec.Apply(r.machine); err != nil {
		return nil, err
	}

	logger := log.With().Str("record", s.id).Str("mission", id.Key()).Str("source", string(dec.Source)).Logger()
	switch dec.Source {
	case restore.SourceRemote:
		s.eng.coord.MarkPersisted(s.id, id, dec.Fingerprint())
		r.setSynced(true, nil)
		if dec.ShadowedLocal {
			if !dec.LocalMatches {
				logger.Info().Msg("local snapshot differs from stored result, discarded")
			}
			s.discardSnapshot(ctx, id)
		}
	case restore.SourceLocal:
		logger.Info().Msg("restored from local snapshot, reconciling")
	}

	s.mu.Lock()
	s.runs[id] = r
	s.mu.Unlock()

	if dec.NeedsSync {
		res := dec.Result
		bg := context.WithoutCancel(ctx)
		s.bg.Go(func() {
			s.sync(bg, res)
		})
	}
	return r, nil
}

// Wait blocks until background reconciliation started by Start finishes.
func (s *Session) Wait() {
	s.bg.Wait()
}

// ReconcileAll retries persistence of every pending local snapshot, lowest
// mission first. Unreadable snapshots are skipped. The returned error joins
// every persistence failure.
func (s *Session) ReconcileAll(ctx context.Context) ([]syncer.Outcome, error) {
	if s.eng.snapshots == nil {
		return nil, nil
	}
	snaps, err := s.eng.snapshots.ListSnapshots(ctx, s.id)
	if err != nil {
		return nil, err
	}

	var outcomes []syncer.Outcome
	var errs []error
	for _, snap := range snaps {
		res, ok := codec.Decode(snap.Mission, snap.Document)
		if !ok {
			log.Warn().Str("record", s.id).Str("mission", snap.Mission.Key()).Msg("pending snapshot unreadable, skipped")
			continue
		}
		out := s.sync(ctx, res)
		outcomes = append(outcomes, out)
		if !out.OK() {
			errs = append(errs, out.Err)
		}
	}
	return outcomes, errors.Join(errs...)
}

// Pending returns the missions that hold a local snapshot.
func (s *Session) Pending(ctx context.Context) []mission.ID {
	snaps := s.pending(ctx)
	ids := make([]mission.ID, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.Mission
	}
	return ids
}

func (s *Session) pending(ctx context.Context) []brand.Snapshot {
	if s.eng.snapshots == nil {
		return nil
	}
	snaps, err := s.eng.snapshots.ListSnapshots(ctx, s.id)
	if err != nil {
		log.Warn().Err(err).Str("record", s.id).Msg("listing local snapshots failed")
		return nil
	}
	return snaps
}

// contextFor builds the generation context for target from the record, with
// local snapshots filling missions the record does not hold yet.
func (s *Session) contextFor(ctx context.Context, target mission.ID) missionctx.Context {
	rec := s.Record()
	prior := make(map[mission.ID]any)
	for _, id := range mission.All {
		if doc := rec.StrategyFor(id); doc != nil {
			prior[id] = doc
		}
	}
	for _, snap := range s.pending(ctx) {
		if _, ok := prior[snap.Mission]; !ok {
			prior[snap.Mission] = snap.Document
		}
	}
	return missionctx.Build(target, prior)
}

// persist saves res locally and then with the record store.
func (s *Session) persist(ctx context.Context, res mission.Result) syncer.Outcome {
	if s.eng.snapshots != nil {
		doc, err := codec.Encode(res)
		if err == nil {
			fp, _ := mission.Fingerprint(res)
			err = s.eng.snapshots.PutSnapshot(ctx, brand.Snapshot{
				RecordID:    s.id,
				Mission:     res.Mission(),
				Document:    doc,
				Fingerprint: fp,
				SavedAt:     s.eng.now(),
			})
		}
		if err != nil {
			log.Warn().Err(err).Str("record", s.id).Str("mission", res.Mission().Key()).Msg("local snapshot not saved")
		}
	}
	return s.sync(ctx, res)
}

// sync runs EnsureSynced for res and applies the outcome to the session.
func (s *Session) sync(ctx context.Context, res mission.Result) syncer.Outcome {
	id := res.Mission()
	out := s.eng.coord.EnsureSynced(ctx, s.id, res)
	s.logAttempt(ctx, id, out)

	ev := Event{
		Kind:        KindSyncOutcome,
		RecordID:    s.id,
		Mission:     id,
		Status:      out.Status,
		Skipped:     out.Skipped,
		Fingerprint: out.Fingerprint,
	}
	if !out.OK() {
		ev.Err = out.Err.Error()
		s.eng.publish(ev)
		s.markRun(id, out)
		return out
	}

	s.dropSnapshot(ctx, id, out.Fingerprint)
	s.eng.publish(ev)
	s.markRun(id, out)

	if out.Record != nil {
		s.mu.Lock()
		// Syncs of different missions can finish in any order, so the
		// session record only ever advances.
		rec := brand.Ratchet(s.eng.scorer.Merge(s.record, id), out.Record)
		if doc := out.Record.StrategyFor(id); doc != nil {
			rec.Strategy[id.Key()] = slices.Clone(doc)
		}
		s.record = rec
		s.offline = false
		m := MetricsOf(s.record)
		s.mu.Unlock()
		s.eng.publish(Event{Kind: KindMetricsUpdated, RecordID: s.id, Mission: id, Metrics: m})
	}
	return out
}

// dropSnapshot removes the snapshot for id if it still holds fp. A newer
// local result is left for the next reconcile.
func (s *Session) dropSnapshot(ctx context.Context, id mission.ID, fp ir.Fingerprint) {
	if s.eng.snapshots == nil || fp == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	snap, err := s.eng.snapshots.GetSnapshot(ctx, s.id, id)
	if err != nil || snap == nil {
		return
	}
	if snap.Fingerprint != fp {
		return
	}
	if err := s.eng.snapshots.DeleteSnapshot(ctx, s.id, id); err != nil {
		log.Warn().Err(err).Str("record", s.id).Str("mission", id.Key()).Msg("removing synced snapshot failed")
	}
}

// discardSnapshot removes the snapshot for id whatever it holds.
func (s *Session) discardSnapshot(ctx context.Context, id mission.ID) {
	if s.eng.snapshots == nil {
		return
	}
	if err := s.eng.snapshots.DeleteSnapshot(context.WithoutCancel(ctx), s.id, id); err != nil {
		log.Warn().Err(err).Str("record", s.id).Str("mission", id.Key()).Msg("removing shadowed snapshot failed")
	}
}

func (s *Session) markRun(id mission.ID, out syncer.Outcome) {
	s.mu.Lock()
	r := s.runs[id]
	s.mu.Unlock()
	if r == nil {
		return
	}
	res, ok := r.machine.Result()
	if !ok {
		return
	}
	if fp, err := mission.Fingerprint(res); err != nil || fp != out.Fingerprint {
		return
	}
	if out.OK() {
		r.setSynced(true, nil)
	} else {
		r.setSynced(false, out.Err)
	}
}

func (s *Session) logAttempt(ctx context.Context, id mission.ID, out syncer.Outcome) {
	if s.eng.attempts == nil {
		return
	}
	a := store.SyncAttempt{
		ID:          s.eng.ids.Generate(),
		Seq:         s.eng.clock.Next(),
		RecordID:    s.id,
		Mission:     id,
		Fingerprint: out.Fingerprint,
		Status:      out.Status.String(),
		At:          s.eng.now(),
	}
	if out.Skipped {
		a.Status = "skipped"
	}
	if out.Err != nil {
		a.Error = out.Err.Error()
	}
	if err := s.eng.attempts.WriteSyncAttempt(context.WithoutCancel(ctx), a); err != nil {
		log.Warn().Err(err).Str("record", s.id).Str("mission", id.Key()).Msg("sync attempt not logged")
	}
}

// phaseChanged publishes a PhaseChanged event for st.
func (s *Session) phaseChanged(st phase.State) {
	s.eng.publish(Event{
		Kind:     KindPhaseChanged,
		RecordID: s.id,
		Mission:  st.Mission,
		Phase:    st.Phase,
		Stage:    st.Stage,
	})
}
