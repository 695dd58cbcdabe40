// Package restore decides where a mission run starts when a session opens.
//
// Three sources are considered in order: the shared record, the local
// snapshot, nothing. The shared record wins once it confirms completion.
// A local snapshot is only used while that confirmation is missing, and
// the caller is told to reconcile it. Resolving never writes anything, so
// it can be repeated after a failed reconciliation without side effects.
package restore

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/codec"
	"github.com/roach88/brandquest/internal/ir"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
)

// Source names where a decision's result came from.
type Source string

const (
	SourceNone   Source = "none"
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Decision is the outcome of Resolve.
type Decision struct {
	Mission mission.ID
	// Phase is Complete when Result is set and Intro otherwise.
	Phase  phase.Phase
	Result mission.Result
	Source Source
	// NeedsSync asks the caller to reconcile the local result with the record.
	NeedsSync bool
	// ShadowedLocal is set when a readable local snapshot was ignored because
	// the record already holds a completion. LocalMatches reports whether the
	// two results have the same fingerprint.
	ShadowedLocal bool
	LocalMatches  bool
}

// Resolve picks the starting point for mission id. Either input may be nil.
func Resolve(id mission.ID, remote *brand.Record, local *brand.Snapshot) Decision {
	var localRes mission.Result
	if local != nil && local.Mission == id {
		if r, ok := codec.Decode(id, local.Document); ok {
			localRes = r
		} else {
			log.Debug().Str("mission", id.Key()).Msg("local snapshot unreadable")
		}
	}

	if remote != nil && remote.Has(id) {
		if r, ok := codec.Decode(id, remote.StrategyFor(id)); ok {
			d := Decision{Mission: id, Phase: phase.Complete, Result: r, Source: SourceRemote}
			if localRes != nil {
				d.ShadowedLocal = true
				d.LocalMatches = sameFingerprint(r, localRes)
			}
			return d
		}
		log.Debug().Str("mission", id.Key()).Str("record", remote.ID).Msg("record marks mission complete but its result is unreadable")
	}

	if localRes != nil {
		return Decision{Mission: id, Phase: phase.Complete, Result: localRes, Source: SourceLocal, NeedsSync: true}
	}
	return Decision{Mission: id, Phase: phase.Intro, Source: SourceNone}
}

// Apply hydrates m when the decision carries a result. A fresh decision
// leaves m alone.
func (d Decision) Apply(m *phase.Machine) error {
	if d.Result == nil {
		return nil
	}
	return m.Hydrate(d.Result)
}

func sameFingerprint(a, b mission.Result) bool {
	fa, errA := mission.Fingerprint(a)
	fb, errB := mission.Fingerprint(b)
	return errA == nil && errB == nil && fa == fb
}

// RecordReader reads the shared record.
type RecordReader interface {
	Get(ctx context.Context, id string) (*brand.Record, error)
}

// SnapshotStore keeps local copies of completed results until they are
// confirmed by the record store.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, recordID string, id mission.ID) (*brand.Snapshot, error)
	PutSnapshot(ctx context.Context, snap brand.Snapshot) error
	DeleteSnapshot(ctx context.Context, recordID string, id mission.ID) error
	ListSnapshots(ctx context.Context, recordID string) ([]brand.Snapshot, error)
}

// Load reads both sources for recordID and resolves mission id. A record
// that cannot be read is treated as absent so an offline session still sees
// its local completions; the read error is returned alongside the decision.
// GetSnapshot returns (nil, nil) when there is no snapshot.
func Load(ctx context.Context, records RecordReader, snaps SnapshotStore, recordID string, id mission.ID) (Decision, *brand.Record, error) {
	rec, recErr := records.Get(ctx, recordID)
	if errors.Is(recErr, brand.ErrNotFound) {
		rec, recErr = brand.Fresh(recordID), nil
	}
	if recErr != nil {
		log.Warn().Err(recErr).Str("record", recordID).Str("mission", id.Key()).Msg("record unavailable, restoring from local state")
		rec = nil
	}

	var snap *brand.Snapshot
	if snaps != nil {
		s, err := snaps.GetSnapshot(ctx, recordID, id)
		if err != nil {
			log.Warn().Err(err).Str("record", recordID).Str("mission", id.Key()).Msg("local snapshot unavailable")
		} else {
			snap = s
		}
	}

	return Resolve(id, rec, snap), rec, recErr
}

// Fingerprint returns the fingerprint of the decision's result, or "".
func (d Decision) Fingerprint() ir.Fingerprint {
	if d.Result == nil {
		return ""
	}
	fp, err := mission.Fingerprint(d.Result)
	if err != nil {
		return ""
	}
	return fp
}
