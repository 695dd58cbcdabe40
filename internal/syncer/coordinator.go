package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/codec"
	"github.com/roach88/brandquest/internal/ir"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/scoring"
)

// RecordStore is the shared record store. Get returns brand.ErrNotFound
// when no record exists yet.
type RecordStore interface {
	Get(ctx context.Context, id string) (*brand.Record, error)
	Patch(ctx context.Context, id string, p brand.Patch) error
}

// Status is the result class of EnsureSynced.
type Status int

const (
	StatusSuccess Status = iota + 1
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome describes one EnsureSynced call.
type Outcome struct {
	Status      Status
	Fingerprint ir.Fingerprint
	// Err is a *PersistenceError when Status is StatusFailed.
	Err error
	// Record is the record as written. Nil when nothing was written.
	Record *brand.Record
	// Skipped is set when the fingerprint was already persisted.
	Skipped bool
	// Shared is set when the outcome came from a write started by another caller.
	Shared bool
}

// OK reports whether the result is persisted.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// Stats counts coordinator activity. Waiting is the number of callers
// currently blocked on a write.
type Stats struct {
	Writes  int64
	Skipped int64
	Shared  int64
	Failed  int64
	Waiting int64
}

// Coordinator serialises persistence per (record, mission) pair.
type Coordinator struct {
	store  RecordStore
	scorer *scoring.Scorer
	group  singleflight.Group

	mu   sync.Mutex
	last map[string]ir.Fingerprint

	writes, skipped, shared, failed, waiting atomic.Int64
}

// New creates a Coordinator writing to store.
func New(store RecordStore, scorer *scoring.Scorer) *Coordinator {
	return &Coordinator{
		store:  store,
		scorer: scorer,
		last:   make(map[string]ir.Fingerprint),
	}
}

func pairKey(recordID string, id mission.ID) string {
	return recordID + "/" + id.Key()
}

// EnsureSynced makes sure res is merged into record recordID. Calling it
// again with the same result is a no-op. While a write for the pair is in
// flight every caller shares its outcome, so Outcome.Fingerprint can name a
// different result than res. If ctx ends first the caller gets a failed
// outcome but a write already dispatched still finishes.
func (c *Coordinator) EnsureSynced(ctx context.Context, recordID string, res mission.Result) Outcome {
	id := res.Mission()
	fp, err := mission.Fingerprint(res)
	if err != nil {
		return c.fail(&PersistenceError{RecordID: recordID, Mission: id, Op: "fingerprint", Err: err})
	}
	key := pairKey(recordID, id)
	logger := log.With().Str("record", recordID).Str("mission", id.Key()).Str("fingerprint", fp.Short()).Logger()

	if c.persisted(key, fp) {
		c.skipped.Add(1)
		logger.Debug().Msg("sync skipped, already persisted")
		return Outcome{Status: StatusSuccess, Fingerprint: fp, Skipped: true}
	}

	// A caller joining a write already in flight for the pair gets that
	// write's outcome, whatever result it carries.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if c.persisted(key, fp) {
			c.skipped.Add(1)
			return Outcome{Status: StatusSuccess, Fingerprint: fp, Skipped: true}, nil
		}
		return c.write(detached, recordID, res, fp), nil
	})

	c.waiting.Add(1)
	defer c.waiting.Add(-1)
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		logger.Debug().Err(ctx.Err()).Msg("caller stopped waiting for sync")
		return c.fail(&PersistenceError{RecordID: recordID, Mission: id, Op: "wait", Err: ctx.Err()})
	}

	out := r.Val.(Outcome)
	if r.Shared {
		out.Shared = true
		c.shared.Add(1)
		if out.Fingerprint != fp {
			logger.Debug().Str("in_flight", out.Fingerprint.Short()).Msg("joined sync of a different result")
		}
	}
	return out
}

func (c *Coordinator) write(ctx context.Context, recordID string, res mission.Result, fp ir.Fingerprint) Outcome {
	id := res.Mission()
	logger := log.With().Str("record", recordID).Str("mission", id.Key()).Str("fingerprint", fp.Short()).Logger()

	doc, err := codec.Encode(res)
	if err != nil {
		return c.fail(&PersistenceError{RecordID: recordID, Mission: id, Op: "encode", Err: err}, fp)
	}

	rec, err := c.store.Get(ctx, recordID)
	if errors.Is(err, brand.ErrNotFound) {
		rec, err = brand.Fresh(recordID), nil
	}
	if err != nil {
		logger.Warn().Err(err).Msg("sync failed reading record")
		return c.fail(&PersistenceError{RecordID: recordID, Mission: id, Op: "get", Err: err}, fp)
	}

	patch := c.scorer.Patch(rec, id, doc)
	if err := c.store.Patch(ctx, recordID, patch); err != nil {
		logger.Warn().Err(err).Msg("sync failed writing record")
		return c.fail(&PersistenceError{RecordID: recordID, Mission: id, Op: "patch", Err: err}, fp)
	}

	c.MarkPersisted(recordID, id, fp)
	c.writes.Add(1)
	written := brand.ApplyPatch(rec, patch)
	logger.Info().Int("xp", written.XP).Int("unlocked", written.UnlockedMission).Msg("mission result synced")
	return Outcome{Status: StatusSuccess, Fingerprint: fp, Record: written}
}

func (c *Coordinator) fail(err *PersistenceError, fp ...ir.Fingerprint) Outcome {
	c.failed.Add(1)
	out := Outcome{Status: StatusFailed, Err: err}
	if len(fp) > 0 {
		out.Fingerprint = fp[0]
	}
	return out
}

func (c *Coordinator) persisted(key string, fp ir.Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[key] == fp
}

// MarkPersisted records fp as durably stored for the pair. Restoration uses
// it when the record already holds a result.
func (c *Coordinator) MarkPersisted(recordID string, id mission.ID, fp ir.Fingerprint) {
	if fp == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[pairKey(recordID, id)] = fp
}

// LastPersisted returns the last fingerprint stored for the pair.
func (c *Coordinator) LastPersisted(recordID string, id mission.ID) (ir.Fingerprint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fp, ok := c.last[pairKey(recordID, id)]
	return fp, ok
}

// Stats returns activity counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Writes:  c.writes.Load(),
		Skipped: c.skipped.Load(),
		Shared:  c.shared.Load(),
		Failed:  c.failed.Load(),
		Waiting: c.waiting.Load(),
	}
}
