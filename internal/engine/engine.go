package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
	"github.com/roach88/brandquest/internal/restore"
	"github.com/roach88/brandquest/internal/scoring"
	"github.com/roach88/brandquest/internal/store"
	"github.com/roach88/brandquest/internal/syncer"
)

// AttemptLog records every EnsureSynced outcome.
type AttemptLog interface {
	WriteSyncAttempt(ctx context.Context, a store.SyncAttempt) error
}

// seqSource is an AttemptLog that reports its highest seq. Open moves the
// clock past it so sessions sharing a log never reuse a stamp.
type seqSource interface {
	LastSeq(ctx context.Context) (int64, error)
}

// Config wires an Engine. Catalog, Records and Invoker are required.
type Config struct {
	Catalog   *mission.Catalog
	Records   syncer.RecordStore
	Snapshots restore.SnapshotStore
	Invoker   phase.Invoker

	// Attempts, when set, receives one entry per sync attempt.
	Attempts AttemptLog

	// Events receives engine events. A new stream is created when nil.
	Events *EventStream

	// IDs generates attempt log ids. Defaults to UUIDv7Generator.
	IDs IDGenerator

	// Now stamps completed results and snapshots. Defaults to time.Now.
	Now func() time.Time

	// StartSeq continues the logical clock, usually from store.LastSeq.
	StartSeq int64
}

// Engine holds what every session shares.
type Engine struct {
	catalog   *mission.Catalog
	records   syncer.RecordStore
	snapshots restore.SnapshotStore
	invoker   phase.Invoker
	attempts  AttemptLog
	events    *EventStream
	ids       IDGenerator
	now       func() time.Time

	clock  *Clock
	scorer *scoring.Scorer
	coord  *syncer.Coordinator

	pubMu sync.Mutex // keeps stream order equal to seq order
}

// New creates an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("engine: catalog is required")
	}
	if cfg.Records == nil {
		return nil, errors.New("engine: record store is required")
	}
	if cfg.Invoker == nil {
		return nil, errors.New("engine: invoker is required")
	}

	e := &Engine{
		catalog:   cfg.Catalog,
		records:   cfg.Records,
		snapshots: cfg.Snapshots,
		invoker:   cfg.Invoker,
		attempts:  cfg.Attempts,
		events:    cfg.Events,
		ids:       cfg.IDs,
		now:       cfg.Now,
		clock:     NewClock(cfg.StartSeq),
	}
	if e.events == nil {
		e.events = NewEventStream()
	}
	if e.ids == nil {
		e.ids = UUIDv7Generator{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.scorer = scoring.New(cfg.Catalog)
	e.coord = syncer.New(cfg.Records, e.scorer)
	return e, nil
}

// Events returns the stream the engine publishes to.
func (e *Engine) Events() *EventStream {
	return e.events
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Coordinator returns the persistence coordinator shared by all sessions.
func (e *Engine) Coordinator() *syncer.Coordinator {
	return e.coord
}

// Catalog returns the mission catalog.
func (e *Engine) Catalog() *mission.Catalog {
	return e.catalog
}

// Open starts a session for recordID. A record that cannot be read does not
// fail Open: the session starts offline from a fresh record and local
// snapshots, and the next successful read replaces it.
func (e *Engine) Open(ctx context.Context, recordID string) (*Session, error) {
	if recordID == "" {
		return nil, errors.New("engine: record id is required")
	}
	s := &Session{
		eng:  e,
		id:   recordID,
		runs: make(map[mission.ID]*Run),
	}

	rec, err := e.records.Get(ctx, recordID)
	switch {
	case errors.Is(err, brand.ErrNotFound):
		rec = brand.Fresh(recordID)
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("record", recordID).Msg("record unavailable, session starts offline")
		rec = brand.Fresh(recordID)
		s.offline = true
	}
	s.record = rec

	if src, ok := e.attempts.(seqSource); ok {
		seq, err := src.LastSeq(ctx)
		if err != nil {
			log.Warn().Err(err).Str("record", recordID).Msg("sync log position unavailable")
		} else {
			e.clock.Observe(seq)
		}
	}
	return s, nil
}

func (e *Engine) publish(ev Event) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	ev.Seq = e.clock.Next()
	e.events.Publish(ev)
}
