package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roach88/brandquest/internal/catalog"
	"github.com/roach88/brandquest/internal/config"
	"github.com/roach88/brandquest/internal/engine"
	"github.com/roach88/brandquest/internal/generate"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/remote"
	"github.com/roach88/brandquest/internal/store"
	"github.com/roach88/brandquest/internal/syncer"
)

const remoteTimeout = 30 * time.Second

// runtime is an open engine session over the configured stores.
type runtime struct {
	store   *store.Store
	engine  *engine.Engine
	session *engine.Session
}

// loadCatalog returns the configured catalog, or the embedded one.
func loadCatalog(cfg config.Config) (*mission.Catalog, error) {
	if cfg.Catalog == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	return cat, nil
}

// openRuntime opens the local database, picks the record store and the
// generation provider, and opens a session for the configured record.
func openRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var records syncer.RecordStore = st
	if cfg.UsesRemote() {
		records = remote.New(cfg.Remote.URL, cfg.Remote.Token, &http.Client{Timeout: remoteTimeout})
	}

	invoker, err := generate.Open(ctx, cfg.Generation.Provider, cfg.Generation.Model, cfg.Generation.APIKey)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to configure generation", err)
	}

	seq, err := st.LastSeq(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read sync log", err)
	}

	eng, err := engine.New(engine.Config{
		Catalog:   cat,
		Records:   records,
		Snapshots: st,
		Invoker:   invoker,
		Attempts:  st,
		StartSeq:  seq,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	sess, err := eng.Open(ctx, cfg.RecordID)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open record %q", cfg.RecordID), err)
	}
	log.Debug().
		Str("record", cfg.RecordID).
		Str("db", cfg.Database).
		Bool("remote", cfg.UsesRemote()).
		Bool("offline", sess.Offline()).
		Int64("seq", seq).
		Msg("session opened")

	return &runtime{store: st, engine: eng, session: sess}, nil
}

// Close waits for background reconciliation and closes the database.
func (r *runtime) Close() error {
	r.session.Wait()
	return r.store.Close()
}
