package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a database whose user_version is below version.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order after the schema, on new databases too, so each
// statement must be safe on empty tables.
var migrations = []migration{
	{
		version: 1,
		name:    "unique sync attempt seq",
		// Logs written before v1 could hold one seq twice when two sessions
		// shared a database. Duplicates are moved past the current maximum.
		stmt: `
			UPDATE sync_attempts SET seq = (SELECT MAX(seq) FROM sync_attempts) + rowid
			WHERE seq IN (SELECT seq FROM sync_attempts GROUP BY seq HAVING COUNT(*) > 1);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_attempts_seq_unique ON sync_attempts(seq)
		`,
	},
}

// schemaVersion is the user_version of a fully migrated database.
var schemaVersion = migrations[len(migrations)-1].version

// connPragmas are set on the single connection after the journal mode.
var connPragmas = []struct {
	name, value string
}{
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// Store keeps brand records, local result snapshots and the sync attempt
// log in one SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and brings its schema up to
// date. Opening the same path again is safe. Use ":memory:" for a
// throwaway database; it runs without WAL.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection serializes record read-modify-write transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configure(db, path); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetNow replaces the wall clock used for updated_at and saved_at stamps.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

func configure(db *sql.DB, path string) error {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}
	if mode != "wal" {
		log.Debug().Str("path", path).Str("journal_mode", mode).Msg("store: WAL unavailable")
	}
	for _, p := range connPragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("failed to set %s: %w", p.name, err)
		}
	}
	return nil
}

// migrate creates missing tables, then applies every migration above the
// stored user_version, each in its own transaction.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
		log.Debug().Int("version", m.version).Str("migration", m.name).Msg("store: migrated")
	}
	return nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
	}
	return tx.Commit()
}

// pragma reads one pragma value.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
