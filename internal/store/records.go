package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/brandquest/internal/brand"
)

// Get returns the record with id, or brand.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*brand.Record, error) {
	rec, _, err := getRecord(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Patch merges p into record id inside one transaction. A missing record is
// created from brand.Fresh first.
func (s *Store) Patch(ctx context.Context, id string, p brand.Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("patch record %s: begin: %w", id, err)
	}
	defer tx.Rollback()

	current, version, err := getRecord(ctx, tx, id)
	if errors.Is(err, brand.ErrNotFound) {
		current, err = brand.Fresh(id), nil
	}
	if err != nil {
		return fmt.Errorf("patch record %s: %w", id, err)
	}

	merged := brand.ApplyPatch(current, p)
	merged.ID = id
	if err := putRecord(ctx, tx, merged, version+1, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("patch record %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("patch record %s: commit: %w", id, err)
	}
	return nil
}

// Put replaces record rec.ID wholesale. Used to seed and import records;
// mission outcomes go through Patch.
func (s *Store) Put(ctx context.Context, rec *brand.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put record %s: begin: %w", rec.ID, err)
	}
	defer tx.Rollback()

	_, version, err := getRecord(ctx, tx, rec.ID)
	if err != nil && !errors.Is(err, brand.ErrNotFound) {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	if err := putRecord(ctx, tx, rec, version+1, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	return tx.Commit()
}

// Version returns the write version of record id; zero when absent.
func (s *Store) Version(ctx context.Context, id string) (int64, error) {
	_, version, err := getRecord(ctx, s.db, id)
	if errors.Is(err, brand.ErrNotFound) {
		return 0, nil
	}
	return version, err
}

// RecordIDs lists stored record ids in ascending order.
func (s *Store) RecordIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM records ORDER BY id ASC COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getRecord(ctx context.Context, q querier, id string) (*brand.Record, int64, error) {
	var (
		doc     string
		version int64
	)
	err := q.QueryRowContext(ctx, `SELECT document, version FROM records WHERE id = ?`, id).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, brand.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read record %s: %w", id, err)
	}

	var rec brand.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, 0, fmt.Errorf("read record %s: %w", id, err)
	}
	rec.ID = id
	return &rec, version, nil
}

func putRecord(ctx context.Context, q querier, rec *brand.Record, version, at int64) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO records (id, document, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			version = excluded.version,
			updated_at = excluded.updated_at
	`, rec.ID, string(doc), version, at)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
