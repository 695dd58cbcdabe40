package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/ir"
	"github.com/roach88/brandquest/internal/mission"
)

// PutSnapshot stores snap, replacing the previous snapshot for its
// (record, mission) pair. The document is rewritten as canonical JSON.
func (s *Store) PutSnapshot(ctx context.Context, snap brand.Snapshot) error {
	doc, err := canonicalDocument(snap.Document)
	if err != nil {
		return fmt.Errorf("put snapshot %s/%s: %w", snap.RecordID, snap.Mission, err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (record_id, mission, document, fingerprint, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id, mission) DO UPDATE SET
			document = excluded.document,
			fingerprint = excluded.fingerprint,
			saved_at = excluded.saved_at
	`, snap.RecordID, int(snap.Mission), doc, string(snap.Fingerprint), savedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put snapshot %s/%s: %w", snap.RecordID, snap.Mission, err)
	}
	return nil
}

// GetSnapshot returns the snapshot for the pair, or (nil, nil) when absent.
func (s *Store) GetSnapshot(ctx context.Context, recordID string, id mission.ID) (*brand.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, mission, document, fingerprint, saved_at
		FROM snapshots WHERE record_id = ? AND mission = ?
	`, recordID, int(id))
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s/%s: %w", recordID, id, err)
	}
	return &snap, nil
}

// DeleteSnapshot removes the snapshot for the pair. Deleting a missing
// snapshot is not an error.
func (s *Store) DeleteSnapshot(ctx context.Context, recordID string, id mission.ID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE record_id = ? AND mission = ?`, recordID, int(id)); err != nil {
		return fmt.Errorf("delete snapshot %s/%s: %w", recordID, id, err)
	}
	return nil
}

// ListSnapshots returns the snapshots of recordID in mission order.
func (s *Store) ListSnapshots(ctx context.Context, recordID string) ([]brand.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, mission, document, fingerprint, saved_at
		FROM snapshots WHERE record_id = ?
		ORDER BY mission ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots %s: %w", recordID, err)
	}
	defer rows.Close()

	var out []brand.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("list snapshots %s: %w", recordID, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (brand.Snapshot, error) {
	var (
		snap    brand.Snapshot
		id      int
		doc     string
		fp      string
		savedAt int64
	)
	if err := row.Scan(&snap.RecordID, &id, &doc, &fp, &savedAt); err != nil {
		return brand.Snapshot{}, err
	}
	snap.Mission = mission.ID(id)
	snap.Document = json.RawMessage(doc)
	snap.Fingerprint = ir.Fingerprint(fp)
	snap.SavedAt = time.UnixMilli(savedAt).UTC()
	return snap, nil
}

// canonicalDocument rewrites a JSON object as RFC 8785 canonical JSON.
// Documents that do not fit the ir value model are stored unchanged.
func canonicalDocument(doc json.RawMessage) (string, error) {
	if !json.Valid(doc) {
		return "", errors.New("document is not valid JSON")
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return "", err
	}
	v, err := ir.FromAny(raw)
	if err != nil {
		return string(doc), nil
	}
	out, err := ir.MarshalCanonical(v)
	if err != nil {
		return string(doc), nil
	}
	return string(out), nil
}
