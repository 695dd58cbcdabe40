package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/brandquest/internal/ir"
	"github.com/roach88/brandquest/internal/mission"
)

// SyncAttempt is one entry in the sync attempt log.
type SyncAttempt struct {
	ID          string
	Seq         int64
	RecordID    string
	Mission     mission.ID
	Fingerprint ir.Fingerprint
	Status      string
	Error       string
	At          time.Time
}

// WriteSyncAttempt appends a to the log.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteSyncAttempt(ctx context.Context, a SyncAttempt) error {
	at := a.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_attempts (id, seq, record_id, mission, fingerprint, status, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.Seq, a.RecordID, int(a.Mission), string(a.Fingerprint), a.Status, a.Error, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("write sync attempt: %w", err)
	}
	return nil
}

// ReadSyncAttempts returns the attempts for recordID, oldest first.
// A limit of zero or less returns all of them.
func (s *Store) ReadSyncAttempts(ctx context.Context, recordID string, limit int) ([]SyncAttempt, error) {
	query := `
		SELECT id, seq, record_id, mission, fingerprint, status, error, at
		FROM sync_attempts WHERE record_id = ?
		ORDER BY seq ASC, id ASC COLLATE BINARY`
	args := []any{recordID}
	if limit > 0 {
		// Newest `limit` rows, still returned oldest first.
		query = `SELECT * FROM (
			SELECT id, seq, record_id, mission, fingerprint, status, error, at
			FROM sync_attempts WHERE record_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC, id ASC COLLATE BINARY`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read sync attempts: %w", err)
	}
	defer rows.Close()

	var out []SyncAttempt
	for rows.Next() {
		var (
			a       SyncAttempt
			id      int
			fp      string
			atMilli int64
		)
		if err := rows.Scan(&a.ID, &a.Seq, &a.RecordID, &id, &fp, &a.Status, &a.Error, &atMilli); err != nil {
			return nil, fmt.Errorf("read sync attempts: %w", err)
		}
		a.Mission = mission.ID(id)
		a.Fingerprint = ir.Fingerprint(fp)
		a.At = time.UnixMilli(atMilli).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// LastSeq returns the highest attempt seq, or 0 for an empty log.
// Used to resume the logical clock when a session opens.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM sync_attempts`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
