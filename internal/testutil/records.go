package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/mission"
)

// MemoryRecordStore is an in-memory record store with fault injection.
//
// Patch applies brand.ApplyPatch under the store lock, the same re-merge
// against the current record the SQLite store runs in its transaction. Failures queued with FailNextPatch or FailNextGet are returned once
// each, in order. When Gate is non-nil every Patch blocks until it receives
// from Gate, which lets tests hold a write in flight.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryRecordStore struct {
	mu        sync.Mutex
	records   map[string]*brand.Record
	getErrs   []error
	patchErrs []error
	gets      int
	patches   []brand.Patch

	Gate chan struct{}
	// Entered receives a value when a Patch call starts, if non-nil.
	Entered chan struct{}
}

// NewMemoryRecordStore creates an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: map[string]*brand.Record{}}
}

// Put stores rec as is.
func (s *MemoryRecordStore) Put(rec *brand.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
}

// Get returns a copy of the record or brand.ErrNotFound.
func (s *MemoryRecordStore) Get(_ context.Context, id string) (*brand.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		return nil, err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, brand.ErrNotFound
	}
	return rec.Clone(), nil
}

// Patch merges p into the stored record, creating it when absent.
func (s *MemoryRecordStore) Patch(ctx context.Context, id string, p brand.Patch) error {
	if s.Entered != nil {
		s.Entered <- struct{}{}
	}
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.patchErrs) > 0 {
		err := s.patchErrs[0]
		s.patchErrs = s.patchErrs[1:]
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		rec = brand.Fresh(id)
	}
	s.records[id] = brand.ApplyPatch(rec, p)
	s.patches = append(s.patches, p)
	return nil
}

// FailNextGet queues err for the next Get.
func (s *MemoryRecordStore) FailNextGet(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErrs = append(s.getErrs, err)
}

// FailNextPatch queues err for the next Patch.
func (s *MemoryRecordStore) FailNextPatch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchErrs = append(s.patchErrs, err)
}

// Record returns a copy of the stored record, or nil.
func (s *MemoryRecordStore) Record(id string) *brand.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone()
}

// Patches returns the successful patches in order.
func (s *MemoryRecordStore) Patches() []brand.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.patches)
}

// Gets returns the number of Get calls.
func (s *MemoryRecordStore) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// MemorySnapshotStore is an in-memory local snapshot store.
type MemorySnapshotStore struct {
	mu    sync.Mutex
	snaps map[string]brand.Snapshot
}

// NewMemorySnapshotStore creates an empty store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: map[string]brand.Snapshot{}}
}

func snapKey(recordID string, id mission.ID) string {
	return recordID + "/" + id.Key()
}

// GetSnapshot returns the snapshot or (nil, nil).
func (s *MemorySnapshotStore) GetSnapshot(_ context.Context, recordID string, id mission.ID) (*brand.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[snapKey(recordID, id)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// PutSnapshot stores snap, replacing any previous one for the pair.
func (s *MemorySnapshotStore) PutSnapshot(_ context.Context, snap brand.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snapKey(snap.RecordID, snap.Mission)] = snap
	return nil
}

// DeleteSnapshot removes the snapshot for the pair, if any.
func (s *MemorySnapshotStore) DeleteSnapshot(_ context.Context, recordID string, id mission.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, snapKey(recordID, id))
	return nil
}

// ListSnapshots returns the snapshots of recordID in mission order.
func (s *MemorySnapshotStore) ListSnapshots(_ context.Context, recordID string) ([]brand.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []brand.Snapshot
	for _, snap := range s.snaps {
		if snap.RecordID == recordID {
			out = append(out, snap)
		}
	}
	slices.SortFunc(out, func(a, b brand.Snapshot) int { return int(a.Mission) - int(b.Mission) })
	return out, nil
}
