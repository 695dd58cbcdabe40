package brand

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/brandquest/internal/mission"
)

// ErrNotFound is returned by record stores when no record exists for an id.
var ErrNotFound = errors.New("brand record not found")

// Record is the shared per-user document that mission outcomes merge into.
type Record struct {
	ID string

	// Strategy holds the encoded result document per mission key.
	Strategy map[string]json.RawMessage

	UnlockedMission       int
	CompletedMissions     []mission.ID // sorted, no duplicates
	XP                    int
	XPToNextLevel         int
	ClarityScore          int
	ComparativePercentile int
	LevelLabel            string

	// Extra holds stored fields this package does not interpret.
	Extra map[string]json.RawMessage
}

// Fresh returns the record a user starts with before any mission completes.
func Fresh(id string) *Record {
	return &Record{ID: id, UnlockedMission: int(mission.Discovery)}
}

// Has reports whether id is in CompletedMissions.
func (r *Record) Has(id mission.ID) bool {
	_, found := slices.BinarySearch(r.CompletedMissions, id)
	return found
}

// StrategyFor returns the stored result document for id, or nil.
func (r *Record) StrategyFor(id mission.ID) json.RawMessage {
	if r == nil {
		return nil
	}
	return r.Strategy[id.Key()]
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.CompletedMissions = slices.Clone(r.CompletedMissions)
	c.Strategy = cloneRaw(r.Strategy)
	c.Extra = cloneRaw(r.Extra)
	return &c
}

// Complete adds id to CompletedMissions, keeping the set sorted.
func (r *Record) Complete(id mission.ID) {
	i, found := slices.BinarySearch(r.CompletedMissions, id)
	if found {
		return
	}
	r.CompletedMissions = slices.Insert(r.CompletedMissions, i, id)
}

// Ratchet returns a copy of r advanced by other. Completed missions are
// united and every other progress field keeps the larger side; the level
// fields follow the higher xp. Strategy documents r lacks come from other.
func Ratchet(r, other *Record) *Record {
	out := r.Clone()
	if out == nil {
		return other.Clone()
	}
	if other == nil {
		return out
	}
	if out.Strategy == nil {
		out.Strategy = map[string]json.RawMessage{}
	}
	for k, doc := range other.Strategy {
		if _, ok := out.Strategy[k]; !ok {
			out.Strategy[k] = slices.Clone(doc)
		}
	}
	for _, id := range other.CompletedMissions {
		out.Complete(id)
	}
	out.UnlockedMission = max(out.UnlockedMission, other.UnlockedMission)
	if other.XP > out.XP {
		out.XP = other.XP
		out.XPToNextLevel = other.XPToNextLevel
		out.LevelLabel = other.LevelLabel
	}
	out.ClarityScore = max(out.ClarityScore, other.ClarityScore)
	out.ComparativePercentile = max(out.ComparativePercentile, other.ComparativePercentile)
	return out
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Stored document keys.
const (
	keyID                    = "id"
	keyStrategy              = "strategy"
	keyUnlockedMission       = "unlockedMission"
	keyCompletedMissions     = "completedMissions"
	keyXP                    = "xp"
	keyXPToNextLevel         = "xpToNextLevel"
	keyClarityScore          = "clarityScore"
	keyComparativePercentile = "comparativePercentile"
	keyLevelLabel            = "levelLabel"
)

// MarshalJSON writes the known fields merged over Extra.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+9)
	for k, v := range r.Extra {
		out[k] = v
	}
	completed := r.CompletedMissions
	if completed == nil {
		completed = []mission.ID{}
	}
	strategy := r.Strategy
	if strategy == nil {
		strategy = map[string]json.RawMessage{}
	}
	out[keyID] = r.ID
	out[keyStrategy] = strategy
	out[keyUnlockedMission] = r.UnlockedMission
	out[keyCompletedMissions] = completed
	out[keyXP] = r.XP
	out[keyXPToNextLevel] = r.XPToNextLevel
	out[keyClarityScore] = r.ClarityScore
	out[keyComparativePercentile] = r.ComparativePercentile
	out[keyLevelLabel] = r.LevelLabel
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields and keeps everything else in Extra.
// Null known fields are treated as absent.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("brand record: %w", err)
	}

	rec := Record{}
	take := func(key string, dst any) error {
		raw, ok := fields[key]
		delete(fields, key)
		if !ok || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("brand record field %s: %w", key, err)
		}
		return nil
	}

	var completed []int
	steps := []struct {
		key string
		dst any
	}{
		{keyID, &rec.ID},
		{keyStrategy, &rec.Strategy},
		{keyUnlockedMission, &rec.UnlockedMission},
		{keyCompletedMissions, &completed},
		{keyXP, &rec.XP},
		{keyXPToNextLevel, &rec.XPToNextLevel},
		{keyClarityScore, &rec.ClarityScore},
		{keyComparativePercentile, &rec.ComparativePercentile},
		{keyLevelLabel, &rec.LevelLabel},
	}
	for _, s := range steps {
		if err := take(s.key, s.dst); err != nil {
			return err
		}
	}
	for _, n := range completed {
		rec.Complete(mission.ID(n))
	}
	if len(fields) > 0 {
		rec.Extra = fields
	}
	*r = rec
	return nil
}
