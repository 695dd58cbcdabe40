package brand

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/roach88/brandquest/internal/ir"
	"github.com/roach88/brandquest/internal/mission"
)

// Patch is a proposed partial update to a Record. It carries one mission's
// strategy document, the progress fields computed for it from the record as
// read, and what a store needs to redo that merge against its current row.
type Patch struct {
	Mission  mission.ID
	Document json.RawMessage
	// XPAward is added when the stored record has not completed Mission yet.
	XPAward int
	// Levels re-derives the level fields from the stored xp. Not sent on the wire.
	Levels mission.Ladder

	UnlockedMission       int
	CompletedMissions     []mission.ID
	XP                    int
	XPToNextLevel         int
	ClarityScore          int
	ComparativePercentile int
	LevelLabel            string
}

// NewPatch builds the patch that writes doc for id together with the
// progress fields of merged.
func NewPatch(merged *Record, id mission.ID, doc json.RawMessage) Patch {
	return Patch{
		Mission:               id,
		Document:              doc,
		UnlockedMission:       merged.UnlockedMission,
		CompletedMissions:     slices.Clone(merged.CompletedMissions),
		XP:                    merged.XP,
		XPToNextLevel:         merged.XPToNextLevel,
		ClarityScore:          merged.ClarityScore,
		ComparativePercentile: merged.ComparativePercentile,
		LevelLabel:            merged.LevelLabel,
	}
}

// keyXPAward only appears in patch bodies.
const keyXPAward = "xpAward"

// Fields returns the patch as a partial stored document. Stores merge the
// strategy object key by key rather than replacing it.
func (p Patch) Fields() map[string]any {
	completed := p.CompletedMissions
	if completed == nil {
		completed = []mission.ID{}
	}
	return map[string]any{
		keyStrategy:              map[string]json.RawMessage{p.Mission.Key(): p.Document},
		keyUnlockedMission:       p.UnlockedMission,
		keyCompletedMissions:     completed,
		keyXP:                    p.XP,
		keyXPAward:               p.XPAward,
		keyXPToNextLevel:         p.XPToNextLevel,
		keyClarityScore:          p.ClarityScore,
		keyComparativePercentile: p.ComparativePercentile,
		keyLevelLabel:            p.LevelLabel,
	}
}

// MarshalJSON encodes Fields.
func (p Patch) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Fields())
}

// ApplyPatch folds p into a copy of rec. Progress fields only move forward,
// so a stale patch landing after a newer one cannot undo it. The award is
// granted only when rec has not completed p.Mission, which keeps concurrent
// patches for different missions from losing each other's xp. Level fields
// come from p.Levels when set, otherwise from whichever side has the higher xp.
func ApplyPatch(rec *Record, p Patch) *Record {
	out := rec.Clone()
	if out == nil {
		out = &Record{}
	}
	if out.Strategy == nil {
		out.Strategy = map[string]json.RawMessage{}
	}
	if p.Document != nil {
		out.Strategy[p.Mission.Key()] = slices.Clone(p.Document)
	}

	firstTime := !out.Has(p.Mission)
	for _, id := range p.CompletedMissions {
		out.Complete(id)
	}
	if firstTime && out.Has(p.Mission) {
		out.XP += p.XPAward
	}
	out.UnlockedMission = max(out.UnlockedMission, p.UnlockedMission)

	switch {
	case len(p.Levels) > 0:
		out.XP = max(out.XP, p.XP)
		out.LevelLabel, out.XPToNextLevel = p.Levels.Level(out.XP)
	case p.XP >= out.XP:
		out.XP = p.XP
		out.XPToNextLevel = p.XPToNextLevel
		out.LevelLabel = p.LevelLabel
	}
	out.ClarityScore = max(out.ClarityScore, p.ClarityScore)
	out.ComparativePercentile = max(out.ComparativePercentile, p.ComparativePercentile)
	return out
}

// Snapshot is a locally persisted completed result awaiting or past sync.
type Snapshot struct {
	RecordID    string
	Mission     mission.ID
	Document    json.RawMessage
	Fingerprint ir.Fingerprint
	SavedAt     time.Time
}
