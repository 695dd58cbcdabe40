// Package scoring derives the gamification metrics of a Brand Record.
//
// Merge is pure and ratchet-only: applied any number of times, in any order,
// it never lowers a metric. Redoing a completed mission does not award its
// experience again and does not revoke anything already earned.
package scoring

import (
	"encoding/json"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/mission"
)

// Scorer merges mission completions into records using a catalog's awards,
// floors and level ladder.
type Scorer struct {
	catalog *mission.Catalog
}

// New creates a Scorer for cat.
func New(cat *mission.Catalog) *Scorer {
	return &Scorer{catalog: cat}
}

// Merge returns a copy of rec with id counted as completed.
func (s *Scorer) Merge(rec *brand.Record, id mission.ID) *brand.Record {
	out := rec.Clone()
	if out == nil {
		out = &brand.Record{}
	}

	firstTime := !out.Has(id)
	out.Complete(id)
	out.UnlockedMission = max(out.UnlockedMission, int(id)+1, int(mission.Discovery))
	if firstTime {
		out.XP += s.catalog.XPAward(id)
	}
	floor := s.catalog.Floor(id)
	out.ClarityScore = max(out.ClarityScore, clamp(floor))
	out.ComparativePercentile = max(out.ComparativePercentile, clamp(floor))

	label, next := s.catalog.Level(out.XP)
	out.LevelLabel = label
	out.XPToNextLevel = next
	return out
}

// Patch merges id into rec and returns the patch that writes doc with the
// merged progress. The patch also carries the award and ladder, so a store
// can redo the merge against a row that changed since rec was read.
func (s *Scorer) Patch(rec *brand.Record, id mission.ID, doc json.RawMessage) brand.Patch {
	p := brand.NewPatch(s.Merge(rec, id), id, doc)
	p.XPAward = s.catalog.XPAward(id)
	p.Levels = s.catalog.Levels
	return p
}

// Level returns the level label and remaining experience for xp.
func (s *Scorer) Level(xp int) (string, int) {
	return s.catalog.Level(xp)
}

func clamp(score int) int {
	return min(max(score, 0), 100)
}
