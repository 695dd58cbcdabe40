// Package catalog compiles the CUE mission catalog into mission.Catalog.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/brandquest/internal/mission"
)

//go:embed missions.cue
var defaultSource []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *mission.Catalog
	defaultErr     error
)

// requiredStages lists the stages each result builder reads, with their kinds.
var requiredStages = map[mission.ID]map[string]mission.StageKind{
	mission.Discovery: {mission.StagePositioning: mission.StageText, mission.StageArchetype: mission.StageFields},
	mission.Naming:    {mission.StageCandidates: mission.StageOptions},
	mission.Voice:     {mission.StageGuide: mission.StageText, mission.StageTaglines: mission.StageOptions},
	mission.Palette:   {mission.StagePalettes: mission.StageOptions, mission.StageLogo: mission.StageImage},
	mission.Launch:    {mission.StagePlan: mission.StageText, mission.StageMilestones: mission.StageList},
}

// Default returns the embedded catalog. It panics if the embedded source
// does not compile, which the package tests guard against.
func Default() *mission.Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Compile(defaultSource, "missions.cue")
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded mission catalog: %v", defaultErr))
	}
	return defaultCatalog
}

// Load compiles a catalog from a CUE file on disk.
func Load(path string) (*mission.Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Compile(src, path)
}

// Compile parses CUE source into a validated catalog.
func Compile(src []byte, filename string) (*mission.Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	levels, err := parseLevels(v.LookupPath(cue.ParsePath("levels")))
	if err != nil {
		return nil, err
	}

	missionsVal := v.LookupPath(cue.ParsePath("mission"))
	if !missionsVal.Exists() {
		return nil, &CompileError{Field: "mission", Message: "at least one mission is required", Pos: v.Pos()}
	}

	iter, err := missionsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cat := &mission.Catalog{Levels: levels}
	for iter.Next() {
		spec, err := compileMission(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		cat.Missions = append(cat.Missions, spec)
	}

	sort.Slice(cat.Missions, func(i, j int) bool { return cat.Missions[i].ID < cat.Missions[j].ID })
	for i, spec := range cat.Missions {
		if int(spec.ID) != i+1 {
			return nil, &CompileError{
				Field:   "mission." + spec.ID.Key() + ".ordinal",
				Message: fmt.Sprintf("ordinals must be contiguous from 1, found %d at position %d", spec.ID, i+1),
			}
		}
	}
	return cat, nil
}

func compileMission(key string, v cue.Value) (mission.Spec, error) {
	var spec mission.Spec

	ordinal, err := v.LookupPath(cue.ParsePath("ordinal")).Int64()
	if err != nil {
		return spec, formatCUEError(err)
	}
	spec.ID = mission.ID(ordinal)
	if !spec.ID.Valid() || spec.ID.Key() != key {
		return spec, &CompileError{
			Field:   "mission." + key + ".ordinal",
			Message: fmt.Sprintf("ordinal %d does not match a %q result type", ordinal, key),
			Pos:     v.Pos(),
		}
	}

	if spec.Title, err = v.LookupPath(cue.ParsePath("title")).String(); err != nil {
		return spec, formatCUEError(err)
	}
	award, err := v.LookupPath(cue.ParsePath("xp_award")).Int64()
	if err != nil {
		return spec, formatCUEError(err)
	}
	spec.XPAward = int(award)
	floor, err := v.LookupPath(cue.ParsePath("clarity_floor")).Int64()
	if err != nil {
		return spec, formatCUEError(err)
	}
	spec.ClarityFloor = int(floor)

	if spec.Fields, err = parseFields(v.LookupPath(cue.ParsePath("fields"))); err != nil {
		return spec, err
	}
	if spec.Stages, err = parseStages(v.LookupPath(cue.ParsePath("stages"))); err != nil {
		return spec, err
	}

	for id, kind := range requiredStages[spec.ID] {
		st, _, ok := spec.Stage(id)
		if !ok {
			return spec, &CompileError{Field: "mission." + key + ".stages", Message: fmt.Sprintf("stage %q is required", id), Pos: v.Pos()}
		}
		if st.Kind != kind {
			return spec, &CompileError{Field: "mission." + key + ".stages", Message: fmt.Sprintf("stage %q must be %s, got %s", id, kind, st.Kind), Pos: v.Pos()}
		}
	}
	return spec, nil
}

func parseFields(v cue.Value) ([]mission.Field, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var fields []mission.Field
	for iter.Next() {
		fv := iter.Value()
		var f mission.Field
		if f.Name, err = fv.LookupPath(cue.ParsePath("name")).String(); err != nil {
			return nil, formatCUEError(err)
		}
		kind, err := fv.LookupPath(cue.ParsePath("kind")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		f.Kind = mission.FieldKind(kind)
		if f.Prompt, err = fv.LookupPath(cue.ParsePath("prompt")).String(); err != nil {
			return nil, formatCUEError(err)
		}
		if f.Required, err = fv.LookupPath(cue.ParsePath("required")).Bool(); err != nil {
			return nil, formatCUEError(err)
		}
		if f.Choices, err = stringList(fv.LookupPath(cue.ParsePath("choices"))); err != nil {
			return nil, err
		}
		if f.Kind == mission.FieldChoice && len(f.Choices) == 0 {
			return nil, &CompileError{Field: "fields." + f.Name, Message: "choice fields need choices", Pos: fv.Pos()}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseStages(v cue.Value) ([]mission.StageSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var stages []mission.StageSpec
	seen := map[string]bool{}
	for iter.Next() {
		sv := iter.Value()
		var st mission.StageSpec
		if st.ID, err = sv.LookupPath(cue.ParsePath("id")).String(); err != nil {
			return nil, formatCUEError(err)
		}
		if seen[st.ID] {
			return nil, &CompileError{Field: "stages." + st.ID, Message: "duplicate stage id", Pos: sv.Pos()}
		}
		seen[st.ID] = true
		kind, err := sv.LookupPath(cue.ParsePath("kind")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		st.Kind = mission.StageKind(kind)
		if st.Title, err = sv.LookupPath(cue.ParsePath("title")).String(); err != nil {
			return nil, formatCUEError(err)
		}
		if st.Produces, err = stringList(sv.LookupPath(cue.ParsePath("produces"))); err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func parseLevels(v cue.Value) (mission.Ladder, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "levels", Message: "levels are required"}
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var levels mission.Ladder
	for iter.Next() {
		lv := iter.Value()
		label, err := lv.LookupPath(cue.ParsePath("label")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		minXP, err := lv.LookupPath(cue.ParsePath("min_xp")).Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n := len(levels); n > 0 && int(minXP) <= levels[n-1].MinXP {
			return nil, &CompileError{Field: "levels", Message: "min_xp must be strictly ascending", Pos: lv.Pos()}
		}
		levels = append(levels, mission.Level{Label: label, MinXP: int(minXP)})
	}
	if len(levels) == 0 || levels[0].MinXP != 0 {
		return nil, &CompileError{Field: "levels", Message: "first level must start at 0 xp", Pos: v.Pos()}
	}
	return levels, nil
}

func stringList(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a catalog error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
