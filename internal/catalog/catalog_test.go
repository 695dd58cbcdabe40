package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brandquest/internal/mission"
)

func TestDefaultCatalogCompiles(t *testing.T) {
	cat := Default()

	require.Len(t, cat.Missions, len(mission.All))
	for i, id := range mission.All {
		assert.Equal(t, id, cat.Missions[i].ID)
	}

	assert.Equal(t, 80, cat.XPAward(mission.Discovery))
	assert.Equal(t, 200, cat.XPAward(mission.Launch))
	assert.Equal(t, 100, cat.Floor(mission.Launch))

	label, next := cat.Level(80)
	assert.Equal(t, "Newcomer", label)
	assert.Equal(t, 70, next)
}

func TestDefaultCatalogStages(t *testing.T) {
	spec := Default().MustSpec(mission.Palette)

	require.Len(t, spec.Stages, 2)
	assert.Equal(t, mission.StagePalettes, spec.Stages[0].ID)
	assert.True(t, spec.Stages[0].Selectable())
	assert.Equal(t, mission.StageImage, spec.Stages[1].Kind)

	naming := Default().MustSpec(mission.Naming)
	require.Len(t, naming.Fields, 2)
	assert.Equal(t, mission.FieldChoice, naming.Fields[1].Kind)
	assert.Equal(t, []string{"modern", "classic", "playful"}, naming.Fields[1].Choices)
}

const minimal = `
levels: [{label: "Rookie", min_xp: 0}]
mission: naming: {
	ordinal: 1
	title: "Naming first"
	xp_award: 10
	clarity_floor: 5
	fields: []
	stages: [{id: "candidates", kind: "options", title: "Names"}]
}
`

func TestCompileRejectsOrdinalMismatch(t *testing.T) {
	_, err := Compile([]byte(minimal), "bad.cue")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "naming")
}

func TestCompileRejectsMissingStage(t *testing.T) {
	src := `
levels: [{label: "Rookie", min_xp: 0}]
mission: discovery: {
	ordinal: 1
	title: "Discovery"
	xp_award: 10
	clarity_floor: 5
	fields: []
	stages: [{id: "positioning", kind: "text", title: "Positioning"}]
}
`
	_, err := Compile([]byte(src), "bad.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archetype")
}

func TestCompileRejectsUnorderedLevels(t *testing.T) {
	src := strings.Replace(string(defaultSource),
		`{label: "Explorer", min_xp: 150}`,
		`{label: "Explorer", min_xp: 0}`, 1)

	_, err := Compile([]byte(src), "bad.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ascending")
}

func TestCompileRejectsSyntaxError(t *testing.T) {
	_, err := Compile([]byte(`mission: {`), "broken.cue")
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missions.cue")
	require.NoError(t, os.WriteFile(path, defaultSource, 0o644))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cat.Missions, 5)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
