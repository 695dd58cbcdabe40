package mission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return &Catalog{
		Missions: []Spec{
			{ID: Discovery, XPAward: 80, ClarityFloor: 20},
			{ID: Naming, XPAward: 100, ClarityFloor: 40},
		},
		Levels: []Level{
			{Label: "Newcomer", MinXP: 0},
			{Label: "Explorer", MinXP: 150},
			{Label: "Strategist", MinXP: 400},
		},
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		input string
		want  ID
	}{
		{"1", Discovery},
		{"naming", Naming},
		{" Voice ", Voice},
		{"5", Launch},
	}
	for _, tt := range tests {
		got, err := ParseID(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseID("9")
	assert.Error(t, err)
	_, err = ParseID("checkout")
	assert.Error(t, err)
}

func TestCatalogLevel(t *testing.T) {
	c := testCatalog()

	label, next := c.Level(0)
	assert.Equal(t, "Newcomer", label)
	assert.Equal(t, 150, next)

	label, next = c.Level(180)
	assert.Equal(t, "Explorer", label)
	assert.Equal(t, 220, next)

	label, next = c.Level(900)
	assert.Equal(t, "Strategist", label)
	assert.Equal(t, 0, next, "top rung has nothing left to earn")
}

func TestCatalogAwardAndFloor(t *testing.T) {
	c := testCatalog()
	assert.Equal(t, 80, c.XPAward(Discovery))
	assert.Equal(t, 40, c.Floor(Naming))
	assert.Equal(t, 0, c.XPAward(Launch), "missions outside the catalog award nothing")
}

func TestBuildNaming(t *testing.T) {
	d := NewDraft()
	d.Answers["keywords"] = "fast, green"
	d.Answers["style"] = "modern"
	d.Outputs[StageCandidates] = StageOutput{Options: []Option{{Label: "Zipply"}, {Label: "Verdant"}}}
	d.Selections[StageCandidates] = 1

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r, err := Build(Naming, d, at)
	require.NoError(t, err)

	nr, ok := r.(NamingResult)
	require.True(t, ok)
	assert.Equal(t, "Verdant", nr.Name())
	assert.Equal(t, at, nr.Generated())
}

func TestBuildRequiresSelection(t *testing.T) {
	d := NewDraft()
	d.Outputs[StageCandidates] = StageOutput{Options: []Option{{Label: "Zipply"}}}

	_, err := Build(Naming, d, time.Now())
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, StageCandidates, be.Stage)

	d.Selections[StageCandidates] = 3
	_, err = Build(Naming, d, time.Now())
	assert.ErrorAs(t, err, &be)
}

func TestBuildPaletteComposes(t *testing.T) {
	d := NewDraft()
	d.Outputs[StagePalettes] = StageOutput{Options: []Option{
		{Label: "Dusk", Values: []string{"ff5733", "#ff5733", " #1a1a2e ", ""}},
	}}
	d.Outputs[StageLogo] = StageOutput{ImageRef: "img://logo-1"}
	d.Selections[StagePalettes] = 0

	r, err := Build(Palette, d, time.Now())
	require.NoError(t, err)
	pr := r.(PaletteResult)
	assert.Equal(t, []string{"#FF5733", "#1A1A2E"}, pr.Composed.Colors)
	assert.Equal(t, "img://logo-1", pr.LogoRef)
}

func TestBuildLaunchBudget(t *testing.T) {
	d := NewDraft()
	d.Answers["budget"] = "abc"
	_, err := Build(Launch, d, time.Now())
	assert.Error(t, err)

	d.Answers["budget"] = "2500"
	r, err := Build(Launch, d, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2500, r.(LaunchResult).Answers.Budget)
}

func TestFingerprintIgnoresGeneratedAt(t *testing.T) {
	a := DiscoveryResult{Positioning: "p", Archetype: Archetype{Name: "Sage"}, GeneratedAt: time.Unix(1, 0)}
	b := a
	b.GeneratedAt = time.Unix(999, 0)

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	b.Positioning = "q"
	fc, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestFingerprintSeparatesMissionTypes(t *testing.T) {
	// Two variants with identical canonical bodies must still differ.
	a, err := Fingerprint(LaunchResult{})
	require.NoError(t, err)
	b, err := Fingerprint(NamingResult{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
