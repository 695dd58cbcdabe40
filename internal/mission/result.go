package mission

import (
	"time"

	"github.com/roach88/brandquest/internal/ir"
)

// Result is the immutable outcome of one completed mission run.
// Implemented only by the variants in this package.
type Result interface {
	Mission() ID
	// Generated is the wall-clock completion time. It never enters a fingerprint.
	Generated() time.Time
	// Canonical returns the semantic content used for fingerprinting.
	Canonical() ir.Object
	result()
}

// Fingerprint digests the semantic content of r.
func Fingerprint(r Result) (ir.Fingerprint, error) {
	obj := r.Canonical()
	obj["mission"] = ir.String(r.Mission().Key())
	return ir.Digest(ir.DomainResult, obj)
}

// DiscoveryAnswers are the answers collected by the discovery mission.
type DiscoveryAnswers struct {
	Business string `json:"business"`
	Audience string `json:"audience"`
	Values   string `json:"values,omitempty"`
}

// Archetype is the brand archetype derived during discovery.
type Archetype struct {
	Name      string `json:"name"`
	Rationale string `json:"rationale,omitempty"`
}

// DiscoveryResult establishes positioning and archetype.
type DiscoveryResult struct {
	Answers     DiscoveryAnswers `json:"answers"`
	Positioning string           `json:"positioning"`
	Archetype   Archetype        `json:"archetype"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

func (DiscoveryResult) Mission() ID            { return Discovery }
func (r DiscoveryResult) Generated() time.Time { return r.GeneratedAt }
func (DiscoveryResult) result()                {}

func (r DiscoveryResult) Canonical() ir.Object {
	return ir.Object{
		"answers": ir.Object{
			"business": ir.String(r.Answers.Business),
			"audience": ir.String(r.Answers.Audience),
			"values":   ir.String(r.Answers.Values),
		},
		"positioning": ir.String(r.Positioning),
		"archetype": ir.Object{
			"name":      ir.String(r.Archetype.Name),
			"rationale": ir.String(r.Archetype.Rationale),
		},
	}
}

// NamingAnswers are the answers collected by the naming mission.
type NamingAnswers struct {
	Keywords string `json:"keywords"`
	Style    string `json:"style"`
}

// NamingResult holds generated name candidates and the chosen one.
type NamingResult struct {
	Answers     NamingAnswers `json:"answers"`
	Candidates  []string      `json:"candidates"`
	ChosenIndex int           `json:"chosenIndex"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

func (NamingResult) Mission() ID            { return Naming }
func (r NamingResult) Generated() time.Time { return r.GeneratedAt }
func (NamingResult) result()                {}

// Name returns the chosen brand name.
func (r NamingResult) Name() string {
	if r.ChosenIndex < 0 || r.ChosenIndex >= len(r.Candidates) {
		return ""
	}
	return r.Candidates[r.ChosenIndex]
}

func (r NamingResult) Canonical() ir.Object {
	return ir.Object{
		"answers": ir.Object{
			"keywords": ir.String(r.Answers.Keywords),
			"style":    ir.String(r.Answers.Style),
		},
		"candidates":  ir.Strings(r.Candidates),
		"chosenIndex": ir.Int(r.ChosenIndex),
	}
}

// VoiceAnswers are the answers collected by the voice mission.
type VoiceAnswers struct {
	Tone  string `json:"tone"`
	Avoid string `json:"avoid,omitempty"`
}

// VoiceResult holds the voice guide and the chosen tagline.
type VoiceResult struct {
	Answers       VoiceAnswers `json:"answers"`
	Guide         string       `json:"guide"`
	Taglines      []string     `json:"taglines"`
	ChosenTagline int          `json:"chosenTagline"`
	GeneratedAt   time.Time    `json:"generatedAt"`
}

func (VoiceResult) Mission() ID            { return Voice }
func (r VoiceResult) Generated() time.Time { return r.GeneratedAt }
func (VoiceResult) result()                {}

// Tagline returns the chosen tagline.
func (r VoiceResult) Tagline() string {
	if r.ChosenTagline < 0 || r.ChosenTagline >= len(r.Taglines) {
		return ""
	}
	return r.Taglines[r.ChosenTagline]
}

func (r VoiceResult) Canonical() ir.Object {
	return ir.Object{
		"answers": ir.Object{
			"tone":  ir.String(r.Answers.Tone),
			"avoid": ir.String(r.Answers.Avoid),
		},
		"guide":         ir.String(r.Guide),
		"taglines":      ir.Strings(r.Taglines),
		"chosenTagline": ir.Int(r.ChosenTagline),
	}
}

// PaletteAnswers are the answers collected by the palette mission.
type PaletteAnswers struct {
	Mood       string `json:"mood"`
	Preference string `json:"preference"`
}

// ColorSet is a named list of hex colours.
type ColorSet struct {
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
}

func (c ColorSet) canonical() ir.Object {
	return ir.Object{"name": ir.String(c.Name), "colors": ir.Strings(c.Colors)}
}

// PaletteResult holds generated palettes, the chosen one, the composed
// palette derived from it and a logo image reference.
type PaletteResult struct {
	Answers     PaletteAnswers `json:"answers"`
	Palettes    []ColorSet     `json:"palettes"`
	ChosenIndex int            `json:"chosenIndex"`
	Composed    ColorSet       `json:"composed"`
	LogoRef     string         `json:"logoRef,omitempty"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

func (PaletteResult) Mission() ID            { return Palette }
func (r PaletteResult) Generated() time.Time { return r.GeneratedAt }
func (PaletteResult) result()                {}

func (r PaletteResult) Canonical() ir.Object {
	palettes := make(ir.Array, len(r.Palettes))
	for i, p := range r.Palettes {
		palettes[i] = p.canonical()
	}
	return ir.Object{
		"answers": ir.Object{
			"mood":       ir.String(r.Answers.Mood),
			"preference": ir.String(r.Answers.Preference),
		},
		"palettes":    palettes,
		"chosenIndex": ir.Int(r.ChosenIndex),
		"composed":    r.Composed.canonical(),
		"logoRef":     ir.String(r.LogoRef),
	}
}

// LaunchAnswers are the answers collected by the launch mission.
type LaunchAnswers struct {
	Channels string `json:"channels"`
	Budget   int    `json:"budget,omitempty"`
}

// LaunchResult holds the launch plan and its milestones.
type LaunchResult struct {
	Answers     LaunchAnswers `json:"answers"`
	Plan        string        `json:"plan"`
	Milestones  []string      `json:"milestones"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

func (LaunchResult) Mission() ID            { return Launch }
func (r LaunchResult) Generated() time.Time { return r.GeneratedAt }
func (LaunchResult) result()                {}

func (r LaunchResult) Canonical() ir.Object {
	return ir.Object{
		"answers": ir.Object{
			"channels": ir.String(r.Answers.Channels),
			"budget":   ir.Int(r.Answers.Budget),
		},
		"plan":       ir.String(r.Plan),
		"milestones": ir.Strings(r.Milestones),
	}
}
