package mission

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stage identifiers. The catalog must declare these for the matching mission.
const (
	StagePositioning = "positioning"
	StageArchetype   = "archetype"
	StageCandidates  = "candidates"
	StageGuide       = "guide"
	StageTaglines    = "taglines"
	StagePalettes    = "palettes"
	StageLogo        = "logo"
	StagePlan        = "plan"
	StageMilestones  = "milestones"
)

// Draft is the partial result accumulated by a mission run.
type Draft struct {
	Answers    map[string]string
	Outputs    map[string]StageOutput
	Selections map[string]int
}

// NewDraft returns an empty draft.
func NewDraft() Draft {
	return Draft{
		Answers:    map[string]string{},
		Outputs:    map[string]StageOutput{},
		Selections: map[string]int{},
	}
}

// Clone returns a deep copy.
func (d Draft) Clone() Draft {
	c := NewDraft()
	for k, v := range d.Answers {
		c.Answers[k] = v
	}
	for k, v := range d.Outputs {
		c.Outputs[k] = v
	}
	for k, v := range d.Selections {
		c.Selections[k] = v
	}
	return c
}

// BuildError reports that a draft cannot form a complete result.
type BuildError struct {
	Mission ID
	Stage   string
	Message string
}

func (e *BuildError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("build %s: stage %s: %s", e.Mission, e.Stage, e.Message)
	}
	return fmt.Sprintf("build %s: %s", e.Mission, e.Message)
}

// Build assembles the typed Result for spec.ID from a finished draft.
func Build(id ID, d Draft, at time.Time) (Result, error) {
	switch id {
	case Discovery:
		arch := d.Outputs[StageArchetype].Fields
		if strings.TrimSpace(arch["name"]) == "" {
			return nil, &BuildError{Mission: id, Stage: StageArchetype, Message: "archetype name missing"}
		}
		return DiscoveryResult{
			Answers: DiscoveryAnswers{
				Business: d.Answers["business"],
				Audience: d.Answers["audience"],
				Values:   d.Answers["values"],
			},
			Positioning: d.Outputs[StagePositioning].Text,
			Archetype:   Archetype{Name: arch["name"], Rationale: arch["rationale"]},
			GeneratedAt: at,
		}, nil

	case Naming:
		out := d.Outputs[StageCandidates]
		idx, err := selected(id, StageCandidates, d, len(out.Options))
		if err != nil {
			return nil, err
		}
		return NamingResult{
			Answers:     NamingAnswers{Keywords: d.Answers["keywords"], Style: d.Answers["style"]},
			Candidates:  out.Labels(),
			ChosenIndex: idx,
			GeneratedAt: at,
		}, nil

	case Voice:
		out := d.Outputs[StageTaglines]
		idx, err := selected(id, StageTaglines, d, len(out.Options))
		if err != nil {
			return nil, err
		}
		return VoiceResult{
			Answers:       VoiceAnswers{Tone: d.Answers["tone"], Avoid: d.Answers["avoid"]},
			Guide:         d.Outputs[StageGuide].Text,
			Taglines:      out.Labels(),
			ChosenTagline: idx,
			GeneratedAt:   at,
		}, nil

	case Palette:
		out := d.Outputs[StagePalettes]
		idx, err := selected(id, StagePalettes, d, len(out.Options))
		if err != nil {
			return nil, err
		}
		palettes := make([]ColorSet, len(out.Options))
		for i, opt := range out.Options {
			palettes[i] = ColorSet{Name: opt.Label, Colors: append([]string(nil), opt.Values...)}
		}
		return PaletteResult{
			Answers:     PaletteAnswers{Mood: d.Answers["mood"], Preference: d.Answers["preference"]},
			Palettes:    palettes,
			ChosenIndex: idx,
			Composed:    Compose(palettes[idx]),
			LogoRef:     d.Outputs[StageLogo].ImageRef,
			GeneratedAt: at,
		}, nil

	case Launch:
		budget := 0
		if raw := strings.TrimSpace(d.Answers["budget"]); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, &BuildError{Mission: id, Message: fmt.Sprintf("budget %q is not a number", raw)}
			}
			budget = n
		}
		return LaunchResult{
			Answers:     LaunchAnswers{Channels: d.Answers["channels"], Budget: budget},
			Plan:        d.Outputs[StagePlan].Text,
			Milestones:  d.Outputs[StageMilestones].Labels(),
			GeneratedAt: at,
		}, nil
	}
	return nil, &BuildError{Mission: id, Message: "unknown mission type"}
}

func selected(id ID, stage string, d Draft, n int) (int, error) {
	idx, ok := d.Selections[stage]
	if !ok {
		return 0, &BuildError{Mission: id, Stage: stage, Message: "no selection"}
	}
	if idx < 0 || idx >= n {
		return 0, &BuildError{Mission: id, Stage: stage, Message: fmt.Sprintf("selection %d out of range", idx)}
	}
	return idx, nil
}

// Compose normalises a chosen palette: upper-case hex with a leading '#',
// duplicates and blanks dropped, order kept.
func Compose(c ColorSet) ColorSet {
	seen := make(map[string]bool, len(c.Colors))
	out := ColorSet{Name: c.Name}
	for _, col := range c.Colors {
		col = strings.ToUpper(strings.TrimSpace(col))
		if col == "" {
			continue
		}
		if !strings.HasPrefix(col, "#") {
			col = "#" + col
		}
		if seen[col] {
			continue
		}
		seen[col] = true
		out.Colors = append(out.Colors, col)
	}
	return out
}
