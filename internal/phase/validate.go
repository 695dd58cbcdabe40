package phase

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/brandquest/internal/mission"
)

// validateAnswers checks answers against the mission's fields and returns the
// normalised values for declared fields only.
func validateAnswers(spec mission.Spec, answers map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(spec.Fields))
	for _, f := range spec.Fields {
		v := strings.TrimSpace(answers[f.Name])
		if v == "" {
			if f.Required {
				return nil, &ValidationError{Mission: spec.ID, Field: f.Name, Message: "required"}
			}
			continue
		}
		switch f.Kind {
		case mission.FieldChoice:
			if len(f.Choices) > 0 && !slices.Contains(f.Choices, v) {
				return nil, &ValidationError{
					Mission: spec.ID,
					Field:   f.Name,
					Message: fmt.Sprintf("%q is not one of %s", v, strings.Join(f.Choices, ", ")),
				}
			}
		case mission.FieldNumber:
			if _, err := strconv.Atoi(v); err != nil {
				return nil, &ValidationError{Mission: spec.ID, Field: f.Name, Message: fmt.Sprintf("%q is not a whole number", v)}
			}
		}
		out[f.Name] = v
	}
	return out, nil
}

// validateSelection checks a review selection against the offered options.
func validateSelection(spec mission.Spec, stage mission.StageSpec, out mission.StageOutput, in Input) (int, error) {
	if in.Selection == nil {
		return 0, &ValidationError{Mission: spec.ID, Stage: stage.ID, Message: "a selection is required"}
	}
	idx := *in.Selection
	if idx < 0 || idx >= len(out.Options) {
		return 0, &ValidationError{
			Mission: spec.ID,
			Stage:   stage.ID,
			Message: fmt.Sprintf("selection %d is not among the %d offered options", idx, len(out.Options)),
		}
	}
	return idx, nil
}

// validateOutput checks that out carries what stage promises.
func validateOutput(stage mission.StageSpec, out mission.StageOutput) error {
	switch stage.Kind {
	case mission.StageText:
		if strings.TrimSpace(out.Text) == "" {
			return fmt.Errorf("%w: empty text", ErrInvalidOutput)
		}
	case mission.StageOptions, mission.StageList:
		if len(out.Options) == 0 {
			return fmt.Errorf("%w: no options", ErrInvalidOutput)
		}
		for i, opt := range out.Options {
			if strings.TrimSpace(opt.Label) == "" {
				return fmt.Errorf("%w: option %d has no label", ErrInvalidOutput, i)
			}
		}
	case mission.StageFields:
		for _, name := range stage.Produces {
			if strings.TrimSpace(out.Fields[name]) == "" {
				return fmt.Errorf("%w: field %s missing", ErrInvalidOutput, name)
			}
		}
	case mission.StageImage:
		if strings.TrimSpace(out.ImageRef) == "" {
			return fmt.Errorf("%w: no image reference", ErrInvalidOutput)
		}
	default:
		return fmt.Errorf("%w: unknown stage kind %q", ErrInvalidOutput, stage.Kind)
	}
	return nil
}
