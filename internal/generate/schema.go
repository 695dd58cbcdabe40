package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/roach88/brandquest/internal/mission"
)

// Response schemas per stage kind. The model is asked to answer with a
// single JSON object of this shape.
var stageSchemas = map[mission.StageKind]string{
	mission.StageText: `{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string", "minLength": 1}}
	}`,
	mission.StageOptions: `{
		"type": "object",
		"required": ["options"],
		"properties": {
			"options": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["label"],
					"properties": {
						"label": {"type": "string", "minLength": 1},
						"values": {"type": "array", "items": {"type": "string"}}
					}
				}
			}
		}
	}`,
	mission.StageList: `{
		"type": "object",
		"required": ["items"],
		"properties": {
			"items": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
		}
	}`,
	mission.StageFields: `{
		"type": "object",
		"required": ["fields"],
		"properties": {
			"fields": {"type": "object", "additionalProperties": {"type": "string"}}
		}
	}`,
	mission.StageImage: `{
		"type": "object",
		"required": ["description"],
		"properties": {"description": {"type": "string", "minLength": 1}}
	}`,
}

// SchemaError lists the schema violations of a model response.
type SchemaError struct {
	Stage  string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("stage %s response does not match schema: %s", e.Stage, strings.Join(e.Issues, "; "))
}

type stageResponse struct {
	Text        string            `json:"text"`
	Options     []mission.Option  `json:"options"`
	Items       []string          `json:"items"`
	Fields      map[string]string `json:"fields"`
	Description string            `json:"description"`
}

// parseResponse validates raw against the schema for stage and converts it.
func parseResponse(stage mission.StageSpec, raw string) (mission.StageOutput, error) {
	schema, ok := stageSchemas[stage.Kind]
	if !ok {
		return mission.StageOutput{}, fmt.Errorf("stage %s: no schema for kind %q", stage.ID, stage.Kind)
	}
	raw = stripFence(raw)

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewStringLoader(raw))
	if err != nil {
		return mission.StageOutput{}, fmt.Errorf("stage %s: validate response: %w", stage.ID, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return mission.StageOutput{}, &SchemaError{Stage: stage.ID, Issues: issues}
	}

	var resp stageResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return mission.StageOutput{}, fmt.Errorf("stage %s: decode response: %w", stage.ID, err)
	}

	switch stage.Kind {
	case mission.StageText:
		return mission.StageOutput{Text: strings.TrimSpace(resp.Text)}, nil
	case mission.StageOptions:
		return mission.StageOutput{Options: resp.Options}, nil
	case mission.StageList:
		opts := make([]mission.Option, len(resp.Items))
		for i, item := range resp.Items {
			opts[i] = mission.Option{Label: item}
		}
		return mission.StageOutput{Options: opts}, nil
	case mission.StageFields:
		return mission.StageOutput{Fields: resp.Fields}, nil
	case mission.StageImage:
		return mission.StageOutput{ImageRef: "concept:" + strings.TrimSpace(resp.Description)}, nil
	}
	return mission.StageOutput{}, fmt.Errorf("stage %s: unsupported kind %q", stage.ID, stage.Kind)
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
