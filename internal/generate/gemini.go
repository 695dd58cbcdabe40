package generate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini runs generation stages against the Gemini API.
type Gemini struct {
	models contentGenerator
	model  string
}

// NewGemini creates a Gemini invoker.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGemini(client.Models, model), nil
}

func newGemini(models contentGenerator, model string) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{models: models, model: model}
}

// Invoke implements phase.Invoker.
func (g *Gemini) Invoke(ctx context.Context, req phase.StageRequest) (mission.StageOutput, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(systemPrompt(req.Stage), genai.RoleUser),
	}
	contents := []*genai.Content{genai.NewContentFromText(userPrompt(req), genai.RoleUser)}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return mission.StageOutput{}, fmt.Errorf("gemini %s/%s: %w", req.Mission.Key(), req.Stage.ID, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return mission.StageOutput{}, fmt.Errorf("gemini %s/%s: empty response", req.Mission.Key(), req.Stage.ID)
	}
	out, err := parseResponse(req.Stage, text)
	if err != nil {
		log.Debug().Err(err).Str("mission", req.Mission.Key()).Str("stage", req.Stage.ID).Msg("gemini response rejected")
		return mission.StageOutput{}, err
	}
	return out, nil
}

func systemPrompt(stage mission.StageSpec) string {
	var b strings.Builder
	b.WriteString("You help a small business build its brand. Answer with one JSON object only.\n")
	switch stage.Kind {
	case mission.StageText:
		b.WriteString(`Shape: {"text": string}.`)
	case mission.StageOptions:
		b.WriteString(`Shape: {"options": [{"label": string, "values": [string]}]} with three to five options.`)
		if stage.ID == mission.StagePalettes {
			b.WriteString(" Values are hex colours without names.")
		}
	case mission.StageList:
		b.WriteString(`Shape: {"items": [string]} with three to six items in order.`)
	case mission.StageFields:
		fmt.Fprintf(&b, `Shape: {"fields": {%s}} with every value a non-empty string.`, quotedKeys(stage.Produces))
	case mission.StageImage:
		b.WriteString(`Shape: {"description": string} describing the image to produce.`)
	}
	return b.String()
}

func userPrompt(req phase.StageRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s.\n", req.Stage.Title)
	writeSection(&b, "Answers", req.Answers)
	writeSection(&b, "Known about the brand", req.Context.Fields())

	prev := make(map[string]string)
	for id, out := range req.Previous {
		switch {
		case out.Text != "":
			prev[id] = out.Text
		case len(out.Options) > 0:
			prev[id] = strings.Join(out.Labels(), "; ")
		}
	}
	writeSection(&b, "Earlier steps", prev)
	return b.String()
}

func writeSection(b *strings.Builder, title string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, fields[k])
	}
}

func quotedKeys(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%q: string", k)
	}
	return strings.Join(parts, ", ")
}

// Open returns the invoker for provider: "gemini" or "scripted".
func Open(ctx context.Context, provider, model, apiKey string) (phase.Invoker, error) {
	switch strings.ToLower(provider) {
	case "", "scripted":
		return NewScripted(), nil
	case "gemini":
		return NewGemini(ctx, apiKey, model)
	}
	return nil, fmt.Errorf("unknown generation provider %q", provider)
}
