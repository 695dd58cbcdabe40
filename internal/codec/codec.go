// Package codec converts stored mission documents into typed results.
//
// Stored documents evolve over the product's lifetime and arrive in many
// shapes: null, a JSON string, raw bytes, or an already-parsed object. Decode
// accepts all of them and reports failure as ok=false, never as an error or a
// panic. Code outside this package only sees strict types.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/roach88/brandquest/internal/mission"
)

// Decode normalises raw into the result variant for id.
func Decode(id mission.ID, raw any) (res mission.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Str("mission", id.Key()).Interface("panic", r).Msg("codec: decode recovered")
			res, ok = nil, false
		}
	}()

	if r, isResult := raw.(mission.Result); isResult {
		if r.Mission() != id {
			return nil, false
		}
		return r, true
	}

	doc, ok := toDocument(raw)
	if !ok {
		return nil, false
	}
	if tag, present := doc.str("mission"); present && tag != id.Key() {
		return nil, false
	}

	switch id {
	case mission.Discovery:
		return decodeDiscovery(doc)
	case mission.Naming:
		return decodeNaming(doc)
	case mission.Voice:
		return decodeVoice(doc)
	case mission.Palette:
		return decodePalette(doc)
	case mission.Launch:
		return decodeLaunch(doc)
	}
	return nil, false
}

// Encode produces the stored JSON document for r, tagged with its mission key.
func Encode(r mission.Result) (json.RawMessage, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Mission(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Mission(), err)
	}
	tag, _ := json.Marshal(r.Mission().Key())
	fields["mission"] = tag
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Mission(), err)
	}
	return out, nil
}

func toDocument(raw any) (document, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return document(v), true
	case document:
		return v, true
	case string:
		return parseDocument([]byte(v))
	case []byte:
		return parseDocument(v)
	case json.RawMessage:
		return parseDocument(v)
	}
	return nil, false
}

func parseDocument(data []byte) (document, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		// A JSON string holding an encoded object, as older clients stored it.
		var inner string
		if len(data) > 0 && data[0] == '"' && json.Unmarshal(data, &inner) == nil {
			return parseDocument([]byte(inner))
		}
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, false
	}
	return document(m), true
}

func decodeDiscovery(doc document) (mission.Result, bool) {
	answers := doc.obj("answers")
	business, ok1 := answers.str("business")
	audience, ok2 := answers.str("audience")
	positioning, ok3 := doc.str("positioning")
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}
	arch := doc.obj("archetype")
	name, _ := arch.str("name")
	if name == "" {
		// Early records kept the archetype as a bare string.
		name, _ = doc.str("archetype")
	}
	if strings.TrimSpace(name) == "" {
		return nil, false
	}
	values, _ := answers.str("values")
	rationale, _ := arch.str("rationale")
	return mission.DiscoveryResult{
		Answers:     mission.DiscoveryAnswers{Business: business, Audience: audience, Values: values},
		Positioning: positioning,
		Archetype:   mission.Archetype{Name: name, Rationale: rationale},
		GeneratedAt: doc.timestamp("generatedAt"),
	}, true
}

func decodeNaming(doc document) (mission.Result, bool) {
	candidates, ok := doc.strs("candidates")
	if !ok || len(candidates) == 0 {
		return nil, false
	}
	idx, ok := doc.integer("chosenIndex")
	if !ok || idx < 0 || idx >= len(candidates) {
		return nil, false
	}
	answers := doc.obj("answers")
	keywords, _ := answers.str("keywords")
	style, _ := answers.str("style")
	return mission.NamingResult{
		Answers:     mission.NamingAnswers{Keywords: keywords, Style: style},
		Candidates:  candidates,
		ChosenIndex: idx,
		GeneratedAt: doc.timestamp("generatedAt"),
	}, true
}

func decodeVoice(doc document) (mission.Result, bool) {
	guide, ok := doc.str("guide")
	if !ok {
		return nil, false
	}
	taglines, ok := doc.strs("taglines")
	if !ok || len(taglines) == 0 {
		return nil, false
	}
	idx, ok := doc.integer("chosenTagline")
	if !ok || idx < 0 || idx >= len(taglines) {
		return nil, false
	}
	answers := doc.obj("answers")
	tone, _ := answers.str("tone")
	avoid, _ := answers.str("avoid")
	return mission.VoiceResult{
		Answers:       mission.VoiceAnswers{Tone: tone, Avoid: avoid},
		Guide:         guide,
		Taglines:      taglines,
		ChosenTagline: idx,
		GeneratedAt:   doc.timestamp("generatedAt"),
	}, true
}

func decodePalette(doc document) (mission.Result, bool) {
	list, ok := doc.list("palettes")
	if !ok || len(list) == 0 {
		return nil, false
	}
	palettes := make([]mission.ColorSet, 0, len(list))
	for _, item := range list {
		set, ok := colorSet(item)
		if !ok {
			return nil, false
		}
		palettes = append(palettes, set)
	}
	idx, ok := doc.integer("chosenIndex")
	if !ok || idx < 0 || idx >= len(palettes) {
		return nil, false
	}
	composed, ok := colorSet(doc["composed"])
	if !ok || len(composed.Colors) == 0 {
		// Older documents predate the composed palette; derive it.
		composed = mission.Compose(palettes[idx])
	}
	answers := doc.obj("answers")
	mood, _ := answers.str("mood")
	pref, _ := answers.str("preference")
	logo, _ := doc.str("logoRef")
	return mission.PaletteResult{
		Answers:     mission.PaletteAnswers{Mood: mood, Preference: pref},
		Palettes:    palettes,
		ChosenIndex: idx,
		Composed:    composed,
		LogoRef:     logo,
		GeneratedAt: doc.timestamp("generatedAt"),
	}, true
}

func decodeLaunch(doc document) (mission.Result, bool) {
	plan, ok := doc.str("plan")
	if !ok {
		return nil, false
	}
	milestones, ok := doc.strs("milestones")
	if !ok {
		milestones = nil
	}
	answers := doc.obj("answers")
	channels, ok := answers.str("channels")
	if !ok {
		return nil, false
	}
	budget, _ := answers.integer("budget")
	return mission.LaunchResult{
		Answers:     mission.LaunchAnswers{Channels: channels, Budget: budget},
		Plan:        plan,
		Milestones:  milestones,
		GeneratedAt: doc.timestamp("generatedAt"),
	}, true
}

func colorSet(v any) (mission.ColorSet, bool) {
	doc, ok := v.(map[string]any)
	if !ok {
		return mission.ColorSet{}, false
	}
	d := document(doc)
	colors, ok := d.strs("colors")
	if !ok {
		return mission.ColorSet{}, false
	}
	name, _ := d.str("name")
	return mission.ColorSet{Name: name, Colors: colors}, true
}
