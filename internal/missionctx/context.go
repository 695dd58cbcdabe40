// Package missionctx assembles the context handed to a mission's generation
// stages from the results of earlier missions.
//
// Building never fails. A prior result that is absent, malformed or of the
// wrong shape leaves its field nil, and generation proceeds without it.
package missionctx

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/codec"
	"github.com/roach88/brandquest/internal/mission"
)

// DiscoverySummary is what later missions need from discovery.
type DiscoverySummary struct {
	Business    string
	Audience    string
	Positioning string
	Archetype   string
}

// NamingSummary carries the chosen brand name.
type NamingSummary struct {
	Name string
}

// VoiceSummary carries the voice guide and chosen tagline.
type VoiceSummary struct {
	Guide   string
	Tagline string
}

// PaletteSummary carries the composed palette and logo.
type PaletteSummary struct {
	Colors  []string
	LogoRef string
}

// Context is the cross-mission input for generation. Every field is optional.
type Context struct {
	Discovery *DiscoverySummary
	Naming    *NamingSummary
	Voice     *VoiceSummary
	Palette   *PaletteSummary
}

// Build decodes the raw prior results that precede target and summarises
// them. Entries for target itself or later missions are ignored.
func Build(target mission.ID, prior map[mission.ID]any) Context {
	var ctx Context
	for id, raw := range prior {
		if id >= target {
			continue
		}
		res, ok := codec.Decode(id, raw)
		if !ok {
			if raw != nil {
				log.Debug().Str("mission", id.Key()).Str("target", target.Key()).Msg("prior result unreadable, omitted from context")
			}
			continue
		}
		ctx.add(res)
	}
	return ctx
}

// FromRecord builds the context for target from the strategy documents of rec.
func FromRecord(target mission.ID, rec *brand.Record) Context {
	prior := make(map[mission.ID]any)
	if rec != nil {
		for _, id := range mission.All {
			if doc := rec.StrategyFor(id); doc != nil {
				prior[id] = doc
			}
		}
	}
	return Build(target, prior)
}

func (c *Context) add(res mission.Result) {
	switch r := res.(type) {
	case mission.DiscoveryResult:
		c.Discovery = &DiscoverySummary{
			Business:    r.Answers.Business,
			Audience:    r.Answers.Audience,
			Positioning: r.Positioning,
			Archetype:   r.Archetype.Name,
		}
	case mission.NamingResult:
		if name := r.Name(); name != "" {
			c.Naming = &NamingSummary{Name: name}
		}
	case mission.VoiceResult:
		c.Voice = &VoiceSummary{Guide: r.Guide, Tagline: r.Tagline()}
	case mission.PaletteResult:
		c.Palette = &PaletteSummary{Colors: r.Composed.Colors, LogoRef: r.LogoRef}
	case mission.LaunchResult:
		// Launch is the last mission; nothing consumes it.
	}
}

// Empty reports whether no prior summary is present.
func (c Context) Empty() bool {
	return c.Discovery == nil && c.Naming == nil && c.Voice == nil && c.Palette == nil
}

// Fields flattens the context into named values for prompt templates.
// Absent summaries contribute no keys.
func (c Context) Fields() map[string]string {
	out := map[string]string{}
	if d := c.Discovery; d != nil {
		out["business"] = d.Business
		out["audience"] = d.Audience
		out["positioning"] = d.Positioning
		out["archetype"] = d.Archetype
	}
	if n := c.Naming; n != nil {
		out["brandName"] = n.Name
	}
	if v := c.Voice; v != nil {
		out["voiceGuide"] = v.Guide
		out["tagline"] = v.Tagline
	}
	if p := c.Palette; p != nil {
		out["colors"] = strings.Join(p.Colors, ", ")
		out["logoRef"] = p.LogoRef
	}
	return out
}
