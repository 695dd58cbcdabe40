package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestInitToLevels(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	InitTo(&buf, false)
	assert.False(t, DebugEnabled())
	log.Debug().Msg("hidden")
	log.Info().Str("mission", "discovery").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "mission=discovery")

	buf.Reset()
	InitTo(&buf, true)
	assert.True(t, DebugEnabled())
	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
