package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupJSONAndLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	lvl := Setup(&buf, "production", "warn")
	assert.Equal(t, zerolog.WarnLevel, lvl)

	log.Info().Msg("hidden")
	log.Warn().Str("venue", "HCH").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"venue":"HCH"`)
	assert.Contains(t, out, `"message":"shown"`)
}

func TestSetupUnknownLevelFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	assert.Equal(t, zerolog.InfoLevel, Setup(&buf, "development", "loud"))
}
