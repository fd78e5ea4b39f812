package monitoring

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestSetupLogging(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	SetupLogging("info", LogFormatAuto, &buf)
	log.Debug().Msg("hidden")
	log.Info().Str("k", "v").Msg("shown")

	line := buf.String()
	assert.NotContains(t, line, "hidden")
	assert.Equal(t, "shown", gjson.Get(line, "message").String())
	assert.Equal(t, "v", gjson.Get(line, "k").String())

	buf.Reset()
	SetupLogging("debug", LogFormatConsole, &buf)
	log.Debug().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
	assert.False(t, gjson.Valid(buf.String()))
}
