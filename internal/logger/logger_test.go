package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New(Options{Level: "debug"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Options{Level: "loud"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Options{}).GetLevel())
}

func TestForwardOnlyWarnings(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Forward: &buf, File: filepath.Join(t.TempDir(), "gate.log")})

	log.Info().Msg("plate seen")
	assert.Zero(t, buf.Len())

	log.Warn().Str("plate", "AB123").Msg("actuator failed")
	require.NotZero(t, buf.Len())
	assert.Contains(t, buf.String(), "actuator failed")
	assert.Contains(t, buf.String(), `"service":"plate-gate"`)
}
