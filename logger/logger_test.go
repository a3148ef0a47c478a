package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize_DefaultsToInfo(t *testing.T) {
	require.NoError(t, Initialize(false))

	core := Logger.Desugar().Core()
	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}

func TestSetLevel_EnablesDebug(t *testing.T) {
	require.NoError(t, Initialize(false))
	require.NoError(t, SetLevel(zapcore.DebugLevel))

	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestSetLevel_KeepsJSONEncoding(t *testing.T) {
	require.NoError(t, Initialize(true))
	require.NoError(t, SetLevel(zapcore.DebugLevel))

	assert.True(t, JSONOutput)
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}
