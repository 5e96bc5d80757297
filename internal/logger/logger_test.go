package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]*zapcore.Level{
		"debug":   ptr(zapcore.DebugLevel),
		"info":    ptr(zapcore.InfoLevel),
		"warn":    ptr(zapcore.WarnLevel),
		"WARNING": ptr(zapcore.WarnLevel),
		"error":   ptr(zapcore.ErrorLevel),
		"loud":    nil,
		"":        nil,
	}
	for in, want := range tests {
		require.Equal(t, want, parseLevel(in), in)
	}
}

func TestWith(t *testing.T) {
	base := New("error", false)
	child := Component(base, "reaper")
	require.NotNil(t, child)
	require.NotSame(t, base, child)
	child.Info("dropped below error level")
}

func ptr(l zapcore.Level) *zapcore.Level { return &l }
