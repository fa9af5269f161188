package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warning", log.WarnLevel},
		{"Warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levelFromString(tt.in), "level for %q", tt.in)
	}
}

func TestSetLevelEmptyKeepsCurrent(t *testing.T) {
	old := Logger.GetLevel()
	defer Logger.SetLevel(old)

	Logger.SetLevel(log.ErrorLevel)
	SetLevel("")
	assert.Equal(t, log.ErrorLevel, Logger.GetLevel())

	SetLevel("debug")
	assert.Equal(t, log.DebugLevel, Logger.GetLevel())
}

func TestDebugOutputCarriesKeyvals(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	old := Logger.GetLevel()
	defer func() {
		Logger.SetLevel(old)
		SetOutput(os.Stderr)
	}()

	SetLevel("debug")
	Debug("checkout", "kind", "connector", "id", 7)
	assert.Contains(t, buf.String(), "checkout")
	assert.Contains(t, buf.String(), "id=7")
}
