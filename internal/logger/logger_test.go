package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNormal, &buf)

	log.Debug("hidden")
	log.Info("hello %d", 1)
	log.Warn("careful")
	log.Error("broken")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INF] ")
	assert.Contains(t, out, "hello 1")
	assert.Contains(t, out, "[WRN] ")
	assert.Contains(t, out, "[ERR] ")

	buf.Reset()
	log.SetLevel(LevelVerbose)
	log.Debug("shown")
	assert.Contains(t, buf.String(), "[DBG] ")

	buf.Reset()
	log.SetLevel(LevelOff)
	log.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New(LevelOff, &buf)
	child := root.With("voice").With("turn")

	child.Info("dropped")
	assert.Empty(t, buf.String())

	root.SetLevel(LevelNormal)
	assert.Equal(t, LevelNormal, child.GetLevel())

	child.Info("settled")
	assert.True(t, strings.Contains(buf.String(), "voice.turn: settled"), buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"off":     LevelOff,
		"Quiet":   LevelOff,
		" debug ": LevelVerbose,
		"verbose": LevelVerbose,
		"info":    LevelNormal,
		"":        LevelNormal,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
