package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "base", cfg.WhisperModel)
	assert.Equal(t, "es", cfg.WhisperLanguage)
	assert.Equal(t, time.Duration(0), cfg.TranscribeTimeout)
	assert.Equal(t, 0, cfg.WorkerCount)
	assert.True(t, cfg.EnableParallel)
	assert.True(t, cfg.KeepTranscripts)
	assert.False(t, cfg.AutoCleanup)
}

func TestParseWorkerCount(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"auto", 0},
		{"AUTO", 0},
		{"4", 4},
		{"1", 1},
		{"0", 0},
		{"-2", 0},
		{"banana", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseWorkerCount(tt.raw), "input %q", tt.raw)
	}
}

func TestGetDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "45s")
	assert.Equal(t, 45*time.Second, getDuration("TEST_DURATION", 0))

	// bare seconds form used by older deployments
	t.Setenv("TEST_DURATION", "10")
	assert.Equal(t, 10*time.Second, getDuration("TEST_DURATION", 0))

	t.Setenv("TEST_DURATION", "nope")
	assert.Equal(t, 5*time.Second, getDuration("TEST_DURATION", 5*time.Second))
}

func TestGetBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	assert.True(t, getBool("TEST_BOOL", false))

	t.Setenv("TEST_BOOL", "0")
	assert.False(t, getBool("TEST_BOOL", true))

	t.Setenv("TEST_BOOL", "maybe")
	assert.True(t, getBool("TEST_BOOL", true))
}

func TestWorkerCountFromEnv(t *testing.T) {
	t.Setenv("WORKER_COUNT", "8")
	cfg := Load()
	assert.Equal(t, 8, cfg.WorkerCount)
}
