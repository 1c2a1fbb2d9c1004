package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "FRAME_INTERVAL_MS", "STEP_SIZE", "REDIS_ENABLED", "BATCH_MAX_SAMPLES"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, time.Second/60, cfg.FrameInterval)
	assert.Equal(t, 1.5, cfg.StepSize)
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, time.Hour, cfg.SessionTTL())

	bc := cfg.BatchConfig()
	assert.Equal(t, 15, bc.MaxSamples)
	assert.Equal(t, 250*time.Millisecond, bc.FlushInterval)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("FRAME_INTERVAL_MS", "20")
	t.Setenv("STEP_SIZE", "2")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("BATCH_MAX_SAMPLES", "not-a-number")

	cfg := Load()
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 20*time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, 2.0, cfg.StepSize)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, 15, cfg.BatchMaxSamples, "bad values keep the default")
}

func TestLoadMonitor(t *testing.T) {
	cfg, err := LoadMonitor([]string{"-category", "anomalous", "-fps", "30"})
	require.NoError(t, err)
	assert.Equal(t, models.Anomalous, cfg.Category)
	assert.Equal(t, 30, cfg.FrameRate)
	assert.True(t, cfg.Quiz)

	cfg, err = LoadMonitor([]string{"-intro"})
	require.NoError(t, err)
	assert.True(t, cfg.Intro)
	assert.False(t, cfg.Quiz, "intro grid replaces the quiz")

	_, err = LoadMonitor([]string{"-category", "sprinting"})
	assert.ErrorIs(t, err, models.ErrInvalidCategory)

	_, err = LoadMonitor([]string{"-pattern-mode", "dice"})
	assert.Error(t, err)
}

func TestLoadProducer(t *testing.T) {
	cfg, err := LoadProducer([]string{"-output", "out.jsonl", "-duration", "5s"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Duration)
	assert.Equal(t, "ecg.wave", cfg.WavePrefix)

	_, err = LoadProducer(nil)
	assert.Error(t, err)

	_, err = LoadProducer([]string{"-watch"})
	assert.Error(t, err)
}

func TestFrameInterval(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, FrameInterval(50))
}
