package generators

import (
	"errors"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// Generator errors
var (
	ErrInvalidPattern = errors.New("invalid anomalous pattern")
	ErrInvalidConfig  = errors.New("invalid generator configuration")
)

// RandomSource supplies uniform values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// Sample is one generated amplitude and the sub-pattern that produced it.
type Sample struct {
	Value   float64
	Pattern Pattern
}

// WaveformGenerator evaluates the monitor waveform.
type WaveformGenerator interface {
	// Generate returns the amplitude for the given phase and category. tick is
	// the session's frame counter; only the anomalous category uses it.
	Generate(phase float64, category models.Category, tick uint64) Sample

	// Seed replaces the random source with a deterministic one
	Seed(seed int64)

	// Reset clears the statistics
	Reset()

	// GetStats returns generation statistics
	GetStats() GeneratorStats
}

// PatternSelector picks the active anomalous sub-pattern.
type PatternSelector interface {
	Select(tick uint64) Pattern
}

// GeneratorStats holds per-generator counters.
type GeneratorStats struct {
	TotalSamples     int
	AnomalousSamples int
	MinValue         float64
	MaxValue         float64
	LastValue        float64
	LastPattern      Pattern
}
