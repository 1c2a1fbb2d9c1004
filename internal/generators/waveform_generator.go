package generators

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

type waveformGenerator struct {
	source   RandomSource
	selector PatternSelector
	stats    GeneratorStats
	mu       sync.Mutex
}

// NewWaveformGenerator creates a generator. A nil source is replaced by a
// time-seeded one and a nil selector by tick bucketing every
// DefaultTicksPerPattern frames.
func NewWaveformGenerator(selector PatternSelector, source RandomSource) WaveformGenerator {
	if source == nil {
		source = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if selector == nil {
		selector = &TickPatternSelector{TicksPerPattern: DefaultTicksPerPattern}
	}
	g := &waveformGenerator{
		source:   source,
		selector: selector,
	}
	g.resetStats()
	return g
}

func (g *waveformGenerator) Generate(phase float64, category models.Category, tick uint64) Sample {
	category.MustValid()

	g.mu.Lock()
	defer g.mu.Unlock()

	var s Sample
	if category == models.Anomalous {
		s = g.anomalous(phase, tick)
	} else {
		s = Sample{Value: Rhythm(phase), Pattern: PatternNone}
	}

	g.updateStats(s)
	return s
}

// anomalous has no fixed rate; phase only drives the flutter oscillation.
func (g *waveformGenerator) anomalous(phase float64, tick uint64) Sample {
	pattern := g.selector.Select(tick)
	var v float64
	switch pattern {
	case PatternWideNoise:
		v = (g.source.Float64() - 0.5) * WideNoiseSpan
	case PatternFlutter:
		v = math.Sin(phase*FlutterFrequency) * FlutterAmplitude
	default:
		pattern = PatternFlatJitter
		v = (g.source.Float64() - 0.5) * FlatJitterSpan
	}
	return Sample{Value: v, Pattern: pattern}
}

// Seed switches to a deterministic source.
func (g *waveformGenerator) Seed(seed int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source = rand.New(rand.NewSource(seed))
}

func (g *waveformGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetStats()
}

func (g *waveformGenerator) GetStats() GeneratorStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *waveformGenerator) resetStats() {
	g.stats = GeneratorStats{
		MinValue: math.Inf(1),
		MaxValue: math.Inf(-1),
	}
}

func (g *waveformGenerator) updateStats(s Sample) {
	g.stats.TotalSamples++
	if s.Pattern != PatternNone {
		g.stats.AnomalousSamples++
	}
	g.stats.LastValue = s.Value
	g.stats.LastPattern = s.Pattern
	if s.Value < g.stats.MinValue {
		g.stats.MinValue = s.Value
	}
	if s.Value > g.stats.MaxValue {
		g.stats.MaxValue = s.Value
	}
}
