package analysis

import (
	"sync"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// Detector defaults. The threshold sits halfway up the main spike, well
// above the small bumps before and after it.
const (
	DefaultThreshold       = 18.0
	DefaultRefractoryTicks = 10
	DefaultFrameRate       = 60.0
)

// BeatDetector finds upward threshold crossings in a sample stream and turns
// the tick distance between two beats into a rate. Ticks, not wall time, are
// the clock so the measured rate reflects what the display shows.
type BeatDetector struct {
	mu          sync.Mutex
	threshold   float64
	refractory  uint64
	frameRate   float64
	lastValue   float64
	lastBeat    uint64
	haveBeat    bool
	initialized bool
	bpm         float64
	beats       uint64
}

// NewBeatDetector returns a detector. Non-positive arguments take defaults.
func NewBeatDetector(threshold float64, refractoryTicks uint64, frameRate float64) *BeatDetector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if refractoryTicks == 0 {
		refractoryTicks = DefaultRefractoryTicks
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &BeatDetector{threshold: threshold, refractory: refractoryTicks, frameRate: frameRate}
}

// Process feeds one sample. beat reports a detected beat; bpm is non-zero
// once two beats have been seen.
func (d *BeatDetector) Process(value float64, tick uint64) (bpm float64, beat bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		d.initialized = true
		d.lastValue = value
		return 0, false
	}

	crossed := d.lastValue < d.threshold && value >= d.threshold
	d.lastValue = value
	if !crossed {
		return 0, false
	}

	if d.haveBeat && tick-d.lastBeat <= d.refractory {
		return 0, false
	}

	if d.haveBeat && tick > d.lastBeat {
		seconds := float64(tick-d.lastBeat) / d.frameRate
		d.bpm = 60 / seconds
		bpm = d.bpm
	}
	d.lastBeat = tick
	d.haveBeat = true
	d.beats++
	return bpm, true
}

// BPM returns the most recently measured rate, 0 before two beats.
func (d *BeatDetector) BPM() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bpm
}

// Beats returns the number of beats detected.
func (d *BeatDetector) Beats() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.beats
}

// Reset forgets all history, used when the category changes.
func (d *BeatDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastValue, d.lastBeat, d.bpm, d.beats = 0, 0, 0, 0
	d.haveBeat, d.initialized = false, false
}

// BeatSender runs a detector over a session's trace points. It satisfies
// senders.DataSender so it can sit next to other sinks. Anomalous samples
// reset the detector: that rhythm has no measurable rate.
type BeatSender struct {
	detector *BeatDetector
	onBeat   func(point models.TracePoint, bpm float64)
}

// NewBeatSender wraps detector. onBeat may be nil.
func NewBeatSender(detector *BeatDetector, onBeat func(point models.TracePoint, bpm float64)) *BeatSender {
	return &BeatSender{detector: detector, onBeat: onBeat}
}

// Detector returns the wrapped detector.
func (b *BeatSender) Detector() *BeatDetector { return b.detector }

func (b *BeatSender) Send(point models.TracePoint) error {
	if point.Category == models.Anomalous {
		b.detector.Reset()
		return nil
	}
	bpm, beat := b.detector.Process(point.Value, point.Tick)
	if beat && b.onBeat != nil {
		b.onBeat(point, bpm)
	}
	return nil
}

func (b *BeatSender) Validate() error { return nil }
func (b *BeatSender) Close() error    { return nil }
