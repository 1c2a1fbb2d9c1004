package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"

	"github.com/Krimson/heart-rhythm-day/internal/analysis"
	"github.com/Krimson/heart-rhythm-day/internal/emulator"
	"github.com/Krimson/heart-rhythm-day/internal/generators"
	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// Tone parameters.
const (
	DefaultSampleRate = beep.SampleRate(44100)

	BlipFrequency = 880.0
	BlipDuration  = 90 * time.Millisecond
	BlipAttack    = 5 * time.Millisecond
	BlipRelease   = 60 * time.Millisecond

	AlarmFrequency = 440.0
	AlarmPeriod    = 500 * time.Millisecond // on for half, off for half

	DefaultVolume = 0.6
)

// MonitorTone is the bedside monitor sound for one category. It replays the
// rhythm at the display frame rate and emits a blip on every detected beat.
// Rate-less categories sound a pulsing alarm instead. It never ends; wrap it
// in beep.Take for a finite clip.
type MonitorTone struct {
	mu        sync.Mutex
	rate      beep.SampleRate
	frameRate float64
	volume    float64

	info     models.CategoryInfo
	phase    float64
	tick     uint64
	acc      float64 // audio samples elapsed in the current frame
	detector *analysis.BeatDetector
	blip     beep.Streamer
	alarmPos int
	beats    uint64

	one [][2]float64
}

// NewMonitorTone returns a tone for info at the given audio and frame rates.
func NewMonitorTone(info models.CategoryInfo, rate beep.SampleRate, frameRate float64) *MonitorTone {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if frameRate <= 0 {
		frameRate = analysis.DefaultFrameRate
	}
	return &MonitorTone{
		rate:      rate,
		frameRate: frameRate,
		volume:    DefaultVolume,
		info:      info,
		detector:  analysis.NewBeatDetector(0, 0, frameRate),
		one:       make([][2]float64, 1),
	}
}

// SetCategory switches the rhythm without restarting the stream.
func (m *MonitorTone) SetCategory(info models.CategoryInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info.Category != m.info.Category {
		m.detector.Reset()
		m.alarmPos = 0
	}
	m.info = info
}

// SetVolume sets the linear output volume, 0 mutes.
func (m *MonitorTone) SetVolume(v float64) {
	m.mu.Lock()
	m.volume = v
	m.mu.Unlock()
}

// Beats returns the number of blips started so far.
func (m *MonitorTone) Beats() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beats
}

// SampleRate returns the audio rate.
func (m *MonitorTone) SampleRate() beep.SampleRate { return m.rate }

func (m *MonitorTone) Stream(samples [][2]float64) (n int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	perFrame := float64(m.rate) / m.frameRate
	for i := range samples {
		m.acc++
		if m.acc >= perFrame {
			m.acc -= perFrame
			m.frame()
		}

		var v float64
		if m.info.HasRate {
			v = m.blipSample()
		} else {
			v = m.alarmSample()
		}
		v *= m.volume
		samples[i][0] = v
		samples[i][1] = v
	}
	return len(samples), true
}

func (m *MonitorTone) Err() error { return nil }

func (m *MonitorTone) frame() {
	m.phase = emulator.Advance(m.phase, m.info)
	m.tick++
	if !m.info.HasRate {
		return
	}
	if _, beat := m.detector.Process(generators.Rhythm(m.phase), m.tick); beat {
		m.beats++
		m.blip = NewEnvelope(
			NewOscillator(BlipFrequency, BlipDuration, WaveSine, m.rate),
			BlipDuration, BlipAttack, BlipRelease, m.rate,
		)
	}
}

func (m *MonitorTone) blipSample() float64 {
	if m.blip == nil {
		return 0
	}
	if n, ok := m.blip.Stream(m.one); n == 0 || !ok {
		m.blip = nil
		return 0
	}
	return m.one[0][0]
}

func (m *MonitorTone) alarmSample() float64 {
	period := m.rate.N(AlarmPeriod)
	pos := m.alarmPos % period
	m.alarmPos++
	if pos >= period/2 {
		return 0
	}
	t := float64(pos) / float64(m.rate)
	// square-ish alarm, softened to half amplitude
	if int(t*AlarmFrequency*2)%2 == 0 {
		return 0.5
	}
	return -0.5
}

// Clip returns d worth of tone at the given volume, ready for encoding.
func Clip(info models.CategoryInfo, d time.Duration, rate beep.SampleRate, frameRate, volume float64) beep.Streamer {
	tone := NewMonitorTone(info, rate, frameRate)
	return beep.Take(tone.rate.N(d), newVolume(tone, volume))
}
