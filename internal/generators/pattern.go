package generators

import (
	"fmt"
	"time"
)

// Pattern identifies one of the anomalous sub-patterns.
type Pattern int

const (
	PatternNone       Pattern = iota // periodic rhythm, not anomalous
	PatternWideNoise                 // large-band uniform noise
	PatternFlutter                   // fast sinusoid
	PatternFlatJitter                // near flatline with jitter
)

const (
	WideNoiseSpan    = 45.0 // full width of the wide noise band
	FlutterAmplitude = 20.0
	FlutterFrequency = 60.0 // radians per unit phase
	FlatJitterSpan   = 5.0

	// DefaultTicksPerPattern is about two seconds at 60 frames per second.
	DefaultTicksPerPattern = 120
	DefaultPatternPeriod   = 2 * time.Second
)

var anomalousPatterns = [3]Pattern{PatternWideNoise, PatternFlutter, PatternFlatJitter}

func (p Pattern) String() string {
	switch p {
	case PatternNone:
		return ""
	case PatternWideNoise:
		return "wide-noise"
	case PatternFlutter:
		return "flutter"
	case PatternFlatJitter:
		return "flat-jitter"
	}
	return fmt.Sprintf("pattern(%d)", int(p))
}

// Bounds returns the closed amplitude range the pattern can produce.
func (p Pattern) Bounds() (lo, hi float64, err error) {
	switch p {
	case PatternWideNoise:
		return -WideNoiseSpan / 2, WideNoiseSpan / 2, nil
	case PatternFlutter:
		return -FlutterAmplitude, FlutterAmplitude, nil
	case PatternFlatJitter:
		return -FlatJitterSpan / 2, FlatJitterSpan / 2, nil
	case PatternNone:
		return RhythmMin, RhythmMax, nil
	}
	return 0, 0, fmt.Errorf("%w: %d", ErrInvalidPattern, int(p))
}

// TickPatternSelector switches pattern every TicksPerPattern frames, so the
// sequence is reproducible for a given frame count.
type TickPatternSelector struct {
	TicksPerPattern uint64
}

func NewTickPatternSelector(ticksPerPattern uint64) (*TickPatternSelector, error) {
	if ticksPerPattern == 0 {
		return nil, fmt.Errorf("%w: ticks per pattern must be positive", ErrInvalidConfig)
	}
	return &TickPatternSelector{TicksPerPattern: ticksPerPattern}, nil
}

func (s *TickPatternSelector) Select(tick uint64) Pattern {
	return anomalousPatterns[(tick/s.TicksPerPattern)%3]
}

// TimeSource returns the current time.
type TimeSource interface {
	Now() time.Time
}

type systemTime struct{}

func (systemTime) Now() time.Time { return time.Now() }

// SystemTime is the wall clock.
var SystemTime TimeSource = systemTime{}

// ClockPatternSelector buckets wall-clock time, which keeps every display
// that uses it on the same sub-pattern at the same moment.
type ClockPatternSelector struct {
	clock  TimeSource
	period time.Duration
}

func NewClockPatternSelector(clock TimeSource, period time.Duration) (*ClockPatternSelector, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: pattern period must be positive", ErrInvalidConfig)
	}
	if clock == nil {
		clock = SystemTime
	}
	return &ClockPatternSelector{clock: clock, period: period}, nil
}

func (s *ClockPatternSelector) Select(uint64) Pattern {
	bucket := s.clock.Now().UnixNano() / int64(s.period)
	idx := bucket % 3
	if idx < 0 {
		idx += 3
	}
	return anomalousPatterns[idx]
}

// Pattern selection modes accepted by SelectorForMode.
const (
	ModeTicks = "ticks"
	ModeClock = "clock"
)

// SelectorForMode returns the selector named by mode. An empty mode means
// ModeTicks.
func SelectorForMode(mode string) (PatternSelector, error) {
	switch mode {
	case "", ModeTicks:
		return NewTickPatternSelector(DefaultTicksPerPattern)
	case ModeClock:
		return NewClockPatternSelector(SystemTime, DefaultPatternPeriod)
	default:
		return nil, fmt.Errorf("unknown pattern mode %q", mode)
	}
}
