package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/generators"
	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// MonitorConfig configures the terminal monitor.
type MonitorConfig struct {
	Category    models.Category
	Intro       bool
	Quiz        bool
	Sound       bool
	StepSize    float64
	FrameRate   int
	PatternMode string
	TraceFile   string
}

// ProducerConfig configures the headless producer.
type ProducerConfig struct {
	Category    models.Category
	Duration    time.Duration // 0 runs until interrupted
	FrameRate   int
	PatternMode string
	NATSURL     string
	WavePrefix  string
	Params      string
	Output      string
	Watch       bool
}

// LoadMonitor parses monitor flags from args.
func LoadMonitor(args []string) (*MonitorConfig, error) {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)

	category := fs.String("category", "resting", "initial category (resting, light-activity, high-exertion, anomalous)")
	intro := fs.Bool("intro", false, "show one monitor per category")
	quiz := fs.Bool("quiz", true, "play the day quiz")
	sound := fs.Bool("sound", false, "play the monitor tone")
	step := fs.Float64("step", 1.5, "pixels between samples")
	fps := fs.Int("fps", 60, "frames per second")
	mode := fs.String("pattern-mode", generators.ModeTicks, "anomalous pattern selection: ticks or clock")
	output := fs.String("output", "", "optional JSONL trace file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cat, err := models.ParseCategory(*category)
	if err != nil {
		return nil, err
	}
	if *fps <= 0 {
		return nil, fmt.Errorf("invalid fps %d", *fps)
	}
	if *step <= 0 {
		return nil, fmt.Errorf("invalid step %v", *step)
	}
	if _, err := generators.SelectorForMode(*mode); err != nil {
		return nil, err
	}

	return &MonitorConfig{
		Category:    cat,
		Intro:       *intro,
		Quiz:        *quiz && !*intro,
		Sound:       *sound,
		StepSize:    *step,
		FrameRate:   *fps,
		PatternMode: *mode,
		TraceFile:   *output,
	}, nil
}

// LoadProducer parses producer flags from args.
func LoadProducer(args []string) (*ProducerConfig, error) {
	fs := flag.NewFlagSet("producer", flag.ContinueOnError)

	category := fs.String("category", "resting", "category to emulate")
	duration := fs.String("duration", "0s", "run time, 0 runs until interrupted")
	fps := fs.Int("fps", 60, "frames per second")
	mode := fs.String("pattern-mode", generators.ModeTicks, "anomalous pattern selection: ticks or clock")
	natsURL := fs.String("nats", "", "NATS url, empty disables publishing")
	prefix := fs.String("subject", "ecg.wave", "wave subject prefix")
	params := fs.String("params", "ecg.params", "beat parameters subject")
	output := fs.String("output", "", "JSONL output file")
	watch := fs.Bool("watch", false, "subscribe to wave subjects and log measured rates")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	dur, err := time.ParseDuration(*duration)
	if err != nil {
		return nil, err
	}
	cat, err := models.ParseCategory(*category)
	if err != nil {
		return nil, err
	}
	if *fps <= 0 {
		return nil, fmt.Errorf("invalid fps %d", *fps)
	}
	if *watch && *natsURL == "" {
		return nil, errors.New("-watch needs -nats")
	}
	if !*watch && *natsURL == "" && *output == "" {
		return nil, errors.New("nothing to do: set -nats or -output")
	}

	return &ProducerConfig{
		Category:    cat,
		Duration:    dur,
		FrameRate:   *fps,
		PatternMode: *mode,
		NATSURL:     *natsURL,
		WavePrefix:  *prefix,
		Params:      *params,
		Output:      *output,
		Watch:       *watch,
	}, nil
}

// FrameInterval converts a frame rate to a tick interval.
func FrameInterval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}
