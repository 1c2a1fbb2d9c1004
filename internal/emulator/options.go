package emulator

import (
	"fmt"
	"math"

	"github.com/Krimson/heart-rhythm-day/internal/generators"
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/render"
	"github.com/Krimson/heart-rhythm-day/internal/senders"
	"github.com/Krimson/heart-rhythm-day/internal/trace"
)

// Display defaults, matching a 1200x400 monitor.
const (
	DefaultWidth         = 1200.0
	DefaultStepSize      = 1.5
	DefaultDisplayHeight = 400
	DefaultLeadLabel     = "LEAD II"
)

// Options configure a session. Zero values take the defaults.
type Options struct {
	ID            string
	Capacity      int     // samples kept; 0 derives it from DefaultWidth and StepSize
	StepSize      float64 // pixels between samples
	DisplayHeight int     // suggested surface height

	Table     *models.CategoryTable
	Generator generators.WaveformGenerator
	Style     *render.Style
	Sender    senders.DataSender

	TimeLabel  string
	ShowLabels bool
}

func (o Options) withDefaults() (Options, error) {
	if o.StepSize == 0 {
		o.StepSize = DefaultStepSize
	}
	if o.StepSize < 0 || math.IsNaN(o.StepSize) || math.IsInf(o.StepSize, 0) {
		return o, fmt.Errorf("invalid step size %v", o.StepSize)
	}
	if o.Capacity == 0 {
		n, err := trace.CapacityFor(DefaultWidth, o.StepSize)
		if err != nil {
			return o, err
		}
		o.Capacity = n
	}
	if o.Capacity < 0 {
		return o, fmt.Errorf("%w: %d", trace.ErrInvalidCapacity, o.Capacity)
	}
	if o.DisplayHeight == 0 {
		o.DisplayHeight = DefaultDisplayHeight
	}
	if o.DisplayHeight < 0 {
		return o, fmt.Errorf("invalid display height %d", o.DisplayHeight)
	}
	if o.Table == nil {
		o.Table = models.DefaultCategoryTable()
	}
	if o.Generator == nil {
		o.Generator = generators.NewWaveformGenerator(nil, nil)
	}
	return o, nil
}

// SurfaceSize is the pixel size a surface needs to show the whole buffer.
func (o Options) SurfaceSize() (width, height int) {
	o, err := o.withDefaults()
	if err != nil {
		return 0, 0
	}
	return int(math.Ceil(float64(o.Capacity-1)*o.StepSize)) + 1, o.DisplayHeight
}
