package generators

import (
	"math"

	"github.com/Krimson/heart-rhythm-day/pkg/utils"
)

// Extremes of Rhythm over one cycle.
const (
	RhythmMin = -6.0
	RhythmMax = 36.0
)

// Rhythm is the stereotyped pulse shape over one cycle. It depends on phase
// only; the category changes the cycling speed, never the shape.
//
//	[0.00,0.10) baseline
//	[0.10,0.20) small rounded bump
//	[0.20,0.25) baseline
//	[0.25,0.27) sharp negative deflection
//	[0.27,0.32) large positive spike
//	[0.32,0.35) fall through the baseline
//	[0.35,0.38) recovery back to baseline
//	[0.38,0.45) baseline
//	[0.45,0.60) broad rounded hump
//	[0.60,1.00) baseline
func Rhythm(phase float64) float64 {
	p := utils.Mod1(phase)
	switch {
	case p < 0.10:
		return 0
	case p < 0.20:
		return math.Sin((p-0.10)*10*math.Pi) * 5
	case p < 0.25:
		return 0
	case p < 0.27:
		return -(p - 0.25) * 200
	case p < 0.32:
		return (p-0.27)*800 - 4
	case p < 0.35:
		return 36 - (p-0.32)*1400
	case p < 0.38:
		return -6 + (p-0.35)*200
	case p < 0.45:
		return 0
	case p < 0.60:
		return math.Sin((p-0.45)*math.Pi/0.15) * 8
	default:
		return 0
	}
}
