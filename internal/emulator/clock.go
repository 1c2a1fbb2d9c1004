package emulator

import (
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/pkg/utils"
)

// Phase increments per frame.
const (
	ReferenceRate      = 60.0  // bpm that advances the phase by BaseIncrement
	BaseIncrement      = 0.012 // per-frame phase step at ReferenceRate
	AnomalousIncrement = 0.04  // fixed sweep for categories without a rate
)

// Increment returns the per-frame phase step for a category.
func Increment(info models.CategoryInfo) float64 {
	if !info.HasRate {
		return AnomalousIncrement
	}
	return info.Rate / ReferenceRate * BaseIncrement
}

// Advance moves phase forward by the category's increment, wrapping into [0,1).
func Advance(phase float64, info models.CategoryInfo) float64 {
	return utils.Mod1(phase + Increment(info))
}
