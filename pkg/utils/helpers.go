package utils

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
	"time"
)

// Mod1 returns x modulo 1 in [0, 1), also for negative x.
func Mod1(x float64) float64 {
	m := math.Mod(x, 1.0)
	if m < 0 {
		m += 1.0
	}
	// math.Mod of a tiny negative value plus one can round up to exactly 1
	if m >= 1.0 {
		m = 0
	}
	return m
}

// Clamp limits value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampInt is Clamp for ints.
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// LinearInterpolation interpolates between start and end, progress clamped to [0, 1].
func LinearInterpolation(start, end, progress float64) float64 {
	if progress <= 0 {
		return start
	}
	if progress >= 1 {
		return end
	}
	return start + (end-start)*progress
}

// ParseHexColor parses #rgb or #rrggbb into an opaque color.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// WithAlpha returns c premultiplied to the given alpha in [0, 1].
func WithAlpha(c color.RGBA, alpha float64) color.RGBA {
	a := Clamp(alpha, 0, 1)
	return color.RGBA{
		R: uint8(float64(c.R) * a),
		G: uint8(float64(c.G) * a),
		B: uint8(float64(c.B) * a),
		A: uint8(float64(c.A) * a),
	}
}

// TimestampToUnixMillis converts t to Unix milliseconds.
func TimestampToUnixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
