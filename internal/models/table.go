package models

import (
	"fmt"
	"image/color"
	"strconv"

	"github.com/Krimson/heart-rhythm-day/pkg/utils"
)

// UnknownRateLabel is shown instead of a number for rate-less categories.
const UnknownRateLabel = "???"

// CategoryInfo holds display metadata and the nominal rate of one category.
type CategoryInfo struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Rate     float64  `json:"rate"`     // beats per minute, 0 when HasRate is false
	HasRate  bool     `json:"has_rate"` // anomalous has no single defined rate
	Tint     string   `json:"tint"`     // #rrggbb
	Fact     string   `json:"fact"`
}

// Color returns the tint as an opaque RGBA value; an unparsable tint falls back to the monitor green.
func (ci CategoryInfo) Color() color.RGBA {
	c, err := utils.ParseHexColor(ci.Tint)
	if err != nil {
		return DefaultTint
	}
	return c
}

// RateLabel formats the rate for display.
func (ci CategoryInfo) RateLabel() string {
	if !ci.HasRate {
		return UnknownRateLabel
	}
	return strconv.Itoa(int(ci.Rate))
}

// CategoryTable maps categories to their metadata. It is immutable once built
// and may be shared by any number of sessions.
type CategoryTable struct {
	entries map[Category]CategoryInfo
}

// NewCategoryTable validates and indexes the entries. Every category of the
// enumeration must be present exactly once.
func NewCategoryTable(entries []CategoryInfo) (*CategoryTable, error) {
	t := &CategoryTable{entries: make(map[Category]CategoryInfo, len(entries))}
	for _, e := range entries {
		if !e.Category.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidCategory, int(e.Category))
		}
		if _, dup := t.entries[e.Category]; dup {
			return nil, fmt.Errorf("duplicate category %s", e.Category)
		}
		if e.HasRate && e.Rate <= 0 {
			return nil, fmt.Errorf("category %s: rate must be positive, got %v", e.Category, e.Rate)
		}
		t.entries[e.Category] = e
	}
	for _, c := range AllCategories {
		if _, ok := t.entries[c]; !ok {
			return nil, fmt.Errorf("category %s missing from table", c)
		}
	}
	return t, nil
}

// Lookup returns the metadata for c.
func (t *CategoryTable) Lookup(c Category) (CategoryInfo, error) {
	info, ok := t.entries[c]
	if !ok {
		return CategoryInfo{}, fmt.Errorf("%w: %d", ErrInvalidCategory, int(c))
	}
	return info, nil
}

// Entries returns the table in display order.
func (t *CategoryTable) Entries() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(t.entries))
	for _, c := range AllCategories {
		out = append(out, t.entries[c])
	}
	return out
}

// DefaultTint is the classic monitor phosphor green.
var DefaultTint = color.RGBA{R: 0x00, G: 0xff, B: 0x41, A: 0xff}

// DefaultCategoryEntries is the built-in content table.
func DefaultCategoryEntries() []CategoryInfo {
	return []CategoryInfo{
		{
			Category: Resting,
			Label:    "Sleeping",
			Rate:     60,
			HasRate:  true,
			Tint:     "#00ff41",
			Fact:     "Correct! During sleep the heart beats slowly to save energy.",
		},
		{
			Category: LightActivity,
			Label:    "Walking",
			Rate:     100,
			HasRate:  true,
			Tint:     "#00ff41",
			Fact:     "Great! Walking raises the pulse a little to bring oxygen to the muscles.",
		},
		{
			Category: HighExertion,
			Label:    "Sprinting",
			Rate:     170,
			HasRate:  true,
			Tint:     "#00ff41",
			Fact:     "Exactly! Under heavy effort the heart reaches a very high rate to meet the muscles' demand.",
		},
		{
			Category: Anomalous,
			Label:    "Emergency",
			Tint:     "#00ff41",
			Fact:     "Right. This is an abnormal rhythm that points to an electrical disturbance in the heart.",
		},
	}
}

// DefaultCategoryTable builds the table from DefaultCategoryEntries.
func DefaultCategoryTable() *CategoryTable {
	t, err := NewCategoryTable(DefaultCategoryEntries())
	if err != nil {
		panic(err)
	}
	return t
}
