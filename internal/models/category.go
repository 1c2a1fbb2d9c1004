package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCategory is returned for values outside the closed category set.
var ErrInvalidCategory = errors.New("invalid category")

// Category is the activity state depicted by the monitor.
type Category int

const (
	Resting Category = iota
	LightActivity
	HighExertion
	Anomalous
)

// AllCategories lists the categories in display order.
var AllCategories = []Category{Resting, LightActivity, HighExertion, Anomalous}

var categoryNames = map[Category]string{
	Resting:       "resting",
	LightActivity: "light-activity",
	HighExertion:  "high-exertion",
	Anomalous:     "anomalous",
}

// Valid reports whether c belongs to the enumeration.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MustValid panics on a category outside the enumeration. Categories are
// validated before they reach the engine, so an invalid one is a programming error.
func (c Category) MustValid() Category {
	if !c.Valid() {
		panic(fmt.Sprintf("%v: %d", ErrInvalidCategory, int(c)))
	}
	return c
}

// ParseCategory accepts the canonical names, case-insensitive.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for c, n := range categoryNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCategory, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
