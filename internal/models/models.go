package models

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Validation errors
var (
	ErrInvalidPhase     = errors.New("invalid phase")
	ErrInvalidSample    = errors.New("invalid sample value")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// TracePoint is one generated sample together with the state that produced it.
type TracePoint struct {
	SessionID string    `json:"session_id"`
	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Phase     float64   `json:"phase"`
	Value     float64   `json:"value"`
	Pattern   string    `json:"pattern,omitempty"` // sub-pattern for anomalous samples
}

// ToJSON encodes the point as a single JSON line.
func (tp TracePoint) ToJSON() string {
	data, _ := json.Marshal(tp)
	return string(data)
}

// Validate checks the invariants of a trace point.
func (tp TracePoint) Validate() error {
	if !tp.Category.Valid() {
		return ErrInvalidCategory
	}
	if tp.Phase < 0 || tp.Phase >= 1 || math.IsNaN(tp.Phase) {
		return ErrInvalidPhase
	}
	if math.IsNaN(tp.Value) || math.IsInf(tp.Value, 0) {
		return ErrInvalidSample
	}
	if tp.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// ParseJSON decodes and validates a point.
func ParseJSON(jsonStr string) (TracePoint, error) {
	var tp TracePoint
	if err := json.Unmarshal([]byte(jsonStr), &tp); err != nil {
		return TracePoint{}, err
	}
	return tp, tp.Validate()
}
