package session

import (
	"errors"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/emulator"
	"github.com/Krimson/heart-rhythm-day/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
	ErrInvalidRequest  = errors.New("invalid request")
)

// Status of a session as seen by this process.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusStopped Status = "STOPPED"
	// StatusDetached is a cached descriptor with no driver in this process.
	StatusDetached Status = "DETACHED"
)

// Descriptor is what the API and the cache know about a session.
type Descriptor struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Category  models.Category `json:"category"`
	Label     string          `json:"label"`
	RateLabel string          `json:"rate_label"`
	TimeLabel string          `json:"time_label,omitempty"`
	StepSize  float64         `json:"step_size"`
	Capacity  int             `json:"capacity"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateSessionRequest is the body of POST /api/sessions. Zero fields take
// the server defaults.
type CreateSessionRequest struct {
	Category      string  `json:"category"`
	Capacity      int     `json:"capacity,omitempty"`
	StepSize      float64 `json:"step,omitempty"`
	DisplayHeight int     `json:"height,omitempty"`
	TimeLabel     string  `json:"time_label,omitempty"`
	HideLabels    bool    `json:"hide_labels,omitempty"`
}

// SetCategoryRequest is the body of PUT /api/sessions/{id}/category.
type SetCategoryRequest struct {
	Category  string  `json:"category"`
	TimeLabel *string `json:"time_label,omitempty"`
}

type SessionResponse struct {
	Session *Descriptor `json:"session"`
	BPM     float64     `json:"bpm"`
}

// TraceResponse is the buffer of a live session.
type TraceResponse struct {
	ID       string                `json:"id"`
	Category models.Category       `json:"category"`
	Phase    float64               `json:"phase"`
	Tick     uint64                `json:"tick"`
	StepSize float64               `json:"step_size"`
	Samples  []float64             `json:"samples"`
	Pattern  string                `json:"pattern,omitempty"`
	BPM      float64               `json:"bpm"`
	Running  bool                  `json:"running"`
	Stats    emulator.SessionStats `json:"stats"`
}

// Request limits keep on-demand frames bounded.
const (
	MaxCapacity      = 4096
	MaxDisplayHeight = 1200
	MaxStepSize      = 16.0
	MaxSurfaceWidth  = 4096 // pixels of a rendered frame
)
