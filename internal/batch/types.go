package batch

import (
	"context"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// Point is one trace sample inside a batch.
type Point struct {
	Tick    uint64          `json:"tick"`
	TsMS    int64           `json:"ts_ms"`
	Phase   float64         `json:"phase"`
	Value   float64         `json:"value"`
	Pattern string          `json:"pattern,omitempty"`
	Cat     models.Category `json:"category"`
}

// Batch is a run of consecutive points of one session.
type Batch struct {
	SessionID string  `json:"session_id"`
	T0MS      int64   `json:"t0_ms"`
	T1MS      int64   `json:"t1_ms"`
	Points    []Point `json:"points"`
}

// Values returns the sample values in order.
func (b Batch) Values() []float64 {
	out := make([]float64, len(b.Points))
	for i, p := range b.Points {
		out[i] = p.Value
	}
	return out
}

// Sink receives flushed batches.
type Sink interface {
	Consume(ctx context.Context, b Batch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, b Batch) error

func (f SinkFunc) Consume(ctx context.Context, b Batch) error { return f(ctx, b) }

// Config controls batching.
type Config struct {
	MaxSamples          int           // flush when a batch holds this many points
	MaxSpanMS           int64         // flush before a batch would span longer than this
	FlushInterval       time.Duration // idle batches are flushed after this
	DropTooOldMS        int64         // points older than the newest by more are dropped
	OutOfOrderTolerance time.Duration // older points within this are accepted silently
	QueueSize           int
}

// DefaultConfig batches about a quarter second of 60 fps frames.
func DefaultConfig() Config {
	return Config{
		MaxSamples:          15,
		MaxSpanMS:           1000,
		FlushInterval:       250 * time.Millisecond,
		DropTooOldMS:        30000,
		OutOfOrderTolerance: 100 * time.Millisecond,
		QueueSize:           256,
	}
}

type currentBatch struct {
	Batch
	lastAdded time.Time
}

func newCurrentBatch(sessionID string, capacity int) *currentBatch {
	return &currentBatch{Batch: Batch{SessionID: sessionID, Points: make([]Point, 0, capacity)}}
}

func (cb *currentBatch) addPoint(p Point, now time.Time) {
	if len(cb.Points) == 0 {
		cb.T0MS, cb.T1MS = p.TsMS, p.TsMS
	} else {
		if p.TsMS < cb.T0MS {
			cb.T0MS = p.TsMS
		}
		if p.TsMS > cb.T1MS {
			cb.T1MS = p.TsMS
		}
	}
	cb.Points = append(cb.Points, p)
	cb.lastAdded = now
}

func (cb *currentBatch) clone() Batch {
	points := make([]Point, len(cb.Points))
	copy(points, cb.Points)
	return Batch{SessionID: cb.SessionID, T0MS: cb.T0MS, T1MS: cb.T1MS, Points: points}
}

func (cb *currentBatch) reset() {
	cb.T0MS, cb.T1MS = 0, 0
	cb.Points = cb.Points[:0]
}
