package senders

import (
	"errors"
	"sync"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// Sender errors
var (
	ErrSendFailed    = errors.New("failed to send trace point")
	ErrSenderClosed  = errors.New("sender closed")
	ErrNotWritable   = errors.New("destination not writable")
	ErrNotConfigured = errors.New("sender not initialized")
)

// DataSender receives every sample a session produces.
type DataSender interface {
	// Send delivers one trace point
	Send(point models.TracePoint) error

	// Validate reports whether the sender can accept data
	Validate() error

	// Close releases resources
	Close() error
}

// BatchSender accepts several points at once.
type BatchSender interface {
	DataSender

	// SendBatch delivers points in order
	SendBatch(points []models.TracePoint) error
}

// SenderMetrics counts deliveries for a sender.
type SenderMetrics struct {
	TotalSent    int64
	TotalFailed  int64
	LastActivity time.Time
}

// MultiSender fans every point out to several senders. A failing sender does
// not stop delivery to the others; the first error is returned.
type MultiSender struct {
	mu      sync.Mutex
	senders []DataSender
	metrics SenderMetrics
}

// NewMultiSender wraps senders, skipping nils.
func NewMultiSender(senders ...DataSender) *MultiSender {
	ms := &MultiSender{}
	for _, s := range senders {
		if s != nil {
			ms.senders = append(ms.senders, s)
		}
	}
	return ms
}

// Add registers another sender.
func (m *MultiSender) Add(s DataSender) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.senders = append(m.senders, s)
	m.mu.Unlock()
}

// Len returns the number of wrapped senders.
func (m *MultiSender) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.senders)
}

func (m *MultiSender) Send(point models.TracePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for _, s := range m.senders {
		if err := s.Send(point); err != nil {
			m.metrics.TotalFailed++
			if first == nil {
				first = err
			}
			continue
		}
		m.metrics.TotalSent++
	}
	m.metrics.LastActivity = time.Now()
	return first
}

func (m *MultiSender) Validate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.senders {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every wrapped sender and returns the joined errors.
func (m *MultiSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, s := range m.senders {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.senders = nil
	return errors.Join(errs...)
}

// GetMetrics returns a snapshot of the delivery counters.
func (m *MultiSender) GetMetrics() SenderMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}
