package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/pkg/utils"
)

// ErrStopped is returned by Add after Stop.
var ErrStopped = errors.New("batcher stopped")

// Batcher groups trace points per session and hands full or idle batches to
// a sink on a worker goroutine. It satisfies senders.DataSender.
type Batcher struct {
	cfg     Config
	sink    Sink
	mu      sync.Mutex
	batches map[string]*currentBatch
	stopped bool

	flushChan chan Batch
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once

	stats struct {
		mu         sync.RWMutex
		received   int64
		dropped    int64
		flushed    int64
		outOfOrder int64
	}
}

// LogSink logs a line per batch.
type LogSink struct{}

func (LogSink) Consume(_ context.Context, b Batch) error {
	log.Printf("[BATCH] session=%s points=%d span_ms=%d t0=%d t1=%d",
		b.SessionID, len(b.Points), b.T1MS-b.T0MS, b.T0MS, b.T1MS)
	return nil
}

// MultiSink hands each batch to every sink; errors are joined.
type MultiSink []Sink

func (m MultiSink) Consume(ctx context.Context, b Batch) error {
	var errs []error
	for _, s := range m {
		if err := s.Consume(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewBatcher starts the flush worker and the idle timer.
func NewBatcher(cfg Config, sink Sink) *Batcher {
	def := DefaultConfig()
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	if cfg.MaxSpanMS <= 0 {
		cfg.MaxSpanMS = def.MaxSpanMS
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.DropTooOldMS <= 0 {
		cfg.DropTooOldMS = def.DropTooOldMS
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	b := &Batcher{
		cfg:       cfg,
		sink:      sink,
		batches:   make(map[string]*currentBatch),
		flushChan: make(chan Batch, cfg.QueueSize),
		stopChan:  make(chan struct{}),
	}

	b.wg.Add(2)
	go b.flushWorker()
	go b.timerFlusher()
	return b
}

// Add queues a point. Invalid points are counted and dropped without error.
func (b *Batcher) Add(tp models.TracePoint) error {
	if err := validatePoint(tp); err != nil {
		b.incrementDropped()
		log.Printf("[WARN] Invalid trace point dropped: %v", err)
		return nil
	}

	p := Point{
		Tick:    tp.Tick,
		TsMS:    utils.TimestampToUnixMillis(tp.Timestamp),
		Phase:   tp.Phase,
		Value:   tp.Value,
		Pattern: tp.Pattern,
		Cat:     tp.Category,
	}
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return ErrStopped
	}

	cb, exists := b.batches[tp.SessionID]
	if !exists {
		cb = newCurrentBatch(tp.SessionID, b.cfg.MaxSamples)
		b.batches[tp.SessionID] = cb
	}

	if len(cb.Points) > 0 {
		behind := cb.T1MS - p.TsMS
		if behind > b.cfg.DropTooOldMS {
			b.incrementDropped()
			log.Printf("[WARN] Trace point too old, dropped: session=%s ts_diff=%d", tp.SessionID, behind)
			return nil
		}
		if behind > b.cfg.OutOfOrderTolerance.Milliseconds() {
			b.incrementOutOfOrder()
			log.Printf("[WARN] Out of order trace point: session=%s ts_diff=%d", tp.SessionID, behind)
		}

		span := p.TsMS - cb.T0MS
		if p.TsMS < cb.T0MS {
			span = cb.T1MS - p.TsMS
		}
		if span > b.cfg.MaxSpanMS {
			b.flushBatch(cb)
		}
	}

	cb.addPoint(p, now)
	b.incrementReceived()

	if len(cb.Points) >= b.cfg.MaxSamples {
		b.flushBatch(cb)
	}
	return nil
}

// Send is Add under the senders.DataSender name.
func (b *Batcher) Send(tp models.TracePoint) error { return b.Add(tp) }

// Validate reports ErrStopped once the batcher is stopped.
func (b *Batcher) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrStopped
	}
	return nil
}

// Close stops the batcher.
func (b *Batcher) Close() error {
	b.Stop()
	return nil
}

// Forget flushes and drops the state of one session.
func (b *Batcher) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.batches[sessionID]; ok {
		b.flushBatch(cb)
		delete(b.batches, sessionID)
	}
}

func validatePoint(tp models.TracePoint) error {
	if tp.SessionID == "" {
		return fmt.Errorf("empty session_id")
	}
	return tp.Validate()
}

// flushBatch queues a copy of cb. Callers hold mu.
func (b *Batcher) flushBatch(cb *currentBatch) {
	if len(cb.Points) == 0 {
		return
	}
	out := cb.clone()
	cb.reset()

	select {
	case b.flushChan <- out:
		b.incrementFlushed()
	default:
		log.Printf("[WARN] Flush queue full, batch dropped: session=%s points=%d", out.SessionID, len(out.Points))
		b.incrementDropped()
	}
}

func (b *Batcher) flushWorker() {
	defer b.wg.Done()
	for {
		select {
		case batch := <-b.flushChan:
			b.consume(batch)
		case <-b.stopChan:
			// drain what was queued before Stop
			for {
				select {
				case batch := <-b.flushChan:
					b.consume(batch)
				default:
					return
				}
			}
		}
	}
}

func (b *Batcher) consume(batch Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.sink.Consume(ctx, batch); err != nil {
		log.Printf("[ERROR] Failed to consume batch: session=%s: %v", batch.SessionID, err)
	}
}

func (b *Batcher) timerFlusher() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.FlushInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushIdle(time.Now())
		case <-b.stopChan:
			return
		}
	}
}

func (b *Batcher) flushIdle(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cb := range b.batches {
		if len(cb.Points) > 0 && now.Sub(cb.lastAdded) >= b.cfg.FlushInterval {
			b.flushBatch(cb)
		}
	}
}

// Stop flushes everything, waits for the sink to receive it and stops the
// workers. It is safe to call more than once.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		log.Printf("[INFO] Stopping batcher...")

		b.mu.Lock()
		for _, cb := range b.batches {
			b.flushBatch(cb)
		}
		b.stopped = true
		b.mu.Unlock()

		close(b.stopChan)
		b.wg.Wait()
		b.logStats()
	})
}

func (b *Batcher) incrementReceived() {
	b.stats.mu.Lock()
	b.stats.received++
	b.stats.mu.Unlock()
}

func (b *Batcher) incrementDropped() {
	b.stats.mu.Lock()
	b.stats.dropped++
	b.stats.mu.Unlock()
}

func (b *Batcher) incrementFlushed() {
	b.stats.mu.Lock()
	b.stats.flushed++
	b.stats.mu.Unlock()
}

func (b *Batcher) incrementOutOfOrder() {
	b.stats.mu.Lock()
	b.stats.outOfOrder++
	b.stats.mu.Unlock()
}

func (b *Batcher) logStats() {
	received, dropped, flushed, outOfOrder := b.GetStats()
	log.Printf("[STATS] received=%d dropped=%d flushed=%d out_of_order=%d",
		received, dropped, flushed, outOfOrder)
}

// GetStats returns the counters.
func (b *Batcher) GetStats() (received, dropped, flushed, outOfOrder int64) {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()
	return b.stats.received, b.stats.dropped, b.stats.flushed, b.stats.outOfOrder
}
