package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// TestSink collects every batch it receives.
type TestSink struct {
	mu      sync.Mutex
	batches []Batch
}

func (ts *TestSink) Consume(ctx context.Context, b Batch) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.batches = append(ts.batches, b)
	return nil
}

func (ts *TestSink) GetBatches() []Batch {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	result := make([]Batch, len(ts.batches))
	copy(result, ts.batches)
	return result
}

func tp(session string, tsMS int64, v float64) models.TracePoint {
	return models.TracePoint{
		SessionID: session,
		Tick:      uint64(tsMS),
		Timestamp: time.UnixMilli(tsMS),
		Category:  models.Resting,
		Phase:     0.5,
		Value:     v,
	}
}

// slowConfig keeps the idle timer out of the way.
func slowConfig() Config {
	return Config{
		MaxSamples:    100,
		MaxSpanMS:     30000,
		FlushInterval: time.Hour,
		DropTooOldMS:  30000,
	}
}

func TestBatcher_FlushBySize(t *testing.T) {
	cfg := slowConfig()
	cfg.MaxSamples = 3

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)

	// 5 points: one full batch of 3 now, 2 left for Stop
	for i := int64(0); i < 5; i++ {
		if err := batcher.Add(tp("session1", 1000+i*100, float64(i))); err != nil {
			t.Fatalf("Failed to add point: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 flushed batch, got %d", len(batches))
	}
	if len(batches[0].Points) != 3 {
		t.Errorf("Expected 3 points in first batch, got %d", len(batches[0].Points))
	}

	batcher.Stop()
	batches = sink.GetBatches()
	if len(batches) != 2 || len(batches[1].Points) != 2 {
		t.Errorf("Expected the remaining 2 points flushed on stop, got %d batches", len(batches))
	}
}

func TestBatcher_FlushBySpan(t *testing.T) {
	cfg := slowConfig()
	cfg.MaxSpanMS = 1000

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	for _, ts := range []int64{1000, 1500, 2100} {
		if err := batcher.Add(tp("session1", ts, 1)); err != nil {
			t.Fatalf("Failed to add point: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 flushed batch, got %d", len(batches))
	}
	// the third point would make the span 1100ms, so the first two go out alone
	if len(batches[0].Points) != 2 {
		t.Errorf("Expected 2 points in flushed batch, got %d", len(batches[0].Points))
	}
	if span := batches[0].T1MS - batches[0].T0MS; span != 500 {
		t.Errorf("Expected span of 500ms, got %dms", span)
	}
}

func TestBatcher_OutOfOrderTolerance(t *testing.T) {
	cfg := slowConfig()
	cfg.OutOfOrderTolerance = 500 * time.Millisecond

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)

	for _, ts := range []int64{1000, 1500, 1200} {
		if err := batcher.Add(tp("session1", ts, 1)); err != nil {
			t.Fatalf("Failed to add point: %v", err)
		}
	}
	batcher.Stop()

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(batches))
	}
	if len(batches[0].Points) != 3 {
		t.Errorf("Expected 3 points in batch, got %d", len(batches[0].Points))
	}
	if _, _, _, ooo := batcher.GetStats(); ooo != 0 {
		t.Errorf("Expected no out-of-order count within tolerance, got %d", ooo)
	}
}

func TestBatcher_DropTooOld(t *testing.T) {
	cfg := slowConfig()
	cfg.DropTooOldMS = 2000

	batcher := NewBatcher(cfg, &TestSink{})
	defer batcher.Stop()

	for _, ts := range []int64{5000, 6000, 1000} {
		if err := batcher.Add(tp("session1", ts, 1)); err != nil {
			t.Fatalf("Failed to add point: %v", err)
		}
	}

	received, dropped, _, _ := batcher.GetStats()
	if received != 2 {
		t.Errorf("Expected 2 received points, got %d", received)
	}
	if dropped != 1 {
		t.Errorf("Expected 1 dropped point, got %d", dropped)
	}
}

func TestBatcher_InvalidPointDropped(t *testing.T) {
	batcher := NewBatcher(slowConfig(), &TestSink{})
	defer batcher.Stop()

	bad := tp("", 1000, 1)
	if err := batcher.Add(bad); err != nil {
		t.Fatalf("Invalid points are dropped silently, got %v", err)
	}
	bad = tp("session1", 1000, 1)
	bad.Phase = 1
	_ = batcher.Add(bad)

	if _, dropped, _, _ := batcher.GetStats(); dropped != 2 {
		t.Errorf("Expected 2 dropped points, got %d", dropped)
	}
}

func TestBatcher_TimerFlush(t *testing.T) {
	cfg := slowConfig()
	cfg.FlushInterval = 50 * time.Millisecond

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	if err := batcher.Add(tp("session1", 1000, 1)); err != nil {
		t.Fatalf("Failed to add point: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch flushed by timer, got %d", len(batches))
	}
	if len(batches[0].Points) != 1 {
		t.Errorf("Expected 1 point in batch, got %d", len(batches[0].Points))
	}
}

func TestBatcher_SessionsBatchedSeparately(t *testing.T) {
	cfg := slowConfig()
	cfg.MaxSamples = 2

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)

	_ = batcher.Add(tp("a", 1000, 1))
	_ = batcher.Add(tp("b", 1100, 2))
	_ = batcher.Add(tp("a", 1200, 3))
	_ = batcher.Add(tp("b", 1300, 4))
	batcher.Stop()

	batches := sink.GetBatches()
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches (one per session), got %d", len(batches))
	}
	for _, b := range batches {
		for _, p := range b.Points {
			if (b.SessionID == "a") != (p.Value == 1 || p.Value == 3) {
				t.Errorf("Point %v ended up in session %s", p.Value, b.SessionID)
			}
		}
	}
}

func TestBatcher_StopIsIdempotentAndRejectsAdds(t *testing.T) {
	batcher := NewBatcher(slowConfig(), &TestSink{})
	batcher.Stop()
	batcher.Stop()

	if err := batcher.Add(tp("s", 1000, 1)); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
	if err := batcher.Validate(); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped from Validate, got %v", err)
	}
}

func TestBatcher_Forget(t *testing.T) {
	sink := &TestSink{}
	batcher := NewBatcher(slowConfig(), sink)
	defer batcher.Stop()

	_ = batcher.Send(tp("s", 1000, 7))
	batcher.Forget("s")
	time.Sleep(50 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 || batches[0].Values()[0] != 7 {
		t.Errorf("Expected the forgotten session to be flushed, got %+v", batches)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &TestSink{}, &TestSink{}
	boom := errors.New("boom")
	failing := SinkFunc(func(context.Context, Batch) error { return boom })

	err := MultiSink{a, failing, b}.Consume(context.Background(), Batch{SessionID: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("Expected joined error, got %v", err)
	}
	if len(a.GetBatches()) != 1 || len(b.GetBatches()) != 1 {
		t.Errorf("Expected both healthy sinks to receive the batch")
	}
}
