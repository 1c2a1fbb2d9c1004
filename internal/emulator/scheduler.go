package emulator

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrSchedulingUnavailable is returned once a scheduler can no longer deliver
// frames. A session treats it as an implicit stop.
var ErrSchedulingUnavailable = errors.New("frame scheduling unavailable")

// DefaultFrameInterval is one display refresh at 60 Hz.
const DefaultFrameInterval = time.Second / 60

// FrameHandle identifies one scheduled callback.
type FrameHandle uint64

// FrameScheduler calls fn once at the next frame. Cancel on a fired or
// unknown handle does nothing.
type FrameScheduler interface {
	Schedule(fn func(now time.Time)) (FrameHandle, error)
	Cancel(h FrameHandle)
}

// TickerScheduler fires callbacks after a fixed interval, optionally with
// random jitter so several displays do not tick in lockstep.
type TickerScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   time.Duration
	rng      *rand.Rand
	timers   map[FrameHandle]*time.Timer
	next     FrameHandle
	closed   bool
}

// NewTickerScheduler returns a scheduler with the given interval. A
// non-positive interval falls back to DefaultFrameInterval.
func NewTickerScheduler(interval, jitter time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if jitter < 0 {
		jitter = 0
	}
	return &TickerScheduler{
		interval: interval,
		jitter:   jitter,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		timers:   make(map[FrameHandle]*time.Timer),
	}
}

// Interval returns the nominal frame interval.
func (t *TickerScheduler) Interval() time.Duration { return t.interval }

func (t *TickerScheduler) Schedule(fn func(now time.Time)) (FrameHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrSchedulingUnavailable
	}

	t.next++
	h := t.next
	// the callback blocks on mu until the timer is registered
	t.timers[h] = time.AfterFunc(t.delay(), func() {
		t.mu.Lock()
		_, live := t.timers[h]
		delete(t.timers, h)
		t.mu.Unlock()
		if live {
			fn(time.Now())
		}
	})
	return h, nil
}

func (t *TickerScheduler) Cancel(h FrameHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[h]; ok {
		timer.Stop()
		delete(t.timers, h)
	}
}

// Pending returns the number of callbacks not yet fired.
func (t *TickerScheduler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Close cancels everything pending and refuses further callbacks.
func (t *TickerScheduler) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for h, timer := range t.timers {
		timer.Stop()
		delete(t.timers, h)
	}
}

func (t *TickerScheduler) delay() time.Duration {
	if t.jitter == 0 {
		return t.interval
	}
	d := t.interval + time.Duration(float64(t.jitter)*(t.rng.Float64()*2-1))
	if d < 0 {
		return 0
	}
	return d
}

// ManualScheduler fires callbacks only when Fire is called. Tests use it to
// step sessions deterministically.
type ManualScheduler struct {
	mu      sync.Mutex
	pending map[FrameHandle]func(time.Time)
	order   []FrameHandle
	next    FrameHandle
	closed  bool
}

// NewManualScheduler returns an open scheduler with nothing pending.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{pending: make(map[FrameHandle]func(time.Time))}
}

func (m *ManualScheduler) Schedule(fn func(now time.Time)) (FrameHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrSchedulingUnavailable
	}
	m.next++
	m.pending[m.next] = fn
	m.order = append(m.order, m.next)
	return m.next, nil
}

func (m *ManualScheduler) Cancel(h FrameHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, h)
}

// Fire runs every callback pending at the time of the call, in scheduling
// order, and returns how many ran. Callbacks scheduled while firing wait for
// the next call.
func (m *ManualScheduler) Fire(now time.Time) int {
	m.mu.Lock()
	order := m.order
	m.order = nil
	var due []func(time.Time)
	for _, h := range order {
		if fn, ok := m.pending[h]; ok {
			due = append(due, fn)
			delete(m.pending, h)
		}
	}
	m.mu.Unlock()

	for _, fn := range due {
		fn(now)
	}
	return len(due)
}

// Pending returns the number of callbacks waiting.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close drops pending callbacks and makes Schedule fail.
func (m *ManualScheduler) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pending = make(map[FrameHandle]func(time.Time))
	m.order = nil
}
