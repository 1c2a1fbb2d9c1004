package emulator

import (
	"errors"
	"log"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/render"
)

// ErrAlreadyRunning is returned when a session is started twice.
var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrNoSession      = errors.New("no session")
)

// Driver ticks sessions once per frame of its scheduler.
type Driver struct {
	scheduler FrameScheduler
}

// NewDriver returns a driver using scheduler for every session it starts.
func NewDriver(scheduler FrameScheduler) *Driver {
	return &Driver{scheduler: scheduler}
}

// Handle stops one run of a session.
type Handle struct {
	session *Session
	runID   uint64
}

// Session returns the session the handle controls.
func (h *Handle) Session() *Session { return h.session }

// Start schedules the first tick. Each tick reschedules the next one, so at
// most one callback per session is outstanding.
func (d *Driver) Start(s *Session) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, ErrAlreadyRunning
	}

	s.runID++
	runID := s.runID
	frame, err := d.scheduler.Schedule(d.tick(s, runID))
	if err != nil {
		return nil, err
	}

	s.running = true
	s.frame = frame
	s.scheduler = d.scheduler
	log.Printf("[EMULATOR] Session %s started (%s)", s.id, s.category)
	return &Handle{session: s, runID: runID}, nil
}

// Stop cancels the pending tick. Once Stop returns no tick body of this run
// executes. Stopping twice, or after an implicit stop, is harmless.
func (d *Driver) Stop(h *Handle) {
	if h == nil || h.session == nil {
		return
	}
	s := h.session

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.runID != h.runID {
		return
	}
	s.running = false
	if s.scheduler != nil {
		s.scheduler.Cancel(s.frame)
	}
	log.Printf("[EMULATOR] Session %s stopped after %d ticks", s.id, s.stats.Ticks)
}

func (d *Driver) tick(s *Session, runID uint64) func(time.Time) {
	return func(now time.Time) {
		s.mu.Lock()
		defer s.mu.Unlock()

		// a callback that raced with Stop
		if !s.running || s.runID != runID {
			return
		}

		s.step(now)

		frame, err := d.scheduler.Schedule(d.tick(s, runID))
		if err != nil {
			s.running = false
			log.Printf("[WARN] Session %s: cannot schedule next frame, stopping: %v", s.id, err)
			return
		}
		s.frame = frame
	}
}

// CreateSession builds a session and starts ticking it on scheduler.
func CreateSession(scheduler FrameScheduler, surface render.Surface, initial models.Category, opts Options) (*Handle, error) {
	s, err := NewSession(surface, initial, opts)
	if err != nil {
		return nil, err
	}
	return NewDriver(scheduler).Start(s)
}

// SetCategory rebinds the running session; see Session.SetCategory.
func SetCategory(h *Handle, c models.Category) error {
	if h == nil || h.session == nil {
		return ErrNoSession
	}
	return h.session.SetCategory(c)
}

// DestroySession stops the session's driver. It is safe to call more than once.
func DestroySession(h *Handle) {
	if h == nil || h.session == nil {
		return
	}
	s := h.session
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()
	if sched == nil {
		return
	}
	NewDriver(sched).Stop(h)
}
