package emulator

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Krimson/heart-rhythm-day/internal/generators"
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/render"
	"github.com/Krimson/heart-rhythm-day/internal/senders"
	"github.com/Krimson/heart-rhythm-day/internal/trace"
)

// Session is one running monitor: phase, rolling buffer and the binding to
// one drawing surface. Every field is guarded by mu; a tick holds mu for its
// whole body.
type Session struct {
	mu sync.Mutex

	id        string
	table     *models.CategoryTable
	category  models.Category
	phase     float64
	tick      uint64
	buffer    *trace.Buffer
	last      generators.Sample
	generator generators.WaveformGenerator
	renderer  *render.Renderer
	surface   render.Surface
	sender    senders.DataSender
	opts      Options

	timeLabel  string
	showLabels bool

	stats     SessionStats
	createdAt time.Time

	// driver state
	running   bool
	runID     uint64
	frame     FrameHandle
	scheduler FrameScheduler
	surfaceOK bool
}

// SessionStats counts what a session's ticks did.
type SessionStats struct {
	Ticks         uint64 `json:"ticks"`
	Rendered      uint64 `json:"rendered"`
	SkippedFrames uint64 `json:"skipped_frames"`
	SendErrors    uint64 `json:"send_errors"`
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID        string          `json:"id"`
	Category  models.Category `json:"category"`
	Phase     float64         `json:"phase"`
	Tick      uint64          `json:"tick"`
	Samples   []float64       `json:"samples"`
	Last      float64         `json:"last"`
	Pattern   string          `json:"pattern,omitempty"`
	Running   bool            `json:"running"`
	TimeLabel string          `json:"time_label,omitempty"`
	StepSize  float64         `json:"step_size"`
	Stats     SessionStats    `json:"stats"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewSession builds a stopped session bound to surface. surface may be nil
// for a headless session; ticks then skip rendering. An invalid category is
// rejected with ErrInvalidCategory.
func NewSession(surface render.Surface, initial models.Category, opts Options) (*Session, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if _, err := opts.Table.Lookup(initial); err != nil {
		return nil, err
	}

	buf, err := trace.NewBuffer(opts.Capacity)
	if err != nil {
		return nil, err
	}

	style := render.DefaultStyle()
	if opts.Style != nil {
		style = *opts.Style
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &Session{
		id:         id,
		table:      opts.Table,
		category:   initial,
		buffer:     buf,
		generator:  opts.Generator,
		renderer:   render.NewRenderer(style, opts.StepSize),
		surface:    surface,
		sender:     opts.Sender,
		opts:       opts,
		timeLabel:  opts.TimeLabel,
		showLabels: opts.ShowLabels,
		createdAt:  time.Now(),
		surfaceOK:  true,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Category returns the category the next tick will use.
func (s *Session) Category() models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

// SetCategory rebinds the session. Phase and buffer are kept so the trace
// continues without a cut; the next tick generates under the new category.
func (s *Session) SetCategory(c models.Category) error {
	if _, err := s.table.Lookup(c); err != nil {
		return err
	}
	s.mu.Lock()
	s.category = c
	s.mu.Unlock()
	return nil
}

// SetTimeLabel changes the time-of-day overlay.
func (s *Session) SetTimeLabel(label string) {
	s.mu.Lock()
	s.timeLabel = label
	s.mu.Unlock()
}

// ShowLabels toggles the text overlays.
func (s *Session) ShowLabels(show bool) {
	s.mu.Lock()
	s.showLabels = show
	s.mu.Unlock()
}

// AttachSurface rebinds the drawing surface; nil detaches it.
func (s *Session) AttachSurface(surface render.Surface) {
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
}

// Phase returns the current phase in [0,1).
func (s *Session) Phase() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Samples copies the buffer oldest to newest.
func (s *Session) Samples() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Samples()
}

// Len returns the buffer length, which is always its capacity.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Len()
}

// Running reports whether a driver is ticking the session.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns the tick counters.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Options returns the resolved options.
func (s *Session) Options() Options { return s.opts }

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		Category:  s.category,
		Phase:     s.phase,
		Tick:      s.tick,
		Samples:   s.buffer.Samples(),
		Last:      s.buffer.Last(),
		Running:   s.running,
		TimeLabel: s.timeLabel,
		StepSize:  s.opts.StepSize,
		Stats:     s.stats,
		CreatedAt: s.createdAt,
	}
	if s.last.Pattern != generators.PatternNone {
		snap.Pattern = s.last.Pattern.String()
	}
	return snap
}

// RenderTo draws the current buffer onto surface without advancing the
// session. Used for on-demand frames of headless sessions.
func (s *Session) RenderTo(surface render.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.table.Lookup(s.category)
	if err != nil {
		return err
	}
	r := render.NewRenderer(s.renderer.Style(), s.renderer.Step())
	return r.Render(surface, s.buffer, info, s.labels(info))
}

// Step runs one tick immediately, outside any driver.
func (s *Session) Step(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step(now)
}

// step is the tick body: read category, advance, generate, push, render,
// publish. Callers hold mu.
func (s *Session) step(now time.Time) {
	info, err := s.table.Lookup(s.category)
	if err != nil {
		// SetCategory validates, so this is a programming error
		panic(fmt.Sprintf("emulator: session %s bound to %v: %v", s.id, s.category, err))
	}

	s.phase = Advance(s.phase, info)
	s.tick++
	s.last = s.generator.Generate(s.phase, s.category, s.tick)
	s.buffer.Push(s.last.Value)
	s.stats.Ticks++

	s.draw(info)
	s.publish(now)
}

func (s *Session) draw(info models.CategoryInfo) {
	err := s.renderer.Render(s.surface, s.buffer, info, s.labels(info))
	switch {
	case err == nil:
		s.stats.Rendered++
		if !s.surfaceOK {
			log.Printf("[EMULATOR] Session %s: surface available again", s.id)
		}
		s.surfaceOK = true
	case errors.Is(err, render.ErrSurfaceUnavailable):
		s.stats.SkippedFrames++
		if s.surfaceOK && s.surface != nil {
			log.Printf("[EMULATOR] Session %s: surface unavailable, skipping frames", s.id)
		}
		s.surfaceOK = false
	default:
		log.Printf("[ERROR] Session %s: render failed: %v", s.id, err)
	}
}

func (s *Session) publish(now time.Time) {
	if s.sender == nil {
		return
	}
	point := models.TracePoint{
		SessionID: s.id,
		Tick:      s.tick,
		Timestamp: now,
		Category:  s.category,
		Phase:     s.phase,
		Value:     s.last.Value,
	}
	if s.last.Pattern != generators.PatternNone {
		point.Pattern = s.last.Pattern.String()
	}
	if err := s.sender.Send(point); err != nil {
		s.stats.SendErrors++
		if s.stats.SendErrors == 1 || s.stats.SendErrors%1000 == 0 {
			log.Printf("[ERROR] Session %s: send failed (%d total): %v", s.id, s.stats.SendErrors, err)
		}
	}
}

func (s *Session) labels(info models.CategoryInfo) *render.Labels {
	if !s.showLabels {
		return nil
	}
	return &render.Labels{
		Lead: DefaultLeadLabel,
		Time: s.timeLabel,
		Rate: render.RateLabel(info),
	}
}
