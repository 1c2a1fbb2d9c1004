package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Krimson/heart-rhythm-day/internal/analysis"
	"github.com/Krimson/heart-rhythm-day/internal/audio"
	"github.com/Krimson/heart-rhythm-day/internal/emulator"
	"github.com/Krimson/heart-rhythm-day/internal/generators"
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/render"
	"github.com/Krimson/heart-rhythm-day/internal/senders"
)

// Session lifecycle events passed to Hooks.OnEvent.
const (
	EventCreated   = "created"
	EventCategory  = "category"
	EventDestroyed = "destroyed"
)

// Hooks are optional callbacks. OnBeat runs inside a session tick and must
// not call back into the Manager. OnEvent with EventDestroyed is the place to
// drop per-session state held downstream.
type Hooks struct {
	OnBeat  func(sessionID string, category models.Category, tick uint64, bpm float64)
	OnEvent func(sessionID, event, detail string)
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Scheduler   emulator.FrameScheduler
	FrameRate   float64
	Table       *models.CategoryTable
	Schedule    []models.DayEvent
	Cache       CacheStore
	TTL         time.Duration
	MaxSessions int
	PatternMode string

	// Server defaults for create requests.
	Capacity      int
	StepSize      float64
	DisplayHeight int

	// Downstream for every trace point, e.g. the batcher. Never closed by
	// the Manager.
	Sender senders.DataSender
	Hooks  Hooks
}

// Manager owns the server-side monitor sessions.
type Manager struct {
	cfg ManagerConfig

	mu   sync.RWMutex
	live map[string]*liveSession
}

type liveSession struct {
	handle *emulator.Handle
	beats  *analysis.BeatSender
	desc   Descriptor
}

// NewManager applies defaults to cfg.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("manager needs a frame scheduler")
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = analysis.DefaultFrameRate
	}
	if cfg.Table == nil {
		cfg.Table = models.DefaultCategoryTable()
	}
	if len(cfg.Schedule) == 0 {
		cfg.Schedule = models.DefaultSchedule()
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryStore()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	if _, err := generators.SelectorForMode(cfg.PatternMode); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, live: make(map[string]*liveSession)}, nil
}

func (m *Manager) Table() *models.CategoryTable { return m.cfg.Table }

func (m *Manager) Schedule() []models.DayEvent {
	out := make([]models.DayEvent, len(m.cfg.Schedule))
	copy(out, m.cfg.Schedule)
	return out
}

func (m *Manager) options(req *CreateSessionRequest) (emulator.Options, error) {
	opts := emulator.Options{
		Capacity:      m.cfg.Capacity,
		StepSize:      m.cfg.StepSize,
		DisplayHeight: m.cfg.DisplayHeight,
		Table:         m.cfg.Table,
		TimeLabel:     req.TimeLabel,
		ShowLabels:    !req.HideLabels,
	}
	if req.Capacity != 0 {
		opts.Capacity = req.Capacity
	}
	if req.StepSize != 0 {
		opts.StepSize = req.StepSize
	}
	if req.DisplayHeight != 0 {
		opts.DisplayHeight = req.DisplayHeight
	}

	switch {
	case opts.Capacity < 0 || opts.Capacity > MaxCapacity:
		return opts, fmt.Errorf("%w: capacity %d out of range", ErrInvalidRequest, opts.Capacity)
	case opts.StepSize < 0 || opts.StepSize > MaxStepSize || math.IsNaN(opts.StepSize):
		return opts, fmt.Errorf("%w: step %v out of range", ErrInvalidRequest, opts.StepSize)
	case opts.DisplayHeight < 0 || opts.DisplayHeight > MaxDisplayHeight:
		return opts, fmt.Errorf("%w: height %d out of range", ErrInvalidRequest, opts.DisplayHeight)
	}
	if w, _ := opts.SurfaceSize(); w > MaxSurfaceWidth {
		return opts, fmt.Errorf("%w: frame width %d exceeds %d", ErrInvalidRequest, w, MaxSurfaceWidth)
	}
	return opts, nil
}

// CreateSession starts a headless session ticking on the scheduler.
func (m *Manager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Descriptor, error) {
	category := models.Resting
	if req.Category != "" {
		c, err := models.ParseCategory(req.Category)
		if err != nil {
			return nil, err
		}
		category = c
	}

	opts, err := m.options(req)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	full := len(m.live) >= m.cfg.MaxSessions
	m.mu.RUnlock()
	if full {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, m.cfg.MaxSessions)
	}

	selector, err := generators.SelectorForMode(m.cfg.PatternMode)
	if err != nil {
		return nil, err
	}
	opts.ID = uuid.New().String()
	opts.Generator = generators.NewWaveformGenerator(selector, nil)

	id := opts.ID
	beats := analysis.NewBeatSender(
		analysis.NewBeatDetector(analysis.DefaultThreshold, analysis.DefaultRefractoryTicks, m.cfg.FrameRate),
		func(p models.TracePoint, bpm float64) {
			if m.cfg.Hooks.OnBeat != nil && bpm > 0 {
				m.cfg.Hooks.OnBeat(id, p.Category, p.Tick, bpm)
			}
		},
	)
	opts.Sender = senders.NewMultiSender(beats, m.cfg.Sender)

	handle, err := emulator.CreateSession(m.cfg.Scheduler, nil, category, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	s := handle.Session()
	width, height := s.Options().SurfaceSize()
	now := time.Now()
	ls := &liveSession{
		handle: handle,
		beats:  beats,
		desc: Descriptor{
			ID:        id,
			Status:    StatusActive,
			TimeLabel: req.TimeLabel,
			StepSize:  s.Options().StepSize,
			Capacity:  s.Options().Capacity,
			Width:     width,
			Height:    height,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	m.describe(&ls.desc, category)

	m.mu.Lock()
	if len(m.live) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		emulator.DestroySession(handle)
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, m.cfg.MaxSessions)
	}
	m.live[id] = ls
	desc := ls.desc
	m.mu.Unlock()

	if err := m.cfg.Cache.SetSession(ctx, &desc, m.cfg.TTL); err != nil {
		log.Printf("[WARN] Failed to cache session %s: %v", id, err)
	}
	m.emit(id, EventCreated, category.String())

	log.Printf("[SESSION] Created session %s (%s, capacity=%d step=%.2f)", id, category, desc.Capacity, desc.StepSize)
	return &desc, nil
}

func (m *Manager) describe(d *Descriptor, c models.Category) {
	info, err := m.cfg.Table.Lookup(c)
	if err != nil {
		return
	}
	d.Category = c
	d.Label = info.Label
	d.RateLabel = info.RateLabel()
}

func (m *Manager) get(sessionID string) (*liveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ls, ok := m.live[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return ls, nil
}

// GetSession returns a live session, or a cached descriptor of a session
// this process does not drive.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Descriptor, float64, error) {
	if ls, err := m.get(sessionID); err == nil {
		return m.current(ls), ls.beats.Detector().BPM(), nil
	}

	d, err := m.cfg.Cache.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %s (%v)", ErrSessionNotFound, sessionID, err)
	}
	d.Status = StatusDetached
	return d, 0, nil
}

func (m *Manager) current(ls *liveSession) *Descriptor {
	m.mu.RLock()
	d := ls.desc
	m.mu.RUnlock()
	if !ls.handle.Session().Running() {
		d.Status = StatusStopped
	}
	return &d
}

// ListSessions returns the live sessions oldest first.
func (m *Manager) ListSessions(ctx context.Context) []*Descriptor {
	m.mu.RLock()
	list := make([]*liveSession, 0, len(m.live))
	for _, ls := range m.live {
		list = append(list, ls)
	}
	m.mu.RUnlock()

	out := make([]*Descriptor, 0, len(list))
	for _, ls := range list {
		out = append(out, m.current(ls))
	}
	sortDescriptors(out)
	return out
}

// SetCategory rebinds a live session; the trace continues without a cut.
func (m *Manager) SetCategory(ctx context.Context, sessionID string, req *SetCategoryRequest) (*Descriptor, error) {
	c, err := models.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	ls, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	if err := emulator.SetCategory(ls.handle, c); err != nil {
		return nil, err
	}
	if req.TimeLabel != nil {
		ls.handle.Session().SetTimeLabel(*req.TimeLabel)
	}
	// intervals measured under the old rate are meaningless now
	ls.beats.Detector().Reset()

	m.mu.Lock()
	m.describe(&ls.desc, c)
	if req.TimeLabel != nil {
		ls.desc.TimeLabel = *req.TimeLabel
	}
	ls.desc.UpdatedAt = time.Now()
	m.mu.Unlock()

	desc := m.current(ls)
	if err := m.cfg.Cache.SetSession(ctx, desc, m.cfg.TTL); err != nil {
		log.Printf("[WARN] Failed to update cached session %s: %v", sessionID, err)
	}
	m.emit(sessionID, EventCategory, c.String())

	log.Printf("[SESSION] Session %s switched to %s", sessionID, c)
	return desc, nil
}

// DeleteSession stops and forgets a session.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	ls, ok := m.live[sessionID]
	delete(m.live, sessionID)
	m.mu.Unlock()

	if ok {
		emulator.DestroySession(ls.handle)
	}
	if err := m.cfg.Cache.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[WARN] Failed to delete cached session %s: %v", sessionID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	m.emit(sessionID, EventDestroyed, "")

	log.Printf("[SESSION] Deleted session %s", sessionID)
	return nil
}

// Trace copies the buffer of a live session.
func (m *Manager) Trace(sessionID string) (*TraceResponse, error) {
	ls, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	snap := ls.handle.Session().Snapshot()
	return &TraceResponse{
		ID:       snap.ID,
		Category: snap.Category,
		Phase:    snap.Phase,
		Tick:     snap.Tick,
		StepSize: snap.StepSize,
		Samples:  snap.Samples,
		Pattern:  snap.Pattern,
		BPM:      ls.beats.Detector().BPM(),
		Running:  snap.Running,
		Stats:    snap.Stats,
	}, nil
}

// RenderPNG draws the current frame of a live session.
func (m *Manager) RenderPNG(sessionID string) ([]byte, error) {
	ls, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	s := ls.handle.Session()
	surface := render.NewImageSurface(s.Options().SurfaceSize())
	if err := s.RenderTo(surface); err != nil {
		return nil, err
	}
	return surface.PNG()
}

// AudioWAV renders d of the monitor tone for the session's category.
func (m *Manager) AudioWAV(sessionID string, d time.Duration) ([]byte, error) {
	ls, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	info, err := m.cfg.Table.Lookup(ls.handle.Session().Category())
	if err != nil {
		return nil, err
	}
	return audio.WAVBytes(info, d, m.cfg.FrameRate)
}

// KeepAlive refreshes the cache TTL of every live session until ctx is done.
func (m *Manager) KeepAlive(ctx context.Context, interval time.Duration) {
	if m.cfg.TTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) refresh(ctx context.Context) {
	for _, d := range m.ListSessions(ctx) {
		err := m.cfg.Cache.Touch(ctx, d.ID, m.cfg.TTL)
		if errors.Is(err, ErrSessionNotFound) {
			err = m.cfg.Cache.SetSession(ctx, d, m.cfg.TTL)
		}
		if err != nil {
			log.Printf("[WARN] Failed to refresh cached session %s: %v", d.ID, err)
		}
	}
}

// Close destroys every live session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.DeleteSession(ctx, id); err != nil {
			log.Printf("[WARN] Failed to close session %s: %v", id, err)
		}
	}
	log.Printf("[SESSION] Closed %d sessions", len(ids))
}

func (m *Manager) emit(sessionID, event, detail string) {
	if m.cfg.Hooks.OnEvent != nil {
		m.cfg.Hooks.OnEvent(sessionID, event, detail)
	}
}
