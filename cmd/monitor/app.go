package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Krimson/heart-rhythm-day/internal/analysis"
	"github.com/Krimson/heart-rhythm-day/internal/audio"
	"github.com/Krimson/heart-rhythm-day/internal/config"
	"github.com/Krimson/heart-rhythm-day/internal/emulator"
	"github.com/Krimson/heart-rhythm-day/internal/generators"
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/quiz"
	"github.com/Krimson/heart-rhythm-day/internal/render"
	"github.com/Krimson/heart-rhythm-day/internal/senders"
	"github.com/Krimson/heart-rhythm-day/internal/trace"
)

const (
	headerRows = 1
	footerRows = 5
	minCols    = 20
	minRows    = 4
)

var (
	styleText   = tcell.StyleDefault.Foreground(tcell.NewRGBColor(0x00, 0xff, 0x41)).Background(tcell.ColorBlack)
	styleDim    = tcell.StyleDefault.Foreground(tcell.ColorGray).Background(tcell.ColorBlack)
	styleGood   = tcell.StyleDefault.Foreground(tcell.ColorLime).Background(tcell.ColorBlack).Bold(true)
	styleBad    = tcell.StyleDefault.Foreground(tcell.ColorRed).Background(tcell.ColorBlack).Bold(true)
	styleHeader = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack).Bold(true)
)

// panel is one monitor on screen.
type panel struct {
	handle  *emulator.Handle
	surface *render.BrailleSurface
	beats   *analysis.BeatDetector
	x, y    int
	cols    int
	rows    int
}

func (p *panel) session() *emulator.Session { return p.handle.Session() }

// binder drives the main panel and keeps the tone on the same category.
type binder struct {
	session *emulator.Session
	table   *models.CategoryTable
	tone    *audio.MonitorTone
}

func (b *binder) SetCategory(c models.Category) error {
	if err := b.session.SetCategory(c); err != nil {
		return err
	}
	if b.tone != nil {
		if info, err := b.table.Lookup(c); err == nil {
			b.tone.SetCategory(info)
		}
	}
	return nil
}

func (b *binder) SetTimeLabel(label string) { b.session.SetTimeLabel(label) }

// App is the terminal monitor. Frames are fired from Run's loop, so
// sessions render on the same goroutine that draws the screen.
type App struct {
	cfg    *config.MonitorConfig
	screen tcell.Screen
	table  *models.CategoryTable
	sched  *emulator.ManualScheduler
	panels []*panel
	binder *binder
	runner *quiz.Runner
	sender senders.DataSender

	message string
}

// NewApp creates the panels for the current screen size. tone and sender
// may be nil.
func NewApp(cfg *config.MonitorConfig, screen tcell.Screen, table *models.CategoryTable, schedule []models.DayEvent, tone *audio.MonitorTone, sender senders.DataSender) (*App, error) {
	a := &App{
		cfg:    cfg,
		screen: screen,
		table:  table,
		sched:  emulator.NewManualScheduler(),
		sender: sender,
	}

	initial := []models.Category{cfg.Category}
	if cfg.Intro {
		initial = []models.Category{models.Resting, models.LightActivity, models.HighExertion, models.Anomalous}
	}

	rects := layout(screen.Size())(len(initial))
	for i, c := range initial {
		p, err := a.newPanel(c, rects[i])
		if err != nil {
			a.Close()
			return nil, err
		}
		a.panels = append(a.panels, p)
	}

	a.binder = &binder{session: a.panels[0].session(), table: table, tone: tone}
	if cfg.Quiz {
		game, err := quiz.NewGame(schedule, table, a.binder)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.runner = quiz.NewRunner(game, quiz.DefaultDelays(), func(st quiz.State) {
			log.Printf("[INFO] Quiz %s: round %d/%d score %d", st.Phase, st.Round+1, st.Rounds, st.Score)
		})
	}
	return a, nil
}

func (a *App) newPanel(c models.Category, r rect) (*panel, error) {
	selector, err := generators.SelectorForMode(a.cfg.PatternMode)
	if err != nil {
		return nil, err
	}
	surface := render.NewBrailleSurface(r.cols, r.rows)
	w, h := surface.Size()
	capacity, err := trace.CapacityFor(float64(w), a.cfg.StepSize)
	if err != nil {
		return nil, err
	}

	style := terminalStyle()
	detector := analysis.NewBeatDetector(analysis.DefaultThreshold, analysis.DefaultRefractoryTicks, float64(a.cfg.FrameRate))
	out := senders.NewMultiSender(analysis.NewBeatSender(detector, nil), a.sender)

	h0, err := emulator.CreateSession(a.sched, surface, c, emulator.Options{
		Capacity:      capacity,
		StepSize:      a.cfg.StepSize,
		DisplayHeight: h,
		Table:         a.table,
		Generator:     generators.NewWaveformGenerator(selector, nil),
		Style:         &style,
		Sender:        out,
	})
	if err != nil {
		return nil, err
	}
	return &panel{handle: h0, surface: surface, beats: detector, x: r.x, y: r.y, cols: r.cols, rows: r.rows}, nil
}

// terminalStyle drops the grid and glow, which braille cells cannot blend.
func terminalStyle() render.Style {
	s := render.DefaultStyle()
	s.Background.R, s.Background.G, s.Background.B = 0, 0, 0
	s.GridSpacing = 0
	s.GlowWidth = 0
	s.MarkerRadius = 1
	return s
}

// Run polls input and fires frames until ctx is done or the user quits.
func (a *App) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(config.FrameInterval(a.cfg.FrameRate))
	defer ticker.Stop()

	a.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if quit := a.handleEvent(ev); quit {
				return nil
			}
		case now := <-ticker.C:
			a.sched.Fire(now)
			a.draw()
		}
	}
}

// handleEvent reports whether the app should exit.
func (a *App) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		a.resize()
		a.screen.Sync()
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return true
		case tcell.KeyEnter:
			a.start()
		case tcell.KeyRune:
			switch r := ev.Rune(); r {
			case 'q', 'Q':
				return true
			case ' ':
				a.start()
			case '1', '2', '3', '4':
				a.choose(models.Category(r - '1'))
			}
		}
	}
	return false
}

func (a *App) start() {
	if a.runner == nil {
		return
	}
	phase := a.runner.Game().State().Phase
	if phase != quiz.PhaseIntro && phase != quiz.PhaseFinished {
		return
	}
	if err := a.runner.Start(); err != nil {
		a.message = err.Error()
	}
}

func (a *App) choose(c models.Category) {
	if a.cfg.Intro {
		return
	}
	if a.runner == nil {
		if err := a.binder.SetCategory(c); err != nil {
			a.message = err.Error()
			return
		}
		a.panels[0].beats.Reset()
		return
	}
	if _, err := a.runner.Answer(c); err != nil {
		a.message = err.Error()
		return
	}
	a.message = ""
}

func (a *App) resize() {
	rects := layout(a.screen.Size())(len(a.panels))
	for i, p := range a.panels {
		r := rects[i]
		p.x, p.y, p.cols, p.rows = r.x, r.y, r.cols, r.rows
		p.surface.Resize(r.cols, r.rows)
	}
}

func (a *App) draw() {
	a.screen.Clear()
	for _, p := range a.panels {
		a.drawPanel(p)
	}
	a.drawFooter()
	a.screen.Show()
}

func (a *App) drawPanel(p *panel) {
	s := p.session()
	snap := s.Snapshot()
	info, _ := a.table.Lookup(snap.Category)

	title := info.Label
	if a.runner != nil {
		title = emulator.DefaultLeadLabel
	}
	drawText(a.screen, p.x, p.y, p.cols, styleHeader, title)
	if snap.TimeLabel != "" {
		drawText(a.screen, p.x+p.cols-len(snap.TimeLabel), p.y, p.cols, styleText, snap.TimeLabel)
	}

	p.surface.Draw(a.screen, p.x, p.y+headerRows)

	rate := render.RateLabel(info)
	if bpm := p.beats.BPM(); bpm > 0 && info.HasRate {
		rate = fmt.Sprintf("%s  (%.0f measured)", rate, bpm)
	}
	drawText(a.screen, p.x, p.y+headerRows+p.rows, p.cols, styleText, rate)
}

func (a *App) drawFooter() {
	w, h := a.screen.Size()
	y := h - footerRows + 1
	if a.runner == nil {
		if a.cfg.Intro {
			drawText(a.screen, 1, y, w-2, styleDim, "One monitor per category.  q quits")
		} else {
			drawText(a.screen, 1, y, w-2, styleDim, a.keyHelp()+"  q quits")
		}
		drawText(a.screen, 1, y+1, w-2, styleBad, a.message)
		return
	}

	st := a.runner.Game().State()
	switch st.Phase {
	case quiz.PhaseIntro:
		drawText(a.screen, 1, y, w-2, styleHeader, "A DAY IN THE LIFE OF A HEART")
		drawText(a.screen, 1, y+1, w-2, styleText, "Watch the monitor and guess what the heart is doing at each hour.")
		drawText(a.screen, 1, y+2, w-2, styleDim, "Enter starts  q quits")
	case quiz.PhaseReady:
		drawText(a.screen, 1, y, w-2, styleHeader, "Get ready...")
	case quiz.PhasePlaying:
		drawText(a.screen, 1, y, w-2, styleHeader,
			fmt.Sprintf("Round %d/%d  Score %d  %s  %s", st.Round+1, st.Rounds, st.Score, st.Event.Time, st.Event.Description))
		drawText(a.screen, 1, y+1, w-2, styleText, a.keyHelp())
		if st.Feedback.Show {
			style := styleBad
			if st.Feedback.IsCorrect {
				style = styleGood
			}
			drawText(a.screen, 1, y+2, w-2, style, st.Feedback.Message)
		}
	case quiz.PhaseFinished:
		drawText(a.screen, 1, y, w-2, styleHeader, fmt.Sprintf("Final score %d", st.Score))
		drawText(a.screen, 1, y+1, w-2, styleDim, "Enter plays again  q quits")
	}
	drawText(a.screen, 1, y+3, w-2, styleBad, a.message)
}

func (a *App) keyHelp() string {
	var s string
	for i, info := range a.table.Entries() {
		if i > 0 {
			s += "  "
		}
		s += fmt.Sprintf("[%d] %s", i+1, info.Label)
	}
	return s
}

// Close stops every session and the quiz timers.
func (a *App) Close() {
	if a.runner != nil {
		a.runner.Stop()
	}
	for _, p := range a.panels {
		emulator.DestroySession(p.handle)
	}
	a.sched.Close()
}

type rect struct {
	x, y, cols, rows int
}

// layout returns a function splitting the screen into n panels: one panel
// fills the screen, more are laid out on a 2x2 grid. rows excludes the
// header and rate lines of each panel.
func layout(w, h int) func(n int) []rect {
	return func(n int) []rect {
		area := h - footerRows
		if n <= 1 {
			return []rect{{x: 0, y: 0, cols: max(w, minCols), rows: max(area-headerRows-1, minRows)}}
		}
		cw, ch := w/2, area/2
		rs := make([]rect, 0, n)
		for i := 0; i < n; i++ {
			col, row := i%2, i/2
			rs = append(rs, rect{
				x:    col * cw,
				y:    row * ch,
				cols: max(cw-1, minCols),
				rows: max(ch-headerRows-1, minRows),
			})
		}
		return rs
	}
}

func drawText(screen tcell.Screen, x, y, width int, style tcell.Style, text string) {
	if x < 0 {
		x = 0
	}
	col := 0
	for _, r := range text {
		if col >= width {
			return
		}
		screen.SetContent(x+col, y, r, nil, style)
		col++
	}
}
