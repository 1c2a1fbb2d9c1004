package quiz

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// Phase is the game stage.
type Phase string

const (
	PhaseIntro    Phase = "intro"
	PhaseReady    Phase = "ready"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Scoring and pacing.
const (
	MaxRounds      = 6
	CorrectPoints  = 10
	WrongPenalty   = 5
	ReadyDelay     = 1800 * time.Millisecond
	CorrectDelay   = 4 * time.Second
	WrongDelay     = 3 * time.Second
	WrongAnswerMsg = "Not quite. Look at the heart rate: does it fit this activity at this hour?"
)

// Game errors
var (
	ErrWrongPhase    = errors.New("action not allowed in current phase")
	ErrFeedbackShown = errors.New("feedback already shown")
	ErrNoFeedback    = errors.New("no feedback to advance from")
	ErrEmptySchedule = errors.New("schedule is empty")
)

// Feedback is the result of one answer.
type Feedback struct {
	Show      bool   `json:"show"`
	IsCorrect bool   `json:"is_correct"`
	Message   string `json:"message"`
}

// Delay returns how long the feedback stays before Advance.
func (f Feedback) Delay() time.Duration {
	if f.IsCorrect {
		return CorrectDelay
	}
	return WrongDelay
}

// State is a copy of the game.
type State struct {
	Phase    Phase           `json:"phase"`
	Score    int             `json:"score"`
	Round    int             `json:"round"` // zero-based
	Rounds   int             `json:"rounds"`
	Event    models.DayEvent `json:"event"`
	Feedback Feedback        `json:"feedback"`
}

// Binder is the display the game drives each round. *emulator.Session
// satisfies it.
type Binder interface {
	SetCategory(models.Category) error
	SetTimeLabel(string)
}

// Game is the quiz state machine. Timing is left to the caller: after Start
// wait ReadyDelay then call Begin; after Answer wait Feedback.Delay then
// call Advance. Runner does this with timers.
type Game struct {
	mu       sync.Mutex
	schedule []models.DayEvent
	table    *models.CategoryTable
	rounds   int
	binder   Binder

	phase    Phase
	score    int
	round    int
	feedback Feedback
}

// NewGame plays the first min(MaxRounds, len(schedule)) events.
func NewGame(schedule []models.DayEvent, table *models.CategoryTable, binder Binder) (*Game, error) {
	if len(schedule) == 0 {
		return nil, ErrEmptySchedule
	}
	if table == nil {
		table = models.DefaultCategoryTable()
	}
	for i, ev := range schedule {
		if _, err := table.Lookup(ev.Category); err != nil {
			return nil, fmt.Errorf("schedule event %d: %w", i, err)
		}
	}
	rounds := MaxRounds
	if len(schedule) < rounds {
		rounds = len(schedule)
	}
	return &Game{
		schedule: schedule,
		table:    table,
		rounds:   rounds,
		binder:   binder,
		phase:    PhaseIntro,
	}, nil
}

// State returns a snapshot.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state()
}

func (g *Game) state() State {
	return State{
		Phase:    g.phase,
		Score:    g.score,
		Round:    g.round,
		Rounds:   g.rounds,
		Event:    g.schedule[g.round],
		Feedback: g.feedback,
	}
}

// CurrentEvent is the event the display should show.
func (g *Game) CurrentEvent() models.DayEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.schedule[g.round]
}

// Start resets score and round and enters the ready phase. It is allowed
// from intro and finished (play again).
func (g *Game) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseIntro && g.phase != PhaseFinished {
		return fmt.Errorf("%w: start from %s", ErrWrongPhase, g.phase)
	}
	g.phase = PhaseReady
	g.score = 0
	g.round = 0
	g.feedback = Feedback{}
	return g.bind()
}

// Begin moves from ready to playing.
func (g *Game) Begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseReady {
		return fmt.Errorf("%w: begin from %s", ErrWrongPhase, g.phase)
	}
	g.phase = PhasePlaying
	return nil
}

// Answer scores a choice for the current round. A correct answer shows the
// category fact; a wrong one costs points, never below zero.
func (g *Game) Answer(choice models.Category) (Feedback, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhasePlaying {
		return Feedback{}, fmt.Errorf("%w: answer in %s", ErrWrongPhase, g.phase)
	}
	if g.feedback.Show {
		return g.feedback, ErrFeedbackShown
	}
	if !choice.Valid() {
		return Feedback{}, fmt.Errorf("%w: %d", models.ErrInvalidCategory, int(choice))
	}

	ev := g.schedule[g.round]
	correct := choice == ev.Category
	if correct {
		g.score += CorrectPoints
		info, _ := g.table.Lookup(ev.Category)
		g.feedback = Feedback{Show: true, IsCorrect: true, Message: info.Fact}
	} else {
		g.score -= WrongPenalty
		if g.score < 0 {
			g.score = 0
		}
		g.feedback = Feedback{Show: true, Message: WrongAnswerMsg}
	}
	return g.feedback, nil
}

// Advance hides the feedback. A correct answer moves to the next round, or
// finishes the game after the last; a wrong one repeats the round.
func (g *Game) Advance() (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhasePlaying {
		return g.state(), fmt.Errorf("%w: advance in %s", ErrWrongPhase, g.phase)
	}
	if !g.feedback.Show {
		return g.state(), ErrNoFeedback
	}

	correct := g.feedback.IsCorrect
	g.feedback.Show = false
	switch {
	case correct && g.round >= g.rounds-1:
		g.phase = PhaseFinished
	case correct:
		g.round++
		if err := g.bind(); err != nil {
			return g.state(), err
		}
	}
	return g.state(), nil
}

func (g *Game) bind() error {
	if g.binder == nil {
		return nil
	}
	ev := g.schedule[g.round]
	g.binder.SetTimeLabel(ev.Time)
	return g.binder.SetCategory(ev.Category)
}
