package quiz

import (
	"log"
	"sync"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// Runner drives a Game's delays with timers and reports every change.
type Runner struct {
	game     *Game
	onChange func(State)

	mu     sync.Mutex
	timer  *time.Timer
	delays Delays
}

// Delays lets callers shorten the pacing, mostly for tests.
type Delays struct {
	Ready   time.Duration
	Correct time.Duration
	Wrong   time.Duration
}

// DefaultDelays is the game pacing.
func DefaultDelays() Delays {
	return Delays{Ready: ReadyDelay, Correct: CorrectDelay, Wrong: WrongDelay}
}

// NewRunner wraps game. onChange runs on the timer goroutine; it may be nil.
func NewRunner(game *Game, delays Delays, onChange func(State)) *Runner {
	return &Runner{game: game, delays: delays, onChange: onChange}
}

// Game returns the wrapped game.
func (r *Runner) Game() *Game { return r.game }

// Start begins a game and schedules Begin.
func (r *Runner) Start() error {
	if err := r.game.Start(); err != nil {
		return err
	}
	r.notify()
	r.after(r.delays.Ready, func() {
		if err := r.game.Begin(); err != nil {
			log.Printf("[WARN] Quiz begin: %v", err)
			return
		}
		r.notify()
	})
	return nil
}

// Answer scores choice and schedules Advance.
func (r *Runner) Answer(choice models.Category) (Feedback, error) {
	fb, err := r.game.Answer(choice)
	if err != nil {
		return fb, err
	}
	r.notify()

	delay := r.delays.Wrong
	if fb.IsCorrect {
		delay = r.delays.Correct
	}
	r.after(delay, func() {
		if _, err := r.game.Advance(); err != nil {
			log.Printf("[WARN] Quiz advance: %v", err)
			return
		}
		r.notify()
	})
	return fb, nil
}

// Stop cancels a pending transition.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Runner) after(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(d, fn)
}

func (r *Runner) notify() {
	if r.onChange != nil {
		r.onChange(r.game.State())
	}
}
