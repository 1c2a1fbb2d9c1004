package quiz

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

type fakeBinder struct {
	mu       sync.Mutex
	category models.Category
	label    string
	calls    int
}

func (f *fakeBinder) SetCategory(c models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.category = c
	f.calls++
	return nil
}

func (f *fakeBinder) SetTimeLabel(l string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.label = l
}

func newGame(t *testing.T, b Binder) *Game {
	t.Helper()
	g, err := NewGame(models.DefaultSchedule(), nil, b)
	require.NoError(t, err)
	return g
}

func TestGameFullDay(t *testing.T) {
	binder := &fakeBinder{}
	g := newGame(t, binder)
	assert.Equal(t, PhaseIntro, g.State().Phase)

	require.NoError(t, g.Start())
	assert.Equal(t, PhaseReady, g.State().Phase)
	assert.Equal(t, "02:00", binder.label)

	_, err := g.Answer(models.Resting)
	assert.ErrorIs(t, err, ErrWrongPhase, "no answers before playing")

	require.NoError(t, g.Begin())

	for i, ev := range models.DefaultSchedule() {
		assert.Equal(t, ev.Category, binder.category)
		fb, err := g.Answer(ev.Category)
		require.NoError(t, err)
		assert.True(t, fb.IsCorrect)
		assert.NotEmpty(t, fb.Message)
		assert.Equal(t, CorrectDelay, fb.Delay())

		st, err := g.Advance()
		require.NoError(t, err)
		if i < MaxRounds-1 {
			assert.Equal(t, i+1, st.Round)
			assert.Equal(t, PhasePlaying, st.Phase)
		}
	}

	st := g.State()
	assert.Equal(t, PhaseFinished, st.Phase)
	assert.Equal(t, MaxRounds*CorrectPoints, st.Score)
	assert.False(t, st.Feedback.Show)
}

func TestWrongAnswerRepeatsRoundAndFloorsScore(t *testing.T) {
	g := newGame(t, nil)
	require.NoError(t, g.Start())
	require.NoError(t, g.Begin())

	fb, err := g.Answer(models.HighExertion)
	require.NoError(t, err)
	assert.False(t, fb.IsCorrect)
	assert.Equal(t, WrongAnswerMsg, fb.Message)
	assert.Equal(t, WrongDelay, fb.Delay())
	assert.Zero(t, g.State().Score, "score never negative")

	st, err := g.Advance()
	require.NoError(t, err)
	assert.Zero(t, st.Round)

	_, err = g.Answer(models.Resting)
	require.NoError(t, err)
	_, err = g.Advance()
	require.NoError(t, err)
	assert.Equal(t, 10, g.State().Score)

	_, err = g.Answer(models.Resting)
	require.NoError(t, err)
	assert.Equal(t, 5, g.State().Score)
}

func TestSecondAnswerIgnoredWhileFeedbackShown(t *testing.T) {
	g := newGame(t, nil)
	require.NoError(t, g.Start())
	require.NoError(t, g.Begin())

	first, err := g.Answer(models.Resting)
	require.NoError(t, err)
	again, err := g.Answer(models.Anomalous)
	assert.ErrorIs(t, err, ErrFeedbackShown)
	assert.Equal(t, first, again)
	assert.Equal(t, 10, g.State().Score)

	_, err = g.Advance()
	require.NoError(t, err)
	_, err = g.Advance()
	assert.ErrorIs(t, err, ErrNoFeedback)
}

func TestGameRejectsBadInput(t *testing.T) {
	_, err := NewGame(nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptySchedule)

	_, err = NewGame([]models.DayEvent{{Time: "00:00", Category: models.Category(9)}}, nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidCategory)

	g := newGame(t, nil)
	require.NoError(t, g.Start())
	assert.ErrorIs(t, g.Start(), ErrWrongPhase)
	require.NoError(t, g.Begin())
	_, err = g.Answer(models.Category(9))
	assert.ErrorIs(t, err, models.ErrInvalidCategory)
}

func TestShortScheduleLimitsRounds(t *testing.T) {
	sched := models.DefaultSchedule()[:2]
	g, err := NewGame(sched, nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start())
	require.NoError(t, g.Begin())

	for _, ev := range sched {
		_, err := g.Answer(ev.Category)
		require.NoError(t, err)
		_, err = g.Advance()
		require.NoError(t, err)
	}
	assert.Equal(t, PhaseFinished, g.State().Phase)

	require.NoError(t, g.Start(), "play again")
	assert.Zero(t, g.State().Score)
}

func TestRunnerDrivesDelays(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	g := newGame(t, nil)
	r := NewRunner(g, Delays{Ready: 5 * time.Millisecond, Correct: 5 * time.Millisecond, Wrong: 5 * time.Millisecond},
		func(s State) {
			mu.Lock()
			phases = append(phases, s.Phase)
			mu.Unlock()
		})
	defer r.Stop()

	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return g.State().Phase == PhasePlaying }, time.Second, time.Millisecond)

	_, err := r.Answer(models.Resting)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return g.State().Round == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, PhaseReady, phases[0])
	assert.Contains(t, phases, PhasePlaying)
}
