package emulator

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Krimson/heart-rhythm-day/internal/generators"
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/render"
)

var epoch = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

func lookup(t *testing.T, c models.Category) models.CategoryInfo {
	t.Helper()
	info, err := models.DefaultCategoryTable().Lookup(c)
	require.NoError(t, err)
	return info
}

func TestAdvanceWraps(t *testing.T) {
	info := models.CategoryInfo{Category: models.Resting, Rate: 500, HasRate: true}
	// 500 bpm gives an increment of 0.1
	assert.InDelta(t, 0.1, Increment(info), 1e-12)
	assert.InDelta(t, 0.05, Advance(0.95, info), 1e-9)

	for _, p := range []float64{0, 0.5, 0.9999999, 0.95} {
		next := Advance(p, info)
		assert.GreaterOrEqual(t, next, 0.0)
		assert.Less(t, next, 1.0)
	}
}

func TestIncrementRateOrdering(t *testing.T) {
	rest := Increment(lookup(t, models.Resting))
	walk := Increment(lookup(t, models.LightActivity))
	sprint := Increment(lookup(t, models.HighExertion))

	assert.InDelta(t, BaseIncrement, rest, 1e-12)
	assert.Greater(t, walk, rest)
	assert.Greater(t, sprint, walk)
	assert.Equal(t, AnomalousIncrement, Increment(lookup(t, models.Anomalous)))
}

func TestOptionsDefaults(t *testing.T) {
	o, err := Options{}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 801, o.Capacity)
	assert.Equal(t, DefaultStepSize, o.StepSize)
	assert.Equal(t, DefaultDisplayHeight, o.DisplayHeight)
	assert.NotNil(t, o.Table)
	assert.NotNil(t, o.Generator)

	w, h := Options{}.SurfaceSize()
	assert.Equal(t, 1201, w)
	assert.Equal(t, 400, h)

	_, err = Options{StepSize: -1}.withDefaults()
	assert.Error(t, err)
	_, err = Options{Capacity: -3}.withDefaults()
	assert.Error(t, err)
}

type SessionSuite struct {
	suite.Suite
	sched  *ManualScheduler
	driver *Driver
}

func (s *SessionSuite) SetupTest() {
	s.sched = NewManualScheduler()
	s.driver = NewDriver(s.sched)
}

func (s *SessionSuite) newSession(c models.Category, opts Options) *Session {
	if opts.Generator == nil {
		opts.Generator = generators.NewWaveformGenerator(nil, rand.New(rand.NewSource(7)))
	}
	sess, err := NewSession(nil, c, opts)
	s.Require().NoError(err)
	return sess
}

func (s *SessionSuite) fire(n int) {
	for i := 0; i < n; i++ {
		s.Require().Equal(1, s.sched.Fire(epoch.Add(time.Duration(i)*DefaultFrameInterval)))
	}
}

func (s *SessionSuite) TestFreshSessionIsPrefilled() {
	sess := s.newSession(models.Resting, Options{Capacity: 801})
	samples := sess.Samples()
	s.Len(samples, 801)
	for _, v := range samples {
		s.Zero(v)
	}
	s.Zero(sess.Phase())
	s.False(sess.Running())
}

func (s *SessionSuite) TestRestingThousandTicks() {
	sess := s.newSession(models.Resting, Options{Capacity: 801})
	h, err := s.driver.Start(sess)
	s.Require().NoError(err)

	for i := 0; i < 1000; i++ {
		s.Require().Equal(1, s.sched.Pending(), "exactly one outstanding tick")
		s.sched.Fire(epoch)
		s.Require().Equal(801, sess.Len())
		p := sess.Phase()
		s.Require().GreaterOrEqual(p, 0.0)
		s.Require().Less(p, 1.0)
	}

	s.Equal(uint64(1000), sess.Stats().Ticks)
	s.Equal(uint64(1000), sess.Stats().SkippedFrames, "headless session skips every render")

	// the trace now holds real rhythm, spikes included
	max := 0.0
	for _, v := range sess.Samples() {
		if v > max {
			max = v
		}
	}
	s.Greater(max, 20.0)

	s.driver.Stop(h)
	s.Zero(s.sched.Pending())
}

func (s *SessionSuite) TestAnomalousHundredTicks() {
	sel, err := generators.NewTickPatternSelector(25)
	s.Require().NoError(err)
	gen := generators.NewWaveformGenerator(sel, rand.New(rand.NewSource(3)))

	rec := &recorder{}
	sess := s.newSession(models.Anomalous, Options{Generator: gen, Sender: rec})
	_, err = s.driver.Start(sess)
	s.Require().NoError(err)
	s.fire(100)

	s.Require().Len(rec.points, 100)
	seen := map[string]bool{}
	for _, p := range rec.points {
		s.Require().NotEmpty(p.Pattern)
		seen[p.Pattern] = true
		pat := patternByName(p.Pattern)
		lo, hi, err := pat.Bounds()
		s.Require().NoError(err)
		s.Require().GreaterOrEqual(p.Value, lo)
		s.Require().LessOrEqual(p.Value, hi)
		s.Require().NoError(p.Validate())
	}
	s.GreaterOrEqual(len(seen), 2)
}

func (s *SessionSuite) TestCategorySwitchKeepsBuffer() {
	rec := &recorder{}
	sess := s.newSession(models.Resting, Options{Capacity: 300, Sender: rec})
	h, err := s.driver.Start(sess)
	s.Require().NoError(err)
	s.fire(50)

	before := sess.Samples()
	phase := sess.Phase()

	s.Require().NoError(SetCategory(h, models.HighExertion))
	s.Equal(before, sess.Samples(), "rebinding does not touch the buffer")
	s.Equal(phase, sess.Phase())

	s.fire(1)
	after := sess.Samples()
	s.Len(after, 300)
	s.Equal(before[1:], after[:299], "one sample shifted in")

	last := rec.points[len(rec.points)-1]
	s.Equal(models.HighExertion, last.Category)
	s.InDelta(generators.Rhythm(last.Phase), after[299], 1e-12)
	s.InDelta(phase+Increment(lookup(s.T(), models.HighExertion)), last.Phase, 1e-12)
}

func (s *SessionSuite) TestSetCategoryRejectsInvalid() {
	sess := s.newSession(models.Resting, Options{})
	s.ErrorIs(sess.SetCategory(models.Category(42)), models.ErrInvalidCategory)
	s.Equal(models.Resting, sess.Category())

	_, err := NewSession(nil, models.Category(-1), Options{})
	s.ErrorIs(err, models.ErrInvalidCategory)
}

func (s *SessionSuite) TestStopIsIdempotent() {
	sess := s.newSession(models.Resting, Options{})
	h, err := s.driver.Start(sess)
	s.Require().NoError(err)
	s.fire(3)

	s.driver.Stop(h)
	s.driver.Stop(h)
	DestroySession(h)
	s.False(sess.Running())
	s.Zero(s.sched.Fire(epoch))
	s.Equal(uint64(3), sess.Stats().Ticks)
}

func (s *SessionSuite) TestStaleCallbackDoesNotTick() {
	sess := s.newSession(models.Resting, Options{})
	h, err := s.driver.Start(sess)
	s.Require().NoError(err)

	// a scheduler that ignores Cancel still must not run the body
	leaky := &leakyScheduler{inner: s.sched}
	sess.mu.Lock()
	sess.scheduler = leaky
	sess.mu.Unlock()

	s.driver.Stop(h)
	s.Equal(1, s.sched.Fire(epoch))
	s.Zero(sess.Stats().Ticks)
}

func (s *SessionSuite) TestRestartAfterStop() {
	sess := s.newSession(models.Resting, Options{})
	h, err := s.driver.Start(sess)
	s.Require().NoError(err)

	_, err = s.driver.Start(sess)
	s.ErrorIs(err, ErrAlreadyRunning)

	s.driver.Stop(h)
	h2, err := s.driver.Start(sess)
	s.Require().NoError(err)
	s.fire(2)

	// the old handle no longer controls the new run
	s.driver.Stop(h)
	s.True(sess.Running())
	s.driver.Stop(h2)
	s.False(sess.Running())
}

func (s *SessionSuite) TestSchedulingUnavailableStopsSession() {
	sched := &failingScheduler{inner: s.sched, allow: 3}
	driver := NewDriver(sched)
	sess := s.newSession(models.Resting, Options{})

	h, err := driver.Start(sess)
	s.Require().NoError(err)
	s.fire(2)
	s.True(sess.Running())

	// third tick runs, its reschedule fails
	s.Equal(1, s.sched.Fire(epoch))
	s.False(sess.Running())
	s.Equal(uint64(3), sess.Stats().Ticks)
	s.Zero(s.sched.Pending())

	s.NotPanics(func() { driver.Stop(h) })

	closed := NewManualScheduler()
	closed.Close()
	_, err = NewDriver(closed).Start(s.newSession(models.Resting, Options{}))
	s.ErrorIs(err, ErrSchedulingUnavailable)
}

func (s *SessionSuite) TestSurfaceUnavailableSkipsFrame() {
	surface := render.NewImageSurface(1201, 400)
	sess, err := NewSession(surface, models.Resting, Options{ShowLabels: true, TimeLabel: "02:00"})
	s.Require().NoError(err)

	_, err = s.driver.Start(sess)
	s.Require().NoError(err)
	s.fire(2)
	s.Equal(uint64(2), sess.Stats().Rendered)

	sess.AttachSurface(render.NewImageSurface(0, 0))
	s.fire(3)
	s.Equal(uint64(3), sess.Stats().SkippedFrames)
	s.True(sess.Running(), "a missing surface does not end the session")
	s.Equal(uint64(5), sess.Stats().Ticks)

	sess.AttachSurface(surface)
	s.fire(1)
	s.Equal(uint64(3), sess.Stats().Rendered)
}

func (s *SessionSuite) TestIndependentSessions() {
	a := s.newSession(models.Resting, Options{})
	b := s.newSession(models.HighExertion, Options{})
	_, err := s.driver.Start(a)
	s.Require().NoError(err)
	_, err = s.driver.Start(b)
	s.Require().NoError(err)

	for i := 0; i < 10; i++ {
		s.Equal(2, s.sched.Fire(epoch))
	}
	s.NotEqual(a.Phase(), b.Phase())
	s.NotEqual(a.Samples(), b.Samples())
	s.NotEqual(a.ID(), b.ID())
}

func (s *SessionSuite) TestRenderToAndSnapshot() {
	sess := s.newSession(models.Anomalous, Options{ID: "fixed", TimeLabel: "11:15", ShowLabels: true})
	sess.Step(epoch)

	snap := sess.Snapshot()
	s.Equal("fixed", snap.ID)
	s.Equal(uint64(1), snap.Tick)
	s.NotEmpty(snap.Pattern)
	s.Equal(snap.Samples[len(snap.Samples)-1], snap.Last)

	img := render.NewImageSurface(sess.Options().SurfaceSize())
	s.NoError(sess.RenderTo(img))
	s.ErrorIs(sess.RenderTo(nil), render.ErrSurfaceUnavailable)
	s.Equal(uint64(1), sess.Snapshot().Tick, "on-demand render does not tick")
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func TestCreateAndDestroyWithTicker(t *testing.T) {
	sched := NewTickerScheduler(time.Millisecond, 0)
	defer sched.Close()

	h, err := CreateSession(sched, nil, models.LightActivity, Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.Session().Stats().Ticks >= 5
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, SetCategory(h, models.Anomalous))
	DestroySession(h)
	ticks := h.Session().Stats().Ticks

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticks, h.Session().Stats().Ticks, "no ticks after destroy")
	assert.Zero(t, sched.Pending())
	DestroySession(h)
}

func TestTickerSchedulerCancelAndClose(t *testing.T) {
	sched := NewTickerScheduler(10*time.Millisecond, 2*time.Millisecond)

	var mu sync.Mutex
	fired := 0
	h, err := sched.Schedule(func(time.Time) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	require.NoError(t, err)
	sched.Cancel(h)
	assert.Zero(t, sched.Pending())

	done := make(chan struct{})
	_, err = sched.Schedule(func(time.Time) { close(done) })
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}

	sched.Close()
	_, err = sched.Schedule(func(time.Time) {})
	assert.ErrorIs(t, err, ErrSchedulingUnavailable)

	mu.Lock()
	assert.Zero(t, fired)
	mu.Unlock()
}

type recorder struct {
	points []models.TracePoint
}

func (r *recorder) Send(p models.TracePoint) error {
	r.points = append(r.points, p)
	return nil
}
func (r *recorder) Validate() error { return nil }
func (r *recorder) Close() error    { return nil }

type failingScheduler struct {
	inner *ManualScheduler
	allow int
}

func (f *failingScheduler) Schedule(fn func(time.Time)) (FrameHandle, error) {
	if f.allow == 0 {
		return 0, ErrSchedulingUnavailable
	}
	f.allow--
	return f.inner.Schedule(fn)
}

func (f *failingScheduler) Cancel(h FrameHandle) { f.inner.Cancel(h) }

type leakyScheduler struct {
	inner *ManualScheduler
}

func (l *leakyScheduler) Schedule(fn func(time.Time)) (FrameHandle, error) {
	return l.inner.Schedule(fn)
}

func (l *leakyScheduler) Cancel(FrameHandle) {}

func patternByName(name string) generators.Pattern {
	for _, p := range []generators.Pattern{generators.PatternWideNoise, generators.PatternFlutter, generators.PatternFlatJitter} {
		if p.String() == name {
			return p
		}
	}
	return generators.Pattern(-1)
}

func TestNilHandle(t *testing.T) {
	assert.ErrorIs(t, SetCategory(nil, models.Resting), ErrNoSession)
	assert.ErrorIs(t, SetCategory(&Handle{}, models.Anomalous), ErrNoSession)
	assert.NotPanics(t, func() { DestroySession(nil) })
}
