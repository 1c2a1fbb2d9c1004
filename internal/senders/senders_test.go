package senders

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

func point(tick uint64, v float64) models.TracePoint {
	return models.TracePoint{
		SessionID: "s1",
		Tick:      tick,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Category:  models.Resting,
		Phase:     0.25,
		Value:     v,
		Pattern:   "none",
	}
}

func TestJSONLStreamWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLStreamWriter(&buf, true)

	require.NoError(t, w.WriteTracePoint(point(1, 2.5)))
	require.NoError(t, w.WriteBatch([]models.TracePoint{point(2, 3), point(3, -4)}))

	sc := bufio.NewScanner(&buf)
	var got []models.TracePoint
	for sc.Scan() {
		p, err := models.ParseJSON(sc.Text())
		require.NoError(t, err)
		got = append(got, p)
	}
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[2].Tick)
	assert.Equal(t, -4.0, got[2].Value)

	stats := w.GetStats()
	assert.Equal(t, int64(3), stats.TotalLines)
	assert.Zero(t, stats.ErrorsCount)
}

func TestJSONLWriterRejectsInvalidBatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLStreamWriter(&buf, true)

	bad := point(2, 1)
	bad.Phase = 1.5
	err := w.WriteBatch([]models.TracePoint{point(1, 0), bad})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidPhase)
	assert.Zero(t, buf.Len(), "nothing written for a rejected batch")
	assert.Equal(t, int64(1), w.GetStats().ErrorsCount)
}

func TestJSONLWriterClosed(t *testing.T) {
	w := NewJSONLStreamWriter(&bytes.Buffer{}, false)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteTracePoint(point(1, 0)), ErrSenderClosed)
	assert.ErrorIs(t, w.Flush(), ErrSenderClosed)
}

func TestFileSenderWritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "nested", "trace.jsonl")

	fs, err := NewFileSender(first)
	require.NoError(t, err)
	require.NoError(t, fs.Validate())

	require.NoError(t, fs.Send(point(1, 1)))
	require.NoError(t, fs.SendBatch([]models.TracePoint{point(2, 2)}))

	second := filepath.Join(dir, "nested", "trace-2.jsonl")
	require.NoError(t, fs.RotateFile(second))
	require.NoError(t, fs.Send(point(3, 3)))
	require.NoError(t, fs.Close())

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))

	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))

	assert.Equal(t, int64(3), fs.GetStats().TotalLines)
}

func TestStreamWriterCannotRotate(t *testing.T) {
	w := NewJSONLStreamWriter(&bytes.Buffer{}, false)
	assert.ErrorIs(t, w.RotateFile("x.jsonl"), ErrNotConfigured)
}

type recordingSender struct {
	points []models.TracePoint
	err    error
	closed bool
}

func (r *recordingSender) Send(p models.TracePoint) error {
	if r.err != nil {
		return r.err
	}
	r.points = append(r.points, p)
	return nil
}
func (r *recordingSender) Validate() error { return nil }
func (r *recordingSender) Close() error    { r.closed = true; return nil }

func TestMultiSenderDeliversToAll(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSender{}
	b := &recordingSender{err: boom}
	c := &recordingSender{}

	ms := NewMultiSender(a, nil, b)
	ms.Add(c)
	ms.Add(nil)
	assert.Equal(t, 3, ms.Len())

	err := ms.Send(point(1, 1))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.points, 1)
	assert.Len(t, c.points, 1)

	m := ms.GetMetrics()
	assert.Equal(t, int64(2), m.TotalSent)
	assert.Equal(t, int64(1), m.TotalFailed)

	require.NoError(t, ms.Close())
	assert.True(t, a.closed)
	assert.True(t, c.closed)
	assert.Zero(t, ms.Len())
}
