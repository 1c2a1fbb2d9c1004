package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// MaxClipDuration bounds exported clips.
const MaxClipDuration = 60 * time.Second

// ErrInvalidDuration is returned for clip lengths outside (0, MaxClipDuration].
var ErrInvalidDuration = errors.New("invalid clip duration")

// EncodeWAV writes a mono 16-bit WAV clip of the monitor tone for info.
func EncodeWAV(w io.WriteSeeker, info models.CategoryInfo, d time.Duration, frameRate float64) error {
	if d <= 0 || d > MaxClipDuration {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	format := beep.Format{SampleRate: DefaultSampleRate, NumChannels: 1, Precision: 2}
	clip := Clip(info, d, format.SampleRate, frameRate, 1)
	if err := wav.Encode(w, clip, format); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	return nil
}

// WAVBytes renders the clip into memory.
func WAVBytes(info models.CategoryInfo, d time.Duration, frameRate float64) ([]byte, error) {
	var buf WriteSeekBuffer
	if err := EncodeWAV(&buf, info, d, frameRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSeekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch the header sizes.
type WriteSeekBuffer struct {
	buf []byte
	pos int
}

func (b *WriteSeekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *WriteSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

// Bytes returns the written data.
func (b *WriteSeekBuffer) Bytes() []byte { return b.buf }
