package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrMalformedFrame = errors.New("frame length is not a multiple of 4")

// EncodeFrame packs values as little-endian float32.
func EncodeFrame(values []float64) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

func DecodeFrame(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// WaveSubject is the per-session wave subject, e.g. ecg.wave.<id>.
func WaveSubject(prefix, sessionID string) string {
	return prefix + "." + sessionID
}

// SessionFromSubject is the inverse of WaveSubject.
func SessionFromSubject(prefix, subject string) (string, bool) {
	id, ok := strings.CutPrefix(subject, prefix+".")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
