package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Krimson/heart-rhythm-day/internal/analysis"
	"github.com/Krimson/heart-rhythm-day/internal/batch"
)

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ParamMsg is published on the params subject for every detected beat.
type ParamMsg struct {
	SessionID string  `json:"session_id"`
	Ts        int64   `json:"ts"`
	HR        int     `json:"hr"`
	Category  string  `json:"category"`
	Tick      uint64  `json:"tick"`
	RawBPM    float64 `json:"raw_bpm"`
}

// NATSSink publishes flushed batches as float32 frames.
type NATSSink struct {
	pub           Publisher
	wavePrefix    string
	paramsSubject string

	published atomic.Int64
	failed    atomic.Int64
}

func NewNATSSink(pub Publisher, wavePrefix, paramsSubject string) *NATSSink {
	if wavePrefix == "" {
		wavePrefix = DefaultWavePrefix
	}
	if paramsSubject == "" {
		paramsSubject = DefaultParamsSubject
	}
	return &NATSSink{pub: pub, wavePrefix: wavePrefix, paramsSubject: paramsSubject}
}

// Consume implements batch.Sink.
func (s *NATSSink) Consume(ctx context.Context, b batch.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.Points) == 0 {
		return nil
	}
	if err := s.pub.Publish(WaveSubject(s.wavePrefix, b.SessionID), EncodeFrame(b.Values())); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("publish wave: %w", err)
	}
	s.published.Add(1)
	return nil
}

// PublishBeat reports a measured rate on the params subject.
func (s *NATSSink) PublishBeat(sessionID, category string, tick uint64, bpm float64) error {
	msg := ParamMsg{
		SessionID: sessionID,
		Ts:        time.Now().UnixMilli(),
		HR:        int(bpm + 0.5),
		Category:  category,
		Tick:      tick,
		RawBPM:    bpm,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(s.paramsSubject, data); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("publish params: %w", err)
	}
	return nil
}

func (s *NATSSink) Stats() (published, failed int64) {
	return s.published.Load(), s.failed.Load()
}

// Watch subscribes to every session's wave subject and runs a beat detector
// per session, calling onBeat for each detected beat. Frames carry no tick,
// so ticks are counted per session from the first frame seen.
func Watch(nc *nats.Conn, wavePrefix string, frameRate float64, onBeat func(sessionID string, bpm float64)) (*nats.Subscription, error) {
	type state struct {
		detector *analysis.BeatDetector
		tick     uint64
	}
	sessions := make(map[string]*state)

	return nc.Subscribe(wavePrefix+".>", func(msg *nats.Msg) {
		id, ok := SessionFromSubject(wavePrefix, msg.Subject)
		if !ok {
			return
		}
		values, err := DecodeFrame(msg.Data)
		if err != nil {
			log.Printf("[WARN] Dropping frame on %s: %v", msg.Subject, err)
			return
		}
		st := sessions[id]
		if st == nil {
			st = &state{detector: analysis.NewBeatDetector(analysis.DefaultThreshold, analysis.DefaultRefractoryTicks, frameRate)}
			sessions[id] = st
		}
		for _, v := range values {
			st.tick++
			if bpm, beat := st.detector.Process(float64(v), st.tick); beat && bpm > 0 {
				onBeat(id, bpm)
			}
		}
	})
}
