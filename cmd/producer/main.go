package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Krimson/heart-rhythm-day/internal/analysis"
	"github.com/Krimson/heart-rhythm-day/internal/batch"
	"github.com/Krimson/heart-rhythm-day/internal/config"
	"github.com/Krimson/heart-rhythm-day/internal/emulator"
	"github.com/Krimson/heart-rhythm-day/internal/generators"
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/senders"
	"github.com/Krimson/heart-rhythm-day/internal/stream"
)

const statsInterval = 5 * time.Second

func main() {
	log.Printf("[INFO] Starting heart rhythm producer...")

	cfg, err := config.LoadProducer(os.Args[1:])
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	if cfg.Watch {
		err = watch(ctx, cfg)
	} else {
		err = produce(ctx, cfg)
	}
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	log.Printf("[INFO] Producer stopped")
}

// produce runs one headless session and ships its samples.
func produce(ctx context.Context, cfg *config.ProducerConfig) error {
	var sinks batch.MultiSink
	var natsSink *stream.NATSSink
	if cfg.NATSURL != "" {
		nc, err := stream.Connect(cfg.NATSURL, "heart-producer")
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Drain()
		natsSink = stream.NewNATSSink(nc, cfg.WavePrefix, cfg.Params)
		sinks = append(sinks, natsSink)
		log.Printf("[INFO] Publishing to %s on %s.<session>", cfg.NATSURL, cfg.WavePrefix)
	}

	out := senders.NewMultiSender()
	if cfg.Output != "" {
		fs, err := senders.NewFileSender(cfg.Output)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		out.Add(fs)
		log.Printf("[INFO] Writing samples to %s", cfg.Output)
	}

	var batcher *batch.Batcher
	if len(sinks) > 0 {
		batcher = batch.NewBatcher(batch.DefaultConfig(), sinks)
		out.Add(batcher)
	}

	detector := analysis.NewBeatDetector(analysis.DefaultThreshold, analysis.DefaultRefractoryTicks, float64(cfg.FrameRate))
	out.Add(analysis.NewBeatSender(detector, func(p models.TracePoint, bpm float64) {
		if natsSink == nil || bpm <= 0 {
			return
		}
		if err := natsSink.PublishBeat(p.SessionID, p.Category.String(), p.Tick, bpm); err != nil {
			log.Printf("[WARN] Failed to publish beat: %v", err)
		}
	}))
	defer out.Close()

	selector, err := generators.SelectorForMode(cfg.PatternMode)
	if err != nil {
		return err
	}

	scheduler := emulator.NewTickerScheduler(config.FrameInterval(cfg.FrameRate), 0)
	defer scheduler.Close()

	h, err := emulator.CreateSession(scheduler, nil, cfg.Category, emulator.Options{
		Generator: generators.NewWaveformGenerator(selector, nil),
		Sender:    out,
	})
	if err != nil {
		return err
	}
	defer emulator.DestroySession(h)
	log.Printf("[INFO] Session %s emitting %s at %d fps", h.Session().ID(), cfg.Category, cfg.FrameRate)

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := h.Session().Stats()
			log.Printf("[STATS] ticks=%d send_errors=%d measured_bpm=%.1f", st.Ticks, st.SendErrors, detector.BPM())
			if batcher != nil {
				received, dropped, flushed, _ := batcher.GetStats()
				log.Printf("[STATS] batch received=%d dropped=%d flushed=%d", received, dropped, flushed)
			}
			if natsSink != nil {
				published, failed := natsSink.Stats()
				log.Printf("[STATS] nats published=%d failed=%d", published, failed)
			}
		}
	}
}

// watch subscribes to every session's wave subject and logs measured rates.
func watch(ctx context.Context, cfg *config.ProducerConfig) error {
	nc, err := stream.Connect(cfg.NATSURL, "heart-producer-watch")
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer nc.Close()

	sub, err := stream.Watch(nc, cfg.WavePrefix, float64(cfg.FrameRate), func(id string, bpm float64) {
		log.Printf("[STATS] session=%s bpm=%.1f", id, bpm)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	params, err := nc.Subscribe(cfg.Params, func(m *nats.Msg) {
		log.Printf("[INFO] params %s", m.Data)
	})
	if err != nil {
		return err
	}
	defer params.Unsubscribe()

	log.Printf("[INFO] Watching %s.> and %s", cfg.WavePrefix, cfg.Params)
	<-ctx.Done()
	return nil
}
