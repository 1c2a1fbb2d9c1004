package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/Krimson/heart-rhythm-day/internal/audio"
	"github.com/Krimson/heart-rhythm-day/internal/config"
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/senders"
)

func main() {
	cfg, err := config.LoadMonitor(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		os.Exit(2)
	}

	// The terminal belongs to tcell, so logs go to a file.
	logPath := filepath.Join(os.TempDir(), "heart-monitor.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "monitor: open log: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	log.Printf("[INFO] Starting monitor: category=%s intro=%v quiz=%v sound=%v fps=%d",
		cfg.Category, cfg.Intro, cfg.Quiz, cfg.Sound, cfg.FrameRate)

	if err := run(cfg); err != nil {
		log.Printf("[FATAL] %v", err)
		fmt.Fprintf(os.Stderr, "monitor: %v (log: %s)\n", err, logPath)
		os.Exit(1)
	}
	log.Printf("[INFO] Monitor stopped")
}

func run(cfg *config.MonitorConfig) error {
	table := models.DefaultCategoryTable()
	schedule := models.DefaultSchedule()

	var sender senders.DataSender
	if cfg.TraceFile != "" {
		fs, err := senders.NewFileSender(cfg.TraceFile)
		if err != nil {
			return fmt.Errorf("trace file: %w", err)
		}
		defer fs.Close()
		sender = fs
	}

	var tone *audio.MonitorTone
	if cfg.Sound {
		info, err := table.Lookup(cfg.Category)
		if err != nil {
			return err
		}
		tone = audio.NewMonitorTone(info, audio.DefaultSampleRate, float64(cfg.FrameRate))
		if err := speaker.Init(tone.SampleRate(), tone.SampleRate().N(100*time.Millisecond)); err != nil {
			log.Printf("[WARN] Audio unavailable, running silent: %v", err)
			tone = nil
		} else {
			ctrl := &beep.Ctrl{Streamer: tone}
			speaker.Play(ctrl)
			defer func() {
				speaker.Lock()
				ctrl.Paused = true
				speaker.Unlock()
				speaker.Clear()
			}()
		}
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("screen init: %w", err)
	}
	defer screen.Fini()
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack))
	screen.HideCursor()

	app, err := NewApp(cfg, screen, table, schedule, tone, sender)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}
