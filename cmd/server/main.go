package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/Krimson/heart-rhythm-day/docs"
	"github.com/Krimson/heart-rhythm-day/internal/batch"
	"github.com/Krimson/heart-rhythm-day/internal/catalog"
	"github.com/Krimson/heart-rhythm-day/internal/config"
	"github.com/Krimson/heart-rhythm-day/internal/emulator"
	"github.com/Krimson/heart-rhythm-day/internal/health"
	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/senders"
	"github.com/Krimson/heart-rhythm-day/internal/session"
	"github.com/Krimson/heart-rhythm-day/internal/stream"
	"github.com/Krimson/heart-rhythm-day/internal/websocket"
)

// @title Heart Rhythm Day API
// @version 1.0
// @description Live cardiac monitor sessions: trace frames, samples, tone and the day schedule.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

const probeInterval = 10 * time.Second

func main() {
	log.Printf("[INFO] Starting heart rhythm server...")

	cfg := config.Load()
	log.Printf("[INFO] Configuration loaded: http_port=%s grpc_port=%s frame_interval=%v pattern_mode=%s",
		cfg.HTTPPort, cfg.GRPCPort, cfg.FrameInterval, cfg.AnomalyPatternMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthServer := health.NewHealthServer()

	// Content tables
	var repo catalog.Repository = catalog.Defaults{}
	if cfg.PostgresDSN != "" {
		pg, err := catalog.NewPostgresRepositoryFromDSN(cfg.PostgresDSN)
		if err != nil {
			log.Printf("[WARN] PostgreSQL unavailable, using built-in content: %v", err)
		} else {
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				log.Printf("[WARN] Failed to migrate content tables: %v", err)
			}
			repo = pg
			go healthServer.Monitor(ctx, health.ServicePostgres, probeInterval, pg.Ping)
			log.Printf("[INFO] Connected to PostgreSQL")
		}
	}
	table, schedule, err := catalog.Load(ctx, repo)
	if err != nil {
		log.Printf("[WARN] Content tables incomplete, defaults used: %v", err)
	}

	// Session cache
	var cache session.CacheStore = session.NewMemoryStore()
	if cfg.RedisEnabled {
		client, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("[WARN] Redis unavailable, caching sessions in memory: %v", err)
		} else {
			defer client.Close()
			store := session.NewRedisStore(client)
			cache = store
			go healthServer.Monitor(ctx, health.ServiceRedis, probeInterval, store.Ping)
			log.Printf("[INFO] Connected to Redis at %s", cfg.RedisAddr)
		}
	}

	// Live fan-out
	hub := websocket.NewHub()
	go hub.Run(ctx)

	sinks := batch.MultiSink{hub}
	var natsSink *stream.NATSSink
	if cfg.NATSURL != "" {
		nc, err := stream.Connect(cfg.NATSURL, "heart-rhythm-server")
		if err != nil {
			log.Printf("[WARN] NATS unavailable, not publishing: %v", err)
		} else {
			defer nc.Drain()
			natsSink = stream.NewNATSSink(nc, stream.DefaultWavePrefix, stream.DefaultParamsSubject)
			sinks = append(sinks, natsSink)
			go healthServer.Monitor(ctx, health.ServiceNATS, probeInterval, natsProbe(nc))
			log.Printf("[INFO] Publishing trace frames to NATS at %s", cfg.NATSURL)
		}
	}

	batcher := batch.NewBatcher(cfg.BatchConfig(), sinks)

	downstream := senders.NewMultiSender(batcher)
	if cfg.TraceFile != "" {
		fileSender, err := senders.NewFileSender(cfg.TraceFile)
		if err != nil {
			log.Printf("[WARN] Trace file disabled: %v", err)
		} else {
			defer fileSender.Close()
			downstream.Add(fileSender)
			log.Printf("[INFO] Writing trace points to %s", cfg.TraceFile)
		}
	}

	scheduler := emulator.NewTickerScheduler(cfg.FrameInterval, 0)
	defer scheduler.Close()

	manager, err := session.NewManager(session.ManagerConfig{
		Scheduler:     scheduler,
		FrameRate:     float64(time.Second) / float64(cfg.FrameInterval),
		Table:         table,
		Schedule:      schedule,
		Cache:         cache,
		TTL:           cfg.SessionTTL(),
		MaxSessions:   cfg.MaxSessions,
		PatternMode:   cfg.AnomalyPatternMode,
		Capacity:      cfg.BufferCapacity,
		StepSize:      cfg.StepSize,
		DisplayHeight: cfg.DisplayHeight,
		Sender:        downstream,
		Hooks: session.Hooks{
			OnBeat: func(id string, c models.Category, tick uint64, bpm float64) {
				hub.UpdateBPM(id, bpm)
				if natsSink != nil {
					if err := natsSink.PublishBeat(id, c.String(), tick, bpm); err != nil {
						log.Printf("[WARN] Failed to publish beat for %s: %v", id, err)
					}
				}
			},
			OnEvent: func(id, event, detail string) {
				hub.BroadcastEvent(id, event, detail)
				if event == session.EventDestroyed {
					batcher.Forget(id)
					hub.ForgetSession(id)
				}
			},
		},
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to create session manager: %v", err)
	}
	go manager.KeepAlive(ctx, cfg.SessionTTL()/3)

	// HTTP
	router := mux.NewRouter()
	session.NewHTTPHandler(manager).RegisterRoutes(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","sessions":%d,"clients":%d}`, len(manager.ListSessions(r.Context())), hub.ClientCount())
	}).Methods("GET")

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      enableCORS(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	address := fmt.Sprintf(":%s", cfg.GRPCPort)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		log.Fatalf("[FATAL] Failed to listen on %s: %v", address, err)
	}

	healthServer.SetServingStatus("")
	healthServer.SetServingStatus(health.ServiceSessions)

	serverErrChan := make(chan error, 2)
	go func() {
		log.Printf("[INFO] gRPC health listening on %s", address)
		if err := grpcServer.Serve(listener); err != nil {
			serverErrChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		log.Printf("[INFO] HTTP server listening on :%s (swagger at /swagger/index.html)", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		log.Printf("[ERROR] Server error: %v", err)
	case sig := <-shutdownChan:
		log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)
	}

	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] HTTP shutdown: %v", err)
	}
	manager.Close(shutdownCtx)
	batcher.Stop()
	cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Printf("[WARN] Graceful shutdown timeout, forcing stop")
		grpcServer.Stop()
	}

	log.Printf("[INFO] Server stopped")
}

func natsProbe(nc *nats.Conn) health.Probe {
	return func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("nats status %v", nc.Status())
		}
		return nil
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}
