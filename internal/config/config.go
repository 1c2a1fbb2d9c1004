package config

import (
	"os"
	"strconv"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/batch"
	"github.com/Krimson/heart-rhythm-day/internal/generators"
)

// Config holds the server settings.
type Config struct {
	HTTPPort string
	GRPCPort string

	// Display
	FrameInterval      time.Duration
	BufferCapacity     int
	StepSize           float64
	DisplayHeight      int
	AnomalyPatternMode string

	// Batching of live trace points
	BatchMaxSamples     int
	BatchMaxSpanMS      int64
	FlushIntervalMS     int64
	OutOfOrderTolerance time.Duration
	DropTooOldMS        int64

	// Redis
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PostgreSQL content tables; empty means built-in defaults
	PostgresDSN string

	// NATS; empty disables publishing
	NATSURL string

	SessionTTLSeconds int
	MaxSessions       int

	// JSONL trace dump; empty disables it
	TraceFile string
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		HTTPPort: getEnvString("HTTP_PORT", "8080"),
		GRPCPort: getEnvString("GRPC_PORT", "50051"),

		FrameInterval:      getEnvDuration("FRAME_INTERVAL_MS", time.Second/60),
		BufferCapacity:     getEnvInt("BUFFER_CAPACITY", 0), // 0 derives it from the width
		StepSize:           getEnvFloat("STEP_SIZE", 1.5),
		DisplayHeight:      getEnvInt("DISPLAY_HEIGHT", 400),
		AnomalyPatternMode: getEnvString("ANOMALY_PATTERN_MODE", generators.ModeTicks),

		BatchMaxSamples:     getEnvInt("BATCH_MAX_SAMPLES", 15), // a quarter second at 60 fps
		BatchMaxSpanMS:      getEnvInt64("BATCH_MAX_SPAN_MS", 1000),
		FlushIntervalMS:     getEnvInt64("FLUSH_INTERVAL_MS", 250),
		OutOfOrderTolerance: getEnvDuration("OUT_OF_ORDER_TOLERANCE_MS", 100*time.Millisecond),
		DropTooOldMS:        getEnvInt64("DROP_TOO_OLD_MS", 30000),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PostgresDSN: getEnvString("POSTGRES_DSN", ""),
		NATSURL:     getEnvString("NATS_URL", ""),

		SessionTTLSeconds: getEnvInt("SESSION_TTL_SECONDS", 3600),
		MaxSessions:       getEnvInt("MAX_SESSIONS", 64),

		TraceFile: getEnvString("TRACE_FILE", ""),
	}
}

// BatchConfig converts the batching settings.
func (c *Config) BatchConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.MaxSamples = c.BatchMaxSamples
	cfg.MaxSpanMS = c.BatchMaxSpanMS
	cfg.FlushInterval = time.Duration(c.FlushIntervalMS) * time.Millisecond
	cfg.OutOfOrderTolerance = c.OutOfOrderTolerance
	cfg.DropTooOldMS = c.DropTooOldMS
	return cfg
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
