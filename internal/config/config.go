package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "murs.db"
	defaultTickInterval  = 200 * time.Millisecond
	defaultTotalBudget   = int64(2 << 30) // 2 GiB
	defaultYellowFrac    = 0.4
	defaultMinRunning    = 2
	defaultStopCount     = 2
	defaultEstimateMul   = 1.0
	defaultProtectResult = true

	envListenAddr    = "MURS_LISTEN_ADDR"
	envDBPath        = "MURS_DB_PATH"
	envLogLevel      = "MURS_LOG_LEVEL"
	envTickInterval  = "MURS_TICK_INTERVAL"
	envTotalBudget   = "MURS_TOTAL_BUDGET_BYTES"
	envYellowFrac    = "MURS_YELLOW_LINE_FRACTION"
	envMinRunning    = "MURS_MIN_RUNNING"
	envStopCount     = "MURS_STOP_COUNT"
	envEstimateMul   = "MURS_ESTIMATE_MULTIPLIER"
	envProtectResult = "MURS_PROTECT_RESULT"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// TickInterval is the cadence of the governor decision procedure.
	TickInterval time.Duration
	// TotalBudget is the worker's memory budget in bytes.
	TotalBudget int64
	// YellowFrac is the yellow line expressed as a fraction of TotalBudget.
	YellowFrac float64
	// MinRunning is the floor below which the governor never pauses.
	MinRunning int
	// StopCount is how many tasks to pause when the running set is homogeneous.
	StopCount int
	// EstimateMul scales the remaining-memory estimate during victim selection.
	EstimateMul float64
	// ProtectResult exempts result-stage tasks from homogeneous-set pausing.
	ProtectResult bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		TickInterval:  defaultTickInterval,
		TotalBudget:   defaultTotalBudget,
		YellowFrac:    defaultYellowFrac,
		MinRunning:    defaultMinRunning,
		StopCount:     defaultStopCount,
		EstimateMul:   defaultEstimateMul,
		ProtectResult: defaultProtectResult,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envTickInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	cfg.TotalBudget = parseInt64(envTotalBudget, cfg.TotalBudget)
	cfg.YellowFrac = parseFloat(envYellowFrac, cfg.YellowFrac)
	cfg.MinRunning = parseInt(envMinRunning, cfg.MinRunning)
	cfg.StopCount = parseInt(envStopCount, cfg.StopCount)
	cfg.EstimateMul = parseFloat(envEstimateMul, cfg.EstimateMul)
	if v := os.Getenv(envProtectResult); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ProtectResult = b
		}
	}

	return cfg
}

// YellowLine returns the yellow line in bytes.
func (c Config) YellowLine() int64 {
	return int64(float64(c.TotalBudget) * c.YellowFrac)
}

func parseInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
