package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/forest-guardian/index-composite/internal/properties"
)

type Config struct {
	Engine   EngineConfig
	GRPC     GRPCConfig
	Sentinel SentinelConfig
	Logging  LoggingConfig
}

type EngineConfig struct {
	OutputDir string
	Workers   int
	JobDB     string
	CacheSize int
}

type GRPCConfig struct {
	Addr string
}

type SentinelConfig struct {
	ImageDir     string
	IntervalDays int
	Workers      int
}

type LoggingConfig struct {
	Level string
}

// Load reads settings from the environment. Paths default to locations
// below ROOT_PATH/data.
func Load() (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			OutputDir: getEnv("OUTPUT_DIR", properties.DataPath("exports")),
			Workers:   getEnvInt("EXPORT_WORKERS", 2),
			JobDB:     getEnv("JOB_DB_PATH", properties.DataPath("jobs.db")),
			CacheSize: getEnvInt("EVAL_CACHE_SIZE", 32),
		},
		GRPC: GRPCConfig{
			Addr: getEnv("GRPC_ADDR", "localhost:50051"),
		},
		Sentinel: SentinelConfig{
			ImageDir:     getEnv("IMAGE_DIR", properties.DataPath("images")),
			IntervalDays: getEnvInt("SATELLITE_INTERVAL_DAYS", 5),
			Workers:      getEnvInt("DOWNLOAD_WORKERS", 4),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("export workers must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Sentinel.Workers < 1 {
		return fmt.Errorf("download workers must be at least 1, got %d", c.Sentinel.Workers)
	}
	if c.Sentinel.IntervalDays < 1 {
		return fmt.Errorf("satellite interval must be at least 1 day, got %d", c.Sentinel.IntervalDays)
	}
	return nil
}

// EnsureDirs creates the directories the configured paths live in.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Engine.OutputDir, filepath.Dir(c.Engine.JobDB), c.Sentinel.ImageDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}
