package transfer

import (
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/docker/go-units"
)

// Environment variables read by ConfigFromEnv.
const (
	ChunkSizeEnvKey           = "DRIVECLIENT_CHUNK_SIZE"
	ProgressLogIntervalEnvKey = "DRIVECLIENT_PROGRESS_LOG_INTERVAL"
)

// DefaultChunkSize is the number of bytes moved between two progress updates.
const DefaultChunkSize = 1024

// Config holds configuration for uploads and downloads.
type Config struct {
	// ChunkSize is the maximum number of bytes read per step. Progress is reported after every chunk.
	// Default: 1024
	ChunkSize int

	// ProgressLogInterval is the minimum time between two progress lines of a LoggingCallback.
	// Default: 1 second
	ProgressLogInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           DefaultChunkSize,
		ProgressLogInterval: time.Second,
	}
}

// Validate ...
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ProgressLogInterval < 0 {
		return fmt.Errorf("progress log interval must not be negative, got %s", c.ProgressLogInterval)
	}
	return nil
}

// ConfigFromEnv returns DefaultConfig overridden by the DRIVECLIENT_* environment variables that are set.
// The chunk size accepts human readable sizes such as "4KB".
func ConfigFromEnv(envRepo env.Repository) (Config, error) {
	cfg := DefaultConfig()

	if value := envRepo.Get(ChunkSizeEnvKey); value != "" {
		size, err := units.RAMInBytes(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", ChunkSizeEnvKey, err)
		}
		if size > int64(^uint32(0)>>1) {
			return Config{}, fmt.Errorf("invalid %s: %s is too large", ChunkSizeEnvKey, value)
		}
		cfg.ChunkSize = int(size)
	}
	if value := envRepo.Get(ProgressLogIntervalEnvKey); value != "" {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", ProgressLogIntervalEnvKey, err)
		}
		cfg.ProgressLogInterval = interval
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
