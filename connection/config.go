package connection

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
)

// Environment variables read by ConfigFromEnv.
const (
	GzipEnvKey                  = "DRIVECLIENT_GZIP"
	ConnectTimeoutEnvKey        = "DRIVECLIENT_CONNECT_TIMEOUT"
	TLSHandshakeTimeoutEnvKey   = "DRIVECLIENT_TLS_HANDSHAKE_TIMEOUT"
	ResponseHeaderTimeoutEnvKey = "DRIVECLIENT_RESPONSE_HEADER_TIMEOUT"
	TransportRetriesEnvKey      = "DRIVECLIENT_TRANSPORT_RETRIES"
	DebugDumpEnvKey             = "DRIVECLIENT_DEBUG_DUMP"
)

// Config holds configuration for the connection engine and its HTTP transport.
type Config struct {
	// GzipEnabled adds "Accept-Encoding: gzip" to every request. Responses are
	// decoded by the engine, not by the transport.
	// Default: true
	GzipEnabled bool

	// ConnectTimeout bounds establishing a TCP connection.
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	// Default: 5 seconds
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout bounds waiting for response headers after the request was written.
	// There is no overall request timeout, so long transfers are not cut off.
	// Default: 60 seconds
	ResponseHeaderTimeout time.Duration

	// TransportRetries is how many times a request is retried after a connection level
	// failure. Responses are never retried, whatever their status.
	// Default: 0
	TransportRetries int

	// DebugDump logs redacted request and response headers at debug level.
	// Default: false
	DebugDump bool

	// HTTPClient replaces the default transport client. The timeouts above are
	// ignored when it is set.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		GzipEnabled:           true,
		ConnectTimeout:        10 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		TransportRetries:      0,
		DebugDump:             false,
		HTTPClient:            nil, // Will be created by NewTransport
	}
}

// Validate rejects invalid values instead of silently substituting defaults.
func (c Config) Validate() error {
	if c.HTTPClient == nil {
		if c.ConnectTimeout <= 0 {
			return fmt.Errorf("connect timeout must be positive, got %s", c.ConnectTimeout)
		}
		if c.TLSHandshakeTimeout <= 0 {
			return fmt.Errorf("TLS handshake timeout must be positive, got %s", c.TLSHandshakeTimeout)
		}
		if c.ResponseHeaderTimeout <= 0 {
			return fmt.Errorf("response header timeout must be positive, got %s", c.ResponseHeaderTimeout)
		}
	}
	if c.TransportRetries < 0 {
		return errors.New("transport retries must not be negative")
	}
	return nil
}

// ConfigFromEnv returns DefaultConfig overridden by the DRIVECLIENT_* environment variables that are set.
func ConfigFromEnv(envRepo env.Repository) (Config, error) {
	cfg := DefaultConfig()

	if err := parseBoolEnv(envRepo, GzipEnvKey, &cfg.GzipEnabled); err != nil {
		return Config{}, err
	}
	if err := parseBoolEnv(envRepo, DebugDumpEnvKey, &cfg.DebugDump); err != nil {
		return Config{}, err
	}
	durations := map[string]*time.Duration{
		ConnectTimeoutEnvKey:        &cfg.ConnectTimeout,
		TLSHandshakeTimeoutEnvKey:   &cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeoutEnvKey: &cfg.ResponseHeaderTimeout,
	}
	for key, target := range durations {
		if err := parseDurationEnv(envRepo, key, target); err != nil {
			return Config{}, err
		}
	}
	if value := envRepo.Get(TransportRetriesEnvKey); value != "" {
		retries, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", TransportRetriesEnvKey, err)
		}
		cfg.TransportRetries = retries
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseBoolEnv(envRepo env.Repository, key string, target *bool) error {
	value := envRepo.Get(key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = b
	return nil
}

func parseDurationEnv(envRepo env.Repository, key string, target *time.Duration) error {
	value := envRepo.Get(key)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = d
	return nil
}
