// Package config loads the daemon's runtime settings from VAANI_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the speech daemon.
type Config struct {
	HTTPAddr        string
	DataDir         string
	ShutdownTimeout time.Duration
	AllowAnyOrigin  bool

	EngineMode           string // proc | mock
	EngineBin            string
	EngineStartupTimeout time.Duration

	Voice  string // initial voice id; empty = first installed
	Rate   int
	Volume int
	Pitch  int

	DelegateMode  string // auto | remote | exec | mock
	DelegateURL   string
	DelegateBin   string
	DelegateVoice string

	JournalMode string // auto | postgres | sqlite | memory
	DatabaseURL string
	JournalPath string
	JournalText bool

	MetricsNamespace string

	SessionTimeout   time.Duration
	SessionRetention time.Duration

	VoicesBaseURL     string
	VoicesManifestURL string
	OverridesFile     string
}

// FromEnv reads environment variables and applies defaults. Path-valued
// settings default into the data directory.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:         envOrDefault("VAANI_HTTP_ADDR", "127.0.0.1:8480"),
		DataDir:          envOrDefault("VAANI_DATA_DIR", defaultDataDir()),
		EngineMode:       envOrDefault("VAANI_ENGINE_MODE", "proc"),
		EngineBin:        envOrDefault("VAANI_ENGINE_BIN", "vaani-engine"),
		Voice:            stringFromEnv("VAANI_VOICE"),
		DelegateMode:     envOrDefault("VAANI_DELEGATE_MODE", "auto"),
		DelegateURL:      stringFromEnv("VAANI_DELEGATE_URL"),
		DelegateBin:      envOrDefault("VAANI_DELEGATE_BIN", "espeak-ng"),
		DelegateVoice:    stringFromEnv("VAANI_DELEGATE_VOICE"),
		JournalMode:      envOrDefault("VAANI_JOURNAL_MODE", "auto"),
		DatabaseURL:      stringFromEnv("VAANI_DATABASE_URL"),
		JournalPath:      stringFromEnv("VAANI_JOURNAL_PATH"),
		MetricsNamespace: envOrDefault("VAANI_METRICS_NAMESPACE", "vaani"),

		VoicesBaseURL:     envOrDefault("VAANI_VOICES_BASE_URL", "https://voices.vaanilabs.org/files"),
		VoicesManifestURL: envOrDefault("VAANI_VOICES_MANIFEST_URL", "https://voices.vaanilabs.org/manifest.txt"),
		OverridesFile:     stringFromEnv("VAANI_OVERRIDES_FILE"),

		Rate:   50,
		Volume: 100,
		Pitch:  50,

		ShutdownTimeout:      15 * time.Second,
		EngineStartupTimeout: 10 * time.Second,
		SessionTimeout:       2 * time.Minute,
		SessionRetention:     10 * time.Minute,
	}

	if cfg.JournalPath == "" {
		cfg.JournalPath = filepath.Join(cfg.DataDir, "vaani.db")
	}
	if cfg.OverridesFile == "" {
		cfg.OverridesFile = filepath.Join(cfg.DataDir, "voice-overrides.yaml")
	}

	var err error
	if cfg.Rate, err = intFromEnv("VAANI_RATE", cfg.Rate); err != nil {
		return Config{}, err
	}
	if cfg.Volume, err = intFromEnv("VAANI_VOLUME", cfg.Volume); err != nil {
		return Config{}, err
	}
	if cfg.Pitch, err = intFromEnv("VAANI_PITCH", cfg.Pitch); err != nil {
		return Config{}, err
	}
	if cfg.JournalText, err = boolFromEnv("VAANI_JOURNAL_TEXT", false); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("VAANI_ALLOW_ANY_ORIGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("VAANI_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.EngineStartupTimeout, err = durationFromEnv("VAANI_ENGINE_STARTUP_TIMEOUT", cfg.EngineStartupTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionTimeout, err = durationFromEnv("VAANI_SESSION_TIMEOUT", cfg.SessionTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionRetention, err = durationFromEnv("VAANI_SESSION_RETENTION", cfg.SessionRetention); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints beyond per-key parsing.
func (c Config) Validate() error {
	switch c.EngineMode {
	case "proc", "mock":
	default:
		return fmt.Errorf("VAANI_ENGINE_MODE must be proc or mock, got %q", c.EngineMode)
	}
	switch c.DelegateMode {
	case "auto", "remote", "exec", "mock":
	default:
		return fmt.Errorf("VAANI_DELEGATE_MODE must be auto, remote, exec or mock, got %q", c.DelegateMode)
	}
	if c.DelegateMode == "remote" && c.DelegateURL == "" {
		return fmt.Errorf("VAANI_DELEGATE_MODE=remote requires VAANI_DELEGATE_URL")
	}
	switch c.JournalMode {
	case "auto", "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("VAANI_JOURNAL_MODE must be auto, postgres, sqlite or memory, got %q", c.JournalMode)
	}
	if c.JournalMode == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("VAANI_JOURNAL_MODE=postgres requires VAANI_DATABASE_URL")
	}
	for _, p := range []struct {
		key string
		val int
	}{
		{"VAANI_RATE", c.Rate},
		{"VAANI_VOLUME", c.Volume},
		{"VAANI_PITCH", c.Pitch},
	} {
		if p.val < 0 || p.val > 100 {
			return fmt.Errorf("%s must be in 0-100, got %d", p.key, p.val)
		}
	}
	if c.SessionTimeout < 5*time.Second {
		return fmt.Errorf("VAANI_SESSION_TIMEOUT must be at least 5s")
	}
	return nil
}

// VoicesDir is where installed voice models live.
func (c Config) VoicesDir() string {
	return filepath.Join(c.DataDir, "voices")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vaani-data"
	}
	return filepath.Join(home, ".local", "share", "vaani")
}

func envOrDefault(key, fallback string) string {
	v := stringFromEnv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringFromEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringFromEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringFromEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringFromEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}
