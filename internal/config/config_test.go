package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:8480" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.EngineMode != "proc" || cfg.DelegateMode != "auto" || cfg.JournalMode != "auto" {
		t.Fatalf("modes = %q/%q/%q", cfg.EngineMode, cfg.DelegateMode, cfg.JournalMode)
	}
	if cfg.Rate != 50 || cfg.Volume != 100 || cfg.Pitch != 50 {
		t.Fatalf("prosody defaults = %d/%d/%d", cfg.Rate, cfg.Volume, cfg.Pitch)
	}
	if cfg.JournalPath != filepath.Join(cfg.DataDir, "vaani.db") {
		t.Fatalf("JournalPath = %q", cfg.JournalPath)
	}
	if cfg.VoicesDir() != filepath.Join(cfg.DataDir, "voices") {
		t.Fatalf("VoicesDir = %q", cfg.VoicesDir())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VAANI_HTTP_ADDR", "0.0.0.0:9000")
	t.Setenv("VAANI_ENGINE_MODE", "mock")
	t.Setenv("VAANI_RATE", "70")
	t.Setenv("VAANI_JOURNAL_TEXT", "true")
	t.Setenv("VAANI_SESSION_TIMEOUT", "30s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:9000" || cfg.EngineMode != "mock" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Rate != 70 || !cfg.JournalText {
		t.Fatalf("rate = %d journalText = %v", cfg.Rate, cfg.JournalText)
	}
	if cfg.SessionTimeout != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.SessionTimeout)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"VAANI_ENGINE_MODE", "native"},
		{"VAANI_DELEGATE_MODE", "espeak"},
		{"VAANI_JOURNAL_MODE", "redis"},
		{"VAANI_RATE", "150"},
		{"VAANI_VOLUME", "-1"},
		{"VAANI_SESSION_TIMEOUT", "1s"},
		{"VAANI_RATE", "fast"},
		{"VAANI_JOURNAL_TEXT", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestRemoteDelegateRequiresURL(t *testing.T) {
	t.Setenv("VAANI_DELEGATE_MODE", "remote")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without VAANI_DELEGATE_URL")
	}
	t.Setenv("VAANI_DELEGATE_URL", "ws://127.0.0.1:9999/ws")
	if _, err := FromEnv(); err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
}
