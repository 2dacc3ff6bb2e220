package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Bind != "127.0.0.1" {
		t.Fatalf("expected loopback bind, got %s", cfg.HTTP.Bind)
	}
	if cfg.HTTP.Port != 7849 {
		t.Fatalf("expected default port 7849, got %d", cfg.HTTP.Port)
	}
	if cfg.Engine.Mode != "mock" {
		t.Fatalf("expected mock engine default, got %s", cfg.Engine.Mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SPEAKUP_HTTP_PORT", "9000")
	t.Setenv("SPEAKUP_ENGINE_MODE", "exec")
	t.Setenv("SPEAKUP_ENGINE_COMMAND", "piper --stream")
	t.Setenv("SPEAKUP_QUEUE_MAX_TEXT_LEN", "500")
	t.Setenv("SPEAKUP_AUDIO_SINK", "null")
	t.Setenv("SPEAKUP_EVENTS_ENABLED", "true")
	t.Setenv("SPEAKUP_EVENTS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Command != "piper --stream" {
		t.Fatalf("expected engine override, got %+v", cfg.Engine)
	}
	if cfg.Queue.MaxTextLen != 500 {
		t.Fatalf("expected max text len override, got %d", cfg.Queue.MaxTextLen)
	}
	if cfg.Audio.Sink != "null" {
		t.Fatalf("expected sink override, got %s", cfg.Audio.Sink)
	}
	if len(cfg.Events.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Events.Servers)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speakup.yaml")
	body := []byte("http:\n  port: 8123\nqueue:\n  max_text_len: 100\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8123 {
		t.Fatalf("expected port from file, got %d", cfg.HTTP.Port)
	}
	if cfg.Queue.MaxTextLen != 100 {
		t.Fatalf("expected max text len from file, got %d", cfg.Queue.MaxTextLen)
	}
	if cfg.History.RetentionDays != 30 {
		t.Fatalf("expected retention default to survive partial file, got %d", cfg.History.RetentionDays)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"bad engine mode", func(c *Config) { c.Engine.Mode = "cloud" }},
		{"exec without command", func(c *Config) { c.Engine.Mode = "exec"; c.Engine.Command = "" }},
		{"bad sink", func(c *Config) { c.Audio.Sink = "speaker" }},
		{"zero text len", func(c *Config) { c.Queue.MaxTextLen = 0 }},
		{"negative retention", func(c *Config) { c.History.RetentionDays = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
