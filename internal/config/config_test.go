package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_DefaultsAreValid(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("Default configuration failed validation: %v", err)
	}

	if config.Proctor.FaceMatchThreshold != 0.6 {
		t.Errorf("Expected default face match threshold 0.6, got %v", config.Proctor.FaceMatchThreshold)
	}
	if config.Proctor.AudioWindowSize != 10 {
		t.Errorf("Expected default audio window size 10, got %d", config.Proctor.AudioWindowSize)
	}
	if config.Proctor.AutoSubmitSeconds != 10 {
		t.Errorf("Expected default auto-submit countdown 10, got %d", config.Proctor.AutoSubmitSeconds)
	}
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database", func(c *Config) { c.Database = nil }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero database timeout", func(c *Config) { c.Database.Timeout = 0 }},
		{"missing http", func(c *Config) { c.HTTP = nil }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"missing websocket", func(c *Config) { c.WebSocket = nil }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"zero buffer size", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"missing proctor", func(c *Config) { c.Proctor = nil }},
		{"zero face poll", func(c *Config) { c.Proctor.FacePollInterval = 0 }},
		{"window of one", func(c *Config) { c.Proctor.AudioWindowSize = 1 }},
		{"zero landmarks", func(c *Config) { c.Proctor.MinFaceLandmarks = 0 }},
		{"zero auto-submit", func(c *Config) { c.Proctor.AutoSubmitSeconds = 0 }},
		{"threshold out of range", func(c *Config) { c.Proctor.FaceMatchThreshold = 2.0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

func TestConfig_LoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PROCTOR_HTTP_PORT", "9090")
	t.Setenv("PROCTOR_DATABASE_PATH", "/tmp/exams.db")
	t.Setenv("PROCTOR_FACE_POLL_INTERVAL", "5s")
	t.Setenv("PROCTOR_FACE_MATCH_THRESHOLD", "0.5")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/exams.db" {
		t.Errorf("Expected overridden database path, got %s", config.Database.Path)
	}
	if config.Proctor.FacePollInterval != 5*time.Second {
		t.Errorf("Expected 5s face poll interval, got %v", config.Proctor.FacePollInterval)
	}
	if config.Proctor.FaceMatchThreshold != 0.5 {
		t.Errorf("Expected threshold 0.5, got %v", config.Proctor.FaceMatchThreshold)
	}
}

func TestConfig_LoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PROCTOR_HTTP_PORT", "not-a-number")
	t.Setenv("PROCTOR_AUDIO_POLL_INTERVAL", "soon")

	config := LoadFromEnv()

	if config.HTTP.Port != 8080 {
		t.Errorf("Expected default port to survive malformed override, got %d", config.HTTP.Port)
	}
	if config.Proctor.AudioPollInterval != 3*time.Second {
		t.Errorf("Expected default audio poll interval, got %v", config.Proctor.AudioPollInterval)
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proctor.json")
	content := `{
		"http": {"port": 9999, "host": "127.0.0.1"},
		"proctor": {"audio_volume_limit": 60, "auto_submit_seconds": 30}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.HTTP.Port != 9999 || config.HTTP.Host != "127.0.0.1" {
		t.Errorf("Expected file overrides for HTTP, got %+v", config.HTTP)
	}
	if config.Proctor.AudioVolumeLimit != 60 {
		t.Errorf("Expected volume limit 60, got %v", config.Proctor.AudioVolumeLimit)
	}
	if config.Proctor.AutoSubmitSeconds != 30 {
		t.Errorf("Expected auto-submit 30, got %d", config.Proctor.AutoSubmitSeconds)
	}
	// Untouched sections keep defaults.
	if config.Database.Path != "./data/proctor.db" {
		t.Errorf("Expected default database path, got %s", config.Database.Path)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/proctor.json"); err == nil {
		t.Error("Expected error for missing file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestConfig_PrecedenceFileOverEnv(t *testing.T) {
	t.Setenv("PROCTOR_HTTP_PORT", "9090")

	dir := t.TempDir()
	path := filepath.Join(dir, "proctor.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 7777}}`), 0644); err != nil {
		t.Fatal(err)
	}

	config := LoadConfigWithPrecedence(path)
	if config.HTTP.Port != 7777 {
		t.Errorf("Expected file port to win, got %d", config.HTTP.Port)
	}

	// A missing file falls back to the environment.
	config = LoadConfigWithPrecedence(filepath.Join(dir, "missing.json"))
	if config.HTTP.Port != 9090 {
		t.Errorf("Expected env port as fallback, got %d", config.HTTP.Port)
	}
}
