package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Compressor.DefaultMaxDimension != 800 {
		t.Errorf("Expected default max dimension 800, got %d", cfg.Compressor.DefaultMaxDimension)
	}
	if cfg.Form.DefaultPercentage != 100 {
		t.Errorf("Expected default percentage 100, got %d", cfg.Form.DefaultPercentage)
	}
	if cfg.Form.DownloadFilename != "compressed_image.jpg" {
		t.Errorf("Unexpected download filename %q", cfg.Form.DownloadFilename)
	}
	if cfg.Form.DownloadMediaType != "image/jpeg" {
		t.Errorf("Unexpected download media type %q", cfg.Form.DownloadMediaType)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("Expected session ttl 30m, got %v", cfg.Session.TTL)
	}
	if cfg.Image.MaxPixels != 64<<20 {
		t.Errorf("Expected 64MP pixel budget, got %d", cfg.Image.MaxPixels)
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("APP_COMPRESSOR_DEFAULT_MAX_DIMENSION", "1200")
	t.Setenv("APP_QUEUE_WORKERS", "2")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Compressor.DefaultMaxDimension != 1200 {
		t.Errorf("Expected 1200, got %d", cfg.Compressor.DefaultMaxDimension)
	}
	if cfg.Queue.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", cfg.Queue.Workers)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("Expected 30s window, got %v", cfg.RateLimit.Window)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected debug log level, got %q", cfg.LogLevel)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"percentage above range", func(c *Config) { c.Form.DefaultPercentage = 101 }, "percentage"},
		{"unknown compressor", func(c *Config) { c.Compressor.Driver = "magic" }, "compressor driver"},
		{"remote without url", func(c *Config) { c.Compressor.Driver = "remote" }, "base url"},
		{"unknown blobstore", func(c *Config) { c.BlobStore.Driver = "s3" }, "blobstore driver"},
		{"zero workers", func(c *Config) { c.Queue.Workers = 0 }, "workers"},
		{"zero sessions", func(c *Config) { c.Session.MaxSessions = 0 }, "max sessions"},
		{"blob capacity below sessions", func(c *Config) { c.BlobStore.MaxEntries = 2 * c.Session.MaxSessions }, "required by"},
		{"blob ttl shorter than session", func(c *Config) { c.BlobStore.TTL = c.Session.TTL / 2 }, "shorter than session ttl"},
		{"zero max pixels", func(c *Config) { c.Image.MaxPixels = 0 }, "max pixels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("short"); got != "****" {
		t.Errorf("Expected ****, got %s", got)
	}
	if got := maskAPIKey("abcd1234efgh5678"); got != "abcd...5678" {
		t.Errorf("Expected abcd...5678, got %s", got)
	}
}
