package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Host.User != "anonymous" {
		t.Errorf("Expected default user anonymous, got %q", cfg.Host.User)
	}
	if cfg.Host.Password != "anonymous@" {
		t.Errorf("Expected default anonymous password, got %q", cfg.Host.Password)
	}
	if cfg.Host.Timeout != 60*time.Second {
		t.Errorf("Expected default timeout 60s, got %v", cfg.Host.Timeout)
	}
	if cfg.Cache.Capacity != 5000 {
		t.Errorf("Expected default capacity 5000, got %d", cfg.Cache.Capacity)
	}
	if cfg.Parser != "auto" {
		t.Errorf("Expected default parser auto, got %q", cfg.Parser)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
	if cfg.Mirror.HistoryPath == "" {
		t.Error("Expected default mirror history path to be set")
	}
}

func TestApplyDefaults_LevelNormalized(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_NamedUserNoPassword(t *testing.T) {
	cfg := &Config{Host: HostConfig{User: "alice"}}
	ApplyDefaults(cfg)

	// The anonymous convention only applies to the anonymous user.
	if cfg.Host.Password != "" {
		t.Errorf("Expected no password default for named user, got %q", cfg.Host.Password)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "ERROR"},
		Host: HostConfig{
			User:    "bob",
			Timeout: 5 * time.Second,
		},
		Cache:  CacheConfig{Capacity: 42},
		Parser: "ms",
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected explicit level preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Host.Timeout != 5*time.Second {
		t.Errorf("Expected explicit timeout preserved, got %v", cfg.Host.Timeout)
	}
	if cfg.Cache.Capacity != 42 {
		t.Errorf("Expected explicit capacity preserved, got %d", cfg.Cache.Capacity)
	}
	if cfg.Parser != "ms" {
		t.Errorf("Expected explicit parser preserved, got %q", cfg.Parser)
	}
}

func TestGetDefaultConfig_Valid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
}
