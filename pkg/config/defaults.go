package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyHostDefaults(&cfg.Host)
	applyCacheDefaults(&cfg.Cache)

	if cfg.Parser == "" {
		cfg.Parser = "auto"
	}

	applyMetricsDefaults(&cfg.Metrics)
	applyMirrorDefaults(&cfg.Mirror)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalized to uppercase so the rest of the code compares one form.
	cfg.Level = strings.ToUpper(cfg.Level)
}

// applyHostDefaults sets connection defaults.
func applyHostDefaults(cfg *HostConfig) {
	if cfg.User == "" {
		cfg.User = "anonymous"
	}
	if cfg.User == "anonymous" && cfg.Password == "" {
		// Anonymous servers traditionally expect a contact address as
		// the password and accept anything shaped like one.
		cfg.Password = "anonymous@"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
}

// applyCacheDefaults sets stat cache defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = 5000
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyMirrorDefaults sets mirror defaults.
func applyMirrorDefaults(cfg *MirrorConfig) {
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = filepathJoinConfigDir("mirror-history")
	}
}

// filepathJoinConfigDir anchors a relative state path under the config
// directory.
func filepathJoinConfigDir(name string) string {
	return getConfigDir() + "/" + name
}

// GetDefaultConfig returns a Config with all default values applied,
// for generating sample files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Host: HostConfig{
			Address: "localhost:21",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
