// Package config loads and validates the ftpfs configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FTPFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// CLI flags sit above all of these; the cmd layer applies them onto the
// loaded Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete ftpfs configuration: the server connection,
// the stat cache, listing parser selection, metrics and the mirror
// tasks.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Host describes the FTP server connection
	Host HostConfig `mapstructure:"host"`

	// Cache tunes the stat result cache
	Cache CacheConfig `mapstructure:"cache"`

	// Parser selects the listing parser: auto, unix or ms
	Parser string `mapstructure:"parser" validate:"omitempty,oneof=auto unix ms"`

	// TimeShift is the server-minus-client clock difference in effect
	// before any synchronization, e.g. "1h" for a server one zone east
	TimeShift time.Duration `mapstructure:"time_shift"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Mirror configures scheduled remote-to-sink synchronization
	Mirror MirrorConfig `mapstructure:"mirror"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// HostConfig describes one FTP server connection.
type HostConfig struct {
	// Address is the host:port of the server
	Address string `mapstructure:"address" validate:"required,hostname_port"`

	// User and Password are the login credentials
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`

	// TLS upgrades connections with explicit TLS (AUTH TLS)
	TLS bool `mapstructure:"tls"`

	// TLSSkipVerify accepts any server certificate. Only for servers
	// with self-signed certificates on trusted networks.
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	// Timeout bounds each control-channel round trip
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// StartDir is changed into right after login, when set
	StartDir string `mapstructure:"start_dir"`

	// CommandsPerSecond limits the sustained command rate per session,
	// for servers that drop bursty clients. 0 means unlimited.
	CommandsPerSecond uint `mapstructure:"commands_per_second"`
}

// CacheConfig tunes the stat result cache.
type CacheConfig struct {
	// Capacity is the maximum number of cached stat results. The cache
	// grows automatically for directories larger than this.
	Capacity int `mapstructure:"capacity" validate:"gte=1"`

	// MaxAge expires entries after this duration; 0 keeps them until
	// eviction
	MaxAge time.Duration `mapstructure:"max_age" validate:"gte=0"`

	// Disabled turns the cache off entirely
	Disabled bool `mapstructure:"disabled"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection and the HTTP endpoint on
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port for the /metrics endpoint
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// MirrorConfig configures the mirror subcommand.
type MirrorConfig struct {
	// HistoryPath is the directory of the transfer history database
	HistoryPath string `mapstructure:"history_path"`

	// Tasks lists the mirror tasks
	Tasks []MirrorTaskConfig `mapstructure:"tasks" validate:"dive"`
}

// MirrorTaskConfig defines one mirror task.
type MirrorTaskConfig struct {
	// Name identifies the task in logs and in the history database
	Name string `mapstructure:"name" validate:"required"`

	// RemoteRoot is the remote directory to mirror
	RemoteRoot string `mapstructure:"remote_root" validate:"required,startswith=/"`

	// Exclude lists entry names skipped during the walk
	Exclude []string `mapstructure:"exclude"`

	// Schedule is a cron expression for periodic runs; empty runs the
	// task once
	Schedule string `mapstructure:"schedule"`

	// Sink selects and configures where mirrored files go
	Sink SinkConfig `mapstructure:"sink"`
}

// SinkConfig selects the mirror target.
//
// The Type field determines which sink implementation is used; only
// the matching section applies.
type SinkConfig struct {
	// Type is the sink kind: local or s3
	Type string `mapstructure:"type" validate:"required,oneof=local s3"`

	// Path is the local target directory (type local)
	Path string `mapstructure:"path"`

	// S3 configures the bucket target (type s3)
	S3 S3SinkConfig `mapstructure:"s3"`
}

// S3SinkConfig configures an S3 or S3-compatible bucket sink.
type S3SinkConfig struct {
	// Bucket is the bucket name
	Bucket string `mapstructure:"bucket"`

	// KeyPrefix is prepended to every object key
	KeyPrefix string `mapstructure:"key_prefix"`

	// Region is the bucket region
	Region string `mapstructure:"region"`

	// Endpoint overrides the S3 endpoint for compatible storage
	Endpoint string `mapstructure:"endpoint"`

	// AccessKeyID and SecretAccessKey are static credentials; empty
	// falls back to the default AWS credential chain
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Load loads configuration from file, environment, and defaults.
//
// configPath selects the config file; empty uses the default XDG
// location, where a missing file is fine and defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable and config file handling.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FTPFS_ prefix with underscores,
	// e.g. FTPFS_HOST_ADDRESS=ftp.example.org:21.
	v.SetEnvPrefix("FTPFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine; defaults and environment apply.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path, following
// XDG_CONFIG_HOME with ~/.config as the fallback.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ftpfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ftpfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
