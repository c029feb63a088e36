// Package config provides configuration management for Coffer
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the configuration for the authorization kernel
type Config struct {
	// Database configuration for the persistent user store
	DatabaseType string `mapstructure:"database_type" json:"database_type" yaml:"database_type" validate:"required,oneof=sqlite"`
	DatabasePath string `mapstructure:"database_path" json:"database_path" yaml:"database_path" validate:"required"`

	// Root account bootstrap
	RootUsername string `mapstructure:"root_username" json:"root_username" yaml:"root_username" validate:"required"`
	RootPassword string `mapstructure:"root_password" json:"root_password" yaml:"root_password"`

	// Password hashing
	PasswordMethod string `mapstructure:"password_method" json:"password_method" yaml:"password_method" validate:"oneof=bcrypt pbkdf2-sha256"`
	BcryptCost     int    `mapstructure:"bcrypt_cost" json:"bcrypt_cost" yaml:"bcrypt_cost" validate:"min=4,max=31"`

	// Role resolution depth cap. Depth 2 allows user -> role -> role;
	// deeper memberships resolve to no access.
	RoleResolutionDepth int `mapstructure:"role_resolution_depth" json:"role_resolution_depth" yaml:"role_resolution_depth" validate:"min=1,max=8"`

	// Token configuration
	TokenSecret string        `mapstructure:"token_secret" json:"token_secret" yaml:"token_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry" json:"token_expiry" yaml:"token_expiry"`

	// Cluster invalidation bus
	Cluster ClusterConfig `mapstructure:"cluster" json:"cluster" yaml:"cluster"`

	// External directory handler
	Directory DirectoryConfig `mapstructure:"directory" json:"directory" yaml:"directory"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`

	// Metrics
	EnableMetrics bool `mapstructure:"enable_metrics" json:"enable_metrics" yaml:"enable_metrics"`
}

// ClusterConfig holds settings for the NATS permission-invalidation bus
type ClusterConfig struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	URLs    []string `mapstructure:"urls" json:"urls" yaml:"urls"`
	Subject string   `mapstructure:"subject" json:"subject" yaml:"subject"`
	NodeID  string   `mapstructure:"node_id" json:"node_id" yaml:"node_id"`
}

// DirectoryConfig holds settings for the optional external directory source
type DirectoryConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint string        `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	APIKey   string        `mapstructure:"api_key" json:"api_key" yaml:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DatabaseType: "sqlite",
		DatabasePath: "./data/coffer_users.db",

		RootUsername: "root",

		PasswordMethod: "bcrypt",
		BcryptCost:     10,

		RoleResolutionDepth: 2,

		TokenExpiry: 24 * time.Hour,

		Cluster: ClusterConfig{
			Enabled: false,
			Subject: "coffer.auth.invalidate",
		},

		Directory: DirectoryConfig{
			Enabled: false,
			Timeout: 5 * time.Second,
		},

		LogLevel:      "info",
		EnableMetrics: false,
	}
}

// Load reads configuration from an optional file plus COFFER_* environment
// variables, layered over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COFFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch re-reads the config file on change and invokes onChange with the
// freshly parsed configuration. Invalid updates are dropped. The watch runs
// on viper's internal goroutine until the process exits.
func Watch(path string, onChange func(*Config)) error {
	if path == "" {
		return fmt.Errorf("config watch requires a file path")
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg := DefaultConfig()
		if err := v.Unmarshal(cfg); err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("database_type", def.DatabaseType)
	v.SetDefault("database_path", def.DatabasePath)
	v.SetDefault("root_username", def.RootUsername)
	v.SetDefault("password_method", def.PasswordMethod)
	v.SetDefault("bcrypt_cost", def.BcryptCost)
	v.SetDefault("role_resolution_depth", def.RoleResolutionDepth)
	v.SetDefault("token_expiry", def.TokenExpiry)
	v.SetDefault("cluster.enabled", def.Cluster.Enabled)
	v.SetDefault("cluster.subject", def.Cluster.Subject)
	v.SetDefault("directory.enabled", def.Directory.Enabled)
	v.SetDefault("directory.timeout", def.Directory.Timeout)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("enable_metrics", def.EnableMetrics)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cluster.Enabled && len(c.Cluster.URLs) == 0 {
		return fmt.Errorf("invalid configuration: cluster.urls is required when cluster.enabled is set")
	}
	if c.Directory.Enabled && c.Directory.Endpoint == "" {
		return fmt.Errorf("invalid configuration: directory.endpoint is required when directory.enabled is set")
	}
	return nil
}
