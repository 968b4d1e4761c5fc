package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Opcron is the main configuration structure. It aggregates the HTTP server
// settings, the SQLite database location, authentication parameters, the
// scheduler runtime, SMTP delivery and logging.
type Opcron struct {
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	Database  Database  `yaml:"database"`
	Auth      Auth      `yaml:"auth"`
	Scheduler Scheduler `yaml:"scheduler"`
	SMTP      SMTP      `yaml:"smtp"`
	Logging   Logging   `yaml:"logging"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

// Database points at the SQLite file backing users, logs and scheduler state.
type Database struct {
	Path string `yaml:"path"`
}

// Auth configures token issuance and the bootstrap admin account.
type Auth struct {
	TokenExpiry       time.Duration `yaml:"token_expiry"`       // default 60m
	KeepLoggedIn      time.Duration `yaml:"keep_logged_in"`     // default 8760h
	BootstrapPassword string        `yaml:"bootstrap_password"` // admin password created on empty database
	CookieName        string        `yaml:"cookie_name"`
}

// Scheduler configures the wake loop and per-execution bounds.
type Scheduler struct {
	Tick       time.Duration `yaml:"tick"`        // maximum sleep between due-job sweeps
	JobTimeout time.Duration `yaml:"job_timeout"` // per-execution deadline
}

// SMTP configures the mail sender used by job modules.
type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Logging configures zap output and lumberjack rotation.
type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RateLimit bounds login attempts per client IP.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Opcron, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Opcron{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, used when no
// config file is present.
func Default() *Opcron {
	cfg := &Opcron{}
	cfg.applyDefaults()
	return cfg
}

func (c *Opcron) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 6999
	}
	if c.Database.Path == "" {
		c.Database.Path = "opcron.db"
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = 60 * time.Minute
	}
	if c.Auth.KeepLoggedIn == 0 {
		c.Auth.KeepLoggedIn = 365 * 24 * time.Hour
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "opcron_token"
	}
	if c.Scheduler.Tick == 0 {
		c.Scheduler.Tick = 30 * time.Second
	}
	if c.Scheduler.JobTimeout == 0 {
		c.Scheduler.JobTimeout = 10 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 30
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 30
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Opcron) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Scheduler.Tick < time.Second {
		return fmt.Errorf("scheduler tick %s is below 1s", c.Scheduler.Tick)
	}
	if c.SMTP.Host != "" && (c.SMTP.Port < 1 || c.SMTP.Port > 65535) {
		return fmt.Errorf("invalid smtp port: %d", c.SMTP.Port)
	}
	return nil
}
