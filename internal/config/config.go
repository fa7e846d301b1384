package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither a flag nor CONFIG_PATH names a config file.
const DefaultPath = "./config/config.yaml"

// Config represents the application configuration
type Config struct {
	LinkedIn   LinkedInConfig   `yaml:"linkedin"`
	Browser    BrowserConfig    `yaml:"browser"`
	Session    SessionConfig    `yaml:"session"`
	Auth       AuthConfig       `yaml:"auth"`
	Scrape     ScrapeConfig     `yaml:"scrape"`
	Connection ConnectionConfig `yaml:"connection"`
	Stealth    StealthConfig    `yaml:"stealth"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LinkedInConfig contains LinkedIn credentials and the site root
type LinkedInConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	BaseURL  string `yaml:"base_url"`
}

// BrowserConfig controls how Chromium is launched
type BrowserConfig struct {
	Headless     bool     `yaml:"headless"`
	Bin          string   `yaml:"bin"`
	SlowMotionMs int      `yaml:"slow_motion_ms"`
	UserAgent    string   `yaml:"user_agent"`
	Viewport     Viewport `yaml:"viewport"`
}

// Viewport is a fixed window size; zero values pick a random realistic size
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SessionConfig controls the browser session lifetime
type SessionConfig struct {
	KeepAlive   bool   `yaml:"keep_alive"`
	CookiesPath string `yaml:"cookies_path"`
}

// AuthConfig contains login flow timing
type AuthConfig struct {
	NavigationTimeoutSeconds int  `yaml:"navigation_timeout_seconds"`
	LoginTimeoutSeconds      int  `yaml:"login_timeout_seconds"`
	PollIntervalMs           int  `yaml:"poll_interval_ms"`
	StrictProbe              bool `yaml:"strict_probe"`
}

// ScrapeConfig contains activity scraping settings
type ScrapeConfig struct {
	Scrolls             int  `yaml:"scrolls"`
	SettleMs            int  `yaml:"settle_ms"`
	ProfileDelaySeconds int  `yaml:"profile_delay_seconds"`
	WaitTimeoutSeconds  int  `yaml:"wait_timeout_seconds"`
	Dedupe              bool `yaml:"dedupe"`
}

// ConnectionConfig contains connection request settings
type ConnectionConfig struct {
	MaxPages       int `yaml:"max_pages"`
	StepTimeoutMs  int `yaml:"step_timeout_ms"`
	AttemptPauseMs int `yaml:"attempt_pause_ms"`
	PagePauseMs    int `yaml:"page_pause_ms"`
	DailyLimit     int `yaml:"daily_limit"`
	HourlyLimit    int `yaml:"hourly_limit"`
	MaxNoteLength  int `yaml:"max_note_length"`
}

// StealthConfig contains anti-detection settings
type StealthConfig struct {
	Enabled          bool `yaml:"enabled"`
	TypingSpeedMs    int  `yaml:"typing_speed_ms"`
	JitterPercent    int  `yaml:"jitter_percent"`
	MinActionSpaceMs int  `yaml:"min_action_space_ms"`
}

// DatabaseConfig contains the action ledger location; empty disables it
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	ToFile     bool   `yaml:"to_file"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LinkedIn: LinkedInConfig{BaseURL: "https://www.linkedin.com"},
		Browser: BrowserConfig{
			Headless:     true,
			SlowMotionMs: 100,
			Viewport:     Viewport{Width: 1280, Height: 720},
		},
		Auth: AuthConfig{
			NavigationTimeoutSeconds: 60,
			LoginTimeoutSeconds:      30,
			PollIntervalMs:           250,
		},
		Scrape: ScrapeConfig{
			Scrolls:             2,
			SettleMs:            2000,
			ProfileDelaySeconds: 3,
			WaitTimeoutSeconds:  30,
		},
		Connection: ConnectionConfig{
			MaxPages:       3,
			StepTimeoutMs:  2000,
			AttemptPauseMs: 1000,
			PagePauseMs:    2000,
			MaxNoteLength:  300,
		},
		Stealth: StealthConfig{Enabled: true},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "./logs/linkedin-mcp.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// An empty path falls back to CONFIG_PATH, then DefaultPath. A missing
// file is not an error: defaults plus environment are used instead.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore errors if not present)
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Expand environment variables in YAML
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnv lets the environment override credentials and log level.
func (c *Config) applyEnv() {
	if v := os.Getenv("LINKEDIN_EMAIL"); v != "" {
		c.LinkedIn.Email = v
	}
	if v := os.Getenv("LINKEDIN_PASSWORD"); v != "" {
		c.LinkedIn.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	c.LinkedIn.BaseURL = strings.TrimRight(c.LinkedIn.BaseURL, "/")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate LinkedIn credentials
	if c.LinkedIn.Email == "" {
		return fmt.Errorf("LinkedIn email is required (set LINKEDIN_EMAIL)")
	}
	if c.LinkedIn.Password == "" {
		return fmt.Errorf("LinkedIn password is required (set LINKEDIN_PASSWORD)")
	}
	if c.LinkedIn.BaseURL == "" {
		return fmt.Errorf("linkedin base_url is required")
	}

	if c.Auth.NavigationTimeoutSeconds <= 0 {
		return fmt.Errorf("navigation_timeout_seconds must be positive")
	}
	if c.Auth.LoginTimeoutSeconds <= 0 {
		return fmt.Errorf("login_timeout_seconds must be positive")
	}
	if c.Auth.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}

	if c.Scrape.Scrolls < 0 {
		return fmt.Errorf("scrolls must be non-negative")
	}
	if c.Scrape.SettleMs < 0 || c.Scrape.ProfileDelaySeconds < 0 {
		return fmt.Errorf("scrape delays must be non-negative")
	}
	if c.Scrape.WaitTimeoutSeconds <= 0 {
		return fmt.Errorf("wait_timeout_seconds must be positive")
	}

	if c.Connection.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive")
	}
	if c.Connection.StepTimeoutMs <= 0 {
		return fmt.Errorf("step_timeout_ms must be positive")
	}
	if c.Connection.AttemptPauseMs < 0 || c.Connection.PagePauseMs < 0 {
		return fmt.Errorf("connection pauses must be non-negative")
	}
	if c.Connection.DailyLimit < 0 {
		return fmt.Errorf("daily_limit must be non-negative")
	}
	if c.Connection.HourlyLimit < 0 {
		return fmt.Errorf("hourly_limit must be non-negative")
	}
	if c.Connection.MaxNoteLength <= 0 {
		return fmt.Errorf("max_note_length must be positive")
	}

	if c.Stealth.JitterPercent < 0 || c.Stealth.JitterPercent > 100 {
		return fmt.Errorf("jitter_percent must be between 0 and 100")
	}

	// Validate logging config
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(s string) string {
	pattern := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return pattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := pattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}

// NavigationTimeout bounds every page navigation
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Auth.NavigationTimeoutSeconds) * time.Second
}

// LoginTimeout bounds the wait for a post-login address
func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.Auth.LoginTimeoutSeconds) * time.Second
}

// PollInterval is the address/element polling period
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Auth.PollIntervalMs) * time.Millisecond
}

// SettleInterval is the pause after each scroll
func (c *Config) SettleInterval() time.Duration {
	return time.Duration(c.Scrape.SettleMs) * time.Millisecond
}

// ProfileDelay is the pacing delay between scraped profiles
func (c *Config) ProfileDelay() time.Duration {
	return time.Duration(c.Scrape.ProfileDelaySeconds) * time.Second
}

// PostWaitTimeout bounds the wait for the first post container
func (c *Config) PostWaitTimeout() time.Duration {
	return time.Duration(c.Scrape.WaitTimeoutSeconds) * time.Second
}

// StepTimeout bounds each step of the connect sequence
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Connection.StepTimeoutMs) * time.Millisecond
}

// AttemptPause is the pause after each connection attempt
func (c *Config) AttemptPause() time.Duration {
	return time.Duration(c.Connection.AttemptPauseMs) * time.Millisecond
}

// PagePause is the pause after each search page transition
func (c *Config) PagePause() time.Duration {
	return time.Duration(c.Connection.PagePauseMs) * time.Millisecond
}

// GetTypingSpeed returns the typing speed as a duration
func (c *Config) GetTypingSpeed() time.Duration {
	return time.Duration(c.Stealth.TypingSpeedMs) * time.Millisecond
}

// SlowMotion returns the delay rod inserts between protocol actions
func (c *Config) SlowMotion() time.Duration {
	return time.Duration(c.Browser.SlowMotionMs) * time.Millisecond
}

// MinActionSpacing is the minimum gap between throttled page actions
func (c *Config) MinActionSpacing() time.Duration {
	return time.Duration(c.Stealth.MinActionSpaceMs) * time.Millisecond
}
