// Package config provides configuration management for tts_inspect.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the current version of tts_inspect.
// This is set at build time via ldflags.
var Version = "dev"

// Config holds all configuration options for tts_inspect.
type Config struct {
	// Connection
	ChromePort string        `yaml:"chrome_port"`
	AutoLaunch bool          `yaml:"auto_launch"`
	Demo       bool          `yaml:"demo"`
	URLMatch   string        `yaml:"url_match"`
	Timeout    time.Duration `yaml:"timeout"`

	// Page contract
	FacadeExpr         string `yaml:"facade_expr"`
	ServiceField       string `yaml:"service_field"`
	ScreenSelector     string `yaml:"screen_selector"`
	ActiveClass        string `yaml:"active_class"`
	ScreenChangedEvent string `yaml:"screen_changed_event"`

	// Console
	Language          string        `yaml:"language"`
	HighlightBorder   string        `yaml:"highlight_border"`
	HighlightDuration time.Duration `yaml:"highlight_duration"`
	PreviewLength     int           `yaml:"preview_length"`
	CompareLength     int           `yaml:"compare_length"`

	// Recording & privacy
	RecordDir     string        `yaml:"record_dir"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Redact        bool          `yaml:"redact"`
	// Added to the built-in denylist and text patterns.
	RedactFields   []string `yaml:"redact_fields"`
	RedactPatterns []string `yaml:"redact_patterns"`

	// Logging
	LogLevel string `yaml:"log_level"`
	JSONLogs bool   `yaml:"json_logs"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		// Connection
		ChromePort: "9222",
		AutoLaunch: false,
		Demo:       false,
		URLMatch:   "",
		Timeout:    30 * time.Second,

		// Page contract
		FacadeExpr:         "window.ttsUI",
		ServiceField:       "ttsService",
		ScreenSelector:     ".screen",
		ActiveClass:        "active",
		ScreenChangedEvent: "screenChanged",

		// Console
		Language:          "en",
		HighlightBorder:   "3px solid #ff4081",
		HighlightDuration: 2 * time.Second,
		PreviewLength:     200,
		CompareLength:     80,

		// Recording & privacy
		RecordDir:     "",
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    8 * 1024, // 8 KB
		Redact:        true,

		// Logging
		LogLevel: "info",
		JSONLogs: false,
	}
}

// LoadFromFile reads a YAML config file. Keys missing from the file keep
// their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.ChromePort == "" {
		errs = append(errs, errors.New("chrome_port must not be empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.FacadeExpr == "" {
		errs = append(errs, errors.New("facade_expr must not be empty"))
	}
	if c.ServiceField == "" {
		errs = append(errs, errors.New("service_field must not be empty"))
	}
	if c.ScreenSelector == "" {
		errs = append(errs, errors.New("screen_selector must not be empty"))
	}
	if c.ActiveClass == "" {
		errs = append(errs, errors.New("active_class must not be empty"))
	}
	if c.ScreenChangedEvent == "" {
		errs = append(errs, errors.New("screen_changed_event must not be empty"))
	}
	if c.HighlightDuration <= 0 {
		errs = append(errs, errors.New("highlight_duration must be positive"))
	}
	if c.PreviewLength <= 0 || c.CompareLength <= 0 {
		errs = append(errs, errors.New("preview_length and compare_length must be positive"))
	}
	if c.RecordDir != "" && c.BufferSize < 1024 {
		errs = append(errs, fmt.Errorf("buffer_size must be at least 1024, got %d", c.BufferSize))
	}
	for _, p := range c.RedactPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("redact_patterns: %w", err))
		}
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}
