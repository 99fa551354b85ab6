package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// GlobalOptions mirrors the session-wide options applied at startup
type GlobalOptions struct {
	AutoDecodeBytes bool          `yaml:"auto_decode_bytes" default:"false"`
	TimeoutDuration time.Duration `yaml:"timeout_duration" default:"10s"`
}

// Config holds application configuration
type Config struct {
	LogLevel     string        `yaml:"log_level" default:"info"`
	Driver       string        `yaml:"driver" default:"goble"`
	Global       GlobalOptions `yaml:"global"`
	ScanDuration time.Duration `yaml:"scan_duration" default:"5s"`
	OutputFormat string        `yaml:"output_format" default:"table"` // table, json
}

// Drivers lists the accepted driver names
var Drivers = []string{"goble", "tinygo"}

// OutputFormats lists the accepted output formats
var OutputFormats = []string{"table", "json"}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file. Fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if !contains(Drivers, c.Driver) {
		return fmt.Errorf("driver must be one of %v, got %q", Drivers, c.Driver)
	}
	if !contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("output_format must be one of %v, got %q", OutputFormats, c.OutputFormat)
	}
	if c.Global.TimeoutDuration <= 0 {
		return fmt.Errorf("global.timeout_duration must be > 0")
	}
	if c.ScanDuration < 0 {
		return fmt.Errorf("scan_duration must not be negative")
	}
	return nil
}

// Level returns the parsed log level, falling back to Info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
