// Package config loads prismatad configuration.
//
// Values come from built-in defaults, then an optional YAML file, then
// PRISMATA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Defaults.
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8420
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultServiceName       = "prismata"
	DefaultMaxVerifyAttempts = 3
	DefaultHistoryMaxEntries = 100
	DefaultLLMProvider       = "openai"
	DefaultLLMModel          = "gpt-4o-mini"
	DefaultLLMTimeout        = 60 * time.Second
	DefaultSubjectPrefix     = "prismata"
)

// Config holds the complete prismatad configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Operations   OperationsConfig   `koanf:"operations"`
	LLM          LLMConfig          `koanf:"llm"`
	Events       EventsConfig       `koanf:"events"`
	Workspace    WorkspaceConfig    `koanf:"workspace"`
	Secrets      SecretsConfig      `koanf:"secrets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig selects level and encoding. The remaining logging knobs keep
// their package defaults.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// OrchestratorConfig bounds task execution.
type OrchestratorConfig struct {
	MaxVerifyAttempts int `koanf:"max_verify_attempts"`
	HistoryMaxEntries int `koanf:"history_max_entries"`
}

// OperationsConfig locates the operation store snapshot. An empty
// HistoryFile keeps operations in memory.
type OperationsConfig struct {
	HistoryFile string `koanf:"history_file"`
}

// LLMConfig configures the language model backend.
type LLMConfig struct {
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Timeout     Duration `koanf:"timeout"`
	Temperature float32  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	RateLimit   float64  `koanf:"rate_limit"`
	Burst       int      `koanf:"burst"`
}

// EventsConfig configures lifecycle event publishing. An empty NATSURL
// disables publishing.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// WorkspaceConfig confines file capabilities.
type WorkspaceConfig struct {
	BaseDir string `koanf:"base_dir"`
}

// SecretsConfig controls scrubbing of error messages before they are stored.
type SecretsConfig struct {
	DisableScrub bool `koanf:"disable_scrub"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http/protobuf, got %q", c.Telemetry.Protocol))
		}
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate))
	}
	if c.Orchestrator.MaxVerifyAttempts < 1 {
		errs = append(errs, fmt.Errorf("orchestrator.max_verify_attempts must be >= 1, got %d", c.Orchestrator.MaxVerifyAttempts))
	}
	if c.Orchestrator.HistoryMaxEntries < 1 {
		errs = append(errs, fmt.Errorf("orchestrator.history_max_entries must be >= 1, got %d", c.Orchestrator.HistoryMaxEntries))
	}
	if c.LLM.Provider != "openai" {
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.RateLimit < 0 {
		errs = append(errs, errors.New("llm.rate_limit must be >= 0"))
	}
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Orchestrator.MaxVerifyAttempts == 0 {
		cfg.Orchestrator.MaxVerifyAttempts = DefaultMaxVerifyAttempts
	}
	if cfg.Orchestrator.HistoryMaxEntries == 0 {
		cfg.Orchestrator.HistoryMaxEntries = DefaultHistoryMaxEntries
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = DefaultLLMProvider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(DefaultLLMTimeout)
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = DefaultSubjectPrefix
	}
}
