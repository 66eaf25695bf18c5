package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"episweep/domain/policy"
	"episweep/domain/sweep"
	"episweep/internal/errors"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Engine kinds selectable through EPISWEEP_ENGINE.
const (
	EngineReference = "ref"
	EngineProcess   = "process"
)

// Config represents the complete application configuration
type Config struct {
	Engine  EngineConfig
	Store   StoreConfig
	Sweep   SweepConfig
	Ledger  LedgerConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// EngineConfig selects the simulator backend.
type EngineConfig struct {
	Kind    string
	Command string
	Args    []string
	Timeout time.Duration
}

// StoreConfig holds the artifact store location.
type StoreConfig struct {
	OutputDir string
}

// SweepConfig holds sweep execution settings.
type SweepConfig struct {
	Workers int
}

// LedgerConfig holds the optional outcome ledger DSN. Empty disables it.
type LedgerConfig struct {
	DSN string
}

// ServerConfig holds read API settings
type ServerConfig struct {
	Port string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// LoadDotEnv loads a .env file if one exists. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "failed to load %s", p)
		}
	}
	return nil
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Engine: EngineConfig{
			Kind:    getEnvOrDefault("EPISWEEP_ENGINE", EngineReference),
			Command: getEnvOrDefault("EPISWEEP_ENGINE_CMD", ""),
			Args:    strings.Fields(getEnvOrDefault("EPISWEEP_ENGINE_ARGS", "")),
			Timeout: getEnvDurationOrDefault("EPISWEEP_ENGINE_TIMEOUT", 0),
		},
		Store: StoreConfig{
			OutputDir: getEnvOrDefault("EPISWEEP_OUTPUT_DIR", "results"),
		},
		Sweep: SweepConfig{
			Workers: getEnvIntOrDefault("EPISWEEP_WORKERS", 1),
		},
		Ledger: LedgerConfig{
			DSN: getEnvOrDefault("EPISWEEP_LEDGER_DSN", ""),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "INFO"),
		},
	}

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks a configuration assembled from the environment and any
// command-line overrides.
func Validate(config *Config) error {
	return errors.Wrap(validateConfig(config), "configuration validation failed")
}

func validateConfig(config *Config) error {
	switch config.Engine.Kind {
	case EngineReference:
	case EngineProcess:
		if config.Engine.Command == "" {
			return errors.ConfigInvalid("EPISWEEP_ENGINE_CMD is required for the process engine")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown EPISWEEP_ENGINE %q", config.Engine.Kind))
	}
	if config.Sweep.Workers < 1 {
		return errors.ConfigInvalid("EPISWEEP_WORKERS must be at least 1")
	}
	if config.Store.OutputDir == "" {
		return errors.ConfigInvalid("EPISWEEP_OUTPUT_DIR is required")
	}
	return nil
}

// LoadGrid reads a YAML grid file, fills defaults and validates it. Unknown
// fields are rejected so typos do not silently shrink a sweep.
func LoadGrid(path string) (*sweep.GridSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read grid %s", path)
	}
	return ParseGrid(data)
}

// ParseGrid decodes and validates grid YAML.
func ParseGrid(data []byte) (*sweep.GridSpec, error) {
	var spec sweep.GridSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("invalid grid: %v", err))
	}
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "invalid grid")
	}
	for _, arm := range spec.Arms {
		if _, err := policy.ArmByName(arm); err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("grid arm %q: %v", arm, err))
		}
	}
	if _, err := policy.ParseAdoptionMode(spec.AdoptionMode); err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("grid adoption_mode: %v", err))
	}
	return &spec, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
