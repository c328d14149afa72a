// Package config loads the CLI configuration from the user's config file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration.
type Config struct {
	// StorageRoot is where session logs and delta layers live.
	// Default: ~/.drydock
	StorageRoot string `yaml:"storage_root"`

	// Provider selects the model provider. Only "gemini" is built in.
	Provider string `yaml:"provider"`

	// Model is the default model used until the session records a model
	// change.
	Model string `yaml:"model"`

	// GeminiAPIKey authenticates against the Gemini API. The
	// GEMINI_API_KEY environment variable takes precedence.
	GeminiAPIKey string `yaml:"gemini_api_key"`

	// SandboxImage is the container image used for run_command.
	SandboxImage string `yaml:"sandbox_image"`

	// LogLevel: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		StorageRoot: filepath.Join(home, ".drydock"),
		Provider:    "gemini",
		Model:       "gemini-2.0-flash",
		LogLevel:    "info",
	}
}

// Path returns the config file location: $DRYDOCK_CONFIG or
// ~/.drydock/config.yaml.
func Path() string {
	if p := os.Getenv("DRYDOCK_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".drydock", "config.yaml")
}

// Load reads the config file at path, layering it over defaults and
// applying environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DRYDOCK_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
	if v := os.Getenv("DRYDOCK_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("DRYDOCK_SANDBOX_IMAGE"); v != "" {
		cfg.SandboxImage = v
	}
	if v := os.Getenv("DRYDOCK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
}
