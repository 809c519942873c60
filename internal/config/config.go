// ABOUTME: Configuration loading and parsing for credvault
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete credvault configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Tokens  TokensConfig  `yaml:"tokens"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects and configures the secure-storage provider
type StorageConfig struct {
	// Backend is one of "sqlite", "keyring", "memory"
	Backend string `yaml:"backend"`
	// Path is the database file location (sqlite backend)
	Path string `yaml:"path"`
	// PassphraseEnv names the environment variable holding the sealing
	// passphrase (sqlite backend)
	PassphraseEnv string `yaml:"passphrase_env"`
	// KeyringService is the service namespace (keyring backend)
	KeyringService string `yaml:"keyring_service"`
}

// TokensConfig holds token lifecycle configuration
type TokensConfig struct {
	ValidityWindow time.Duration `yaml:"-"`
	// BiometricPrompt enables the interactive approval gate for
	// protected reads
	BiometricPrompt bool `yaml:"biometric_prompt"`

	// Raw string value for YAML unmarshaling
	ValidityWindowRaw string `yaml:"validity_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			Backend:        "sqlite",
			Path:           home + "/.local/share/credvault/vault.db",
			PassphraseEnv:  "CREDVAULT_PASSPHRASE",
			KeyringService: "credvault",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
		if c.Storage.PassphraseEnv == "" {
			return fmt.Errorf("storage.passphrase_env is required for the sqlite backend")
		}
	case "keyring":
		if c.Storage.KeyringService == "" {
			return fmt.Errorf("storage.keyring_service is required for the keyring backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be one of sqlite, keyring, memory (got %q)", c.Storage.Backend)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Tokens.ValidityWindowRaw != "" {
		var err error
		cfg.Tokens.ValidityWindow, err = time.ParseDuration(cfg.Tokens.ValidityWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing validity_window %q: %w", cfg.Tokens.ValidityWindowRaw, err)
		}
	}

	return nil
}
