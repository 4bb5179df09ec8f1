package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/mcpchat"
	configFileName = "config.yaml"
)

// Environment variables overriding file configuration.
const (
	EnvProvider   = "MCPCHAT_PROVIDER"
	EnvModel      = "MCPCHAT_MODEL"
	EnvBaseURL    = "MCPCHAT_BASE_URL"
	EnvTokenStore = "MCPCHAT_TOKEN_STORE"
)

// DefaultConfigPath returns ~/.config/mcpchat/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// Load reads configuration from the given file, or the default path when
// empty. A missing file yields the defaults; a malformed file is an error.
// Environment overrides are applied after the file is read.
func Load(configPath string) (Config, error) {
	cfg := GetDefaultConfig()

	if configPath == "" {
		var err error
		configPath, err = DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no config file found, using defaults",
				"path", configPath,
			)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configPath, err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config in %s: %w", configPath, err)
	}

	slog.Debug("loaded configuration",
		"path", configPath,
		"servers", len(cfg.Servers),
	)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvProvider); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvTokenStore); v != "" {
		cfg.TokenStore = v
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		if srv.Name == "" {
			return fmt.Errorf("server entry missing name")
		}
		if srv.URL == "" {
			return fmt.Errorf("server %q missing url", srv.Name)
		}
		if seen[srv.Name] {
			return fmt.Errorf("duplicate server name %q", srv.Name)
		}
		seen[srv.Name] = true
	}
	return nil
}
