// Package config holds the strata configuration: YAML file on disk,
// environment variables on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/stratamem/strata/internal/embedding"
	"github.com/stratamem/strata/internal/lifecycle"
	"github.com/stratamem/strata/internal/llm"
)

// Config holds all strata configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Embedding embedding.Config `yaml:"embedding"`
	LLM       llm.Config       `yaml:"llm"`
	Lifecycle LifecycleConfig  `yaml:"lifecycle"`
	LogLevel  string           `yaml:"log_level"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	EnableFTS     *bool  `yaml:"enable_fts"`
	EnableVector  *bool  `yaml:"enable_vector"`
	VectorBackend string `yaml:"vector_backend"`
}

type LifecycleConfig struct {
	// Schedule is a cron expression for the maintenance pass. Empty
	// disables scheduled maintenance.
	Schedule string           `yaml:"schedule"`
	Policy   lifecycle.Policy `yaml:"policy"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37710,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: embedding.DefaultConfig(),
		LLM: llm.Config{
			Provider: "claude-cli",
			Model:    "haiku",
		},
		Lifecycle: LifecycleConfig{
			Schedule: "0 3 * * *", // daily, 03:00
			Policy:   lifecycle.DefaultPolicy(),
		},
		LogLevel: "info",
	}
}

// DefaultPath returns the default config file location: ~/.strata/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".strata", "config.yaml"), nil
}

// Load reads the config file at path, layered over Default. A missing file
// is not an error; the defaults stand. Environment variables win last:
// ANTHROPIC_API_KEY and STRATA_DB.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.AnthropicKey = key
	}
	if db := os.Getenv("STRATA_DB"); db != "" {
		cfg.Database.Path = db
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
