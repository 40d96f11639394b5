package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the ecgnet configuration file (~/.config/ecgnet/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Default model sources
	ModelConfig string `yaml:"model_config"`
	Checkpoint  string `yaml:"checkpoint"`

	// Server
	ServerAddress     string   `yaml:"server_address"`
	RequestsPerSecond *float64 `yaml:"requests_per_second"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ecgnet", "config.yaml")
}

// applyModelConfig fills the model source flags from the config file when the
// corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelConfig != "" && !c.IsSet("config") {
		modelConfigPath = cfg.ModelConfig
	}
	if cfg.Checkpoint != "" && !c.IsSet("checkpoint") {
		checkpointPath = cfg.Checkpoint
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, requestsPerSecond *float64) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.RequestsPerSecond != nil && !c.IsSet("rate") {
		*requestsPerSecond = *cfg.RequestsPerSecond
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
