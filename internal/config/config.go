// Package config loads the CLI and server configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config drives the tunetree CLI and HTTP server.
type Config struct {
	// RepositoryDir is the root folder of the on-disk repository.
	RepositoryDir string `yaml:"repository_dir"`
	// Project and Client name where trial records live.
	Project string `yaml:"project"`
	Client  string `yaml:"client"`
	// Metric names the main metric used to pick best trials.
	Metric string `yaml:"metric"`
	// ListenAddr is the HTTP server bind address.
	ListenAddr string `yaml:"listen_addr"`
	// RedisAddr, when set, enables distributed locking for runs that
	// share the repository across processes.
	RedisAddr string `yaml:"redis_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		RepositoryDir: "tunetree-data",
		ListenAddr:    ":8080",
	}
}

// Load reads a YAML config file, filling unset fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
