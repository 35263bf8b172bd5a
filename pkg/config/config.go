package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the NornDB node configuration
type Config struct {
	Bind      string    `yaml:"bind"`
	Port      int       `yaml:"port"`
	Advertise string    `yaml:"advertise"`
	Admin     Admin     `yaml:"admin"`
	Cluster   Cluster   `yaml:"cluster"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
	Logging   Logging   `yaml:"logging"`
}

// Admin contains the HTTP admin endpoint configuration
type Admin struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Peer identifies another node of the cluster
type Peer struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
}

// Cluster contains the static cluster view
type Cluster struct {
	Peers []Peer `yaml:"peers"`
}

// Heartbeat contains client keepalive configuration
type Heartbeat struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Bind: "127.0.0.1",
		Port: 9001,
		Admin: Admin{
			Bind: "127.0.0.1",
			Port: 9080,
		},
		Heartbeat: Heartbeat{
			Timeout: 15 * time.Second,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// WireAddr returns the host:port the wire server binds to
func (c *Config) WireAddr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// AdminAddr returns the host:port the admin server binds to
func (c *Config) AdminAddr() string {
	return fmt.Sprintf("%s:%d", c.Admin.Bind, c.Admin.Port)
}

// AdvertiseAddr returns the address advertised to clients, falling back to
// the bind address
func (c *Config) AdvertiseAddr() string {
	if c.Advertise != "" {
		return c.Advertise
	}
	return c.WireAddr()
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
