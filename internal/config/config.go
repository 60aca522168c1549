package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config represents the complete configuration for the Qrow settings bridge
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Timing  TimingConfig  `yaml:"timing"`
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig holds network-related settings
type NetworkConfig struct {
	HTTP   HTTPConfig   `yaml:"http"`
	Device DeviceConfig `yaml:"device"`
}

// HTTPConfig holds settings for the host signal endpoint
type HTTPConfig struct {
	Port         int    `yaml:"port"`
	ServerHeader string `yaml:"serverHeader"`
	DevMode      bool   `yaml:"devMode"`
}

// DeviceConfig holds settings for the device link TCP server
type DeviceConfig struct {
	Port         int      `yaml:"port"`
	AllowedCIDRs []string `yaml:"allowedCidrs"`
}

// TimingConfig holds timing-related settings
type TimingConfig struct {
	AckTimeoutSec int `yaml:"ackTimeoutSec"` // how long a sent AppMessage may wait for ack/nack
}

// LoggingConfig holds log output settings. An empty File logs to stdout only.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from file and environment variables.
// A non-empty path takes precedence over QROW_BRIDGE_CONFIG.
func Load(path string) (*Config, error) {
	// Load default configuration
	cfg := getDefaultConfig()

	// Load from default config file
	if err := loadFromFile(cfg, "config/default.yaml"); err != nil {
		// If default config doesn't exist, continue with defaults
		fmt.Printf("Warning: Could not load default config: %v\n", err)
	}

	if path == "" {
		path = os.Getenv("QROW_BRIDGE_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %v", path, err)
		}
	}

	// Override with environment variables
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return cfg, nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			HTTP: HTTPConfig{
				Port:         8400,
				ServerHeader: "",
				DevMode:      false,
			},
			Device: DeviceConfig{
				Port:         8401,
				AllowedCIDRs: []string{"127.0.0.0/8", "192.168.0.0/16"},
			},
		},
		Timing: TimingConfig{
			AckTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   false,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides.
// Unparseable numeric values are ignored.
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("QROW_BRIDGE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Network.HTTP.Port = p
		}
	}

	if port := os.Getenv("QROW_BRIDGE_DEVICE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Network.Device.Port = p
		}
	}

	if timeout := os.Getenv("QROW_BRIDGE_ACK_TIMEOUT_SEC"); timeout != "" {
		if sec, err := strconv.Atoi(timeout); err == nil {
			cfg.Timing.AckTimeoutSec = sec
		}
	}

	if file := os.Getenv("QROW_BRIDGE_LOG_FILE"); file != "" {
		cfg.Logging.File = file
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if !validPort(cfg.Network.HTTP.Port) {
		return fmt.Errorf("invalid HTTP port %d", cfg.Network.HTTP.Port)
	}

	if !validPort(cfg.Network.Device.Port) {
		return fmt.Errorf("invalid device port %d", cfg.Network.Device.Port)
	}

	if cfg.Network.HTTP.Port == cfg.Network.Device.Port {
		return fmt.Errorf("HTTP and device ports must differ, both are %d", cfg.Network.HTTP.Port)
	}

	if len(cfg.Network.Device.AllowedCIDRs) == 0 {
		return fmt.Errorf("at least one allowed CIDR must be configured for the device link")
	}
	for _, cidr := range cfg.Network.Device.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid allowed CIDR %q: %v", cidr, err)
		}
	}

	if cfg.Timing.AckTimeoutSec <= 0 || cfg.Timing.AckTimeoutSec > 60 {
		return fmt.Errorf("ack timeout %d seconds is outside reasonable range [1, 60]", cfg.Timing.AckTimeoutSec)
	}

	if cfg.Logging.File != "" && cfg.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("log maxSizeMB must be positive when a log file is set, got %d", cfg.Logging.MaxSizeMB)
	}

	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
