package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Lamps     []LampConfig `yaml:"lamps"`
	Transport string       `yaml:"transport"` // "bluez" or "native"
	MQTT      MQTTConfig   `yaml:"mqtt"`
	LogLevel  string       `yaml:"log_level"`
}

// LampConfig identifies one lamp.
type LampConfig struct {
	// MAC address of the lamp; with the native transport on macOS this is
	// the CoreBluetooth peripheral UUID instead.
	MAC  string `yaml:"mac"`
	Name string `yaml:"name"` // optional display name, defaults to the MAC
}

// MQTTConfig holds the MQTT bridge settings. An empty broker disables the
// bridge.
type MQTTConfig struct {
	Broker          string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"` // empty disables Home Assistant discovery
	PollSeconds     int    `yaml:"poll_seconds"`     // lamp status poll interval
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "beurerctl")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. The transport
// defaults to BlueZ on Linux, where bluetoothd owns the adapter, and to the
// native stack elsewhere.
func Default() *Config {
	return &Config{
		Transport: defaultTransport(),
		MQTT: MQTTConfig{
			ClientID:        "beurerctl",
			TopicPrefix:     "beurer",
			DiscoveryPrefix: "homeassistant",
			PollSeconds:     60,
		},
		LogLevel: "info",
	}
}

func defaultTransport() string {
	if runtime.GOOS == "linux" {
		return "bluez"
	}
	return "native"
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Transport {
	case "bluez", "native":
	default:
		return fmt.Errorf("transport must be \"bluez\" or \"native\", got %q", c.Transport)
	}

	seen := make(map[string]int)
	for i, lamp := range c.Lamps {
		if lamp.MAC == "" {
			return fmt.Errorf("lamps[%d].mac must not be empty", i)
		}
		if err := validateAddress(c.Transport, lamp.MAC); err != nil {
			return fmt.Errorf("lamps[%d].mac: %w", i, err)
		}
		key := strings.ToUpper(lamp.MAC)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("lamps[%d].mac duplicates lamps[%d]", i, prev)
		}
		seen[key] = i
	}

	if c.MQTT.Broker != "" {
		if !strings.Contains(c.MQTT.Broker, "://") {
			return fmt.Errorf("mqtt.broker %q must include a scheme, e.g. tcp://host:1883", c.MQTT.Broker)
		}
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id must not be empty")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix must not be empty")
		}
	}
	if c.MQTT.PollSeconds < 0 {
		return fmt.Errorf("mqtt.poll_seconds must be >= 0, got %d", c.MQTT.PollSeconds)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// validateAddress checks a lamp address against the chosen transport. BlueZ
// derives D-Bus object paths from real MAC addresses; the native stack also
// takes CoreBluetooth peripheral UUIDs, which is all macOS exposes.
func validateAddress(transport, addr string) error {
	if _, err := net.ParseMAC(addr); err == nil {
		return nil
	}
	if transport == "native" {
		if _, err := uuid.Parse(addr); err == nil {
			return nil
		}
		return fmt.Errorf("%q is not a MAC address or peripheral UUID", addr)
	}
	return fmt.Errorf("%q is not a MAC address", addr)
}

// WriteDefault creates the default config file if none exists, returning
// the path it wrote. If the file already exists it returns ("", nil) and
// leaves it untouched.
func WriteDefault() (string, error) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", fmt.Errorf("cannot determine config directory")
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	header := "# beurerctl configuration\n" +
		"# Add your lamps under lamps:, e.g.\n" +
		"#   lamps:\n" +
		"#     - mac: \"AA:BB:CC:DD:EE:FF\"\n" +
		"#       name: desk\n" +
		"# Set mqtt.broker to enable the MQTT bridge.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a config log level string to a slog.Level.
// Unknown values default to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
