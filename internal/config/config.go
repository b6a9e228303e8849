package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/embermug/internal/ble"
	"github.com/chaz8081/embermug/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	DeviceName string        `yaml:"device_name"`
	Unit       string        `yaml:"unit"` // "celsius" or "fahrenheit"
	Presets    PresetsConfig `yaml:"presets"`
	Session    SessionConfig `yaml:"session"`
	BLE        BLEConfig     `yaml:"ble"`
	Redis      RedisConfig   `yaml:"redis"`
	LogLevel   string        `yaml:"log_level"`
}

// PresetsConfig holds the stored target temperatures in centidegrees Celsius.
type PresetsConfig struct {
	Coffee int `yaml:"coffee"`
	Tea    int `yaml:"tea"`
}

// SessionConfig holds the timings of the session state machine.
type SessionConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ScanTick        time.Duration `yaml:"scan_tick"`
	ScanRestart     time.Duration `yaml:"scan_restart"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// BLEConfig selects the Bluetooth backend.
type BLEConfig struct {
	Backend string `yaml:"backend"` // "tinygo" or "hci"
	Pair    bool   `yaml:"pair"`
}

// RedisConfig configures the optional Redis publisher.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "embermug")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DeviceName: ble.DefaultDeviceName,
		Unit:       "celsius",
		Presets: PresetsConfig{
			Coffee: 5500,
			Tea:    5900,
		},
		Session: SessionConfig{
			PollInterval:    2 * time.Second,
			RefreshInterval: 5 * time.Second,
			ScanTick:        500 * time.Millisecond,
			ScanRestart:     time.Second,
			ConnectTimeout:  10 * time.Second,
		},
		BLE: BLEConfig{
			Backend: ble.BackendTinyGo,
			Pair:    true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "embermug",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Unit = strings.ToLower(strings.TrimSpace(cfg.Unit))

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}

	if _, err := protocol.ParseUnit(c.Unit); err != nil {
		return fmt.Errorf("unit must be \"celsius\" or \"fahrenheit\", got %q", c.Unit)
	}

	if _, err := protocol.EncodeCentidegrees(c.Presets.Coffee); err != nil {
		return fmt.Errorf("presets.coffee: %w", err)
	}
	if _, err := protocol.EncodeCentidegrees(c.Presets.Tea); err != nil {
		return fmt.Errorf("presets.tea: %w", err)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"session.poll_interval", c.Session.PollInterval},
		{"session.refresh_interval", c.Session.RefreshInterval},
		{"session.scan_tick", c.Session.ScanTick},
		{"session.scan_restart", c.Session.ScanRestart},
		{"session.connect_timeout", c.Session.ConnectTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be > 0", d.name)
		}
	}

	switch c.BLE.Backend {
	case ble.BackendTinyGo, ble.BackendHCI:
	default:
		return fmt.Errorf("ble.backend must be \"tinygo\" or \"hci\", got %q", c.BLE.Backend)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return errors.New("redis.addr must not be empty when redis is enabled")
		}
		if c.Redis.Key == "" {
			return errors.New("redis.key must not be empty when redis is enabled")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// TemperatureUnit returns the parsed display unit. Call after Validate.
func (c *Config) TemperatureUnit() protocol.Unit {
	u, err := protocol.ParseUnit(c.Unit)
	if err != nil {
		return protocol.Celsius
	}
	return u
}

const header = "# embermug configuration\n# Presets are centidegrees Celsius (5500 = 55.00 °C).\n\n"

// Save writes c to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	path = expandTilde(path)
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}
	if err := Default().Save(path); err != nil {
		return "", err
	}
	return path, nil
}

// ParseLogLevel maps a config log level to slog. Unknown values map to info.
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

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
