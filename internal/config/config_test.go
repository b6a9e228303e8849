package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/embermug/internal/ble/protocol"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DeviceName != "Ember Ceramic Mug" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "Ember Ceramic Mug")
	}
	if cfg.Unit != "celsius" {
		t.Errorf("Unit = %q, want %q", cfg.Unit, "celsius")
	}
	if cfg.Presets.Coffee != 5500 {
		t.Errorf("Presets.Coffee = %d, want 5500", cfg.Presets.Coffee)
	}
	if cfg.Presets.Tea != 5900 {
		t.Errorf("Presets.Tea = %d, want 5900", cfg.Presets.Tea)
	}
	if cfg.Session.PollInterval != 2*time.Second {
		t.Errorf("Session.PollInterval = %v, want 2s", cfg.Session.PollInterval)
	}
	if cfg.Session.RefreshInterval != 5*time.Second {
		t.Errorf("Session.RefreshInterval = %v, want 5s", cfg.Session.RefreshInterval)
	}
	if cfg.BLE.Backend != "tinygo" {
		t.Errorf("BLE.Backend = %q, want %q", cfg.BLE.Backend, "tinygo")
	}
	if !cfg.BLE.Pair {
		t.Error("BLE.Pair should default to true")
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled should default to false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device_name: My Mug
unit: Fahrenheit
presets:
  coffee: 5650
  tea: 6000
session:
  poll_interval: 1s
  refresh_interval: 10s
ble:
  backend: hci
  pair: false
redis:
  enabled: true
  addr: redis:6379
  db: 2
  key: kitchen
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DeviceName != "My Mug" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "My Mug")
	}
	if cfg.Unit != "fahrenheit" {
		t.Errorf("Unit = %q, want %q", cfg.Unit, "fahrenheit")
	}
	if cfg.TemperatureUnit() != protocol.Fahrenheit {
		t.Errorf("TemperatureUnit() = %v, want Fahrenheit", cfg.TemperatureUnit())
	}
	if cfg.Presets.Coffee != 5650 || cfg.Presets.Tea != 6000 {
		t.Errorf("Presets = %+v, want {5650 6000}", cfg.Presets)
	}
	if cfg.Session.PollInterval != time.Second {
		t.Errorf("Session.PollInterval = %v, want 1s", cfg.Session.PollInterval)
	}
	if cfg.Session.RefreshInterval != 10*time.Second {
		t.Errorf("Session.RefreshInterval = %v, want 10s", cfg.Session.RefreshInterval)
	}
	if cfg.Session.ScanTick != 500*time.Millisecond {
		t.Errorf("Session.ScanTick = %v, want default 500ms", cfg.Session.ScanTick)
	}
	if cfg.BLE.Backend != "hci" || cfg.BLE.Pair {
		t.Errorf("BLE = %+v, want {hci false}", cfg.BLE)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 || cfg.Redis.Key != "kitchen" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("unit: f\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Presets.Coffee != 5500 {
		t.Errorf("Presets.Coffee = %d, want 5500", cfg.Presets.Coffee)
	}
	if cfg.DeviceName != "Ember Ceramic Mug" {
		t.Errorf("DeviceName = %q, want default", cfg.DeviceName)
	}
	if cfg.TemperatureUnit() != protocol.Fahrenheit {
		t.Errorf("TemperatureUnit() = %v, want Fahrenheit", cfg.TemperatureUnit())
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("presets: [1, 2\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty device name",
			modify:  func(c *Config) { c.DeviceName = "" },
			wantErr: true,
		},
		{
			name:    "invalid unit",
			modify:  func(c *Config) { c.Unit = "kelvin" },
			wantErr: true,
		},
		{
			name:    "negative coffee preset",
			modify:  func(c *Config) { c.Presets.Coffee = -100 },
			wantErr: true,
		},
		{
			name:    "tea preset too large",
			modify:  func(c *Config) { c.Presets.Tea = 70000 },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			modify:  func(c *Config) { c.Session.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "negative refresh interval",
			modify:  func(c *Config) { c.Session.RefreshInterval = -time.Second },
			wantErr: true,
		},
		{
			name:    "unknown ble backend",
			modify:  func(c *Config) { c.BLE.Backend = "bluez" },
			wantErr: true,
		},
		{
			name:    "redis enabled without addr",
			modify:  func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" },
			wantErr: true,
		},
		{
			name:    "redis disabled without addr",
			modify:  func(c *Config) { c.Redis.Addr = "" },
			wantErr: false,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "embermug", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# embermug") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Presets.Coffee != 5500 || cfg.Presets.Tea != 5900 {
		t.Errorf("written presets = %+v, want {5500 5900}", cfg.Presets)
	}
	if cfg.Session.PollInterval != 2*time.Second {
		t.Errorf("written Session.PollInterval = %v, want 2s", cfg.Session.PollInterval)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "embermug")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("unit: fahrenheit\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Presets.Tea = 6150
	cfg.Unit = "fahrenheit"
	if err := cfg.Save(cfgPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Presets.Tea != 6150 {
		t.Errorf("Presets.Tea = %d, want 6150", loaded.Presets.Tea)
	}
	if loaded.Unit != "fahrenheit" {
		t.Errorf("Unit = %q, want fahrenheit", loaded.Unit)
	}
	if loaded.Session.ConnectTimeout != 10*time.Second {
		t.Errorf("Session.ConnectTimeout = %v, want 10s", loaded.Session.ConnectTimeout)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
