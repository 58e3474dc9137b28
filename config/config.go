// Package config loads the YAML configuration of a blind connection
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/motionblinds-ble/util"
)

// Config is the root configuration
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Logger    LoggerConfig    `yaml:"logger"`
	Debug     DebugConfig     `yaml:"debug"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// DeviceConfig identifies the blind and its GATT layout
type DeviceConfig struct {
	Address     string `yaml:"address"`
	ServiceUUID string `yaml:"service_uuid"`
	NotifyUUID  string `yaml:"notify_uuid"`
	WriteUUID   string `yaml:"write_uuid"`
	Cipher      string `yaml:"cipher"` // "aes" or "plain"
	Key         string `yaml:"key"`    // 32 hex digits, aes only
}

// HandshakeConfig tunes the session handshake
type HandshakeConfig struct {
	MTU          int           `yaml:"mtu"`
	StateTimeout time.Duration `yaml:"state_timeout"` // 0 disables the watchdog
	MaxRetries   int           `yaml:"max_retries"`
	Timezone     string        `yaml:"timezone"` // IANA name for the set-time clock, "" = local
}

// ReconnectConfig drives the supervisor
type ReconnectConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MinInterval      time.Duration `yaml:"min_interval"`
	Burst            int           `yaml:"burst"`
	MaxFailures      uint32        `yaml:"max_failures"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

type DebugConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracerConfig holds tracing settings
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, file, noop
	File     string `yaml:"file"`
}

// Defaults returns a configuration for the stock Motion blind layout
func Defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			ServiceUUID: "d973f2e0-b19e-11e2-9e96-0800200c9a66",
			NotifyUUID:  "d973f2e1-b19e-11e2-9e96-0800200c9a66",
			WriteUUID:   "d973f2e2-b19e-11e2-9e96-0800200c9a66",
			Cipher:      "plain",
		},
		Handshake: HandshakeConfig{
			MTU:          512,
			StateTimeout: 10 * time.Second,
			MaxRetries:   2,
		},
		Reconnect: ReconnectConfig{
			Enabled:          true,
			MinInterval:      5 * time.Second,
			Burst:            1,
			MaxFailures:      5,
			OpenTimeout:      time.Minute,
			HandshakeTimeout: 45 * time.Second,
		},
		Logger: LoggerConfig{Level: "info"},
		Tracer: TracerConfig{Exporter: "stdout"},
	}
}

// DefaultPath is config.yaml in the data directory
func DefaultPath() string {
	return util.GetConfigPath()
}

// Load reads path over Defaults, applies environment overrides and validates
// the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides applies MOTIONBLINDS_* variables
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MOTIONBLINDS_ADDRESS"); v != "" {
		cfg.Device.Address = v
	}
	if v := os.Getenv("MOTIONBLINDS_CIPHER"); v != "" {
		cfg.Device.Cipher = v
	}
	if v := os.Getenv("MOTIONBLINDS_KEY"); v != "" {
		cfg.Device.Key = v
	}
	if v := os.Getenv("MOTIONBLINDS_STATE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Handshake.StateTimeout = d
		}
	}
	if v := os.Getenv("MOTIONBLINDS_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Handshake.MaxRetries = n
		}
	}
	if v := os.Getenv("MOTIONBLINDS_TIMEZONE"); v != "" {
		cfg.Handshake.Timezone = v
	}
	if v := os.Getenv("MOTIONBLINDS_RECONNECT"); v != "" {
		cfg.Reconnect.Enabled = v == "true"
	}
	if v := os.Getenv("MOTIONBLINDS_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("MOTIONBLINDS_DEBUG"); v == "true" {
		cfg.Debug.Enabled = true
	}
	if v := os.Getenv("MOTIONBLINDS_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("MOTIONBLINDS_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// Location resolves Handshake.Timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Handshake.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Handshake.Timezone)
}
