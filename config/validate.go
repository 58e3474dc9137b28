package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError accumulates config validation errors
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate returns a *ValidationError listing every problem in cfg
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateDevice(cfg, ve)
	validateHandshake(cfg, ve)
	validateReconnect(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateDevice(cfg *Config, ve *ValidationError) {
	for name, value := range map[string]string{
		"device.service_uuid": cfg.Device.ServiceUUID,
		"device.notify_uuid":  cfg.Device.NotifyUUID,
		"device.write_uuid":   cfg.Device.WriteUUID,
	} {
		if _, err := uuid.Parse(value); err != nil {
			ve.Add("%s is not a UUID: %q", name, value)
		}
	}

	switch cfg.Device.Cipher {
	case "plain":
	case "aes":
		key, err := hex.DecodeString(cfg.Device.Key)
		if err != nil || len(key) != 16 {
			ve.Add("device.key must be 32 hex digits for the aes cipher")
		}
	default:
		ve.Add("device.cipher must be aes or plain, got %q", cfg.Device.Cipher)
	}
}

func validateHandshake(cfg *Config, ve *ValidationError) {
	if cfg.Handshake.MTU < 23 || cfg.Handshake.MTU > 517 {
		ve.Add("handshake.mtu must be within 23..517")
	}
	if cfg.Handshake.StateTimeout < 0 {
		ve.Add("handshake.state_timeout must be >= 0")
	}
	if cfg.Handshake.MaxRetries < 0 {
		ve.Add("handshake.max_retries must be >= 0")
	}
	if cfg.Handshake.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Handshake.Timezone); err != nil {
			ve.Add("handshake.timezone: %v", err)
		}
	}
}

func validateReconnect(cfg *Config, ve *ValidationError) {
	if !cfg.Reconnect.Enabled {
		return
	}
	if cfg.Reconnect.MinInterval <= 0 {
		ve.Add("reconnect.min_interval must be > 0")
	}
	if cfg.Reconnect.Burst <= 0 {
		ve.Add("reconnect.burst must be > 0")
	}
	if cfg.Reconnect.MaxFailures == 0 {
		ve.Add("reconnect.max_failures must be > 0")
	}
	if cfg.Reconnect.OpenTimeout <= 0 {
		ve.Add("reconnect.open_timeout must be > 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not a level", cfg.Logger.Level)
	}
}
