package util

import (
	"os"
	"path/filepath"
	"strings"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("MOTIONBLINDS_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".motionblinds-ble")
}

// GetDeviceCacheDir returns the cache directory for a specific blind.
// MAC addresses are flattened so they can be used as a directory name.
func GetDeviceCacheDir(address string) string {
	name := strings.ToLower(strings.ReplaceAll(address, ":", ""))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(GetDataDir(), name)
}

// GetConfigPath returns the default location of the YAML config file
func GetConfigPath() string {
	return filepath.Join(GetDataDir(), "config.yaml")
}
