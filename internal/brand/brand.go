// Package brand provides centralized naming constants and default locations.
package brand

import (
	"os"
	"path/filepath"
)

const (
	Name             = "NetAudit"
	LowerName        = "netaudit"
	Description      = "Control plane and traffic telemetry for LAN auditing"
	ConfigEnvPrefix  = "NETAUDIT"
	DefaultConfigDir = "/etc/netaudit"
	ConfigFileName   = "netaudit.hcl"
)

// Version is set at build time via -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// UserAgent returns a name/version string, used as the NATS client name.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return LowerName + "/" + version
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: NETAUDIT_CONFIG_DIR > NETAUDIT_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// DefaultConfigPath is the config file used when -config is not given.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
