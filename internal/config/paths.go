package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// GlobalDirName is the name of the per-user directory
	GlobalDirName = ".espo-mcp"
	// ConfigFileName is the config file inside GlobalDir
	ConfigFileName = "config.yaml"
)

// GlobalDir returns the per-user directory path (~/.espo-mcp)
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return GlobalDirName
	}
	return filepath.Join(home, GlobalDirName)
}

// GlobalConfigPath returns the default config file path (~/.espo-mcp/config.yaml)
func GlobalConfigPath() string {
	return filepath.Join(GlobalDir(), ConfigFileName)
}

// AuditDBPath returns the default audit database path (~/.espo-mcp/audit.db)
func AuditDBPath() string {
	return filepath.Join(GlobalDir(), "audit.db")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
