package interfaces

import (
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir is the per-user directory holding playbyte.toml and the default data root.
func ConfigDir() (string, error) {
	if dir := os.Getenv("PLAYBYTE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "playbyte"), nil
}

// IsTruthy interprets environment-style boolean strings.
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	default:
		return false
	}
}
