package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the base gesturelock data directory.
// GESTURELOCK_DATA_DIR overrides the platform default.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/gesturelock/
//   - Linux:   $XDG_DATA_HOME/gesturelock or ~/.local/share/gesturelock/
//   - Windows: %APPDATA%\gesturelock\
func DataDir() string {
	if envDir := os.Getenv("GESTURELOCK_DATA_DIR"); envDir != "" {
		return envDir
	}

	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "gesturelock")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "gesturelock")
		}
		return filepath.Join(home, "AppData", "Roaming", "gesturelock")
	case "linux":
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "gesturelock")
		}
		return filepath.Join(home, ".local", "share", "gesturelock")
	default:
		return filepath.Join(home, ".gesturelock")
	}
}

// ConfigDir returns the directory holding config.toml. On Linux it follows
// XDG_CONFIG_HOME; elsewhere it is the data directory.
func ConfigDir() string {
	if envDir := os.Getenv("GESTURELOCK_DATA_DIR"); envDir != "" {
		return envDir
	}
	if runtime.GOOS == "linux" {
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "gesturelock")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "gesturelock")
	}
	return DataDir()
}
