package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName    = "easyfire"
	configFile = "config.yaml"

	// ConfigPathEnvVar overrides the config file location
	ConfigPathEnvVar = "EASYFIRE_CONFIG"
)

// systemConfigPath is used when the user has no config file. Bridges running
// as a service usually keep their config here.
var systemConfigPath = filepath.Join("/etc", appName, configFile)

// GetConfigDir returns the per-user configuration directory:
//   - Linux and other Unix: $XDG_CONFIG_HOME/easyfire, else ~/.config/easyfire
//   - macOS: ~/.config/easyfire
//   - Windows: %LOCALAPPDATA%\easyfire, else %USERPROFILE%\AppData\Local\easyfire
func GetConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appName), nil
		}
		profile := os.Getenv("USERPROFILE")
		if profile == "" {
			return "", errors.New("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(profile, "AppData", "Local", appName), nil
	}

	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" && runtime.GOOS != "darwin" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// GetConfigPath returns the per-user config file path
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// ResolvePath picks the config file to use, in order: path, EASYFIRE_CONFIG,
// the per-user file, and the system file when only that one exists.
func ResolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := os.Getenv(ConfigPathEnvVar); env != "" {
		return env, nil
	}

	user, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	if runtime.GOOS != "windows" && !exists(user) && exists(systemConfigPath) {
		return systemConfigPath, nil
	}
	return user, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
