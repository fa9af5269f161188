// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Device selection and session setup
	Device DeviceConfig `mapstructure:"device"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// DeviceConfig controls which card is opened and how the session is prepared
type DeviceConfig struct {
	Path string `mapstructure:"path"` // e.g. /dev/dri/card0

	AcquireMaster   bool `mapstructure:"acquire_master"`   // Become DRM master after opening
	Atomic          bool `mapstructure:"atomic"`           // Enable the atomic client cap
	UniversalPlanes bool `mapstructure:"universal_planes"` // Expose primary and cursor planes
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Device: DeviceConfig{
			Path:            "/dev/dri/card0",
			AcquireMaster:   false, // Read-only inspection works without master
			Atomic:          true,
			UniversalPlanes: true,
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("drmkit")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/drmkit")

		// If running with sudo, try the real user's config
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			viper.AddConfigPath(fmt.Sprintf("/home/%s/.config/drmkit", sudoUser))
		} else if home := os.Getenv("HOME"); home != "" && home != "/root" {
			viper.AddConfigPath(filepath.Join(home, ".config", "drmkit"))
		}

		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("DRMKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("device.path", DefaultConfig.Device.Path)
	viper.SetDefault("device.acquire_master", DefaultConfig.Device.AcquireMaster)
	viper.SetDefault("device.atomic", DefaultConfig.Device.Atomic)
	viper.SetDefault("device.universal_planes", DefaultConfig.Device.UniversalPlanes)
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config path that does not exist yet is not an error either
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		c := DefaultConfig
		return &c
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save writes the current settings to the config file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	if os.Getuid() == 0 || os.Getenv("SUDO_USER") != "" {
		return "/etc/drmkit/drmkit.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/drmkit/drmkit.toml"
	}

	return filepath.Join(home, ".config", "drmkit", "drmkit.toml")
}

// UpdateDevice replaces the device section and saves it
func UpdateDevice(deviceCfg DeviceConfig) error {
	viper.Set("device.path", deviceCfg.Path)
	viper.Set("device.acquire_master", deviceCfg.AcquireMaster)
	viper.Set("device.atomic", deviceCfg.Atomic)
	viper.Set("device.universal_planes", deviceCfg.UniversalPlanes)
	if cfg == nil {
		c := DefaultConfig
		cfg = &c
	}
	cfg.Device = deviceCfg
	return Save()
}
