// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Display catalog and virtual device settings
	Display DisplayConfig `mapstructure:"display"`

	// Software device driver settings
	Driver DriverConfig `mapstructure:"driver"`

	// Shared-memory resolution broadcast settings
	Broadcast BroadcastConfig `mapstructure:"broadcast"`

	// Control socket settings
	IPC IPCConfig `mapstructure:"ipc"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// DisplayConfig contains catalog and virtual monitor settings
type DisplayConfig struct {
	NamePrefix         string `mapstructure:"name_prefix"`          // Device name prefix for virtual monitors
	MaxVirtualMonitors int    `mapstructure:"max_virtual_monitors"` // Per-attach virtual monitor limit
	CreateTimeout      int    `mapstructure:"create_timeout"`       // Seconds to wait for device readiness
}

// DriverConfig contains software-device driver settings
type DriverConfig struct {
	Module    string `mapstructure:"module"`     // Kernel module providing virtual displays
	SysfsPath string `mapstructure:"sysfs_path"` // Driver control directory
}

// BroadcastConfig contains shared-memory segment settings
type BroadcastConfig struct {
	Segment  string `mapstructure:"segment"`  // Global segment name under /dev/shm
	Capacity int    `mapstructure:"capacity"` // Maximum published resolution pairs
}

// IPCConfig contains control socket settings
type IPCConfig struct {
	Socket string `mapstructure:"socket"` // Socket path override, empty for default
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Display: DisplayConfig{
			NamePrefix:         "VDISPLAY",
			MaxVirtualMonitors: 4,
			CreateTimeout:      10,
		},
		Driver: DriverConfig{
			Module:    "evdi",
			SysfsPath: "/sys/devices/evdi",
		},
		Broadcast: BroadcastConfig{
			Segment:  "vdisplay-resolutions",
			Capacity: 200,
		},
		IPC: IPCConfig{
			Socket: "",
		},
		Logging: LoggingConfig{
			LogLevel: "",
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
	viper.SetConfigName("vdisplay")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/vdisplay")
		if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "vdisplay"))
		}
		viper.AddConfigPath(".")
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("display.name_prefix", DefaultConfig.Display.NamePrefix)
	viper.SetDefault("display.max_virtual_monitors", DefaultConfig.Display.MaxVirtualMonitors)
	viper.SetDefault("display.create_timeout", DefaultConfig.Display.CreateTimeout)

	viper.SetDefault("driver.module", DefaultConfig.Driver.Module)
	viper.SetDefault("driver.sysfs_path", DefaultConfig.Driver.SysfsPath)

	viper.SetDefault("broadcast.segment", DefaultConfig.Broadcast.Segment)
	viper.SetDefault("broadcast.capacity", DefaultConfig.Broadcast.Capacity)

	viper.SetDefault("ipc.socket", DefaultConfig.IPC.Socket)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
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
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}
	if os.Getuid() == 0 {
		return "/etc/vdisplay/vdisplay.toml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/vdisplay/vdisplay.toml"
	}
	return filepath.Join(home, ".config", "vdisplay", "vdisplay.toml")
}
