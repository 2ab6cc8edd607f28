// Package conf handles loading and managing application settings.
package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/oceanlabs/hydrolabel-go/internal/errors"
)

// LogSettings controls file logging rotation.
type LogSettings struct {
	Enabled    bool   // true to enable file logging
	Path       string // path to log file
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to retain rotated files
}

// ServerSettings holds the HTTP API configuration.
type ServerSettings struct {
	Host string // interface to bind
	Port int    // port to listen on
}

// DiscoverySettings bounds the directory prober.
type DiscoverySettings struct {
	MaxEntries  int // per-scan cap on directory entries examined, 0 = unlimited
	CacheTTLSec int // discovery result cache TTL in seconds
}

// LabelSettings controls label store behavior.
type LabelSettings struct {
	ValidateTaxonomy bool   // reject labels not present in the taxonomy tree
	DefaultAnnotator string // annotator recorded when the caller supplies none
}

// MediaSettings controls the media serving endpoints.
type MediaSettings struct {
	ProbeAudio bool // read WAV/FLAC headers for duration metadata
}

// Settings is the top-level application configuration.
type Settings struct {
	Debug bool

	Main struct {
		Name string      // node name used in log attributes
		Log  LogSettings // file logging configuration
	}

	Server    ServerSettings
	Discovery DiscoverySettings
	Labels    LabelSettings
	Media     MediaSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration from file, environment, and defaults.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	initViper()

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.Newf("error unmarshaling config: %w", err).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

func initViper() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths := configPaths()
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("HYDROLABEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine, defaults apply.
			slog.Debug("no config file found, using defaults")
		} else {
			slog.Warn("error reading config file, using defaults", "error", err)
		}
	}
}

// configPaths returns the list of directories to search for config.yaml.
func configPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "hydrolabel"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hydrolabel"))
	}
	return paths
}

// Setting returns the loaded settings, loading them on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Errorf("error loading settings: %w", err))
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
