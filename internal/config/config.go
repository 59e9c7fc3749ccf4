// Package config loads and saves the persisted user preferences.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pandora-cli/pandora/internal/station"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "pandora-cli"
	AppDescription = "A terminal client for Pandora internet radio"

	ConfigDir      = ".config/pandora"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100
)

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/pandora-cli/pandora/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

type Config struct {
	Username       string `yaml:"username"`
	PremiumAccount bool   `yaml:"premium_account"`
	MinQuality     string `yaml:"min_quality"`
	MaxQuality     string `yaml:"max_quality"`
	ResumeOnHangup bool   `yaml:"resume_on_hangup"`
	LastStationID  string `yaml:"last_station_id"`
	Volume         int    `yaml:"volume"`
}

var qualityNames = map[string]station.AudioFormat{
	"aac32":  station.AAC32,
	"aac64":  station.AAC64,
	"mp3128": station.MP3128,
	"mp3192": station.MP3192,
}

// ParseQuality maps a config quality name to its audio format.
func ParseQuality(name string) (station.AudioFormat, error) {
	format, ok := qualityNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown audio quality %q", name)
	}
	return format, nil
}

// QualityRange returns the configured (min, max) audio formats. Unknown
// names or an inverted range fall back to the defaults.
func (c *Config) QualityRange() (station.AudioFormat, station.AudioFormat) {
	min, errMin := ParseQuality(c.MinQuality)
	max, errMax := ParseQuality(c.MaxQuality)
	if errMin != nil || errMax != nil || !station.ValidRange(min, max) {
		return station.AAC32, station.MP3192
	}
	return min, max
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ConfigDir, ConfigFileName), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Volume = ClampVolume(cfg.Volume)

	return cfg, nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		MinQuality:     "aac32",
		MaxQuality:     "mp3192",
		ResumeOnHangup: true,
		Volume:         DefaultVolume,
	}
}
