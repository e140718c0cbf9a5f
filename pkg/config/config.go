// Package config loads the muxer configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultIndexInterval  = 2000
	DefaultFlushThreshold = 22
)

// AutoReserve sizes an index reserve from the expected duration.
const AutoReserve = -1

// Config muxer configuration.
type Config struct {
	// Disable the skeleton track entirely.
	NoSkeleton bool `yaml:"noSkeleton"`

	// Write an unindexed Skeleton 3 track.
	Skeleton3 bool `yaml:"skeleton3"`

	// Minimum time between keypoints in milliseconds, zero disables
	// keypoints. The index is still written, empty.
	IndexInterval int64 `yaml:"indexInterval"`

	// Bytes reserved for each index, -1 to size them from the duration.
	VideoIndexReserve    int `yaml:"videoIndexReserve"`
	AudioIndexReserve    int `yaml:"audioIndexReserve"`
	SubtitleIndexReserve int `yaml:"subtitleIndexReserve"`

	// Queued packets above which a page is cut early.
	FlushThreshold int `yaml:"flushThreshold"`

	// Expected duration in milliseconds, zero to use the capture's.
	Duration int64 `yaml:"duration"`

	LogDB       string `yaml:"logDB"`
	TwoPassFile string `yaml:"twoPassFile"`

	ConfigDir string `yaml:"-"`
}

// Errors.
var (
	ErrInvalidInterval  = errors.New("invalid index interval")
	ErrInvalidReserve   = errors.New("invalid index reserve")
	ErrInvalidThreshold = errors.New("invalid flush threshold")
	ErrInvalidDuration  = errors.New("invalid duration")
)

// rawConfig tells unset keys apart from keys set to zero.
type rawConfig struct {
	NoSkeleton           bool   `yaml:"noSkeleton"`
	Skeleton3            bool   `yaml:"skeleton3"`
	IndexInterval        *int64 `yaml:"indexInterval"`
	VideoIndexReserve    *int   `yaml:"videoIndexReserve"`
	AudioIndexReserve    *int   `yaml:"audioIndexReserve"`
	SubtitleIndexReserve *int   `yaml:"subtitleIndexReserve"`
	FlushThreshold       *int   `yaml:"flushThreshold"`
	Duration             int64  `yaml:"duration"`
	LogDB                string `yaml:"logDB"`
	TwoPassFile          string `yaml:"twoPassFile"`
}

func int64OrDefault(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// NewConfig parses the configuration and fills in defaults for unset keys.
// Relative paths are resolved from the directory of configPath.
func NewConfig(configPath string, configYAML []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(configYAML, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	c := Config{
		NoSkeleton:           raw.NoSkeleton,
		Skeleton3:            raw.Skeleton3,
		IndexInterval:        int64OrDefault(raw.IndexInterval, DefaultIndexInterval),
		VideoIndexReserve:    intOrDefault(raw.VideoIndexReserve, AutoReserve),
		AudioIndexReserve:    intOrDefault(raw.AudioIndexReserve, AutoReserve),
		SubtitleIndexReserve: intOrDefault(raw.SubtitleIndexReserve, AutoReserve),
		FlushThreshold:       intOrDefault(raw.FlushThreshold, DefaultFlushThreshold),
		Duration:             raw.Duration,
		LogDB:                raw.LogDB,
		TwoPassFile:          raw.TwoPassFile,
		ConfigDir:            filepath.Dir(configPath),
	}

	if c.IndexInterval < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInterval, c.IndexInterval)
	}
	reserves := map[string]int{
		"videoIndexReserve":    c.VideoIndexReserve,
		"audioIndexReserve":    c.AudioIndexReserve,
		"subtitleIndexReserve": c.SubtitleIndexReserve,
	}
	for name, reserve := range reserves {
		if reserve < AutoReserve {
			return nil, fmt.Errorf("%s: %w: %d", name, ErrInvalidReserve, reserve)
		}
	}
	if c.FlushThreshold < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, c.FlushThreshold)
	}
	if c.Duration < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, c.Duration)
	}

	c.LogDB = c.resolve(c.LogDB)
	c.TwoPassFile = c.resolve(c.TwoPassFile)

	return &c, nil
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ConfigDir, path)
}

// ReadConfig reads and parses the configuration file. A missing
// file yields the default configuration.
func ReadConfig(configPath string) (*Config, error) {
	configYAML, err := os.ReadFile(configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return NewConfig(configPath, configYAML)
}
