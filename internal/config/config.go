// Package config handles framekeep configuration: defaults, an optional
// TOML file, then environment variable overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Capture tunes the screenshot loop. Intervals are seconds.
type Capture struct {
	OutputDir         string  `toml:"output_dir"`
	CheckIntervalSec  float64 `toml:"check_interval"`
	StabilityInterval float64 `toml:"stability_interval"`
	StabilitySamples  int     `toml:"stability_samples"`
	HashSize          int     `toml:"hash_size"`
	ChangeThreshold   float64 `toml:"change_threshold"`
	// Region is x, y, width, height. Empty means the primary display.
	Region []int `toml:"region"`
}

// Audio tunes the session recorder.
type Audio struct {
	Enabled            bool    `toml:"enabled"`
	OutputDir          string  `toml:"output_dir"`
	SampleRate         int     `toml:"sample_rate"`
	Channels           int     `toml:"channels"`
	BlockSize          int     `toml:"block_size"`
	SilenceThresholdDB float64 `toml:"silence_threshold_db"`
	SilenceResumeDB    float64 `toml:"silence_resume_db"`
	SilenceMinSeconds  float64 `toml:"silence_min_seconds"`
}

// Config is the full daemon configuration.
type Config struct {
	HTTPAddr string  `toml:"http_addr"`
	Capture  Capture `toml:"capture"`
	Audio    Audio   `toml:"audio"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr: ":8000",
		Capture: Capture{
			OutputDir:         filepath.Join("output", "screens"),
			CheckIntervalSec:  2.0,
			StabilityInterval: 0.5,
			StabilitySamples:  3,
			HashSize:          16,
			ChangeThreshold:   0.05,
		},
		Audio: Audio{
			Enabled:            true,
			OutputDir:          filepath.Join("output", "audio"),
			SampleRate:         44100,
			Channels:           2,
			BlockSize:          2048,
			SilenceThresholdDB: -45.0,
			SilenceResumeDB:    -40.0,
			SilenceMinSeconds:  3.0,
		},
	}
}

// Load builds the configuration. A missing file at path is not an error;
// a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Defaults plus env only.
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)

	c.Capture.OutputDir = getEnv("SCREENSHOT_DIR", c.Capture.OutputDir)
	c.Capture.CheckIntervalSec = getEnvFloat("SCREENSHOT_CHECK_INTERVAL", c.Capture.CheckIntervalSec)
	c.Capture.StabilityInterval = getEnvFloat("SCREENSHOT_STABILITY_INTERVAL", c.Capture.StabilityInterval)
	c.Capture.StabilitySamples = getEnvInt("SCREENSHOT_STABILITY_SAMPLES", c.Capture.StabilitySamples)
	c.Capture.HashSize = getEnvInt("SCREENSHOT_HASH_SIZE", c.Capture.HashSize)
	c.Capture.ChangeThreshold = getEnvFloat("SCREENSHOT_CHANGE_THRESHOLD", c.Capture.ChangeThreshold)

	c.Audio.Enabled = getEnvBool("AUDIO_ENABLED", c.Audio.Enabled)
	c.Audio.OutputDir = getEnv("AUDIO_DIR", c.Audio.OutputDir)
	c.Audio.SampleRate = getEnvInt("AUDIO_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.Channels = getEnvInt("AUDIO_CHANNELS", c.Audio.Channels)
}

func (c *Config) validate() error {
	if c.Capture.HashSize < 2 {
		return fmt.Errorf("capture.hash_size must be at least 2, got %d", c.Capture.HashSize)
	}
	if c.Capture.ChangeThreshold < 0 || c.Capture.ChangeThreshold > 1 {
		return fmt.Errorf("capture.change_threshold must be in [0,1], got %g", c.Capture.ChangeThreshold)
	}
	if c.Capture.StabilitySamples < 1 {
		return fmt.Errorf("capture.stability_samples must be at least 1, got %d", c.Capture.StabilitySamples)
	}
	if n := len(c.Capture.Region); n != 0 && n != 4 {
		return fmt.Errorf("capture.region must be [x, y, width, height], got %d values", n)
	}
	return nil
}

// CheckInterval returns the idle tick cadence.
func (c Capture) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSec * float64(time.Second))
}

// StabilityIntervalDuration returns the confirming tick cadence.
func (c Capture) StabilityIntervalDuration() time.Duration {
	return time.Duration(c.StabilityInterval * float64(time.Second))
}

// Rect returns the configured capture rectangle, or the zero rectangle for
// the primary display.
func (c Capture) Rect() image.Rectangle {
	if len(c.Region) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(c.Region[0], c.Region[1], c.Region[0]+c.Region[2], c.Region[1]+c.Region[3])
}

// SilenceMinDuration returns the silence duration before writing suspends.
func (a Audio) SilenceMinDuration() time.Duration {
	return time.Duration(a.SilenceMinSeconds * float64(time.Second))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
