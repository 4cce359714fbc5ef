// Package config holds the runtime settings for the detector, matcher, HTTP
// server and logger.
//
// Values are resolved in three layers: struct-tag defaults, an optional TOML
// file, then FPS_* environment variables (a .env file is honoured).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/mcuadros/go-defaults"
)

type ServerConfig struct {
	Addr      string `toml:"addr" default:":9090"`
	BodyLimit int    `toml:"body_limit" default:"20971520"`
	AppName   string `toml:"app_name" default:"Fingerprint Server"`
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64 `toml:"rate_limit" default:"50"`
	Burst     int     `toml:"burst" default:"100"`
}

type LogConfig struct {
	Level string `toml:"level" default:"info"`
	// Dir enables the rotating file sink when non-empty.
	Dir               string `toml:"dir"`
	MaxAgeHours       int    `toml:"max_age_hours" default:"168"`
	RotationTimeHours int    `toml:"rotation_time_hours" default:"24"`
}

type DetectorConfig struct {
	BorderMargin int `toml:"border_margin" default:"20"`
	MinDistance  int `toml:"min_distance" default:"10"`
	// RidgeValue is the gray level the preprocessing stage writes for ridge pixels.
	RidgeValue uint8 `toml:"ridge_value" default:"255"`
}

type MatcherConfig struct {
	// Threshold is in distance units: lower is a better match, range [-1, 0].
	Threshold float64 `toml:"threshold" default:"-0.5"`
}

type StoreConfig struct {
	// Path of the CBOR template snapshot. Empty keeps templates in memory only.
	Path string `toml:"path"`
}

type Configuration struct {
	// Workers bounds parallel template scoring. Zero means runtime.NumCPU().
	Workers  int            `toml:"workers"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Detector DetectorConfig `toml:"detector"`
	Matcher  MatcherConfig  `toml:"matcher"`
	Store    StoreConfig    `toml:"store"`
}

var Config Configuration

// Default returns a Configuration populated from struct-tag defaults.
func Default() Configuration {
	var c Configuration
	defaults.SetDefaults(&c)
	c.Workers = runtime.NumCPU()
	return c
}

// LoadDefaultConfig resets the global Config to its defaults.
func LoadDefaultConfig() {
	Config = Default()
}

// LoadConfig resets the global Config to defaults, then applies the TOML file
// at path (skipped when path is empty) and the environment.
func LoadConfig(path string) error {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := applyEnv(&c); err != nil {
		return err
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	Config = c
	return nil
}

// applyEnv overrides c from FPS_* variables. A missing .env file is not an error.
func applyEnv(c *Configuration) error {
	_ = godotenv.Load()

	str := map[string]*string{
		"FPS_ADDR":       &c.Server.Addr,
		"FPS_LOG_LEVEL":  &c.Log.Level,
		"FPS_LOG_DIR":    &c.Log.Dir,
		"FPS_STORE_PATH": &c.Store.Path,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(k); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("FPS_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FPS_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v, ok := os.LookupEnv("FPS_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FPS_THRESHOLD: %w", err)
		}
		c.Matcher.Threshold = f
	}
	return nil
}
