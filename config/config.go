// Package config loads the CLI's persisted defaults from a YAML file:
// output location, which writers to run, and the unit-conversion table
// applied to exported values.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// UnitSystem selects the conversion table applied to exported speeds,
// distances and altitudes.
type UnitSystem string

const (
	UnitsMetric   UnitSystem = "metric"
	UnitsImperial UnitSystem = "imperial"
)

// Config holds defaults for the CLI, loaded once at startup and overridden
// per-invocation by command-line flags.
type Config struct {
	OutputDir string     `yaml:"output_dir"`
	Units     UnitSystem `yaml:"units"`

	WriteCSV    bool `yaml:"write_csv"`
	WriteGPX    bool `yaml:"write_gpx"`
	WriteEvents bool `yaml:"write_events"`
	WriteStats  bool `yaml:"write_stats"`
}

// Default returns the built-in defaults used when no config file is present.
func Default() Config {
	return Config{
		Units:       UnitsMetric,
		WriteCSV:    true,
		WriteGPX:    true,
		WriteEvents: true,
		WriteStats:  true,
	}
}

// Load reads and parses a YAML config file, applying its values on top of
// Default(). A missing file is not an error: Load returns the defaults
// unchanged, matching a tool that works fine with no config present.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MetersPerSecondToDisplay converts a metres-per-second speed to the unit
// this config's Units selects.
func (c Config) MetersPerSecondToDisplay(mps float64) float64 {
	switch c.Units {
	case UnitsImperial:
		return mps * 2.236936 // mph
	default:
		return mps * 3.6 // km/h
	}
}

// MetersToDisplay converts a metres altitude/distance to the unit this
// config's Units selects.
func (c Config) MetersToDisplay(m float64) float64 {
	switch c.Units {
	case UnitsImperial:
		return m * 3.28084 // feet
	default:
		return m
	}
}
