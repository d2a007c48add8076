// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"math"
	"os"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/indexpace/internal/ingest"
	"github.com/verte-zerg/indexpace/internal/stats"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Ingest  IngestConfig  `toml:"ingest"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`
}

// IngestConfig maps how exports are read.
type IngestConfig struct {
	WorkerColumn    *string `toml:"worker-column"`
	TimestampColumn *string `toml:"timestamp-column"`
	Delimiter       *string `toml:"delimiter"`
	SkipRows        *int    `toml:"skip-rows"`
	SampleSize      *int    `toml:"sample-size"`
	MinConfidence   *int    `toml:"min-confidence"`
}

// MetricsConfig maps metric tuning.
type MetricsConfig struct {
	PauseMinutes *float64 `toml:"pause-minutes"`
	CurveWindow  *int     `toml:"curve-window"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// ToIngestOptions merges the [ingest] section onto the default options.
func (c FileConfig) ToIngestOptions() (ingest.Options, error) {
	opts := ingest.DefaultOptions()
	in := c.Ingest
	if in.WorkerColumn != nil {
		opts.WorkerColumn = *in.WorkerColumn
	}
	if in.TimestampColumn != nil {
		opts.TimestampColumn = *in.TimestampColumn
	}
	if in.Delimiter != nil {
		r, err := ParseDelimiter(*in.Delimiter)
		if err != nil {
			return ingest.Options{}, fmt.Errorf("ingest.delimiter: %w", err)
		}
		opts.Delimiter = r
	}
	if in.SkipRows != nil {
		opts.SkipRows = *in.SkipRows
	}
	if in.SampleSize != nil {
		opts.SampleSize = *in.SampleSize
	}
	if in.MinConfidence != nil {
		opts.MinConfidence = *in.MinConfidence
	}
	if err := opts.Validate(); err != nil {
		return ingest.Options{}, fmt.Errorf("invalid [ingest] config: %w", err)
	}
	return opts, nil
}

// ToComputeOptions merges the [metrics] section onto the default options.
func (c FileConfig) ToComputeOptions() (stats.ComputeOptions, error) {
	opts := stats.DefaultComputeOptions()
	if c.Metrics.PauseMinutes != nil {
		threshold, err := PauseThreshold(*c.Metrics.PauseMinutes)
		if err != nil {
			return stats.ComputeOptions{}, fmt.Errorf("metrics.pause-minutes: %w", err)
		}
		opts.PauseThreshold = threshold
	}
	return opts, nil
}

// ParseDelimiter accepts a single character, or "\t" / "tab" for tabs.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// maxPauseMinutes is the largest threshold a time.Duration can hold.
var maxPauseMinutes = math.MaxInt64 / float64(time.Minute)

// PauseThreshold converts minutes to a duration, rejecting values that are
// not positive, not finite or too large for a time.Duration.
func PauseThreshold(minutes float64) (time.Duration, error) {
	if math.IsNaN(minutes) || minutes <= 0 {
		return 0, fmt.Errorf("pause threshold must be > 0, got %v", minutes)
	}
	if math.IsInf(minutes, 0) || minutes >= maxPauseMinutes {
		return 0, fmt.Errorf("pause threshold must be below %.0f minutes, got %v", maxPauseMinutes, minutes)
	}
	return time.Duration(minutes * float64(time.Minute)), nil
}
