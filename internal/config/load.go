// Package config loads the C7 registry's live defaults from a YAML document
// (spec §4.11/§6), grounded on the retrieved Nova repo's nested-struct
// config style and its use of gopkg.in/yaml.v3.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cachegrove/memoize/internal/core"
	"github.com/cachegrove/memoize/internal/errs"
)

// File mirrors core.LiveConfig's enumerated fields plus the background
// worker pool size, using plain string durations so the document stays
// human-editable ("100ms", "5m"). A negative stale_after such as "-1ns"
// means never stale, while "0" makes every entry stale; a
// wait_for_calc_timeout of "0" selects the backend's default wait.
type File struct {
	Enabled               *bool  `yaml:"enabled"`
	StaleAfter            string `yaml:"stale_after"`
	ReturnOldValueOnStale *bool  `yaml:"return_old_value_on_stale"`
	WaitForCalcTimeout    string `yaml:"wait_for_calc_timeout"`
	AllowNone             *bool  `yaml:"allow_none"`
	BackgroundWorkers     int    `yaml:"background_workers"`
}

// Loaded is the result of Load: a live configuration ready for
// core.Registry.ApplyLive, plus the resolved worker pool size.
type Loaded struct {
	Live              core.LiveConfig
	BackgroundWorkers int
}

const envMaxBackgroundWorkers = "MAX_BACKGROUND_WORKERS"

// Load reads path and layers it over defaults. A missing file is not an
// error — it simply yields the defaults, since most wrappers never need a
// config file at all. MAX_BACKGROUND_WORKERS always overrides whatever the
// file specifies, per spec §6.
func Load(path string, defaults core.LiveConfig, defaultWorkers int) (Loaded, error) {
	result := Loaded{Live: defaults, BackgroundWorkers: defaultWorkers}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverride(&result)
			return result, nil
		}
		return result, errs.New(errs.ErrInvalidConfig, map[string]any{"path": path, "error": err})
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return result, errs.New(errs.ErrInvalidConfig, map[string]any{"path": path, "error": err})
	}

	if f.Enabled != nil {
		result.Live.Enabled = *f.Enabled
	}
	if f.ReturnOldValueOnStale != nil {
		result.Live.ReturnOldValueOnStale = *f.ReturnOldValueOnStale
	}
	if f.AllowNone != nil {
		result.Live.AllowNone = *f.AllowNone
	}
	if f.StaleAfter != "" {
		d, err := time.ParseDuration(f.StaleAfter)
		if err != nil {
			return result, errs.New(errs.ErrInvalidConfig, map[string]any{"field": "stale_after", "error": err})
		}
		result.Live.StaleAfter = d
	}
	if f.WaitForCalcTimeout != "" {
		d, err := time.ParseDuration(f.WaitForCalcTimeout)
		if err != nil {
			return result, errs.New(errs.ErrInvalidConfig, map[string]any{"field": "wait_for_calc_timeout", "error": err})
		}
		result.Live.WaitForCalcTimeout = d
	}
	if f.BackgroundWorkers > 0 {
		result.BackgroundWorkers = f.BackgroundWorkers
	}

	applyEnvOverride(&result)
	return result, nil
}

func applyEnvOverride(result *Loaded) {
	raw := os.Getenv(envMaxBackgroundWorkers)
	if raw == "" {
		return
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		result.BackgroundWorkers = n
	}
}
