// Package config loads the optional on-disk tuning knobs for a snitray
// Client: everything the protocol itself leaves as a deployment choice
// rather than a wire-level invariant. Modeled on the TOML config loader
// pattern used elsewhere in the example pack this module draws its ambient
// stack from.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the decoded shape of a snitray config file.
type Config struct {
	// ActivationTimeoutMillis bounds Activate/AboutToShowMenuItem calls.
	ActivationTimeoutMillis int64 `toml:"activation_timeout_ms"`

	// ClearAllOnWatcherTakeover selects the Remove-everything policy on a
	// watcher takeover; see Options.ClearAllOnWatcherTakeover.
	ClearAllOnWatcherTakeover bool `toml:"clear_all_on_watcher_takeover"`

	// MaxInFlightFutures is decoded from the file but not read by the
	// client: the number of in-flight bus round-trips is not capped and no
	// backpressure warnings are logged, whatever its value.
	MaxInFlightFutures int `toml:"max_in_flight_futures"`
}

// Default returns the zero-tuning configuration: every knob left at the
// protocol's own default.
func Default() Config {
	return Config{}
}

// ActivationTimeout renders ActivationTimeoutMillis as a time.Duration,
// falling back to fallback when unset.
func (c Config) ActivationTimeout(fallback time.Duration) time.Duration {
	if c.ActivationTimeoutMillis <= 0 {
		return fallback
	}
	return time.Duration(c.ActivationTimeoutMillis) * time.Millisecond
}

// Load decodes a TOML config file at path. A missing file is not an error:
// it returns Default().
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "decoding config %s", path)
	}
	return cfg, nil
}
