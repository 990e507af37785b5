// Package conf holds the host's configuration: CLI-bound settings, defaults,
// and the embedded base config.yaml merged via viper.
package conf

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// Rotation policies for file-based logs, mirrored by internal/logging.
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)

// LogConfig controls where and how a log stream is written.
type LogConfig struct {
	Enabled  bool   // true to write this log stream to a file
	Path     string // file path for the log stream
	Rotation string // "daily", "weekly", or "size"
	MaxSize  int64  // bytes, used when Rotation == RotationSize
}

// Settings is the root configuration object, bound to CLI flags and the
// embedded config.yaml via viper.
type Settings struct {
	Debug bool // enable debug-level logging

	Main struct {
		Name string // host instance name, used in log attribution
		Log  LogConfig
	}

	Plugin struct {
		URI       string   // URI of the plugin to load
		SearchDir []string // directories searched for plugin database bundles, in order
	}

	State struct {
		Path     string // path to the saved-state file (state.yaml), empty disables persistence
		LoadOnly bool   // true to apply only plugin_uri from state, never controls
	}

	Audio struct {
		Backend      string // audio server backend name ("malgo")
		Device       string // device name/ID, "" or "default" for the system default
		SampleRate   uint32 // requested sample rate in Hz
		BufferFrames uint32 // requested nominal block length in frames
	}

	Worker struct {
		QueueCapacity int // capacity, in KiB, of each worker ring channel
	}

	UI struct {
		UpdateRateHz float64 // rate at which the host controller polls for control changes
		RingBytes    uint32  // UI ring size in bytes, 0 derives it from the port table
		ShowHidden   bool    // show ports/controls marked as not for generic UI
		NoMenu       bool    // suppress a plugin-provided UI's menu
		Generic      bool    // force the generic console UI even if a native UI is available
	}

	Telemetry struct {
		Enabled bool   // true to report setup/lifecycle errors to a crash-telemetry backend
		DSN     string // telemetry backend DSN (empty disables even if Enabled is true)
	}

	Metrics struct {
		Enabled bool   // true to expose Prometheus metrics
		Listen  string // address to listen on, e.g. ":9090"
	}
}

var (
	settings     *Settings
	settingsOnce sync.Once
)

// Setting returns the process-wide Settings instance, loading it on first use.
func Setting() *Settings {
	settingsOnce.Do(func() {
		s, err := Load()
		if err != nil {
			// Fall back to defaults; callers that need strict validation should
			// call Load directly and handle the error themselves.
			s = defaultSettings()
		}
		settings = s
	})
	return settings
}

// Load reads the embedded base config.yaml, then layers a user config file
// and environment variables on top of it via viper, and returns the result.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	base, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded default config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("parsing embedded default config: %w", err)
	}

	v.SetConfigName("lv2jack")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.lv2jack")
	if err := v.MergeInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	v.SetEnvPrefix("LV2JACK")
	v.AutomaticEnv()

	s := defaultSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return s, nil
}

func defaultSettings() *Settings {
	s := &Settings{}
	s.Main.Log.Rotation = RotationSize
	s.Main.Log.MaxSize = 10 * 1024 * 1024
	s.Audio.Backend = "malgo"
	s.Audio.SampleRate = 48000
	s.Audio.BufferFrames = 512
	s.Worker.QueueCapacity = 128
	s.UI.UpdateRateHz = 25.0
	return s
}
