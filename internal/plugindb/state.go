package plugindb

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lv2jack/host/internal/errors"
)

// stateFileName substitutes for an LV2 state bundle's state.ttl (see
// DESIGN.md for why YAML stands in for Turtle).
const stateFileName = "state.yaml"

// LoadState reads a SavedState from path, which may be a directory
// (containing state.yaml) or a direct file path. The core only ever reads
// plugin_uri from it to select the plugin at startup; Controls are applied
// only when the caller explicitly asks to load them.
func LoadState(path string) (*SavedState, error) {
	if path == "" {
		return nil, nil
	}

	target := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		target = filepath.Join(path, stateFileName)
	}

	raw, err := os.ReadFile(target)
	if err != nil {
		return nil, errors.New(err).
			Component("plugindb").
			Category(errors.CategoryFileIO).
			Context("path", target).
			Build()
	}

	var s SavedState
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, errors.New(err).
			Component("plugindb").
			Category(errors.CategoryFileIO).
			Context("path", target).
			Context("reason", "malformed state file").
			Build()
	}
	return &s, nil
}

// SaveState writes s to dir/state.yaml, creating dir if needed. This is
// the format the controller writes at shutdown; it only ever contains the
// subset of plugin-produced state the core understands (controls plus any
// files the plugin requested via make-path).
func SaveState(dir string, s *SavedState) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("plugindb").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	raw, err := yaml.Marshal(s)
	if err != nil {
		return errors.New(err).
			Component("plugindb").
			Category(errors.CategoryFileIO).
			Build()
	}

	target := filepath.Join(dir, stateFileName)
	if err := os.WriteFile(target, raw, 0o644); err != nil {
		return errors.New(err).
			Component("plugindb").
			Category(errors.CategoryFileIO).
			Context("path", target).
			Build()
	}
	return nil
}

// MakePath returns an absolute path under stateDir for a plugin-requested
// relative path, creating any missing parent directories. This backs the
// make-path feature the Feature & Options Registry presents to the plugin.
func MakePath(stateDir, relative string) (string, error) {
	target := filepath.Join(stateDir, filepath.Clean("/"+relative))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errors.New(err).
			Component("plugindb").
			Category(errors.CategoryFileIO).
			Context("path", target).
			Build()
	}
	return target, nil
}
