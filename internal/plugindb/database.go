package plugindb

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lv2jack/host/internal/errors"
)

var (
	builtinMu   sync.Mutex
	builtinDesc = map[string]PluginDescriptor{}
)

// RegisterBuiltin registers a plugin descriptor compiled into the host
// binary itself, so a built-in plugin package's init() can make itself
// discoverable without needing an on-disk bundle directory. Lookup and
// Discover both fall back to these after searching searchDirs.
func RegisterBuiltin(desc PluginDescriptor) {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	builtinDesc[desc.URI] = desc
}

// Builtins returns every descriptor registered via RegisterBuiltin.
func Builtins() []PluginDescriptor {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	out := make([]PluginDescriptor, 0, len(builtinDesc))
	for _, d := range builtinDesc {
		out = append(out, d)
	}
	return out
}

// bundleFileName is the per-bundle-directory descriptor file name. Each
// directory under a search path holding one of these is one plugin
// bundle, mirroring an LV2 bundle directory's manifest.ttl/dsp.ttl pair
// but collapsed to a single YAML file (see DESIGN.md on why YAML stands
// in for Turtle here).
const bundleFileName = "plugin.yaml"

// Discover scans searchDirs (in order) for plugin bundle directories, each
// containing a plugin.yaml, and returns every descriptor found. Malformed
// bundles are skipped, each with its parse error returned in the second
// result, rather than aborting discovery;
// discovery mechanics beyond this are explicitly a non-goal.
func Discover(searchDirs []string) ([]PluginDescriptor, []error) {
	var (
		found  []PluginDescriptor
		warns  []error
	)

	for _, dir := range searchDirs {
		dir = expandHome(dir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // missing search dirs are not an error; discovery is best-effort
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			bundlePath := filepath.Join(dir, entry.Name())
			descPath := filepath.Join(bundlePath, bundleFileName)

			raw, err := os.ReadFile(descPath)
			if err != nil {
				continue // not a bundle directory
			}

			var d PluginDescriptor
			if err := yaml.Unmarshal(raw, &d); err != nil {
				warns = append(warns, errors.New(err).
					Component("plugindb").
					Category(errors.CategoryPlugin).
					Context("bundle", bundlePath).
					Build())
				continue
			}
			d.BundlePath = bundlePath
			found = append(found, d)
		}
	}

	found = append(found, Builtins()...)
	return found, warns
}

// Lookup discovers every bundle under searchDirs, plus any built-in
// descriptors, and returns the first one whose URI matches uri.
func Lookup(uri string, searchDirs []string) (*PluginDescriptor, error) {
	descs, _ := Discover(searchDirs)
	for i := range descs {
		if descs[i].URI == uri {
			return &descs[i], nil
		}
	}
	return nil, errors.New(nil).
		Component("plugindb").
		Category(errors.CategoryPlugin).
		Context("uri", uri).
		Context("searched_dirs", strings.Join(searchDirs, ",")).
		Context("reason", "plugin not found in local database").
		Build()
}

func expandHome(dir string) string {
	if !strings.HasPrefix(dir, "~") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~"))
}
