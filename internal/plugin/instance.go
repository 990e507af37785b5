// Package plugin defines the runtime plugin contract and a process-global
// registry mapping a plugin database's `binary` symbol to a Go factory
// function. Go has no `dlopen`; a real LV2 host resolves a plugin's shared
// library and calls its LV2_Descriptor entry points. This substitutes a
// compiled-in registry, populated by each plugin package's init()
// function, for that dynamic loading step (see DESIGN.md).
package plugin

import (
	"fmt"
	"sync"

	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/features"
	"github.com/lv2jack/host/internal/plugindb"
	"github.com/lv2jack/host/internal/ports"
	"github.com/lv2jack/host/internal/urid"
	"github.com/lv2jack/host/internal/worker"
)

// Instance is the realtime-callable surface plus the non-realtime
// lifecycle hooks a plugin exposes to the host. Run is exactly
// process.Plugin's Run method (satisfied structurally, no import needed).
type Instance interface {
	// Activate is called once, non-realtime, after port connection and
	// before the first Run.
	Activate()

	// Run is the realtime process callback. Never allocates or blocks.
	Run(nframes uint32)

	// Deactivate is called once, non-realtime, after the last Run.
	Deactivate()
}

// WorkerExtension is implemented by plugins that declare the worker
// feature; the host type-asserts for it after instantiation.
type WorkerExtension interface {
	WorkerInterface() worker.Interface
}

// StateExtension is implemented by plugins that support save/restore.
type StateExtension interface {
	Save() (map[string]float32, error)
	Restore(controls map[string]float32) error
}

// FactoryArgs carries everything a Factory needs to build an Instance
// bound to one plugin-database entry's ports and the host's capabilities.
type FactoryArgs struct {
	Descriptor plugindb.PluginDescriptor
	Ports      *ports.Table
	Cache      urid.Cache
	Features   *features.Registry
	SampleRate float64
}

// Factory builds one Instance for one plugin-database entry.
type Factory func(FactoryArgs) (Instance, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register associates a plugin database's `binary` symbol with a factory.
// Called from a plugin package's init(), mirroring how a real LV2 bundle's
// shared library registers its LV2_Descriptor via lv2_descriptor().
func Register(symbol string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[symbol]; exists {
		panic(fmt.Sprintf("plugin: duplicate registration for symbol %q", symbol))
	}
	registry[symbol] = f
}

// Instantiate looks up desc.BinaryPath in the registry and builds an
// Instance, returning a fatal setup error if the symbol is unknown: the
// Go-native analogue of a failed dlopen/dlsym.
func Instantiate(args FactoryArgs) (Instance, error) {
	mu.RLock()
	f, ok := registry[args.Descriptor.BinaryPath]
	mu.RUnlock()
	if !ok {
		return nil, errors.New(nil).
			Component("plugin").
			Category(errors.CategoryPlugin).
			Context("binary", args.Descriptor.BinaryPath).
			Context("reason", "no registered plugin factory for this symbol").
			Build()
	}
	return f(args)
}

// Known reports the binary symbols currently registered, for diagnostics.
func Known() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}
