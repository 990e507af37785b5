// Package features implements the Feature & Options Registry: the static,
// process-lifetime capability list presented to a plugin at instantiation.
package features

import (
	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/urid"
	"github.com/lv2jack/host/internal/worker"
)

// URIs for the capabilities this host can offer a plugin.
const (
	URIMap              = "http://lv2plug.in/ns/ext/urid#map"
	URIUnmap            = "http://lv2plug.in/ns/ext/urid#unmap"
	URIMakePath         = "http://lv2plug.in/ns/ext/state#makePath"
	URIWorkerSchedule   = "http://lv2plug.in/ns/ext/worker#schedule"
	URILog              = "http://lv2plug.in/ns/ext/log#log"
	URIOptions          = "http://lv2plug.in/ns/ext/options#options"
	URILoadDefaultState = "http://lv2plug.in/ns/ext/state#loadDefaultState"
	URIBufSizePowerOf2  = "http://lv2plug.in/ns/ext/buf-size#powerOf2BlockLength"
	URIBufSizeFixed     = "http://lv2plug.in/ns/ext/buf-size#fixedBlockLength"
	URIBufSizeBounded   = "http://lv2plug.in/ns/ext/buf-size#boundedBlockLength"
	URIIsLive           = "http://lv2plug.in/ns/lv2core#isLive"
)

// Options is the fixed option block handed to the plugin as
// LV2_Options_Option entries.
type Options struct {
	SampleRate      float32
	MinimumBlockLen int32
	MaximumBlockLen int32
	SequenceSize    int32 // MIDI/event buffer size in bytes
	UIUpdateRate    float32
}

// MakePathFunc mirrors LV2_State_Make_Path: given a relative path requested
// by the plugin, return an absolute path under the host's state directory.
type MakePathFunc func(relativePath string) (string, error)

// LogFunc mirrors LV2_Log_Log: the plugin's structured logging sink.
type LogFunc func(severity string, msg string)

// Registry is the static table of capabilities and options presented to a
// plugin at instantiation. It never changes after Build.
type Registry struct {
	supported map[string]bool
	options   Options

	Map      urid.Mapper
	Unmap    urid.Unmapper
	MakePath MakePathFunc
	Log      LogFunc
	Schedule func(data []byte) error

	bufSizeGuarantee string // "power-of-two", "fixed", or "bounded"
}

// Config carries everything Build needs to wire the registry's function
// pointers to the rest of the host.
type Config struct {
	Cache            urid.Cache
	Table            *urid.Table
	Worker           *worker.Worker
	MakePath         MakePathFunc
	Log              LogFunc
	Options          Options
	BufSizeGuarantee string
}

// Build constructs the static registry. Called once, before plugin
// instantiation.
func Build(cfg Config) *Registry {
	r := &Registry{
		supported:        make(map[string]bool, 16),
		options:          cfg.Options,
		Map:              cfg.Table,
		Unmap:            cfg.Table,
		MakePath:         cfg.MakePath,
		Log:              cfg.Log,
		bufSizeGuarantee: cfg.BufSizeGuarantee,
	}
	if cfg.Worker != nil && cfg.Worker.Enabled() {
		r.Schedule = cfg.Worker.Schedule
	}

	for _, uri := range []string{
		URIMap, URIUnmap, URIMakePath, URIWorkerSchedule, URILog,
		URIOptions, URILoadDefaultState,
	} {
		r.supported[uri] = true
	}

	switch cfg.BufSizeGuarantee {
	case "power-of-two":
		r.supported[URIBufSizePowerOf2] = true
	case "fixed":
		r.supported[URIBufSizeFixed] = true
	default:
		r.supported[URIBufSizeBounded] = true
	}

	return r
}

// Supports reports whether the registry offers the named feature URI.
// isLive is always recognized but never listed, since the host does not
// itself need to act on it.
func (r *Registry) Supports(uri string) bool {
	if uri == URIIsLive {
		return true
	}
	return r.supported[uri]
}

// RequireAll fails instantiation if any of requiredURIs is not offered by
// this registry: a plugin requiring a feature the host cannot provide must
// never be instantiated.
func (r *Registry) RequireAll(requiredURIs []string) error {
	for _, uri := range requiredURIs {
		if !r.Supports(uri) {
			return errors.New(nil).
				Component("features").
				Category(errors.CategoryFeature).
				Context("uri", uri).
				Context("reason", "required feature not offered by host").
				Build()
		}
	}
	return nil
}

// GetOptions returns the fixed option block presented to the plugin.
func (r *Registry) GetOptions() Options { return r.options }
