// Package plugindb implements the host's local plugin database: discovery
// and lookup of plugin metadata (substituting for an RDF/Turtle bundle
// index, see DESIGN.md for why YAML stands in for Turtle here) plus
// read/write of the small persisted-state subset the core cares about.
package plugindb

// PortFlow classifies the data-flow direction of a port.
type PortFlow string

const (
	FlowInput   PortFlow = "input"
	FlowOutput  PortFlow = "output"
	FlowUnknown PortFlow = "unknown"
)

// PortKind classifies the wire shape of a port's data.
type PortKind string

const (
	KindAudio         PortKind = "audio"
	KindControlScalar PortKind = "control-scalar"
	KindEvent         PortKind = "event"
	KindCV            PortKind = "cv"
	KindUnknown       PortKind = "unknown"
)

// PluginPortDescriptor is the subset of port metadata the Port Table needs
// to classify and allocate each port, as read from the plugin database.
type PluginPortDescriptor struct {
	Index             uint32   `yaml:"index"`
	Symbol            string   `yaml:"symbol"`
	Name              string   `yaml:"name"`
	Flow              PortFlow `yaml:"flow"`
	Kind              PortKind `yaml:"kind"`
	Optional          bool     `yaml:"optional"`
	MinimumBufferSize uint32   `yaml:"minimum_buffer_size,omitempty"`
	DesignatedControl bool     `yaml:"designated_control,omitempty"`
	SupportsMIDI      bool     `yaml:"supports_midi,omitempty"`
	ReportsLatency    bool     `yaml:"reports_latency,omitempty"`
	Default           float32  `yaml:"default,omitempty"`
	Minimum           float32  `yaml:"minimum,omitempty"`
	Maximum           float32  `yaml:"maximum,omitempty"`
}

// PresetDescriptor is one named control snapshot shipped with a plugin's
// database entry, the local substitute for an LV2 preset bundle.
type PresetDescriptor struct {
	URI      string             `yaml:"uri"`
	Name     string             `yaml:"name"`
	Controls map[string]float32 `yaml:"controls"`
}

// PluginDescriptor is a single plugin's entry in the local database.
type PluginDescriptor struct {
	URI        string                 `yaml:"uri"`
	Name       string                 `yaml:"name"`
	BinaryPath string                 `yaml:"binary_path"`
	BundlePath string                 `yaml:"bundle_path"`
	Ports      []PluginPortDescriptor `yaml:"ports"`
	Presets    []PresetDescriptor     `yaml:"presets,omitempty"`
}

// FindPreset returns the preset with the given URI, or nil if the plugin's
// entry does not carry one.
func (d *PluginDescriptor) FindPreset(uri string) *PresetDescriptor {
	for i := range d.Presets {
		if d.Presets[i].URI == uri {
			return &d.Presets[i]
		}
	}
	return nil
}

// SavedState is the subset of plugin-produced state the core persists
// across runs: scalar control values and any plugin-written state files.
type SavedState struct {
	PluginURI string            `yaml:"plugin_uri"`
	Controls  map[string]float32 `yaml:"controls"`
	Files     map[string]string  `yaml:"files"`
}
