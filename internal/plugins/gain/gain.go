// Package gain implements a minimal built-in plugin: one audio in/out pair
// scaled by a "gain" control, one MIDI in/out pair passed through
// unmodified, and a designated control-input event port used for patch
// messages. It exists to exercise the host core end-to-end (control echo,
// MIDI passthrough, worker roundtrip) the way a real LV2 plugin would,
// without requiring cgo or dlopen.
package gain

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/lv2jack/host/internal/evbuf"
	"github.com/lv2jack/host/internal/plugin"
	"github.com/lv2jack/host/internal/plugindb"
	"github.com/lv2jack/host/internal/ports"
	"github.com/lv2jack/host/internal/worker"
)

// URI is this plugin's identity in the local plugin database.
const URI = "urn:lv2jack:builtin:gain"

const (
	portGain     = 0 // control input, scalar
	portAudioIn  = 1 // audio input
	portAudioOut = 2 // audio output
	portMIDIIn   = 3 // event input
	portMIDIOut  = 4 // event output
	portControl  = 5 // event input, designated control surface
)

func init() {
	plugindb.RegisterBuiltin(plugindb.PluginDescriptor{
		URI:        URI,
		Name:       "Builtin Gain",
		BinaryPath: "lv2jack-builtin-gain",
		Ports: []plugindb.PluginPortDescriptor{
			{Index: portGain, Symbol: "gain", Name: "Gain", Flow: plugindb.FlowInput, Kind: plugindb.KindControlScalar, Default: 1.0, Minimum: 0.0, Maximum: 4.0},
			{Index: portAudioIn, Symbol: "in", Name: "In", Flow: plugindb.FlowInput, Kind: plugindb.KindAudio},
			{Index: portAudioOut, Symbol: "out", Name: "Out", Flow: plugindb.FlowOutput, Kind: plugindb.KindAudio},
			{Index: portMIDIIn, Symbol: "midi_in", Name: "MIDI In", Flow: plugindb.FlowInput, Kind: plugindb.KindEvent, SupportsMIDI: true},
			{Index: portMIDIOut, Symbol: "midi_out", Name: "MIDI Out", Flow: plugindb.FlowOutput, Kind: plugindb.KindEvent, SupportsMIDI: true},
			{Index: portControl, Symbol: "control", Name: "Control", Flow: plugindb.FlowInput, Kind: plugindb.KindEvent, DesignatedControl: true},
		},
		Presets: []plugindb.PresetDescriptor{
			{URI: URI + "#unity", Name: "Unity", Controls: map[string]float32{"gain": 1.0}},
			{URI: URI + "#half", Name: "Half", Controls: map[string]float32{"gain": 0.5}},
		},
	})
	plugin.Register("lv2jack-builtin-gain", newInstance)
}

// instance is the realtime-touched state for one gain-plugin instantiation.
type instance struct {
	table    *ports.Table
	schedule func([]byte) error

	// smoothedGainBits holds a worker-computed "smoothed" gain value,
	// atomically published by WorkerInterface's Response callback so the
	// RT thread (Run) never blocks on or locks against the worker.
	smoothedGainBits atomic.Uint32
	lastRequested    float32
}

func newInstance(args plugin.FactoryArgs) (plugin.Instance, error) {
	inst := &instance{table: args.Ports, lastRequested: 1.0}
	inst.smoothedGainBits.Store(math.Float32bits(1.0))
	if args.Features != nil {
		inst.schedule = args.Features.Schedule
	}
	return inst, nil
}

func (p *instance) Activate()   {}
func (p *instance) Deactivate() {}

// Run is the realtime process callback: apply a worker-smoothed gain to
// audio, pass MIDI through unmodified. It touches only the pre-allocated
// Port Table state and one atomic load; no allocation, no locking.
func (p *instance) Run(nframes uint32) {
	gainPort := p.table.Classify(portGain)
	raw := gainPort.ScalarValue
	if raw == 0 {
		raw = 1.0
	}

	if raw != p.lastRequested && p.schedule != nil {
		var req [4]byte
		binary.LittleEndian.PutUint32(req[:], math.Float32bits(raw))
		_ = p.schedule(req[:]) // a full worker queue just means this cycle keeps the last smoothed value
		p.lastRequested = raw
	}

	gain := math.Float32frombits(p.smoothedGainBits.Load())

	in := p.table.Classify(portAudioIn).AudioBuffer
	out := p.table.Classify(portAudioOut).AudioBuffer
	n := int(nframes)
	if len(in) < n {
		n = len(in)
	}
	if len(out) < n {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = in[i] * gain
	}

	p.passthroughMIDI()
}

// passthroughMIDI copies every record from the MIDI-in buffer to the
// MIDI-out buffer unchanged. Output event buffers arrive from the process
// cycle already reset to chunk mode, so this is a plain append loop; a
// full output buffer silently drops the remainder, matching the event
// buffer's overflow contract.
func (p *instance) passthroughMIDI() {
	midiIn := p.table.Classify(portMIDIIn).EventBuffer
	midiOut := p.table.Classify(portMIDIOut).EventBuffer
	if midiIn == nil || midiOut == nil {
		return
	}

	out := evbuf.End(midiOut)
	for it := evbuf.Begin(midiIn); it.Valid(); it = it.Next() {
		ev, ok := it.Get()
		if !ok {
			break
		}
		if err := out.Write(ev.Frames, ev.Subframes, ev.Type, ev.Body); err != nil {
			break
		}
	}
}

// WorkerInterface implements plugin.WorkerExtension: gain smoothing is
// simulated as a non-realtime-safe computation dispatched to the worker.
func (p *instance) WorkerInterface() worker.Interface {
	return worker.Interface{
		Work: func(respond func([]byte) error, data []byte) error {
			if len(data) < 4 {
				return nil
			}
			target := math.Float32frombits(binary.LittleEndian.Uint32(data))
			var resp [4]byte
			binary.LittleEndian.PutUint32(resp[:], math.Float32bits(target))
			return respond(resp[:])
		},
		Response: func(data []byte) error {
			if len(data) < 4 {
				return nil
			}
			p.smoothedGainBits.Store(binary.LittleEndian.Uint32(data))
			return nil
		},
	}
}

// Save implements plugin.StateExtension.
func (p *instance) Save() (map[string]float32, error) {
	return map[string]float32{
		"gain": p.table.Classify(portGain).ScalarValue,
	}, nil
}

// Restore implements plugin.StateExtension.
func (p *instance) Restore(controls map[string]float32) error {
	if v, ok := controls["gain"]; ok {
		p.table.Classify(portGain).ScalarValue = v
	}
	return nil
}
