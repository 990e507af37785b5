// Package ports implements the Port Table: a static, once-built array of
// port descriptors classifying every plugin port by kind and flow, with
// mutable per-instance state (owned event buffers, scalar values, backing
// buffer pointers) the process cycle touches every callback.
package ports

import (
	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/evbuf"
	"github.com/lv2jack/host/internal/plugindb"
)

// nBufferCycles mirrors the ring channel's default sizing factor: a port's
// minimum buffer size, when declared, raises the UI-buffer size to
// minimum × nBufferCycles.
const nBufferCycles = 16

// Port is one classified, immutable-shape port plus its mutable
// per-instance runtime state. Kind and flow never change after
// classification; only the fields below it are mutated each cycle.
type Port struct {
	Index             uint32
	Symbol            string
	Name              string
	Flow              plugindb.PortFlow
	Kind              plugindb.PortKind
	Optional          bool
	MinimumBufferSize uint32
	DesignatedControl bool
	SupportsMIDI      bool
	ReportsLatency    bool

	// Mutable per-instance state.
	EventBuffer  *evbuf.Buffer // non-nil only for Kind == KindEvent
	ScalarValue  float32       // current value, for KindControlScalar ports
	LastReported float32       // last value seen by the latency check, updated only for ReportsLatency ports
	AudioBuffer  []float32     // backing buffer pointer refreshed each cycle, for audio/CV ports
}

// Table is the full, once-built set of a plugin instance's ports.
type Table struct {
	ports               []Port
	designatedControl   int // index into ports, or -1 if none
	requiredUIBufferMin uint32
}

// Build classifies every port from a plugin's descriptor. It never mutates
// descs; it is called once, before instantiation.
func Build(descs []plugindb.PluginPortDescriptor, defaultMIDIBufferSize uint32) (*Table, error) {
	t := &Table{
		ports:               make([]Port, len(descs)),
		designatedControl:   -1,
		requiredUIBufferMin: defaultMIDIBufferSize,
	}

	for i, d := range descs {
		kind := d.Kind
		flow := d.Flow
		if kind == "" {
			kind = plugindb.KindUnknown
		}
		if flow == "" {
			flow = plugindb.FlowUnknown
		}
		if kind == plugindb.KindUnknown && flow == plugindb.FlowUnknown && !d.Optional {
			return nil, errors.New(nil).
				Component("ports").
				Category(errors.CategoryPort).
				Context("symbol", d.Symbol).
				Context("reason", "mandatory port has unknown kind and flow").
				Build()
		}

		t.ports[i] = Port{
			Index:             d.Index,
			Symbol:            d.Symbol,
			Name:              d.Name,
			Flow:              flow,
			Kind:              kind,
			Optional:          d.Optional,
			MinimumBufferSize: d.MinimumBufferSize,
			DesignatedControl: d.DesignatedControl,
			SupportsMIDI:      d.SupportsMIDI,
			ReportsLatency:    d.ReportsLatency,
		}

		if d.DesignatedControl && d.Kind == plugindb.KindEvent && d.Flow == plugindb.FlowInput {
			t.designatedControl = i
		}

		if d.MinimumBufferSize > 0 {
			raised := d.MinimumBufferSize * nBufferCycles
			if raised > t.requiredUIBufferMin {
				t.requiredUIBufferMin = raised
			}
		}
	}

	return t, nil
}

// Classify returns the Port at index i; callers must only use indices
// derived from the plugin descriptor originally passed to Build.
func (t *Table) Classify(index int) *Port { return &t.ports[index] }

// Len returns the number of ports in the table.
func (t *Table) Len() int { return len(t.ports) }

// All returns every port, in declared index order.
func (t *Table) All() []Port { return t.ports }

// DesignatedControlInput returns the port index of the patch control
// surface and true, or (0, false) if no port was so designated.
func (t *Table) DesignatedControlInput() (int, bool) {
	if t.designatedControl < 0 {
		return 0, false
	}
	return t.designatedControl, true
}

// RequiredUIBufferSize returns the UI-ring buffer size this table's ports
// require, accounting for any port's minimum-buffer-size override.
func (t *Table) RequiredUIBufferSize() uint32 { return t.requiredUIBufferMin }

// MaxEventBufferCapacity returns the largest event buffer capacity in the
// table, or 0 if no event buffers have been allocated yet. No event body
// can exceed the capacity of the buffer it was written to, so this bounds
// every record the process cycle can ever fan out.
func (t *Table) MaxEventBufferCapacity() uint32 {
	var largest uint32
	for i := range t.ports {
		if buf := t.ports[i].EventBuffer; buf != nil && buf.Capacity() > largest {
			largest = buf.Capacity()
		}
	}
	return largest
}

// AllocateEventBuffers allocates an evbuf.Buffer for every event port,
// sized to the port's declared minimum or, absent one, to midiBufferSize.
// Called once, after the audio server has reported its block length.
func AllocateEventBuffers(t *Table, chunkTypeURID, seqTypeURID, midiBufferSize uint32) {
	for i := range t.ports {
		p := &t.ports[i]
		if p.Kind != plugindb.KindEvent {
			continue
		}
		size := p.MinimumBufferSize
		if size == 0 {
			size = midiBufferSize
		}
		p.EventBuffer = evbuf.NewBuffer(size, evbuf.VariantAtom, chunkTypeURID, seqTypeURID)
	}
}

// EventInputs returns the indices of every event-input port, in table
// order, for fan-in/fan-out iteration in the process cycle.
func (t *Table) EventInputs() []int {
	var out []int
	for i, p := range t.ports {
		if p.Kind == plugindb.KindEvent && p.Flow == plugindb.FlowInput {
			out = append(out, i)
		}
	}
	return out
}

// EventOutputs returns the indices of every event-output port, in table order.
func (t *Table) EventOutputs() []int {
	var out []int
	for i, p := range t.ports {
		if p.Kind == plugindb.KindEvent && p.Flow == plugindb.FlowOutput {
			out = append(out, i)
		}
	}
	return out
}
