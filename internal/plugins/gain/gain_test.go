package gain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lv2jack/host/internal/evbuf"
	"github.com/lv2jack/host/internal/features"
	"github.com/lv2jack/host/internal/plugin"
	"github.com/lv2jack/host/internal/plugindb"
	"github.com/lv2jack/host/internal/ports"
	"github.com/lv2jack/host/internal/worker"
)

func buildTable(t *testing.T) *ports.Table {
	t.Helper()
	descs := []plugindb.PluginPortDescriptor{
		{Index: portGain, Symbol: "gain", Flow: plugindb.FlowInput, Kind: plugindb.KindControlScalar},
		{Index: portAudioIn, Symbol: "in", Flow: plugindb.FlowInput, Kind: plugindb.KindAudio},
		{Index: portAudioOut, Symbol: "out", Flow: plugindb.FlowOutput, Kind: plugindb.KindAudio},
		{Index: portMIDIIn, Symbol: "midi_in", Flow: plugindb.FlowInput, Kind: plugindb.KindEvent, SupportsMIDI: true},
		{Index: portMIDIOut, Symbol: "midi_out", Flow: plugindb.FlowOutput, Kind: plugindb.KindEvent, SupportsMIDI: true},
		{Index: portControl, Symbol: "control", Flow: plugindb.FlowInput, Kind: plugindb.KindEvent, DesignatedControl: true},
	}
	table, err := ports.Build(descs, 4096)
	require.NoError(t, err)
	ports.AllocateEventBuffers(table, 1, 2, 4096)
	return table
}

func TestGainAppliesWorkerSmoothedValueOnSecondCycle(t *testing.T) {
	t.Parallel()

	table := buildTable(t)
	w := worker.New(worker.Interface{}, worker.Config{Enabled: true, Synchronous: true})

	args := plugin.FactoryArgs{Ports: table, Features: features.Build(features.Config{
		Worker: w,
	})}
	inst, err := newInstance(args)
	require.NoError(t, err)

	// The synchronous worker needs the real plugin interface wired after
	// construction, mirroring how a real worker extension is bound once
	// the plugin instance exists.
	wi := inst.(*instance)
	w2 := worker.New(wi.WorkerInterface(), worker.Config{Enabled: true, Synchronous: true})
	wi.schedule = w2.Schedule

	table.Classify(portGain).ScalarValue = 0.5
	table.Classify(portAudioIn).AudioBuffer = []float32{1, 1, 1, 1}
	table.Classify(portAudioOut).AudioBuffer = make([]float32, 4)

	// First cycle schedules the smoothing work; the response sits in the
	// worker's response ring until the end-of-cycle drain delivers it.
	inst.Run(4)
	for _, v := range table.Classify(portAudioOut).AudioBuffer {
		assert.InDelta(t, float32(1.0), v, 0.0001, "first cycle still uses the previous smoothed gain")
	}

	w2.EmitResponses(make([]byte, 64))
	inst.Run(4)

	for _, v := range table.Classify(portAudioOut).AudioBuffer {
		assert.InDelta(t, float32(0.5), v, 0.0001)
	}
}

func TestGainPassesMIDIThroughUnmodified(t *testing.T) {
	t.Parallel()

	table := buildTable(t)
	inst := &instance{table: table, lastRequested: 1.0}

	table.Classify(portAudioIn).AudioBuffer = make([]float32, 4)
	table.Classify(portAudioOut).AudioBuffer = make([]float32, 4)

	midiIn := table.Classify(portMIDIIn).EventBuffer
	midiIn.Reset(true)
	it := evbuf.Begin(midiIn)
	require.NoError(t, it.Write(10, 0, 1, []byte{0x90, 0x3C, 0x7F}))

	midiOut := table.Classify(portMIDIOut).EventBuffer
	midiOut.Reset(false)

	inst.Run(64)

	out := evbuf.Begin(midiOut)
	require.True(t, out.Valid())
	ev, ok := out.Get()
	require.True(t, ok)
	assert.Equal(t, uint32(10), ev.Frames)
	assert.Equal(t, []byte{0x90, 0x3C, 0x7F}, ev.Body)
}

func TestGainDescriptorRegisteredAsBuiltin(t *testing.T) {
	t.Parallel()

	d, err := plugindb.Lookup(URI, nil)
	require.NoError(t, err)
	assert.Equal(t, "Builtin Gain", d.Name)
}
