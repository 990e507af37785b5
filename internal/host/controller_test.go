package host

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lv2jack/host/internal/plugindb"
	"github.com/lv2jack/host/internal/ports"
	"github.com/lv2jack/host/internal/process"
	"github.com/lv2jack/host/internal/ringbuf"
)

// These tests exercise the Controller's non-realtime bookkeeping logic
// directly, without opening a real audio device: setup/activate/shutdown
// need real hardware and are exercised manually, not under test.

func buildOverrideTable(t *testing.T) *ports.Table {
	t.Helper()
	descs := []plugindb.PluginPortDescriptor{
		{Index: 0, Symbol: "gain", Flow: plugindb.FlowInput, Kind: plugindb.KindControlScalar},
		{Index: 1, Symbol: "mix", Flow: plugindb.FlowInput, Kind: plugindb.KindControlScalar},
	}
	tbl, err := ports.Build(descs, 4096)
	require.NoError(t, err)
	return tbl
}

func TestApplyControlOverridesSetsMatchingSymbols(t *testing.T) {
	t.Parallel()

	tbl := buildOverrideTable(t)
	c := &Controller{
		log:     slog.Default(),
		portTbl: tbl,
		opts: Options{
			ControlOverrides: []ControlOverride{
				{Symbol: "mix", Value: 0.25},
				{Symbol: "nonexistent", Value: 9},
			},
		},
	}

	c.applyControlOverrides()

	assert.InDelta(t, float32(0), tbl.Classify(0).ScalarValue, 0.0001)
	assert.InDelta(t, float32(0.25), tbl.Classify(1).ScalarValue, 0.0001)
}

func TestPostExitIsIdempotent(t *testing.T) {
	t.Parallel()

	c := &Controller{exitSem: make(chan struct{}, 1)}
	c.postExit()
	c.postExit() // must not block or panic on the second call

	select {
	case <-c.exitSem:
	default:
		t.Fatal("expected exit semaphore to be posted")
	}
}

func TestApplyStateNoPathIsNoop(t *testing.T) {
	t.Parallel()

	c := &Controller{log: slog.Default(), opts: Options{}}
	require.NoError(t, c.applyState())
}

func TestApplyPresetBeforeActivationSetsControls(t *testing.T) {
	t.Parallel()

	tbl := buildOverrideTable(t)
	c := &Controller{
		log:     slog.Default(),
		portTbl: tbl,
		descr: &plugindb.PluginDescriptor{
			Presets: []plugindb.PresetDescriptor{
				{URI: "urn:test#soft", Name: "Soft", Controls: map[string]float32{"gain": 0.1}},
			},
		},
	}

	require.NoError(t, c.ApplyPreset("urn:test#soft"))
	assert.InDelta(t, float32(0.1), tbl.Classify(0).ScalarValue, 0.0001)

	err := c.ApplyPreset("urn:test#missing")
	require.Error(t, err)
}

func TestSetControlFramesRecordIntoUIRing(t *testing.T) {
	t.Parallel()

	tbl := buildOverrideTable(t)
	c := &Controller{
		log:        slog.Default(),
		portTbl:    tbl,
		uiToPlugin: ringbuf.NewChannel(256),
	}

	require.NoError(t, c.SetControl("mix", 0.75))

	scratch := make([]byte, 64)
	n, ok := c.uiToPlugin.ReadRecord(scratch)
	require.True(t, ok)

	portIndex, protocol, payload, ok := process.DecodeControlChange(scratch[:n])
	require.True(t, ok)
	assert.Equal(t, uint32(1), portIndex)
	assert.Equal(t, uint32(0), protocol)
	value, ok := process.ScalarFromPayload(payload)
	require.True(t, ok)
	assert.InDelta(t, float32(0.75), value, 0.0001)
}

func TestSetControlRejectsUnknownSymbol(t *testing.T) {
	t.Parallel()

	c := &Controller{
		log:        slog.Default(),
		portTbl:    buildOverrideTable(t),
		uiToPlugin: ringbuf.NewChannel(256),
	}

	require.Error(t, c.SetControl("nope", 1))
}
