package ports

import (
	"testing"

	"github.com/lv2jack/host/internal/plugindb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDescs() []plugindb.PluginPortDescriptor {
	return []plugindb.PluginPortDescriptor{
		{Index: 0, Symbol: "in_l", Kind: plugindb.KindAudio, Flow: plugindb.FlowInput},
		{Index: 1, Symbol: "out_l", Kind: plugindb.KindAudio, Flow: plugindb.FlowOutput},
		{Index: 2, Symbol: "gain", Kind: plugindb.KindControlScalar, Flow: plugindb.FlowInput, Default: 1.0},
		{Index: 3, Symbol: "control", Kind: plugindb.KindEvent, Flow: plugindb.FlowInput, DesignatedControl: true},
		{Index: 4, Symbol: "notify", Kind: plugindb.KindEvent, Flow: plugindb.FlowOutput},
	}
}

func TestBuildClassifiesEveryPort(t *testing.T) {
	t.Parallel()

	table, err := Build(sampleDescs(), 4096)
	require.NoError(t, err)
	require.Equal(t, 5, table.Len())

	assert.Equal(t, plugindb.KindAudio, table.Classify(0).Kind)
	assert.Equal(t, plugindb.FlowOutput, table.Classify(1).Flow)
	assert.Equal(t, plugindb.KindControlScalar, table.Classify(2).Kind)
}

func TestBuildFindsDesignatedControlInput(t *testing.T) {
	t.Parallel()

	table, err := Build(sampleDescs(), 4096)
	require.NoError(t, err)

	idx, ok := table.DesignatedControlInput()
	require.True(t, ok)
	assert.Equal(t, 3, idx)
}

func TestBuildRejectsMandatoryUnknownPort(t *testing.T) {
	t.Parallel()

	descs := []plugindb.PluginPortDescriptor{
		{Index: 0, Symbol: "mystery", Optional: false},
	}
	_, err := Build(descs, 4096)
	assert.Error(t, err)
}

func TestBuildAllowsOptionalUnknownPort(t *testing.T) {
	t.Parallel()

	descs := []plugindb.PluginPortDescriptor{
		{Index: 0, Symbol: "mystery", Optional: true},
	}
	table, err := Build(descs, 4096)
	require.NoError(t, err)
	assert.Equal(t, plugindb.KindUnknown, table.Classify(0).Kind)
}

func TestMinimumBufferSizeRaisesRequiredUIBufferSize(t *testing.T) {
	t.Parallel()

	descs := []plugindb.PluginPortDescriptor{
		{Index: 0, Symbol: "control", Kind: plugindb.KindEvent, Flow: plugindb.FlowInput, MinimumBufferSize: 1024},
	}
	table, err := Build(descs, 4096)
	require.NoError(t, err)
	assert.Equal(t, uint32(1024*nBufferCycles), table.RequiredUIBufferSize())
}

func TestAllocateEventBuffersSizesByMinimumOrDefault(t *testing.T) {
	t.Parallel()

	descs := []plugindb.PluginPortDescriptor{
		{Index: 0, Symbol: "control", Kind: plugindb.KindEvent, Flow: plugindb.FlowInput, MinimumBufferSize: 256},
		{Index: 1, Symbol: "notify", Kind: plugindb.KindEvent, Flow: plugindb.FlowOutput},
	}
	table, err := Build(descs, 4096)
	require.NoError(t, err)

	AllocateEventBuffers(table, 1, 2, 4096)

	require.NotNil(t, table.Classify(0).EventBuffer)
	assert.Equal(t, uint32(256), table.Classify(0).EventBuffer.Capacity())
	require.NotNil(t, table.Classify(1).EventBuffer)
	assert.Equal(t, uint32(4096), table.Classify(1).EventBuffer.Capacity())
}

func TestEventInputsAndOutputsReturnCorrectIndices(t *testing.T) {
	t.Parallel()

	table, err := Build(sampleDescs(), 4096)
	require.NoError(t, err)

	assert.Equal(t, []int{3}, table.EventInputs())
	assert.Equal(t, []int{4}, table.EventOutputs())
}
