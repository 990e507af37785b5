package plugindb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s := &SavedState{
		PluginURI: "urn:example:a",
		Controls:  map[string]float32{"gain": 0.75},
		Files:     map[string]string{"preset": "preset.bin"},
	}
	require.NoError(t, SaveState(dir, s))

	loaded, err := LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, s.PluginURI, loaded.PluginURI)
	assert.InDelta(t, float32(0.75), loaded.Controls["gain"], 0.0001)
}

func TestLoadStateEmptyPathReturnsNil(t *testing.T) {
	t.Parallel()
	s, err := LoadState("")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestMakePathCreatesParentDirs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	target, err := MakePath(dir, "presets/a.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "presets", "a.bin"), target)

	info, err := os.Stat(filepath.Dir(target))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
