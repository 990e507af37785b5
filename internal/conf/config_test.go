package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEmbeddedDefaults(t *testing.T) {
	t.Parallel()

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "lv2jack", s.Main.Name)
	assert.Equal(t, uint32(48000), s.Audio.SampleRate)
	assert.Equal(t, uint32(512), s.Audio.BufferFrames)
	assert.Equal(t, 128, s.Worker.QueueCapacity)
	assert.InDelta(t, 25.0, s.UI.UpdateRateHz, 0.001)
	assert.Equal(t, RotationSize, s.Main.Log.Rotation)
}

func TestSettingIsSingleton(t *testing.T) {
	t.Parallel()

	a := Setting()
	b := Setting()
	assert.Same(t, a, b)
}
