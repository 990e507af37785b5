package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lv2jack/host/internal/urid"
)

func TestRegistrySupportsCoreFeatures(t *testing.T) {
	t.Parallel()

	table := urid.NewTable()
	cache := urid.NewCache(table)
	r := Build(Config{
		Cache:            cache,
		Table:            table,
		Options:          Options{SampleRate: 48000},
		BufSizeGuarantee: "bounded",
	})

	assert.True(t, r.Supports(URIMap))
	assert.True(t, r.Supports(URIWorkerSchedule))
	assert.True(t, r.Supports(URIBufSizeBounded))
	assert.False(t, r.Supports(URIBufSizePowerOf2))
	assert.True(t, r.Supports(URIIsLive), "isLive is always recognized though never advertised")
}

func TestRegistryRequireAllFailsOnUnknownFeature(t *testing.T) {
	t.Parallel()

	table := urid.NewTable()
	r := Build(Config{Table: table, BufSizeGuarantee: "bounded"})

	require.NoError(t, r.RequireAll([]string{URIMap, URILog}))

	err := r.RequireAll([]string{"http://example.org/unsupported-feature"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature")
}
