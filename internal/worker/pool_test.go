package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() *ScratchPool {
	return NewScratchPool(ScratchPoolConfig{SmallSize: 64, MediumSize: 1024, LargeSize: 16384})
}

func TestGetSelectsTierBySize(t *testing.T) {
	t.Parallel()

	pool := testPool()
	small := pool.Get(10)
	medium := pool.Get(500)
	large := pool.Get(8000)

	assert.LessOrEqual(t, small.Cap(), 64)
	assert.LessOrEqual(t, medium.Cap(), 1024)
	assert.LessOrEqual(t, large.Cap(), 16384)
}

func TestPutThenGetReusesBuffer(t *testing.T) {
	t.Parallel()

	pool := testPool()
	buf := pool.Get(10)
	copy(buf.Data(), []byte("hi"))
	pool.Put(buf)

	reused := pool.Get(10)
	assert.Equal(t, 10, reused.Len(), "length reset to the requested size")
}

func TestReleaseReturnsToPoolAtZeroRefcount(t *testing.T) {
	t.Parallel()

	pool := testPool()
	buf := pool.Get(10)
	buf.Acquire() // refcount now 2
	buf.Release() // back to 1, should not return yet
	buf.Release() // back to 0, should return to pool

	// No direct way to observe pool internals; this exercises the path
	// without panicking and documents the acquire/release contract.
}

func TestResizeGrowsBeyondCapacity(t *testing.T) {
	t.Parallel()

	pool := testPool()
	buf := pool.Get(10)
	require.NoError(t, buf.Resize(128))
	assert.Equal(t, 128, buf.Len())
	assert.GreaterOrEqual(t, buf.Cap(), 128)
}

func TestResizeRejectsNegative(t *testing.T) {
	t.Parallel()

	pool := testPool()
	buf := pool.Get(10)
	err := buf.Resize(-1)
	assert.Error(t, err)
}
