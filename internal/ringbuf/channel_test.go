package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	t.Parallel()

	ch := NewChannel(256)
	require.True(t, ch.WriteRecord([]byte("hello")))

	dst := make([]byte, 64)
	n, ok := ch.ReadRecord(dst)
	require.True(t, ok)
	assert.Equal(t, "hello", string(dst[:n]))
}

func TestReadOnEmptyChannelFails(t *testing.T) {
	t.Parallel()

	ch := NewChannel(256)
	dst := make([]byte, 64)
	_, ok := ch.ReadRecord(dst)
	assert.False(t, ok)
}

func TestWriteRecordsPreserveOrder(t *testing.T) {
	t.Parallel()

	ch := NewChannel(256)
	require.True(t, ch.WriteRecord([]byte("one")))
	require.True(t, ch.WriteRecord([]byte("two")))

	dst := make([]byte, 64)
	n, ok := ch.ReadRecord(dst)
	require.True(t, ok)
	assert.Equal(t, "one", string(dst[:n]))

	n, ok = ch.ReadRecord(dst)
	require.True(t, ok)
	assert.Equal(t, "two", string(dst[:n]))
}

func TestWriteRecordDropsWhenFullAndCountsOverflow(t *testing.T) {
	t.Parallel()

	ch := NewChannel(16)
	ok := true
	for i := 0; i < 100 && ok; i++ {
		ok = ch.WriteRecord([]byte("0123456789"))
	}
	assert.False(t, ok)
	assert.Positive(t, ch.OverflowCount())
}

func TestReadRecordTooLargeForDstCountsUnderrun(t *testing.T) {
	t.Parallel()

	ch := NewChannel(256)
	require.True(t, ch.WriteRecord([]byte("this is a longer payload")))

	small := make([]byte, 4)
	_, ok := ch.ReadRecord(small)
	assert.False(t, ok)
	assert.Positive(t, ch.UnderrunCount())
}
