package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderDefaults(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("test error")
	ee := New(err).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, ErrorCategory(""), ee.GetCategory())
}

func TestBuilderChain(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("boom")).
		Component("worker").
		Category(CategoryWorker).
		Priority(PriorityHigh).
		Context("request_id", uint32(7)).
		Build()

	assert.Equal(t, "worker", ee.GetComponent())
	assert.Equal(t, CategoryWorker, ee.GetCategory())
	assert.Equal(t, PriorityHigh, ee.Priority)
	assert.Equal(t, uint32(7), ee.GetContext()["request_id"])
}

func TestPriorityInvalidDefaultsToMedium(t *testing.T) {
	t.Parallel()

	ee := New(nil).Priority("urgent-ish").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := Wrap(fmt.Errorf("overflow"), "ringbuf", CategoryRing)
	assert.True(t, IsCategory(err, CategoryRing))
	assert.False(t, IsCategory(err, CategoryWorker))
}

func TestUnwrapAndIs(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("sentinel")
	ee := New(sentinel).Build()

	assert.True(t, Is(ee, sentinel))
	assert.Equal(t, sentinel, Unwrap(ee))
}
