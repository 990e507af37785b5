package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsRingOverflowDeltas(t *testing.T) {
	t.Parallel()

	c := New(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	samples := []Sample{
		{UIToPluginOverflow: 2, WorkerQueueDepth: 1},
		{UIToPluginOverflow: 5, PluginToUIOverflow: 1, WorkerQueueDepth: 3},
	}
	c.Start(ctx, 5*time.Millisecond, func() Sample {
		s := samples[calls%len(samples)]
		calls++
		return s
	})
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "lv2jack_ring_overflow_total")
	assert.Contains(t, rec.Body.String(), "lv2jack_worker_queue_depth")
}

func TestDisabledCollectorRecordUIUpdateNoop(t *testing.T) {
	t.Parallel()
	c := New(false)
	c.RecordUIUpdate(time.Millisecond)
	c.Start(context.Background(), time.Millisecond, func() Sample { return Sample{} })
	c.Stop()
}
