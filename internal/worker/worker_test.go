package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(enabled, synchronous bool) Config {
	return Config{
		Enabled:            enabled,
		Synchronous:        synchronous,
		QueueCapacityBytes: 4096,
		ScratchConfig:      ScratchPoolConfig{SmallSize: 64, MediumSize: 1024, LargeSize: 16384},
	}
}

func TestScheduleRejectedWhenDisabled(t *testing.T) {
	t.Parallel()

	w := New(Interface{}, testConfig(false, false))
	err := w.Schedule([]byte("x"))
	assert.Error(t, err)
}

func TestSynchronousScheduleCallsWorkInline(t *testing.T) {
	t.Parallel()

	var called bool
	var gotPayload []byte
	iface := Interface{
		Work: func(respond func([]byte) error, data []byte) error {
			called = true
			gotPayload = append([]byte(nil), data...)
			return respond([]byte("ack"))
		},
	}
	w := New(iface, testConfig(true, true))
	require.NoError(t, w.Schedule([]byte("ping")))
	assert.True(t, called)
	assert.Equal(t, "ping", string(gotPayload))

	scratch := make([]byte, 64)
	var responses []string
	w.iface.Response = func(data []byte) error {
		responses = append(responses, string(data))
		return nil
	}
	w.EmitResponses(scratch)
	require.Len(t, responses, 1)
	assert.Equal(t, "ack", responses[0])
}

func TestAsyncWorkerDeliversResponseAfterSchedule(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var received []string

	iface := Interface{
		Work: func(respond func([]byte) error, data []byte) error {
			return respond(append([]byte("echo:"), data...))
		},
		Response: func(data []byte) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, string(data))
			return nil
		},
	}

	w := New(iface, testConfig(true, false))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, w.Schedule([]byte("task")))

	scratch := make([]byte, 256)
	require.Eventually(t, func() bool {
		w.EmitResponses(scratch)
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "echo:task", received[0])
}

func TestEndRunInvokedOnEachEmitResponses(t *testing.T) {
	t.Parallel()

	var endRunCount int
	iface := Interface{
		Work:     func(respond func([]byte) error, data []byte) error { return nil },
		Response: func(data []byte) error { return nil },
		EndRun:   func() error { endRunCount++; return nil },
	}
	w := New(iface, testConfig(true, false))
	w.EmitResponses(make([]byte, 16))
	w.EmitResponses(make([]byte, 16))
	assert.Equal(t, 2, endRunCount)
}

func TestScheduleDropsWhenRequestRingFull(t *testing.T) {
	t.Parallel()

	iface := Interface{
		Work: func(respond func([]byte) error, data []byte) error { return nil },
	}
	cfg := testConfig(true, false)
	cfg.QueueCapacityBytes = 16
	w := New(iface, cfg)

	var lastErr error
	for i := 0; i < 100 && lastErr == nil; i++ {
		lastErr = w.Schedule([]byte("0123456789"))
	}
	assert.Error(t, lastErr)
}
