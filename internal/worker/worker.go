// Package worker implements the host side of the LV2 worker extension:
// the bridge that lets a plugin request expensive, non-realtime-safe work
// (loading a sample, building a filter) without blocking the audio thread.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/logging"
	"github.com/lv2jack/host/internal/ringbuf"
)

// WorkFunc is the plugin-provided work callback, run on the worker
// goroutine. respond delivers a response back to the realtime thread.
type WorkFunc func(respond func(data []byte) error, data []byte) error

// ResponseFunc delivers a worker response back to the plugin from the
// realtime thread, during EmitResponses.
type ResponseFunc func(data []byte) error

// EndRunFunc, if set, is invoked once per process cycle after all pending
// responses for that cycle have been delivered.
type EndRunFunc func() error

// Interface groups the three plugin-provided callbacks of
// LV2_Worker_Interface.
type Interface struct {
	Work     WorkFunc
	Response ResponseFunc
	EndRun   EndRunFunc
}

// maxResponsesPerCycle bounds how many responses EmitResponses delivers in
// a single realtime call, so a worker backlog cannot make one process
// callback run unboundedly long.
const maxResponsesPerCycle = 32

// Worker mediates between the realtime thread (which schedules work and
// receives responses) and a single background goroutine that runs the
// plugin's Work callback.
type Worker struct {
	enabled     bool
	synchronous bool
	iface       Interface

	requestCh  *ringbuf.Channel
	responseCh *ringbuf.Channel
	sem        chan struct{}

	scratchPool *ScratchPool
	scratchSize int

	stop chan struct{}
	wg   sync.WaitGroup

	log *slog.Logger
}

// Config controls queue sizing; QueueCapacityBytes sizes both the request
// and response ring channels.
type Config struct {
	Enabled            bool
	Synchronous        bool
	QueueCapacityBytes int
	ScratchConfig      ScratchPoolConfig
}

// New builds a disabled-by-default Worker; call Start to spin up its
// goroutine once iface is ready.
func New(iface Interface, cfg Config) *Worker {
	if cfg.QueueCapacityBytes <= 0 {
		cfg.QueueCapacityBytes = 4096
	}
	log := logging.ForService("worker")
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		enabled:     cfg.Enabled,
		synchronous: cfg.Synchronous,
		iface:       iface,
		requestCh:   ringbuf.NewChannel(cfg.QueueCapacityBytes),
		responseCh:  ringbuf.NewChannel(cfg.QueueCapacityBytes),
		sem:         make(chan struct{}, 1),
		scratchPool: NewScratchPool(cfg.ScratchConfig),
		scratchSize: cfg.QueueCapacityBytes,
		stop:        make(chan struct{}),
		log:         log,
	}
}

// Enabled reports whether this worker is wired to a plugin extension.
func (w *Worker) Enabled() bool { return w.enabled }

// BindInterface attaches the plugin's worker callbacks after instantiation,
// mirroring how a real LV2 host only learns a plugin's work/work_response
// functions via extension_data once the descriptor exists, but must have
// already offered the worker:schedule feature (whose Schedule method never
// changes identity) before that point. Must be called before Start.
func (w *Worker) BindInterface(iface Interface) {
	w.iface = iface
	w.enabled = true
}

// RequestQueueDepth returns the number of unread bytes queued in the
// request ring, for the host controller's metrics sampling goroutine.
func (w *Worker) RequestQueueDepth() int { return w.requestCh.Length() }

// ResponseQueueCapacity returns the response ring's backing storage size in
// bytes. The scratch buffer handed to EmitResponses must be at least this
// large, so the realtime drain can never meet a response it cannot read
// without allocating.
func (w *Worker) ResponseQueueCapacity() int { return w.responseCh.Capacity() }

// Start launches the worker goroutine. Call it once: it does not check
// whether a goroutine is already running, and each call starts another.
func (w *Worker) Start(ctx context.Context) {
	if !w.enabled || w.synchronous {
		return
	}
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker goroutine to exit and waits for it.
func (w *Worker) Stop() {
	if !w.enabled || w.synchronous {
		return
	}
	close(w.stop)
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	scratch := w.scratchPool.Get(w.scratchSize)
	defer scratch.Release()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.sem:
			w.drainRequests(scratch.Data())
		}
	}
}

func (w *Worker) drainRequests(buf []byte) {
	for {
		n, ok := w.requestCh.ReadRecord(buf)
		if !ok {
			return
		}
		if err := w.iface.Work(w.respond, buf[:n]); err != nil {
			w.log.Warn("worker task failed", "error", err)
		}
	}
}

func (w *Worker) respond(data []byte) error {
	if !w.responseCh.WriteRecord(data) {
		return errors.New(nil).
			Component("worker").
			Category(errors.CategoryWorker).
			Context("reason", "response channel full").
			Build()
	}
	return nil
}

// Schedule is the realtime-callable entry point a plugin uses to request
// work. It never blocks or allocates: a full request ring drops the
// request and returns ErrChannelFull, matching the host's overflow policy.
func (w *Worker) Schedule(data []byte) error {
	if !w.enabled {
		return errors.New(nil).
			Component("worker").
			Category(errors.CategoryWorker).
			Context("reason", "worker not enabled").
			Build()
	}

	if w.synchronous {
		return w.iface.Work(w.respond, data)
	}

	if !w.requestCh.WriteRecord(data) {
		return ringbuf.ErrChannelFull
	}
	w.postSem()
	return nil
}

func (w *Worker) postSem() {
	select {
	case w.sem <- struct{}{}:
	default:
		// Worker is already signaled and hasn't drained yet; no need to stack more wakeups.
	}
}

// EmitResponses is called once per process cycle from the realtime thread
// to deliver any responses the worker has produced since the last cycle.
func (w *Worker) EmitResponses(scratch []byte) {
	if !w.enabled {
		return
	}

	for i := 0; i < maxResponsesPerCycle; i++ {
		n, ok := w.responseCh.ReadRecord(scratch)
		if !ok {
			break
		}
		if err := w.iface.Response(scratch[:n]); err != nil {
			w.log.Warn("response delivery failed", "error", err)
		}
	}

	if w.iface.EndRun != nil {
		if err := w.iface.EndRun(); err != nil {
			w.log.Warn("end_run failed", "error", err)
		}
	}
}
