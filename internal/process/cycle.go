// Package process implements the Process Cycle: the realtime callback
// handed to the audio-server backend. Every exported method documents
// whether it is realtime-safe; Run and everything it calls must never
// allocate, lock, or block.
package process

import (
	"log/slog"
	"sync/atomic"

	"github.com/lv2jack/host/internal/evbuf"
	"github.com/lv2jack/host/internal/logging"
	"github.com/lv2jack/host/internal/plugindb"
	"github.com/lv2jack/host/internal/ports"
	"github.com/lv2jack/host/internal/ringbuf"
	"github.com/lv2jack/host/internal/urid"
	"github.com/lv2jack/host/internal/worker"
)

// PlayState is the process cycle's pause/run state machine:
// running -> pause-requested -> paused -> running.
type PlayState int32

const (
	PlayRunning PlayState = iota
	PlayPauseRequested
	PlayPaused
)

// Config carries everything Cycle needs at construction time; Prepare is
// called afterward, once the audio server has reported its block length.
type Config struct {
	Ports      *ports.Table
	Cache      urid.Cache
	UIToPlugin *ringbuf.Channel
	PluginToUI *ringbuf.Channel
	Worker     *worker.Worker
	Plugin     Plugin
	Server     AudioServer
	SampleRate float64
	UIUpdateHz float64
}

// Cycle is the pre-allocated realtime state for one plugin instance's
// process callback. No field is resized after Prepare runs.
type Cycle struct {
	ports      *ports.Table
	cache      urid.Cache
	uiToPlugin *ringbuf.Channel
	pluginToUI *ringbuf.Channel
	worker     *worker.Worker
	plugin     Plugin
	server     AudioServer
	sampleRate float64
	uiUpdateHz float64

	prevTransport   Transport
	positionScratch [256]byte

	controlScratch   []byte  // sized by Prepare to hold any UI ring record or fan-out record, reused for ring reads/writes
	eventWireScratch []byte  // sized by Prepare to hold any encoded event-transfer payload before it is wrapped in a control-change record
	scalarScratch    [4]byte // holds one scalar control-change payload, reused across fan-out
	midiScratch      []byte  // sized by Prepare to match the backend's per-port MIDI queue capacity, reused to decode one incoming MIDI message at a time
	workerScratch    []byte  // sized by Prepare to the worker response ring's capacity, handed to worker.EmitResponses

	playState atomic.Int32
	pauseSem  chan struct{}

	stateChangedRequested atomic.Bool

	eventDeltaT   uint32
	sendUIUpdates bool

	log *slog.Logger
}

// New builds a Cycle from cfg. Safe to call before Prepare; Run must not be
// called until Prepare has run at least once.
func New(cfg Config) *Cycle {
	log := logging.ForService("process")
	if log == nil {
		log = slog.Default()
	}
	if cfg.UIUpdateHz <= 0 {
		cfg.UIUpdateHz = 25
	}
	return &Cycle{
		ports:      cfg.Ports,
		cache:      cfg.Cache,
		uiToPlugin: cfg.UIToPlugin,
		pluginToUI: cfg.PluginToUI,
		worker:     cfg.Worker,
		plugin:     cfg.Plugin,
		server:     cfg.Server,
		sampleRate: cfg.SampleRate,
		uiUpdateHz: cfg.UIUpdateHz,
		pauseSem:   make(chan struct{}, 1),
		log:        log,
	}
}

// Prepare (non-realtime) sizes the scratch buffers used inside Run. It must
// be called after the event buffers have been allocated and the rings
// built, and again if either changes. Every buffer is sized to the hard
// upper bound of what its consumer can meet, so nothing on the Run path
// ever reallocates:
//
//   - eventWireScratch: one event-transfer payload, bounded by the largest
//     event buffer capacity (no event body can exceed its buffer).
//   - controlScratch: the larger of a whole UI->plugin ring record (bounded
//     by the ring's capacity) and a fan-out record wrapping
//     eventWireScratch.
//   - workerScratch: the worker response ring's capacity.
//   - midiScratch: the backend's per-port MIDI queue capacity.
func (c *Cycle) Prepare(maxBlockLength, midiBufferSize uint32) {
	wireNeed := eventPayloadHeaderSize + int(c.ports.MaxEventBufferCapacity())
	c.eventWireScratch = make([]byte, wireNeed)

	controlNeed := c.uiToPlugin.Capacity()
	if n := controlChangeHeaderSize + wireNeed; n > controlNeed {
		controlNeed = n
	}
	c.controlScratch = make([]byte, controlNeed)

	midiNeed := int(midiBufferSize)
	if midiNeed < 4096 {
		midiNeed = 4096
	}
	c.midiScratch = make([]byte, midiNeed)

	c.workerScratch = make([]byte, c.worker.ResponseQueueCapacity())
}

// RequestPause (non-realtime, called by the Host Controller) asks the
// process cycle to pause at the start of its next invocation.
func (c *Cycle) RequestPause() {
	c.playState.Store(int32(PlayPauseRequested))
}

// RequestResume (non-realtime) returns the cycle to the running state.
func (c *Cycle) RequestResume() {
	c.playState.Store(int32(PlayRunning))
}

// WaitPaused blocks (non-realtime caller only) until the process cycle has
// signalled it completed its transition to Paused.
func (c *Cycle) WaitPaused() {
	<-c.pauseSem
}

// RequestStateChange (non-realtime) asks the next cycle to emit a
// patch-get message to the designated control input.
func (c *Cycle) RequestStateChange() {
	c.stateChangedRequested.Store(true)
}

// Run is the realtime process callback: transport detection, play-state
// handling, fan-in, UI ring drain, plugin run, worker drain, UI update
// scheduling, fan-out. Touches only pre-allocated state.
func (c *Cycle) Run(nframes uint32) int {
	// 1. Transport detection.
	xport := c.server.Transport()
	xportChanged := xport.Rolling != c.prevTransport.Rolling ||
		xport.Frame != c.prevTransport.Frame ||
		xport.BPM != c.prevTransport.BPM
	var positionBody []byte
	if xportChanged {
		positionBody = forgePosition(c.positionScratch[:], xport)
	}
	c.prevTransport = xport

	// 2. Play-state handling.
	switch PlayState(c.playState.Load()) {
	case PlayPauseRequested:
		c.playState.Store(int32(PlayPaused))
		select {
		case c.pauseSem <- struct{}{}:
		default:
		}
	case PlayPaused:
		c.zeroOutputs()
		return 0
	}

	stateChanged := c.stateChangedRequested.CompareAndSwap(true, false)

	// 3. Fan-in.
	for i := range c.ports.All() {
		p := c.ports.Classify(i)
		switch p.Kind {
		case plugindb.KindAudio, plugindb.KindCV:
			p.AudioBuffer = c.server.AudioBuffer(i)
		case plugindb.KindEvent:
			if p.Flow == plugindb.FlowInput {
				c.fanInEventPort(p, i, nframes, xportChanged, positionBody, stateChanged)
			} else {
				p.EventBuffer.Reset(false)
			}
		}
	}

	// 4. UI ring drain.
	c.drainUIRing(nframes)

	// 5. Run plugin.
	c.plugin.Run(nframes)

	// 6. Worker drain.
	c.worker.EmitResponses(c.workerScratch)

	// 7. UI update scheduling.
	c.eventDeltaT += nframes
	threshold := uint32(c.sampleRate / c.uiUpdateHz)
	if threshold > 0 && c.eventDeltaT > threshold {
		c.sendUIUpdates = true
		c.eventDeltaT = 0
	}

	// 8. Fan-out.
	c.fanOut()
	c.sendUIUpdates = false

	return 0
}

func (c *Cycle) fanInEventPort(p *ports.Port, index int, nframes uint32, xportChanged bool, positionBody []byte, stateChanged bool) {
	p.EventBuffer.Reset(true)
	it := evbuf.Begin(p.EventBuffer)

	if xportChanged {
		if err := it.Write(0, 0, c.cache.TimePosition, positionBody); err != nil {
			c.log.Warn("dropped transport position event, buffer full", "port", p.Symbol)
		} else {
			it = evbuf.End(p.EventBuffer)
		}
	}

	if stateChanged && p.DesignatedControl {
		if err := it.Write(0, 0, c.cache.PatchGet, nil); err != nil {
			c.log.Warn("dropped patch-get event, buffer full", "port", p.Symbol)
		} else {
			it = evbuf.End(p.EventBuffer)
		}
	}

	// c.midiScratch is sized in Prepare to match the backend's per-port
	// queue capacity, so a genuinely oversized record should never reach
	// here; MIDIInput still skips past one rather than stopping early if
	// it ever does (see the malgo backend's own loop for the same guard).
	c.server.MIDIInput(index, c.midiScratch, func(msg MIDIMessage) bool {
		if err := it.Write(msg.Frame, 0, c.cache.MIDIEvent, msg.Data); err != nil {
			c.log.Warn("dropped MIDI input event, buffer full", "port", p.Symbol)
			return false
		}
		it = evbuf.End(p.EventBuffer)
		return true
	})
}

func (c *Cycle) drainUIRing(nframes uint32) {
	for {
		// fanOut reslices controlScratch to the last record it encoded, so
		// read into its full Prepare-sized capacity, not its current length.
		n, ok := c.uiToPlugin.ReadRecord(c.controlScratch[:cap(c.controlScratch)])
		if !ok {
			if c.uiToPlugin.Length() == 0 {
				return
			}
			c.log.Warn("dropped oversized UI ring record")
			continue
		}
		portIndex, protocol, payload, ok := decodeControlChange(c.controlScratch[:n])
		if !ok {
			c.log.Warn("malformed control-change record from UI ring")
			continue
		}
		if int(portIndex) >= c.ports.Len() {
			c.log.Warn("control-change record targets unknown port", "port_index", portIndex)
			continue
		}
		p := c.ports.Classify(int(portIndex))

		switch {
		case protocol == 0 && len(payload) == 4:
			p.ScalarValue = float32FromBits(payload)
		case protocol == c.cache.AtomEventTransfer:
			typeURID, body, ok := decodeEventPayload(payload)
			if !ok || p.EventBuffer == nil {
				c.log.Warn("unusable event-transfer payload from UI ring", "port_index", portIndex)
				continue
			}
			it := evbuf.End(p.EventBuffer)
			if err := it.Write(nframes, 0, typeURID, body); err != nil {
				c.log.Warn("dropped UI-originated event, buffer full", "port_index", portIndex)
			}
		default:
			c.log.Warn("unsupported control-change protocol from UI ring", "protocol", protocol)
		}
	}
}

func (c *Cycle) fanOut() {
	for i := range c.ports.All() {
		p := c.ports.Classify(i)

		switch {
		case p.Kind == plugindb.KindEvent && p.Flow == plugindb.FlowOutput:
			c.fanOutEventPort(p, i)

		case p.Kind == plugindb.KindControlScalar && p.Flow == plugindb.FlowOutput:
			if p.ReportsLatency && p.ScalarValue != p.LastReported {
				c.server.RequestLatencyRecompute()
			}
			if c.sendUIUpdates {
				putFloatBits(c.scalarScratch[:], p.ScalarValue)
				c.controlScratch = encodeControlChange(c.controlScratch, uint32(i), 0, c.scalarScratch[:])
				if !c.pluginToUI.WriteRecord(c.controlScratch) {
					c.log.Warn("dropped UI control update, ring full", "port_index", i)
				}
			}
			if p.ReportsLatency {
				p.LastReported = p.ScalarValue
			}
		}
	}
}

func (c *Cycle) fanOutEventPort(p *ports.Port, index int) {
	if p.EventBuffer == nil {
		return
	}
	for it := evbuf.Begin(p.EventBuffer); it.Valid(); it = it.Next() {
		ev, ok := it.Get()
		if !ok {
			break
		}

		if p.SupportsMIDI && ev.Type == c.cache.MIDIEvent {
			c.server.MIDIOutputAppend(index, MIDIMessage{Frame: ev.Frames, Data: ev.Body})
			continue
		}

		c.eventWireScratch = encodeEventPayload(c.eventWireScratch, ev.Type, ev.Body)
		c.controlScratch = encodeControlChange(c.controlScratch, uint32(index), c.cache.AtomEventTransfer, c.eventWireScratch)
		if !c.pluginToUI.WriteRecord(c.controlScratch) {
			c.log.Warn("dropped plugin event to UI ring, ring full", "port_index", index)
		}
	}
}

func (c *Cycle) zeroOutputs() {
	for i := range c.ports.All() {
		p := c.ports.Classify(i)
		switch {
		case p.Kind == plugindb.KindAudio && p.Flow == plugindb.FlowOutput:
			for j := range p.AudioBuffer {
				p.AudioBuffer[j] = 0
			}
		case p.Kind == plugindb.KindEvent && p.Flow == plugindb.FlowOutput && p.EventBuffer != nil:
			p.EventBuffer.Reset(false)
		}
	}
}
