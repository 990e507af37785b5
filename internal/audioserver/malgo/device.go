// Package malgo implements the audio-server backend: a duplex sound-card
// device driven by github.com/gen2brain/malgo, standing in for the
// original's JACK client connection. It satisfies process.AudioServer by
// binding Port Table audio ports to interleaved device channels and
// re-slicing the device's data callback into per-port scratch buffers the
// process cycle can index without allocating.
package malgo

import (
	"encoding/binary"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/logging"
	"github.com/lv2jack/host/internal/process"
	"github.com/lv2jack/host/internal/ringbuf"
)

// midiQueueBytes sizes each per-port MIDI queue; generous relative to the
// handful of small channel-voice messages a single cycle typically carries.
const midiQueueBytes = 4096

// midiFrameHeaderSize is {frame:u32} prefixed to a MIDI message's raw bytes
// when it travels over a port's MIDI queue.
const midiFrameHeaderSize = 4

func encodeMIDIPayload(dst []byte, frame uint32, data []byte) []byte {
	need := midiFrameHeaderSize + len(data)
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	binary.LittleEndian.PutUint32(dst[0:], frame)
	copy(dst[midiFrameHeaderSize:], data)
	return dst
}

func decodeMIDIPayload(buf []byte) (frame uint32, data []byte, ok bool) {
	if len(buf) < midiFrameHeaderSize {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(buf[0:]), buf[midiFrameHeaderSize:], true
}

// Config describes the duplex device to open. SampleRate and BufferFrames
// are requested, not negotiated: unlike a JACK client, miniaudio does not
// callback with the server's actual block length before the stream starts,
// so the host treats these as the "pre-known default" branch of port
// buffer allocation (see DESIGN.md).
type Config struct {
	DeviceName     string
	SampleRate     uint32
	BufferFrames   uint32
	InputChannels  uint32
	OutputChannels uint32
}

// Backend is a malgo-backed duplex device implementing process.AudioServer.
type Backend struct {
	cfg Config
	log *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	runCycle func(nframes uint32) int

	inputBuffers  [][]float32
	outputBuffers [][]float32

	portToInputChannel  map[int]int
	portToOutputChannel map[int]int

	framePos atomic.Uint64

	// MIDI queues are one lock-free ringbuf.Channel per port and direction
	// (see DESIGN.md): a realtime producer/consumer and a non-realtime
	// consumer/producer, never a lock, on either end. The maps themselves
	// are only ever written during setup, before Start; from Start onward
	// they are read-only, so concurrent lookups from the realtime callback
	// need no synchronization either.
	midiInCh  map[int]*ringbuf.Channel
	midiOutCh map[int]*ringbuf.Channel

	// midiOutScratch is reused to encode one outgoing MIDI record at a
	// time; onData is never called concurrently with itself, so a single
	// shared buffer is safe without a lock.
	midiOutScratch []byte

	latencyRequested atomic.Bool
}

// New allocates a Backend. Open must be called before Start.
func New(cfg Config) *Backend {
	if cfg.BufferFrames == 0 {
		cfg.BufferFrames = 512
	}
	log := logging.ForService("audioserver")
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		cfg:                 cfg,
		log:                 log,
		portToInputChannel:  make(map[int]int),
		portToOutputChannel: make(map[int]int),
		midiInCh:            make(map[int]*ringbuf.Channel),
		midiOutCh:           make(map[int]*ringbuf.Channel),
		midiOutScratch:      make([]byte, 256),
	}
}

// BindAudioPort associates a Port Table index with the next free input or
// output device channel, in the order the host controller calls it (which
// must match declared port order).
func (b *Backend) BindAudioPort(portIndex int, isOutput bool) {
	if isOutput {
		b.portToOutputChannel[portIndex] = len(b.outputBuffers)
		b.outputBuffers = append(b.outputBuffers, make([]float32, b.cfg.BufferFrames))
		return
	}
	b.portToInputChannel[portIndex] = len(b.inputBuffers)
	b.inputBuffers = append(b.inputBuffers, make([]float32, b.cfg.BufferFrames))
}

// BindMIDIPort allocates the lock-free queue backing one event port's MIDI
// traffic. Called once per event port during setup, before Start.
func (b *Backend) BindMIDIPort(portIndex int, isOutput bool) {
	ch := ringbuf.NewChannel(midiQueueBytes)
	if isOutput {
		b.midiOutCh[portIndex] = ch
		return
	}
	b.midiInCh[portIndex] = ch
}

// SetCallback installs the function invoked once per device data callback;
// the host controller wires this to (*process.Cycle).Run.
func (b *Backend) SetCallback(fn func(nframes uint32) int) {
	b.runCycle = fn
}

func backendForPlatform() malgo.Backend {
	switch runtime.GOOS {
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendAlsa
	}
}

// Open initializes the malgo context and duplex device, but does not start
// the stream; Start does that once the process cycle is fully prepared.
func (b *Backend) Open() error {
	ctx, err := malgo.InitContext([]malgo.Backend{backendForPlatform()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component("audioserver").
			Category(errors.CategoryAudioHost).
			Context("operation", "init_context").
			Build()
	}
	b.ctx = ctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = b.cfg.InputChannels
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = b.cfg.OutputChannels
	deviceConfig.SampleRate = b.cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = b.cfg.BufferFrames

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: b.onData,
	})
	if err != nil {
		_ = ctx.Uninit()
		b.ctx = nil
		return errors.New(err).
			Component("audioserver").
			Category(errors.CategoryAudioHost).
			Context("operation", "init_device").
			Context("device_name", b.cfg.DeviceName).
			Build()
	}
	b.device = device
	return nil
}

// Start activates the device stream; the process cycle runs on the
// device's own realtime callback from this point on.
func (b *Backend) Start() error {
	if b.device == nil {
		return errors.New(nil).
			Component("audioserver").
			Category(errors.CategoryAudioHost).
			Context("reason", "Start called before Open").
			Build()
	}
	if err := b.device.Start(); err != nil {
		return errors.New(err).
			Component("audioserver").
			Category(errors.CategoryAudioHost).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

// Stop deactivates the stream; Close releases the device and context.
func (b *Backend) Stop() error {
	if b.device == nil {
		return nil
	}
	if err := b.device.Stop(); err != nil {
		return errors.New(err).
			Component("audioserver").
			Category(errors.CategoryAudioHost).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

// Close releases the device and context. Call once, after Stop.
func (b *Backend) Close() {
	if b.device != nil {
		b.device.Uninit()
		b.device = nil
	}
	if b.ctx != nil {
		_ = b.ctx.Uninit()
		b.ctx = nil
	}
}

// onData is the malgo-driven realtime callback: deinterleave input into
// per-channel scratch, run the process cycle, reinterleave scratch into
// output. No allocation: every buffer here was sized by BindAudioPort.
func (b *Backend) onData(output, input []byte, framecount uint32) {
	n := int(framecount)

	for ch, buf := range b.inputBuffers {
		stride := len(b.inputBuffers)
		for i := 0; i < n && i < len(buf); i++ {
			off := (i*stride + ch) * 4
			if off+4 > len(input) {
				buf[i] = 0
				continue
			}
			buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[off : off+4]))
		}
	}

	if b.runCycle != nil {
		b.runCycle(framecount)
	}

	stride := len(b.outputBuffers)
	for ch, buf := range b.outputBuffers {
		for i := 0; i < n; i++ {
			var v float32
			if i < len(buf) {
				v = buf[i]
			}
			off := (i*stride + ch) * 4
			if off+4 > len(output) {
				continue
			}
			binary.LittleEndian.PutUint32(output[off:off+4], math.Float32bits(v))
		}
	}

	b.framePos.Add(uint64(framecount))
}

// Transport reports a free-running transport: malgo has no session
// transport concept (unlike the original's JACK connection), so the host
// always presents "rolling" at a fixed nominal tempo. See DESIGN.md.
func (b *Backend) Transport() process.Transport {
	return process.Transport{
		Rolling:     true,
		Frame:       b.framePos.Load(),
		BPM:         120,
		BeatsPerBar: 4,
	}
}

// AudioBuffer returns the scratch buffer bound to portIndex, or nil if no
// channel was bound (e.g. an unconnected optional port).
func (b *Backend) AudioBuffer(portIndex int) []float32 {
	if ch, ok := b.portToInputChannel[portIndex]; ok {
		return b.inputBuffers[ch]
	}
	if ch, ok := b.portToOutputChannel[portIndex]; ok {
		return b.outputBuffers[ch]
	}
	return nil
}

// MIDIInput delivers every MIDI message queued for portIndex since the last
// cycle to fn, in arrival order, decoding into scratch. There is no
// hardware MIDI transport wired to malgo (audio I/O only); messages arrive
// only via PushMIDIInput. Connecting to other clients' MIDI ports is an explicit
// non-goal. Realtime-safe: the per-port queue is a lock-free SPSC ring, and
// fn's Data slice aliases scratch rather than allocating.
func (b *Backend) MIDIInput(portIndex int, scratch []byte, fn func(process.MIDIMessage) bool) {
	ch, ok := b.midiInCh[portIndex]
	if !ok {
		return
	}
	for {
		n, ok := ch.ReadRecord(scratch)
		if !ok {
			// ReadRecord returns the same (0, false) whether the ring is
			// empty or it just drained a record too large for scratch; a
			// nonzero Length means the latter, so keep draining instead
			// of stopping short and stranding every message behind it.
			if ch.Length() == 0 {
				return
			}
			continue
		}
		frame, data, ok := decodeMIDIPayload(scratch[:n])
		if !ok {
			continue
		}
		if !fn(process.MIDIMessage{Frame: frame, Data: data}) {
			return
		}
	}
}

// PushMIDIInput queues msg to be delivered to portIndex on the next cycle.
// Non-realtime: allocates its own encode scratch.
func (b *Backend) PushMIDIInput(portIndex int, msg process.MIDIMessage) {
	ch, ok := b.midiInCh[portIndex]
	if !ok {
		return
	}
	payload := encodeMIDIPayload(make([]byte, midiFrameHeaderSize+len(msg.Data)), msg.Frame, msg.Data)
	ch.WriteRecord(payload)
}

// MIDIOutputAppend records a plugin-produced MIDI message for portIndex.
// Realtime-safe: encodes into the backend's reused scratch buffer and
// writes to a lock-free SPSC ring; onData is never reentrant, so the
// shared scratch buffer needs no synchronization.
func (b *Backend) MIDIOutputAppend(portIndex int, msg process.MIDIMessage) {
	ch, ok := b.midiOutCh[portIndex]
	if !ok {
		return
	}
	b.midiOutScratch = encodeMIDIPayload(b.midiOutScratch, msg.Frame, msg.Data)
	ch.WriteRecord(b.midiOutScratch)
}

// DrainMIDIOutput returns everything queued via MIDIOutputAppend for
// portIndex since the last drain, for a console/UI thread to inspect.
// Non-realtime: allocates its own decode scratch and result slice.
func (b *Backend) DrainMIDIOutput(portIndex int) []process.MIDIMessage {
	ch, ok := b.midiOutCh[portIndex]
	if !ok {
		return nil
	}
	scratch := make([]byte, midiQueueBytes)
	var out []process.MIDIMessage
	for {
		n, ok := ch.ReadRecord(scratch)
		if !ok {
			if ch.Length() == 0 {
				return out
			}
			continue
		}
		frame, data, ok := decodeMIDIPayload(scratch[:n])
		if !ok {
			continue
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		out = append(out, process.MIDIMessage{Frame: frame, Data: cp})
	}
}

// RequestLatencyRecompute records that a reported-latency control output
// changed. malgo offers no API to renegotiate stream latency mid-run, so
// this only sets a flag, read back by LatencyRecomputeRequested.
func (b *Backend) RequestLatencyRecompute() {
	b.latencyRequested.Store(true)
}

// LatencyRecomputeRequested reports and clears the flag set by
// RequestLatencyRecompute. The host controller does not call it.
func (b *Backend) LatencyRecomputeRequested() bool {
	return b.latencyRequested.CompareAndSwap(true, false)
}
