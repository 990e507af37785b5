package process

// Transport is the snapshot of audio-server transport state the cycle
// compares cycle-to-cycle to decide whether to forge a new position event.
type Transport struct {
	Rolling     bool
	Frame       uint64
	BPM         float32
	BeatsPerBar float32
}

// MIDIMessage is one externally-sourced or externally-bound MIDI event,
// timestamped in frames relative to the start of the current cycle.
type MIDIMessage struct {
	Frame uint32
	Data  []byte
}

// AudioServer is the subset of the audio-server backend the process cycle
// needs each callback: transport position, audio buffer pointers, and MIDI
// I/O. internal/audioserver's backend implementations satisfy this.
type AudioServer interface {
	Transport() Transport
	AudioBuffer(portIndex int) []float32

	// MIDIInput delivers every MIDI message queued for portIndex since the
	// last cycle to fn, in arrival order, decoding into scratch. fn's Data
	// slice aliases scratch and must not be retained past the call.
	// Draining stops early if fn returns false. Must not allocate or block.
	MIDIInput(portIndex int, scratch []byte, fn func(MIDIMessage) bool)

	// MIDIOutputAppend queues one plugin-produced MIDI message for
	// portIndex. Must not allocate or block.
	MIDIOutputAppend(portIndex int, msg MIDIMessage)

	RequestLatencyRecompute()
}

// Plugin is the realtime-callable surface of an instantiated plugin. The
// process cycle never calls anything else on the plugin from the RT thread.
type Plugin interface {
	Run(nframes uint32)
}
