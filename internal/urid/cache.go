package urid

// Well-known URIs the host needs pre-resolved before entering the realtime
// process cycle, so the symbol map's mutex is never taken from it.
const (
	URIAtomChunk         = "http://lv2plug.in/ns/ext/atom#Chunk"
	URIAtomSequence      = "http://lv2plug.in/ns/ext/atom#Sequence"
	URIAtomEventTransfer = "http://lv2plug.in/ns/ext/atom#eventTransfer"
	URIAtomObject        = "http://lv2plug.in/ns/ext/atom#Object"
	URIMIDIEvent         = "http://lv2plug.in/ns/ext/midi#MidiEvent"
	URITimePosition      = "http://lv2plug.in/ns/ext/time#Position"
	URITimeFrame         = "http://lv2plug.in/ns/ext/time#frame"
	URITimeSpeed         = "http://lv2plug.in/ns/ext/time#speed"
	URITimeBeatsPerBar   = "http://lv2plug.in/ns/ext/time#beatsPerBar"
	URITimeBeatsPerMin   = "http://lv2plug.in/ns/ext/time#beatsPerMinute"
	URIPatchGet          = "http://lv2plug.in/ns/ext/patch#Get"
	URIPatchSet          = "http://lv2plug.in/ns/ext/patch#Set"
	URIPatchPut          = "http://lv2plug.in/ns/ext/patch#Put"
	URIPatchProperty     = "http://lv2plug.in/ns/ext/patch#property"
	URIPatchValue        = "http://lv2plug.in/ns/ext/patch#value"
	URIBufSizeMinBlock   = "http://lv2plug.in/ns/ext/buf-size#minBlockLength"
	URIBufSizeMaxBlock   = "http://lv2plug.in/ns/ext/buf-size#maxBlockLength"
	URIBufSizeSeqSize    = "http://lv2plug.in/ns/ext/buf-size#sequenceSize"
	URIParamSampleRate   = "http://lv2plug.in/ns/ext/parameters#sampleRate"
	URIUIUpdateRate      = "http://lv2plug.in/ns/extensions/ui#updateRate"
)

// Cache holds URIDs resolved once during non-realtime setup so the realtime
// thread never has to call into Table.
type Cache struct {
	AtomChunk         uint32
	AtomSequence      uint32
	AtomEventTransfer uint32
	AtomObject        uint32
	MIDIEvent         uint32
	TimePosition      uint32
	TimeFrame         uint32
	TimeSpeed         uint32
	TimeBeatsPerBar   uint32
	TimeBeatsPerMin   uint32
	PatchGet          uint32
	PatchSet          uint32
	PatchPut          uint32
	PatchProperty     uint32
	PatchValue        uint32
	BufSizeMinBlock   uint32
	BufSizeMaxBlock   uint32
	BufSizeSeqSize    uint32
	ParamSampleRate   uint32
	UIUpdateRate      uint32
}

// NewCache maps every well-known URI through table and returns the filled cache.
func NewCache(table *Table) Cache {
	return Cache{
		AtomChunk:         table.Map(URIAtomChunk),
		AtomSequence:      table.Map(URIAtomSequence),
		AtomEventTransfer: table.Map(URIAtomEventTransfer),
		AtomObject:        table.Map(URIAtomObject),
		MIDIEvent:         table.Map(URIMIDIEvent),
		TimePosition:      table.Map(URITimePosition),
		TimeFrame:         table.Map(URITimeFrame),
		TimeSpeed:         table.Map(URITimeSpeed),
		TimeBeatsPerBar:   table.Map(URITimeBeatsPerBar),
		TimeBeatsPerMin:   table.Map(URITimeBeatsPerMin),
		PatchGet:          table.Map(URIPatchGet),
		PatchSet:          table.Map(URIPatchSet),
		PatchPut:          table.Map(URIPatchPut),
		PatchProperty:     table.Map(URIPatchProperty),
		PatchValue:        table.Map(URIPatchValue),
		BufSizeMinBlock:   table.Map(URIBufSizeMinBlock),
		BufSizeMaxBlock:   table.Map(URIBufSizeMaxBlock),
		BufSizeSeqSize:    table.Map(URIBufSizeSeqSize),
		ParamSampleRate:   table.Map(URIParamSampleRate),
		UIUpdateRate:      table.Map(URIUIUpdateRate),
	}
}
