// Package evbuf implements the host's event buffer: a fixed-capacity,
// pre-allocated region used to carry a sequence of timestamped event
// records across an LV2 event or atom-sequence port during one process
// cycle. Since the host speaks to plugins through a Go interface rather
// than the raw LV2 C ABI, both variants share one 16-byte record header
// (see DESIGN.md).
package evbuf

import "github.com/lv2jack/host/internal/errors"

// Variant distinguishes the legacy Event port wire format from the modern
// Atom Sequence format. Both use the same record layout and pad records to
// an 8-byte boundary identically; the variant is only recorded and returned
// by Variant(), and changes neither the layout nor the reported type URIDs.
type Variant int

const (
	VariantEvent Variant = iota
	VariantAtom
)

const recordHeaderSize = 16 // frames(4) + subframes(4) + type(4) + size(4)

func pad(size uint32) uint32 {
	return (size + 7) &^ 7
}

// Buffer is a single pre-allocated event/atom-sequence port buffer.
type Buffer struct {
	data       []byte
	capacity   uint32
	size       uint32
	count      uint32
	variant    Variant
	forWriting bool

	// chunkType/seqType are the URIDs the host reports back to a plugin
	// asking what types this buffer accepts; they carry no behavior here.
	chunkType uint32
	seqType   uint32
}

// NewBuffer allocates a buffer of capacity bytes for the given variant.
// Capacity is fixed for the buffer's lifetime; Prepare (internal/process)
// is the only place new buffers are built, never the realtime thread.
func NewBuffer(capacity uint32, variant Variant, chunkType, seqType uint32) *Buffer {
	b := &Buffer{
		data:      make([]byte, capacity),
		capacity:  capacity,
		variant:   variant,
		chunkType: chunkType,
		seqType:   seqType,
	}
	b.Reset(true)
	return b
}

// Reset clears the buffer to empty, ready for the next process cycle.
// forWriting declares which side fills the buffer this cycle: true
// announces it to the plugin as empty and writable by the host (an input
// being fanned in), false announces it as a chunk of capacity bytes for
// the plugin to fill (an output). Allocation-free: it only rewrites the
// header fields.
func (b *Buffer) Reset(forWriting bool) {
	b.size = 0
	b.count = 0
	b.forWriting = forWriting
}

// ForWriting reports which mode the last Reset announced.
func (b *Buffer) ForWriting() bool { return b.forWriting }

func (b *Buffer) Variant() Variant      { return b.variant }
func (b *Buffer) Capacity() uint32      { return b.capacity }
func (b *Buffer) Size() uint32          { return b.size }
func (b *Buffer) EventCount() uint32    { return b.count }
func (b *Buffer) ChunkTypeURID() uint32 { return b.chunkType }
func (b *Buffer) SeqTypeURID() uint32   { return b.seqType }

// Event is one decoded record: a timestamp (frames/subframes), a body type
// URID, and a body slice that aliases the buffer's backing array.
type Event struct {
	Frames    uint32
	Subframes uint32
	Type      uint32
	Body      []byte
}

// Iterator walks the records written to a Buffer in order. It is a small
// value type, safe to copy, matching LV2_Evbuf_Iterator's by-value semantics.
type Iterator struct {
	buf    *Buffer
	offset uint32
}

// Begin returns an iterator positioned at the first record.
func Begin(b *Buffer) Iterator { return Iterator{buf: b, offset: 0} }

// End returns an iterator positioned just past the last record.
func End(b *Buffer) Iterator { return Iterator{buf: b, offset: pad(b.size)} }

// Valid reports whether the iterator currently refers to a record.
func (it Iterator) Valid() bool {
	return it.offset < it.buf.size
}

// Next advances the iterator past the current record. Calling Next on an
// invalid iterator is a no-op.
func (it Iterator) Next() Iterator {
	if !it.Valid() {
		return it
	}
	size := readUint32(it.buf.data[it.offset+12:])
	return Iterator{buf: it.buf, offset: it.offset + pad(recordHeaderSize+size)}
}

// Get decodes the record at the iterator's current position. ok is false
// if the iterator is invalid.
func (it Iterator) Get() (ev Event, ok bool) {
	if !it.Valid() {
		return Event{}, false
	}
	rec := it.buf.data[it.offset:]
	size := readUint32(rec[12:])
	return Event{
		Frames:    readUint32(rec[0:]),
		Subframes: readUint32(rec[4:]),
		Type:      readUint32(rec[8:]),
		Body:      rec[recordHeaderSize : recordHeaderSize+size : recordHeaderSize+size],
	}, true
}

// Write appends a new record at the iterator's position and advances it.
// Returns an error carrying errors.CategoryEventBuf if the buffer has no
// room left; callers on the realtime path must treat that as "drop and
// count", never as a panic or allocation.
func (it *Iterator) Write(frames, subframes, evType uint32, body []byte) error {
	need := recordHeaderSize + uint32(len(body))
	padded := pad(need)
	if it.buf.size > it.buf.capacity || it.buf.capacity-it.buf.size < padded {
		return errors.New(nil).
			Component("evbuf").
			Category(errors.CategoryEventBuf).
			Context("capacity", it.buf.capacity).
			Context("used", it.buf.size).
			Context("needed", padded).
			Build()
	}

	rec := it.buf.data[it.offset:]
	writeUint32(rec[0:], frames)
	writeUint32(rec[4:], subframes)
	writeUint32(rec[8:], evType)
	writeUint32(rec[12:], uint32(len(body)))
	copy(rec[recordHeaderSize:], body)

	it.buf.size += padded
	it.buf.count++
	it.offset += padded
	return nil
}

func readUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func writeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
