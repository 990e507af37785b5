// Package ringbuf implements the host's ring channel: a lock-free,
// single-producer/single-consumer byte ring (github.com/smallnest/ringbuffer)
// wrapped with length-prefixed record framing, so a realtime producer and a
// non-realtime consumer (or vice versa) can exchange whole messages without
// ever blocking, locking, or allocating on the realtime side.
package ringbuf

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/lv2jack/host/internal/errors"
	"github.com/smallnest/ringbuffer"
)

const recordLengthPrefix = 4

// Channel is one direction of a ring-buffer-backed message channel.
type Channel struct {
	rb       *ringbuffer.RingBuffer
	capacity int
	overflow atomic.Uint64
	underrun atomic.Uint64

	// writeHeader is reused across WriteRecord calls; only the single
	// designated writer goroutine touches it, so no lock is needed.
	writeHeader [recordLengthPrefix]byte
	readHeader  [recordLengthPrefix]byte
}

// NewChannel allocates a ring channel with capacityBytes of backing storage.
func NewChannel(capacityBytes int) *Channel {
	return &Channel{rb: ringbuffer.New(capacityBytes), capacity: capacityBytes}
}

// Capacity returns the channel's backing storage size in bytes. No record
// larger than Capacity minus the length prefix can ever be queued, so a
// reader whose destination buffer is at least Capacity bytes can never hit
// the oversized-record drain path.
func (c *Channel) Capacity() int { return c.capacity }

// WriteRecord writes one length-prefixed record. It never blocks: if the
// ring lacks room for the whole record (header and body), it drops the
// record, increments the overflow counter, and returns false. Callers on
// the realtime path must treat a false return as "logged and discarded";
// back-pressure from a slow reader must never stall the writer.
func (c *Channel) WriteRecord(payload []byte) bool {
	need := recordLengthPrefix + len(payload)
	if c.rb.Free() < need {
		c.overflow.Add(1)
		return false
	}

	binary.LittleEndian.PutUint32(c.writeHeader[:], uint32(len(payload)))
	if _, err := c.rb.TryWrite(c.writeHeader[:]); err != nil {
		c.overflow.Add(1)
		return false
	}
	if len(payload) > 0 {
		if _, err := c.rb.TryWrite(payload); err != nil {
			c.overflow.Add(1)
			return false
		}
	}
	return true
}

// ReadRecord reads one record into dst, returning the number of bytes
// written and true on success. It returns (0, false) if no complete record
// is currently available. If a record is available but larger than dst, the
// record is drained from the ring (to preserve framing for the next read)
// and ReadRecord returns (0, false) with the underrun counter incremented.
func (c *Channel) ReadRecord(dst []byte) (int, bool) {
	if c.rb.Length() < recordLengthPrefix {
		return 0, false
	}
	if _, err := c.rb.TryRead(c.readHeader[:]); err != nil {
		return 0, false
	}
	length := int(binary.LittleEndian.Uint32(c.readHeader[:]))
	if length == 0 {
		return 0, true
	}

	if length > len(dst) {
		c.drain(length)
		c.underrun.Add(1)
		return 0, false
	}

	n, err := c.rb.TryRead(dst[:length])
	if err != nil || n != length {
		c.underrun.Add(1)
		return 0, false
	}
	return n, true
}

func (c *Channel) drain(n int) {
	buf := make([]byte, n)
	_, _ = c.rb.TryRead(buf)
}

// Length returns the number of unread bytes currently queued, for metrics
// sampling by a non-realtime goroutine.
func (c *Channel) Length() int { return c.rb.Length() }

// OverflowCount returns how many records have been dropped for lack of room.
func (c *Channel) OverflowCount() uint64 { return c.overflow.Load() }

// UnderrunCount returns how many reads failed due to a short or oversized record.
func (c *Channel) UnderrunCount() uint64 { return c.underrun.Load() }

// ErrChannelFull is returned by callers that want an error value instead of
// a boolean when WriteRecord fails (e.g. the worker's schedule function).
var ErrChannelFull = errors.New(nil).
	Component("ringbuf").
	Category(errors.CategoryRing).
	Context("reason", "no room for record").
	Build()
