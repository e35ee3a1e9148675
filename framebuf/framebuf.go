// Package framebuf implements the frame buffer shared between the host and the
// network co-processor link.
//
// Frames are stored in a fixed ring as a run of segments. Each segment starts
// with a 2-byte big-endian header:
//
//	+-----------+-------------+-------------------------------+
//	| New Frame | Has Message | Length (bits 0-13)            |
//	+-----------+-------------+-------------------------------+
//
// Message payloads are not copied into the ring. A segment flagged with
// Has Message owns the next message of the committed message queue and its
// content is read right after the segment's raw bytes.
//
// Frames have one of two priorities. Low priority frames grow forward from
// the start of the ring and high priority frames grow backward from its end,
// so both share the free space between them:
//
//	    readStart[low]           writeStart[low]
//	          |                        |
//	... high  | low frames ->          |   free   | <- high frames | ...
//	                                              |
//	                                       writeStart[high]
//
// The reader always drains high priority frames first.
//
// A FrameBuffer is not safe for concurrent use. Producer (InFrame) and
// consumer (OutFrame) calls must come from one goroutine or be serialized by
// the caller.
package framebuf

import (
	"github.com/guabee/ncpbuf/ncp/log"
	"github.com/pkg/errors"
)

const (
	MinCapacity = 4
	MaxCapacity = int(headerLengthMask) + 1
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}

type FrameBuffer struct {
	ring       ring
	queues     [2]MessageQueue
	writeStart [2]int
	readStart  [2]int
	notifier   notifier
	in         InFrame
	out        OutFrame
	logger     *log.Entry
}

type Option func(buf *FrameBuffer)

// WithMessageQueue replaces the default committed message queue of one
// priority level.
func WithMessageQueue(priority Priority, queue MessageQueue) Option {
	return func(buf *FrameBuffer) {
		if queue != nil {
			buf.queues[direction(priority.normalize())] = queue
		}
	}
}

func WithName(name string) Option {
	return func(buf *FrameBuffer) {
		if name != "" {
			buf.logger = log.NewLoggerEntry("framebuf." + name)
		}
	}
}

// New builds a frame buffer on top of storage, which must not be used by the
// caller afterwards.
func New(storage []byte, options ...Option) (*FrameBuffer, error) {
	if len(storage) < MinCapacity || len(storage) > MaxCapacity {
		return nil, errors.Wrapf(ErrInvalidArgs, "capacity %d out of range [%d, %d]", len(storage), MinCapacity, MaxCapacity)
	}

	buf := &FrameBuffer{
		ring:   ring{data: storage},
		queues: [2]MessageQueue{NewMessageQueue(), NewMessageQueue()},
		logger: log.NewLoggerEntry("framebuf"),
	}
	for _, option := range options {
		option(buf)
	}

	buf.in.buf = buf
	buf.out.buf = buf
	buf.in.dir = noDirection
	buf.in.lastTag = InvalidTag
	buf.resetStarts()
	buf.out.reset()
	return buf, nil
}

// SetCallbacks installs the occupancy callbacks. onNonEmpty runs when a frame
// is committed to an empty buffer, onEmpty when the last frame is removed.
// Either may be nil.
func (buf *FrameBuffer) SetCallbacks(onEmpty, onNonEmpty func()) {
	buf.notifier.onEmpty = onEmpty
	buf.notifier.onNonEmpty = onNonEmpty
}

func (buf *FrameBuffer) SetFrameAddedCallback(f FrameCallback) {
	buf.notifier.onFrameAdded = f
}

func (buf *FrameBuffer) SetFrameRemovedCallback(f FrameCallback) {
	buf.notifier.onFrameRemoved = f
}

func (buf *FrameBuffer) In() *InFrame {
	return &buf.in
}

func (buf *FrameBuffer) Out() *OutFrame {
	return &buf.out
}

// HasFrame reports whether a committed frame of the given priority is waiting.
func (buf *FrameBuffer) HasFrame(priority Priority) bool {
	d := direction(priority.normalize())
	return buf.readStart[d] != buf.writeStart[d]
}

func (buf *FrameBuffer) IsEmpty() bool {
	return !buf.HasFrame(PriorityHigh) && !buf.HasFrame(PriorityLow)
}

func (buf *FrameBuffer) Capacity() int {
	return buf.ring.capacity()
}

// FreeSpace returns how many more bytes the ring can take, including bytes of
// the frame currently being written.
func (buf *FrameBuffer) FreeSpace() int {
	low, high := buf.writeStart[forward], buf.writeStart[backward]
	switch buf.in.dir {
	case forward:
		low = buf.in.segTail
	case backward:
		high = buf.in.segTail
	}
	// the slot at each write start stays free
	return buf.ring.distance(low, high, forward) - 1
}

// Clear drops every committed and pending frame and frees their messages.
// No callbacks are invoked.
func (buf *FrameBuffer) Clear() {
	buf.in.discard()
	freed := freeAll(buf.queues[forward]) + freeAll(buf.queues[backward])

	buf.resetStarts()
	buf.in.segHead = 0
	buf.in.segTail = 0
	buf.in.lastTag = InvalidTag
	buf.out.reset()

	buf.logger.Debugf("cleared, %d messages freed", freed)
}

func (buf *FrameBuffer) resetStarts() {
	buf.writeStart[forward] = 0
	buf.writeStart[backward] = buf.ring.next(0, backward)
	buf.readStart = buf.writeStart
}

// updateStarts moves an idle priority level right next to the read start of
// the other one, which hands the space freed by removed frames back to the
// free area.
func (buf *FrameBuffer) updateStarts() {
	r := &buf.ring
	if !buf.HasFrame(PriorityHigh) && buf.in.dir != backward {
		buf.writeStart[backward] = r.next(buf.readStart[forward], backward)
		buf.readStart[backward] = buf.writeStart[backward]
		return
	}
	if !buf.HasFrame(PriorityLow) && buf.in.dir != forward {
		buf.writeStart[forward] = r.next(buf.readStart[backward], forward)
		buf.readStart[forward] = buf.writeStart[forward]
	}
}

// frameEnd walks the segments of the frame starting at start in direction d
// and calls visit for each of them. It returns the start of the next frame.
func (buf *FrameBuffer) frameEnd(start int, d direction, visit func(h segmentHeader)) int {
	p := start
	walked := 0
	for p != buf.writeStart[d] {
		h := buf.ring.segmentAt(p, d)
		if h.newFrame() && p != start {
			break
		}
		if visit != nil {
			visit(h)
		}
		walked += headerSize + h.length()
		assert(walked < buf.ring.capacity(), "segment chain corrupted")
		p = buf.ring.segmentEnd(p, d)
	}
	return p
}

func (p Priority) normalize() Priority {
	if p == PriorityHigh {
		return PriorityHigh
	}
	return PriorityLow
}
