package framebuf

import "io"

const (
	// AfterEndByte is returned by NextByte once the frame has ended.
	AfterEndByte byte = 0

	scratchSize   = 16
	unknownLength = -1
)

type readMode int

const (
	readNotActive readMode = iota
	readDone
	readInSegment
	readInMessage
)

// OutFrame is the read side of a FrameBuffer. It reads the oldest committed
// high priority frame, or the oldest low priority one when there is none. Once
// Begin picked a frame the reader stays on it until Remove.
//
//	readStart     segHead  pointer     segTail
//	    |            |        |           |
//	----+------------+--------------------+------+--------------+-------
//	... | Segment 1  | Segment 2          | ...  | Last segment | next frame
//	----+------------+--------------------+------+--------------+-------
type OutFrame struct {
	buf     *FrameBuffer
	dir     direction
	segHead int
	segTail int
	pointer int
	mode    readMode
	length  int

	// message being read: index in the committed queue, read offset and the
	// staged chunk in scratch[scratchHead:scratchTail].
	msgIndex    int
	msg         Message
	msgOffset   int
	scratch     [scratchSize]byte
	scratchHead int
	scratchTail int
}

func (o *OutFrame) reset() {
	o.mode = readNotActive
	o.length = unknownLength
	o.msgIndex = -1
	o.msg = nil
	o.msgOffset = 0
	o.scratchHead = 0
	o.scratchTail = 0
}

// Begin positions the reader at the start of the next frame to send. Calling
// it again rewinds the same frame, even if a high priority frame was added in
// between.
func (o *OutFrame) Begin() error {
	if o.buf.IsEmpty() {
		return ErrNotFound
	}

	o.selectDirection()
	o.segHead = o.buf.readStart[o.dir]
	o.segTail = o.segHead
	o.msgIndex = -1
	o.msg = nil
	// a frame holding only empty messages has nothing to read and ends here
	_ = o.prepareSegment()
	return nil
}

func (o *OutFrame) HasEnded() bool {
	return o.mode == readDone || o.mode == readNotActive
}

// Priority returns the priority of the frame the reader is on, or would pick
// next.
func (o *OutFrame) Priority() Priority {
	o.selectDirection()
	return Priority(o.dir)
}

func (o *OutFrame) selectDirection() {
	if o.mode != readNotActive {
		return
	}
	o.dir = forward
	if o.buf.HasFrame(PriorityHigh) {
		o.dir = backward
	}
}

// NextByte returns the next byte of the frame, or AfterEndByte when the
// frame has ended.
func (o *OutFrame) NextByte() byte {
	var b byte

	switch o.mode {
	case readInSegment:
		r := &o.buf.ring
		b = r.data[o.pointer]
		o.pointer = r.next(o.pointer, o.dir)
		if o.pointer == o.segTail {
			if o.prepareMessage() != nil {
				_ = o.prepareSegment()
			}
		}

	case readInMessage:
		b = o.scratch[o.scratchHead]
		o.scratchHead++
		if o.scratchHead == o.scratchTail {
			if o.fillScratch() != nil {
				_ = o.prepareSegment()
			}
		}

	default:
		b = AfterEndByte
	}

	return b
}

// ReadFrame copies up to len(p) bytes of the frame into p and returns the
// number of bytes copied.
func (o *OutFrame) ReadFrame(p []byte) int {
	n := 0
	for n < len(p) && !o.HasEnded() {
		p[n] = o.NextByte()
		n++
	}
	return n
}

// Read implements io.Reader over the current frame; io.EOF marks its end.
func (o *OutFrame) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if o.HasEnded() {
		return 0, io.EOF
	}
	return o.ReadFrame(p), nil
}

// Length returns the length of the current frame, message content included.
// It does not move the read position.
func (o *OutFrame) Length() uint16 {
	if o.buf.IsEmpty() {
		return 0
	}
	o.selectDirection()
	if o.length != unknownLength {
		return uint16(o.length)
	}

	length := 0
	index := 0
	queue := o.buf.queues[o.dir]
	o.buf.frameEnd(o.buf.readStart[o.dir], o.dir, func(h segmentHeader) {
		length += h.length()
		if h.hasMessage() {
			if msg := queue.At(index); msg != nil {
				length += msg.Len()
			}
			index++
		}
	})

	// a frame picked by Begin cannot change until Remove
	if o.mode != readNotActive {
		o.length = length
	}
	return uint16(length)
}

// Tag returns the tag of the current frame, or InvalidTag when empty.
func (o *OutFrame) Tag() FrameTag {
	if o.buf.IsEmpty() {
		return InvalidTag
	}
	o.selectDirection()
	return FrameTag(o.buf.readStart[o.dir])
}

// Remove drops the current frame and frees its messages.
func (o *OutFrame) Remove() error {
	buf := o.buf
	if buf.IsEmpty() {
		return ErrNotFound
	}

	o.selectDirection()
	d := o.dir
	tag := FrameTag(buf.readStart[d])
	queue := buf.queues[d]
	buf.readStart[d] = buf.frameEnd(buf.readStart[d], d, func(h segmentHeader) {
		if h.hasMessage() {
			if msg := queue.PopFront(); msg != nil {
				msg.Free()
			}
		}
	})
	buf.updateStarts()
	o.reset()

	buf.notifier.frameRemoved(tag, Priority(d), buf.IsEmpty())
	return nil
}

// prepareSegment moves to the next segment of the frame that has something to
// read. It returns ErrNotFound and marks the frame done when there is none.
func (o *OutFrame) prepareSegment() error {
	buf := o.buf
	r := &buf.ring

	for {
		o.segHead = o.segTail
		if o.segHead == buf.writeStart[o.dir] {
			break
		}

		h := r.segmentAt(o.segHead, o.dir)
		if h.newFrame() && o.segHead != buf.readStart[o.dir] {
			break
		}

		o.segTail = r.segmentEnd(o.segHead, o.dir)
		o.pointer = r.step(o.segHead, headerSize, o.dir)
		if o.pointer != o.segTail {
			o.mode = readInSegment
			return nil
		}

		if o.prepareMessage() == nil {
			return nil
		}
	}

	o.mode = readDone
	return ErrNotFound
}

// prepareMessage loads the message attached to the current segment.
func (o *OutFrame) prepareMessage() error {
	if !o.buf.ring.segmentAt(o.segHead, o.dir).hasMessage() {
		return ErrNotFound
	}

	o.msgIndex++
	o.msg = o.buf.queues[o.dir].At(o.msgIndex)
	if o.msg == nil {
		return ErrNotFound
	}

	o.msgOffset = 0
	if err := o.fillScratch(); err != nil {
		return err
	}
	o.mode = readInMessage
	return nil
}

func (o *OutFrame) fillScratch() error {
	if o.msg == nil || o.msgOffset >= o.msg.Len() {
		return ErrNotFound
	}

	n := o.msg.ReadAt(o.msgOffset, o.scratch[:])
	if n <= 0 {
		return ErrNotFound
	}
	o.msgOffset += n
	o.scratchHead = 0
	o.scratchTail = n
	return nil
}
