package framebuf

// Message is an externally allocated payload referenced from a frame instead
// of being copied into the ring.
type Message interface {
	// Len returns the payload length in bytes.
	Len() int
	// ReadAt copies payload bytes starting at offset into p and returns the
	// number of bytes copied.
	ReadAt(offset int, p []byte) int
	// Free releases the message back to whoever allocated it.
	Free()
}

// MessageQueue is the ordered list of messages owned by committed frames.
type MessageQueue interface {
	PushBack(msg Message)
	PopFront() Message
	PeekFront() Message
	// At returns the i-th queued message or nil when out of range.
	At(i int) Message
	Len() int
}

type sliceQueue struct {
	items []Message
}

// NewMessageQueue returns the default FIFO used when no queue is supplied.
func NewMessageQueue() MessageQueue {
	return &sliceQueue{}
}

func (q *sliceQueue) PushBack(msg Message) {
	q.items = append(q.items, msg)
}

func (q *sliceQueue) PopFront() Message {
	if len(q.items) == 0 {
		return nil
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return msg
}

func (q *sliceQueue) PeekFront() Message {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *sliceQueue) At(i int) Message {
	if i < 0 || i >= len(q.items) {
		return nil
	}
	return q.items[i]
}

func (q *sliceQueue) Len() int {
	return len(q.items)
}

func freeAll(q MessageQueue) int {
	n := 0
	for msg := q.PopFront(); msg != nil; msg = q.PopFront() {
		msg.Free()
		n++
	}
	return n
}
