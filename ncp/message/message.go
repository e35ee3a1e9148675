// Package message provides the pool of large payload messages that are
// referenced, not copied, from frame buffer frames.
package message

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	ErrPoolExhausted = errors.New("message pool exhausted")
	ErrTooLarge      = errors.New("message too large")
)

// Message is a pooled payload. It satisfies framebuf.Message.
type Message struct {
	data   []byte
	length int
	pool   *Pool
	freed  int32
}

// Pool hands out messages from a fixed set of preallocated slots.
type Pool struct {
	slots    chan *Message
	slotSize int
	size     int
}

func NewPool(size int, slotSize int) *Pool {
	pool := &Pool{
		slots:    make(chan *Message, size),
		slotSize: slotSize,
		size:     size,
	}
	for i := 0; i < size; i++ {
		pool.slots <- &Message{data: make([]byte, slotSize), pool: pool}
	}
	return pool
}

// New takes a free slot and copies data into it. It never blocks.
func (p *Pool) New(data []byte) (*Message, error) {
	if len(data) > p.slotSize {
		return nil, errors.Wrapf(ErrTooLarge, "%d > %d", len(data), p.slotSize)
	}

	select {
	case msg := <-p.slots:
		msg.length = copy(msg.data, data)
		atomic.StoreInt32(&msg.freed, 0)
		return msg, nil
	default:
		return nil, ErrPoolExhausted
	}
}

func (p *Pool) Cap() int {
	return p.size
}

// InUse returns the number of messages not yet freed.
func (p *Pool) InUse() int {
	return p.size - len(p.slots)
}

func (m *Message) Len() int {
	return m.length
}

func (m *Message) ReadAt(offset int, buf []byte) int {
	if offset < 0 || offset >= m.length {
		return 0
	}
	return copy(buf, m.data[offset:m.length])
}

// Bytes returns a view of the payload.
func (m *Message) Bytes() []byte {
	return m.data[:m.length]
}

// Append adds data to the end of the payload, as much as the slot allows.
func (m *Message) Append(data []byte) error {
	if m.length+len(data) > len(m.data) {
		return ErrTooLarge
	}
	m.length += copy(m.data[m.length:], data)
	return nil
}

func (m *Message) AppendU16(v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return m.Append(b[:])
}

// Free returns the message to its pool. Freeing twice is a no-op.
func (m *Message) Free() {
	if !atomic.CompareAndSwapInt32(&m.freed, 0, 1) {
		return
	}
	m.length = 0
	if m.pool != nil {
		m.pool.slots <- m
	}
}

// FromBytes wraps data in a message that belongs to no pool.
func FromBytes(data []byte) *Message {
	return &Message{data: data, length: len(data)}
}
