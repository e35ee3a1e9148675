package framebuf

const (
	headerSize = 2

	headerLengthMask   uint16 = 0x3fff
	headerNoFlag       uint16 = 0
	headerMessageFlag  uint16 = 1 << 14
	headerNewFrameFlag uint16 = 1 << 15
)

// direction is the way a priority level grows through the ring. Low priority
// frames are written forward, high priority frames backward.
type direction int

const (
	forward     direction = direction(PriorityLow)
	backward    direction = direction(PriorityHigh)
	noDirection direction = -1
)

func (d direction) opposite() direction {
	if d == forward {
		return backward
	}
	return forward
}

// ring is the backing store. Positions are plain indexes in [0, len(data)).
type ring struct {
	data []byte
}

func (r *ring) capacity() int {
	return len(r.data)
}

// step moves p by n bytes in direction d, wrapping at both ends.
func (r *ring) step(p int, n int, d direction) int {
	size := len(r.data)
	n %= size
	if d == backward {
		n = size - n
	}
	return (p + n) % size
}

func (r *ring) next(p int, d direction) int {
	return r.step(p, 1, d)
}

// distance is the number of steps in direction d from a to b.
func (r *ring) distance(a, b int, d direction) int {
	if d == backward {
		a, b = b, a
	}
	if b >= a {
		return b - a
	}
	return len(r.data) - a + b
}

// writeHeader stores value big-endian: the high byte at p, the low byte one
// step further in direction d.
func (r *ring) writeHeader(p int, value uint16, d direction) {
	r.data[p] = byte(value >> 8)
	r.data[r.next(p, d)] = byte(value)
}

func (r *ring) readHeader(p int, d direction) uint16 {
	return uint16(r.data[p])<<8 | uint16(r.data[r.next(p, d)])
}

type segmentHeader uint16

func (h segmentHeader) length() int {
	return int(uint16(h) & headerLengthMask)
}

func (h segmentHeader) newFrame() bool {
	return uint16(h)&headerNewFrameFlag != 0
}

func (h segmentHeader) hasMessage() bool {
	return uint16(h)&headerMessageFlag != 0
}

func (r *ring) segmentAt(p int, d direction) segmentHeader {
	return segmentHeader(r.readHeader(p, d))
}

// segmentEnd returns the position right after the segment starting at p.
func (r *ring) segmentEnd(p int, d direction) int {
	return r.step(p, headerSize+r.segmentAt(p, d).length(), d)
}
