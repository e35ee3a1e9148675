package framebuf_test

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/guabee/ncpbuf/framebuf"
	"github.com/guabee/ncpbuf/ncp/message"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	empty    int
	nonEmpty int
	added    []framebuf.FrameTag
	removed  []framebuf.FrameTag
	// priority of every removed frame, in order
	drained []framebuf.Priority
}

func newBuffer(t *testing.T, size int) (*framebuf.FrameBuffer, *counter) {
	buf, err := framebuf.New(make([]byte, size))
	require.NoError(t, err)

	c := &counter{}
	buf.SetCallbacks(func() { c.empty++ }, func() { c.nonEmpty++ })
	buf.SetFrameAddedCallback(func(tag framebuf.FrameTag, _ framebuf.Priority) {
		c.added = append(c.added, tag)
	})
	buf.SetFrameRemovedCallback(func(tag framebuf.FrameTag, priority framebuf.Priority) {
		c.removed = append(c.removed, tag)
		c.drained = append(c.drained, priority)
	})
	return buf, c
}

func readAll(t *testing.T, buf *framebuf.FrameBuffer) []byte {
	require.NoError(t, buf.Out().Begin())
	data, err := io.ReadAll(buf.Out())
	require.NoError(t, err)
	return data
}

func TestNew(t *testing.T) {
	_, err := framebuf.New(make([]byte, framebuf.MinCapacity-1))
	assert.True(t, errors.Is(err, framebuf.ErrInvalidArgs))
	_, err = framebuf.New(make([]byte, framebuf.MaxCapacity+1))
	assert.True(t, errors.Is(err, framebuf.ErrInvalidArgs))

	buf, err := framebuf.New(make([]byte, framebuf.MaxCapacity), framebuf.WithName("max"))
	require.NoError(t, err)
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, framebuf.MaxCapacity, buf.Capacity())
	assert.Equal(t, framebuf.MaxCapacity-2, buf.FreeSpace())
	assert.Equal(t, framebuf.InvalidTag, buf.In().LastTag())
	assert.Equal(t, framebuf.InvalidTag, buf.Out().Tag())
	assert.True(t, buf.Out().HasEnded())
}

func TestSingleFrame(t *testing.T) {
	buf, c := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	in.Begin()
	require.NoError(t, in.FeedData([]byte("AB")))
	assert.True(t, buf.IsEmpty())
	in.End()
	assert.False(t, buf.IsEmpty())
	assert.Equal(t, 1, c.nonEmpty)
	assert.Equal(t, 0, c.empty)

	require.NoError(t, out.Begin())
	assert.False(t, out.HasEnded())
	assert.Equal(t, byte('A'), out.NextByte())
	assert.Equal(t, byte('B'), out.NextByte())
	assert.True(t, out.HasEnded())
	assert.Equal(t, framebuf.AfterEndByte, out.NextByte())

	require.NoError(t, out.Remove())
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 1, c.empty)
	assert.Equal(t, 1, c.nonEmpty)
	assert.Equal(t, c.added, c.removed)
}

func TestFramesStayApart(t *testing.T) {
	buf, c := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	in.Begin()
	require.NoError(t, in.FeedData([]byte("X")))
	in.End()
	in.Begin()
	require.NoError(t, in.FeedData([]byte("Y")))
	in.End()
	assert.Equal(t, 1, c.nonEmpty)
	assert.Len(t, c.added, 2)

	assert.Equal(t, "X", string(readAll(t, buf)))
	assert.Equal(t, c.added[0], out.Tag())
	require.NoError(t, out.Remove())
	assert.Equal(t, 0, c.empty)

	assert.Equal(t, "Y", string(readAll(t, buf)))
	require.NoError(t, out.Remove())
	assert.Equal(t, 1, c.empty)

	assert.Equal(t, framebuf.ErrNotFound, out.Begin())
	assert.Equal(t, framebuf.ErrNotFound, out.Remove())
	assert.Equal(t, uint16(0), out.Length())
}

func TestMessageFrame(t *testing.T) {
	pool := message.NewPool(4, 64)
	buf, _ := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	msg, err := pool.New([]byte("hello"))
	require.NoError(t, err)

	in.Begin()
	require.NoError(t, in.FeedMessage(msg))
	in.End()

	assert.Equal(t, uint16(5), out.Length())
	assert.Equal(t, "hello", string(readAll(t, buf)))
	assert.Equal(t, 1, pool.InUse())

	require.NoError(t, out.Remove())
	assert.Equal(t, 0, pool.InUse())
}

func TestMessageInline(t *testing.T) {
	pool := message.NewPool(4, 64)
	buf, _ := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	msg, err := pool.New([]byte("Z"))
	require.NoError(t, err)

	in.Begin()
	require.NoError(t, in.FeedData([]byte("A")))
	require.NoError(t, in.FeedMessage(msg))
	require.NoError(t, in.FeedData([]byte("B")))
	in.End()

	require.NoError(t, out.Begin())
	assert.Equal(t, byte('A'), out.NextByte())
	assert.Equal(t, byte('Z'), out.NextByte())
	assert.Equal(t, byte('B'), out.NextByte())
	assert.True(t, out.HasEnded())
	assert.Equal(t, uint16(3), out.Length())
}

func TestLongMessagesAcrossScratch(t *testing.T) {
	pool := message.NewPool(8, 256)
	buf, _ := newBuffer(t, 64)
	in, out := buf.In(), buf.Out()

	long := bytes.Repeat([]byte("0123456789abcdef-"), 10)
	m1, _ := pool.New(long)
	m2, _ := pool.New(nil)
	m3, _ := pool.New([]byte("tail"))

	in.Begin()
	require.NoError(t, in.FeedData([]byte("<")))
	require.NoError(t, in.FeedMessage(m1))
	require.NoError(t, in.FeedMessage(m2))
	require.NoError(t, in.FeedMessage(m3))
	require.NoError(t, in.FeedData([]byte(">")))
	in.End()

	expected := "<" + string(long) + "tail>"
	assert.Equal(t, uint16(len(expected)), out.Length())
	assert.Equal(t, expected, string(readAll(t, buf)))

	// rewinding reads the same frame again
	assert.Equal(t, expected, string(readAll(t, buf)))

	require.NoError(t, out.Remove())
	assert.Equal(t, 0, pool.InUse())
}

func TestEmptyMessagesOnly(t *testing.T) {
	buf, c := newBuffer(t, 16)
	in, out := buf.In(), buf.Out()

	in.Begin()
	require.NoError(t, in.FeedMessage(message.FromBytes(nil)))
	in.End()
	assert.False(t, buf.IsEmpty())
	assert.Equal(t, 1, c.nonEmpty)

	require.NoError(t, out.Begin())
	assert.True(t, out.HasEnded())
	assert.Equal(t, uint16(0), out.Length())
	require.NoError(t, out.Remove())
	assert.True(t, buf.IsEmpty())
}

func TestOverflow(t *testing.T) {
	buf, c := newBuffer(t, 8)
	in := buf.In()

	in.Begin()
	err := in.FeedData([]byte("0123456789"))
	assert.Equal(t, framebuf.ErrNoBufs, err)
	in.End()

	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 0, c.nonEmpty)
	assert.Empty(t, c.added)
	assert.Equal(t, framebuf.ErrNotFound, buf.Out().Begin())
	assert.Equal(t, 6, buf.FreeSpace())
}

func TestOverflowKeepsCommittedFrames(t *testing.T) {
	pool := message.NewPool(4, 16)
	buf, c := newBuffer(t, 16)
	in, out := buf.In(), buf.Out()

	in.Begin()
	require.NoError(t, in.FeedData([]byte("first")))
	in.End()

	msg, _ := pool.New([]byte("m"))
	in.Begin()
	require.NoError(t, in.FeedMessage(msg))
	err := in.FeedData([]byte("much too long"))
	assert.Equal(t, framebuf.ErrNoBufs, err)
	// accepted messages of the discarded frame are released
	assert.Equal(t, 0, pool.InUse())
	in.End()
	assert.Len(t, c.added, 1)

	assert.Equal(t, "first", string(readAll(t, buf)))
	require.NoError(t, out.Remove())
	assert.True(t, buf.IsEmpty())

	// the space is usable again
	assert.Equal(t, 14, buf.FreeSpace())
	in.Begin()
	require.NoError(t, in.FeedData([]byte("twelve bytes")))
	in.End()
	assert.Equal(t, "twelve bytes", string(readAll(t, buf)))
}

func TestFailedFeedMessageKeepsOwnership(t *testing.T) {
	pool := message.NewPool(2, 16)
	buf, _ := newBuffer(t, 4)
	in := buf.In()

	m0, _ := pool.New([]byte("0"))
	msg, _ := pool.New([]byte("m"))
	in.Begin()
	require.NoError(t, in.FeedMessage(m0))
	// a second segment header does not fit
	assert.Equal(t, framebuf.ErrNoBufs, in.FeedMessage(msg))
	assert.Equal(t, 1, pool.InUse())
	msg.Free()
	assert.Equal(t, 0, pool.InUse())

	assert.Equal(t, framebuf.ErrInvalidArgs, in.FeedMessage(nil))
}

func TestBeginDiscards(t *testing.T) {
	pool := message.NewPool(2, 16)
	buf, c := newBuffer(t, 32)
	in := buf.In()

	in.Begin()
	in.Begin()
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 30, buf.FreeSpace())

	msg, _ := pool.New([]byte("gone"))
	require.NoError(t, in.FeedData([]byte("dropped")))
	require.NoError(t, in.FeedMessage(msg))
	assert.Less(t, buf.FreeSpace(), 30)
	in.Begin()
	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, 30, buf.FreeSpace())

	in.End()
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 0, c.nonEmpty)
}

func TestEndWithoutBeginStartsNextFrame(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	in.Begin()
	require.NoError(t, in.FeedData([]byte("one")))
	in.End()
	require.NoError(t, in.FeedData([]byte("two")))
	in.End()

	assert.Equal(t, "one", string(readAll(t, buf)))
	require.NoError(t, out.Remove())
	assert.Equal(t, "two", string(readAll(t, buf)))
}

func TestWrapAround(t *testing.T) {
	buf, c := newBuffer(t, 13)
	in, out := buf.In(), buf.Out()

	for i := 0; i < 50; i++ {
		payload := []byte{byte(i), byte(i + 1), byte(i + 2)}
		in.BeginWithPriority(framebuf.Priority(i % 2))
		require.NoError(t, in.FeedData(payload[:1]))
		require.NoError(t, in.FeedMessage(message.FromBytes(payload[1:2])))
		require.NoError(t, in.FeedData(payload[2:]))
		in.End()

		assert.Equal(t, uint16(3), out.Length())
		assert.Equal(t, payload, readAll(t, buf))
		require.NoError(t, out.Remove())
	}
	assert.Equal(t, 50, c.nonEmpty)
	assert.Equal(t, 50, c.empty)
	assert.Equal(t, framebuf.PriorityHigh, c.drained[49])
}

func TestReadFrame(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	in.Begin()
	require.NoError(t, in.FeedData([]byte("abcdefgh")))
	in.End()

	require.NoError(t, out.Begin())
	p := make([]byte, 3)
	assert.Equal(t, 3, out.ReadFrame(p))
	assert.Equal(t, "abc", string(p))
	assert.Equal(t, 3, out.ReadFrame(p))
	assert.Equal(t, 2, out.ReadFrame(p))
	assert.Equal(t, "gh", string(p[:2]))
	assert.Equal(t, 0, out.ReadFrame(p))

	n, err := out.Read(p)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestRemoveWithoutBegin(t *testing.T) {
	pool := message.NewPool(4, 16)
	buf, _ := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	m1, _ := pool.New([]byte("1"))
	m2, _ := pool.New([]byte("2"))
	in.Begin()
	require.NoError(t, in.FeedMessage(m1))
	in.End()
	in.Begin()
	require.NoError(t, in.FeedMessage(m2))
	in.End()

	require.NoError(t, out.Remove())
	assert.Equal(t, 1, pool.InUse())
	assert.Equal(t, "2", string(readAll(t, buf)))
}

func TestLengthCached(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	in.Begin()
	require.NoError(t, in.FeedData([]byte("abc")))
	in.End()
	assert.Equal(t, uint16(3), out.Length())

	// later frames do not change the front frame length
	in.Begin()
	require.NoError(t, in.FeedData([]byte("defgh")))
	in.End()
	assert.Equal(t, uint16(3), out.Length())

	require.NoError(t, out.Remove())
	assert.Equal(t, uint16(5), out.Length())
}

func TestTags(t *testing.T) {
	buf, c := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	for _, s := range []string{"a", "bb", "ccc"} {
		in.Begin()
		require.NoError(t, in.FeedData([]byte(s)))
		in.End()
		assert.Equal(t, c.added[len(c.added)-1], in.LastTag())
	}

	for range c.added {
		tag := out.Tag()
		require.NoError(t, out.Remove())
		assert.Equal(t, tag, c.removed[len(c.removed)-1])
	}
	assert.Equal(t, c.added, c.removed)
	assert.Equal(t, framebuf.InvalidTag, out.Tag())
}

func TestWritePosition(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in := buf.In()

	in.Begin()
	require.NoError(t, in.FeedByte(0x80))
	pos, err := in.Position()
	require.NoError(t, err)
	require.NoError(t, in.FeedData([]byte{0, 0}))
	require.NoError(t, in.FeedData([]byte("payload")))
	assert.Equal(t, 9, in.Distance(pos))

	require.NoError(t, in.Overwrite(pos, []byte{0x00, 0x07}))
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Overwrite(pos, make([]byte, 10)))
	in.End()

	assert.Equal(t, append([]byte{0x80, 0x00, 0x07}, "payload"...), readAll(t, buf))

	// positions do not survive the frame
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Overwrite(pos, []byte{1}))
	assert.Equal(t, 0, in.Distance(pos))
}

func TestWritePositionReset(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in := buf.In()

	in.Begin()
	require.NoError(t, in.FeedData([]byte("keep")))
	pos, err := in.Position()
	require.NoError(t, err)
	// nothing written after pos yet
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Reset(pos))
	assert.Equal(t, 0, in.Distance(pos))

	require.NoError(t, in.FeedData([]byte("drop")))
	assert.Equal(t, 4, in.Distance(pos))
	require.NoError(t, in.Reset(pos))
	assert.Equal(t, 0, in.Distance(pos))
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Reset(pos))
	require.NoError(t, in.FeedData([]byte("!")))
	in.End()
	assert.Equal(t, "keep!", string(readAll(t, buf)))

	assert.Equal(t, framebuf.ErrInvalidArgs, in.Reset(framebuf.WritePosition{}))
}

func TestWritePositionAfterMessage(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in := buf.In()

	in.Begin()
	pos, err := in.Position()
	require.NoError(t, err)
	require.NoError(t, in.FeedData([]byte("ab")))
	require.NoError(t, in.FeedMessage(message.FromBytes([]byte("m"))))
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Overwrite(pos, []byte("x")))
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Reset(pos))
}

func TestClear(t *testing.T) {
	pool := message.NewPool(4, 16)
	buf, c := newBuffer(t, 32)
	in := buf.In()

	for i := 0; i < 2; i++ {
		msg, _ := pool.New([]byte("m"))
		in.Begin()
		require.NoError(t, in.FeedMessage(msg))
		in.End()
	}
	msg, _ := pool.New([]byte("pending"))
	in.Begin()
	require.NoError(t, in.FeedMessage(msg))
	assert.Equal(t, 3, pool.InUse())

	buf.Clear()
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, 0, c.empty)
	assert.Equal(t, framebuf.InvalidTag, in.LastTag())
	assert.Equal(t, 30, buf.FreeSpace())

	in.Begin()
	require.NoError(t, in.FeedData([]byte("fresh")))
	in.End()
	assert.Equal(t, "fresh", string(readAll(t, buf)))
	assert.Equal(t, 2, c.nonEmpty)
}

func TestWriterInterfaces(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in := buf.In()

	var w io.Writer = in
	var bw io.ByteWriter = in
	in.Begin()
	n, err := w.Write([]byte("io"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, bw.WriteByte('!'))
	in.End()
	assert.Equal(t, "io!", string(readAll(t, buf)))

	in.Begin()
	n, err = w.Write(make([]byte, 40))
	assert.Equal(t, 0, n)
	assert.Equal(t, framebuf.ErrNoBufs, err)
}

type customQueue struct {
	framebuf.MessageQueue
	pushed int
}

func (q *customQueue) PushBack(msg framebuf.Message) {
	q.pushed++
	q.MessageQueue.PushBack(msg)
}

func TestCustomQueue(t *testing.T) {
	queue := &customQueue{MessageQueue: framebuf.NewMessageQueue()}
	buf, err := framebuf.New(make([]byte, 32), framebuf.WithMessageQueue(framebuf.PriorityLow, queue))
	require.NoError(t, err)
	in := buf.In()

	in.Begin()
	require.NoError(t, in.FeedMessage(message.FromBytes([]byte("q"))))
	assert.Equal(t, 0, queue.pushed)
	in.End()
	assert.Equal(t, 1, queue.pushed)
	assert.Equal(t, 1, queue.Len())

	require.NoError(t, buf.Out().Remove())
	assert.Equal(t, 0, queue.Len())

	// high priority frames keep their messages in their own queue
	in.BeginWithPriority(framebuf.PriorityHigh)
	require.NoError(t, in.FeedMessage(message.FromBytes([]byte("h"))))
	in.End()
	assert.Equal(t, 1, queue.pushed)
	assert.Equal(t, "h", string(readAll(t, buf)))
}

// Random frames of both priorities go through a small ring; every committed
// frame must come out intact, high priority first and in order within a
// priority, and every message must be released.
func TestRandomRoundTrip(t *testing.T) {
	pool := message.NewPool(64, 40)
	buf, c := newBuffer(t, 97)
	in, out := buf.In(), buf.Out()
	rnd := rand.New(rand.NewSource(1))

	var expected [2][][]byte
	next := func() framebuf.Priority {
		if len(expected[framebuf.PriorityHigh]) > 0 {
			return framebuf.PriorityHigh
		}
		return framebuf.PriorityLow
	}

	committed := 0
	for i := 0; i < 2000; i++ {
		if rnd.Intn(3) > 0 {
			var frame []byte
			ok := true
			priority := framebuf.Priority(rnd.Intn(2))
			in.BeginWithPriority(priority)
			for parts := rnd.Intn(4) + 1; parts > 0 && ok; parts-- {
				data := make([]byte, rnd.Intn(12))
				rnd.Read(data)
				if rnd.Intn(2) == 0 {
					ok = in.FeedData(data) == nil
				} else {
					msg, err := pool.New(data)
					require.NoError(t, err)
					if err := in.FeedMessage(msg); err != nil {
						msg.Free()
						ok = false
					}
				}
				frame = append(frame, data...)
			}
			if ok {
				in.End()
				if len(c.added) > committed {
					committed = len(c.added)
					expected[priority] = append(expected[priority], frame)
				}
			}
		} else if p := next(); len(expected[p]) > 0 {
			assert.Equal(t, p, out.Priority())
			assert.Equal(t, uint16(len(expected[p][0])), out.Length())
			assert.Equal(t, string(expected[p][0]), string(readAll(t, buf)))
			require.NoError(t, out.Remove())
			expected[p] = expected[p][1:]
		}
	}

	for p := next(); len(expected[p]) > 0; p = next() {
		assert.Equal(t, string(expected[p][0]), string(readAll(t, buf)))
		require.NoError(t, out.Remove())
		expected[p] = expected[p][1:]
	}
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, c.nonEmpty, c.empty)
	assert.Equal(t, 95, buf.FreeSpace())
}

func TestFeedEmptyData(t *testing.T) {
	buf, c := newBuffer(t, 16)
	in := buf.In()

	in.Begin()
	require.NoError(t, in.FeedData(nil))
	n, err := in.Write([]byte{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	in.End()

	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 0, c.nonEmpty)
	assert.Empty(t, c.added)
	assert.Equal(t, framebuf.InvalidTag, in.LastTag())
	assert.Equal(t, 14, buf.FreeSpace())
}

func TestWritePositionDiesWithFrame(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in := buf.In()

	in.Begin()
	pos, err := in.Position()
	require.NoError(t, err)
	require.NoError(t, in.FeedData([]byte("zz")))

	// the next frame opens its segment at the same place
	in.Begin()
	require.NoError(t, in.FeedData([]byte("ab")))
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Overwrite(pos, []byte("X")))
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Reset(pos))
	assert.Equal(t, 0, in.Distance(pos))

	pos, err = in.Position()
	require.NoError(t, err)
	require.NoError(t, in.FeedData([]byte("c")))
	buf.Clear()
	require.NoError(t, in.FeedData([]byte("def")))
	assert.Equal(t, framebuf.ErrInvalidArgs, in.Overwrite(pos, []byte("X")))
	in.End()
	assert.Equal(t, "def", string(readAll(t, buf)))
}

func TestHighPriorityFirst(t *testing.T) {
	buf, c := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	for _, f := range []struct {
		priority framebuf.Priority
		data     string
	}{
		{framebuf.PriorityLow, "L1"},
		{framebuf.PriorityHigh, "H1"},
		{framebuf.PriorityLow, "L2"},
		{framebuf.PriorityHigh, "H2"},
	} {
		in.BeginWithPriority(f.priority)
		require.NoError(t, in.FeedData([]byte(f.data)))
		in.End()
	}
	assert.Equal(t, 1, c.nonEmpty)
	assert.True(t, buf.HasFrame(framebuf.PriorityHigh))
	assert.True(t, buf.HasFrame(framebuf.PriorityLow))

	assert.Equal(t, c.added[1], out.Tag())
	assert.Equal(t, framebuf.PriorityHigh, out.Priority())
	var got []string
	for !buf.IsEmpty() {
		got = append(got, string(readAll(t, buf)))
		require.NoError(t, out.Remove())
	}
	assert.Equal(t, []string{"H1", "H2", "L1", "L2"}, got)
	assert.Equal(t, []framebuf.FrameTag{c.added[1], c.added[3], c.added[0], c.added[2]}, c.removed)
	assert.Equal(t, []framebuf.Priority{
		framebuf.PriorityHigh, framebuf.PriorityHigh, framebuf.PriorityLow, framebuf.PriorityLow,
	}, c.drained)
	assert.Equal(t, 1, c.empty)
}

func TestReaderStaysOnFrame(t *testing.T) {
	buf, _ := newBuffer(t, 32)
	in, out := buf.In(), buf.Out()

	in.Begin()
	require.NoError(t, in.FeedData([]byte("slow")))
	in.End()

	require.NoError(t, out.Begin())
	assert.Equal(t, byte('s'), out.NextByte())

	in.BeginWithPriority(framebuf.PriorityHigh)
	require.NoError(t, in.FeedData([]byte("urgent")))
	in.End()

	assert.Equal(t, framebuf.PriorityLow, out.Priority())
	assert.Equal(t, uint16(4), out.Length())
	rest, err := io.ReadAll(out)
	require.NoError(t, err)
	assert.Equal(t, "low", string(rest))
	require.NoError(t, out.Remove())

	assert.Equal(t, framebuf.PriorityHigh, out.Priority())
	assert.Equal(t, uint16(6), out.Length())
	assert.Equal(t, "urgent", string(readAll(t, buf)))
}

func TestPrioritiesShareFreeSpace(t *testing.T) {
	buf, c := newBuffer(t, 16)
	in := buf.In()
	assert.Equal(t, 14, buf.FreeSpace())

	in.Begin()
	require.NoError(t, in.FeedData([]byte("lowlowlo")))
	in.End()
	assert.Equal(t, 4, buf.FreeSpace())

	// high priority frames grow toward the low priority ones
	in.BeginWithPriority(framebuf.PriorityHigh)
	assert.Equal(t, framebuf.ErrNoBufs, in.FeedData([]byte("high")))
	in.End()
	assert.False(t, buf.HasFrame(framebuf.PriorityHigh))
	assert.Equal(t, 4, buf.FreeSpace())

	in.BeginWithPriority(framebuf.PriorityHigh)
	require.NoError(t, in.FeedData([]byte("hi")))
	in.End()
	assert.Equal(t, 0, buf.FreeSpace())

	// and low priority frames stop at the high priority ones
	in.Begin()
	assert.Equal(t, framebuf.ErrNoBufs, in.FeedByte('x'))
	in.End()
	assert.Len(t, c.added, 2)

	assert.Equal(t, "hi", string(readAll(t, buf)))
	require.NoError(t, buf.Out().Remove())
	assert.Equal(t, "lowlowlo", string(readAll(t, buf)))
	require.NoError(t, buf.Out().Remove())
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 14, buf.FreeSpace())
}
