package hdlc_test

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/guabee/ncpbuf/framebuf"
	"github.com/guabee/ncpbuf/hdlc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameRecorder struct {
	current []byte
	frames  [][]byte
	errs    []error
	limit   int
}

func (r *frameRecorder) Begin() {
	r.current = nil
}

func (r *frameRecorder) FeedByte(b byte) error {
	if r.limit > 0 && len(r.current) >= r.limit {
		return framebuf.ErrNoBufs
	}
	r.current = append(r.current, b)
	return nil
}

func (r *frameRecorder) End() {
	r.frames = append(r.frames, append([]byte{}, r.current...))
	r.current = nil
}

func (r *frameRecorder) handle(err error) {
	r.errs = append(r.errs, err)
}

func TestFcs(t *testing.T) {
	assert.Equal(t, uint16(0x906e), hdlc.Fcs([]byte("123456789")))
	assert.Equal(t, uint16(0x0000), hdlc.Fcs(nil))
}

func TestEncodeEscapes(t *testing.T) {
	frame := []byte{0x01, 0x7e, 0x7d, 0x11, 0x13, 0xf8, 0x02}
	encoded := hdlc.AppendFrame(nil, frame)

	assert.Equal(t, hdlc.FlagSequence, encoded[0])
	assert.Equal(t, hdlc.FlagSequence, encoded[len(encoded)-1])
	assert.Equal(t, []byte{0x01, 0x7d, 0x5e, 0x7d, 0x5d, 0x7d, 0x31, 0x7d, 0x33, 0x7d, 0xd8, 0x02}, encoded[1:13])
	assert.NotContains(t, string(encoded[1:len(encoded)-1]), string([]byte{hdlc.FlagSequence}))

	enc := hdlc.NewEncoder()
	enc.BeginFrame()
	_, err := enc.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, encoded, enc.EndFrame())
}

func TestDecode(t *testing.T) {
	rec := &frameRecorder{}
	dec := hdlc.NewDecoder(rec, rec.handle)

	var stream []byte
	stream = append(stream, 0x55, 0xaa) // noise before sync
	stream = hdlc.AppendFrame(stream, []byte("first"))
	stream = hdlc.AppendFrame(stream, nil)
	stream = hdlc.AppendFrame(stream, []byte{0x7e, 0x7d})
	stream = append(stream, hdlc.FlagSequence, hdlc.FlagSequence)
	dec.Decode(stream)

	// an empty frame is skipped without a report
	require.Len(t, rec.frames, 2)
	assert.Equal(t, "first", string(rec.frames[0]))
	assert.Equal(t, []byte{0x7e, 0x7d}, rec.frames[1])
	assert.Equal(t, []error{nil, nil}, rec.errs)
}

func TestDecodeBadFrames(t *testing.T) {
	rec := &frameRecorder{}
	dec := hdlc.NewDecoder(rec, rec.handle)

	bad := hdlc.AppendFrame(nil, []byte("payload"))
	bad[2] ^= 0x01
	dec.Decode(bad)
	dec.Decode([]byte{hdlc.FlagSequence, 0xaa, hdlc.FlagSequence})
	dec.Decode([]byte{0x01, 0x02, hdlc.EscapeSequence, hdlc.FlagSequence})

	assert.Empty(t, rec.frames)
	require.Len(t, rec.errs, 3)
	assert.Equal(t, hdlc.ErrBadFCS, rec.errs[0])
	assert.Equal(t, hdlc.ErrBadFCS, rec.errs[1])
	assert.Equal(t, hdlc.ErrAborted, rec.errs[2])

	// still in sync after the abort
	dec.Decode(hdlc.AppendFrame(nil, []byte("ok"))[1:])
	require.Len(t, rec.frames, 1)
	assert.Equal(t, "ok", string(rec.frames[0]))
}

func TestDecodeWriterFull(t *testing.T) {
	rec := &frameRecorder{limit: 4}
	dec := hdlc.NewDecoder(rec, rec.handle)

	dec.Decode(hdlc.AppendFrame(nil, []byte("too long")))
	dec.Decode(hdlc.AppendFrame(nil, []byte("fit")))

	require.Len(t, rec.errs, 2)
	assert.True(t, errors.Is(rec.errs[0], framebuf.ErrNoBufs))
	assert.NoError(t, rec.errs[1])
	require.Len(t, rec.frames, 1)
	assert.Equal(t, "fit", string(rec.frames[0]))
}

func TestDecodeIntoFrameBuffer(t *testing.T) {
	buf, err := framebuf.New(make([]byte, 256))
	require.NoError(t, err)

	var errs []error
	dec := hdlc.NewDecoder(buf.In(), func(err error) { errs = append(errs, err) })

	r := rand.New(rand.NewSource(7))
	var frames [][]byte
	var stream bytes.Buffer
	for i := 0; i < 8; i++ {
		frame := make([]byte, 1+r.Intn(20))
		r.Read(frame)
		frames = append(frames, frame)
		stream.Write(hdlc.AppendFrame(nil, frame))
		stream.Write(hdlc.AppendFrame(nil, nil))
	}
	_, err = io.Copy(dec, &stream)
	require.NoError(t, err)
	assert.Len(t, errs, len(frames))

	out := buf.Out()
	for _, frame := range frames {
		require.NoError(t, out.Begin())
		assert.Equal(t, uint16(len(frame)), out.Length())
		got, err := io.ReadAll(out)
		require.NoError(t, err)
		assert.Equal(t, frame, got)
		require.NoError(t, out.Remove())
	}
	assert.True(t, buf.IsEmpty())
}
