package hdlc

import "github.com/pkg/errors"

var (
	ErrBadFCS  = errors.New("hdlc: bad frame check sequence")
	ErrAborted = errors.New("hdlc: frame aborted")
)

// FrameWriter receives decoded frame bytes. *framebuf.InFrame satisfies it.
type FrameWriter interface {
	Begin()
	FeedByte(b byte) error
	End()
}

// FrameHandler is called once per decoded frame. err is nil when the frame
// was committed to the writer.
type FrameHandler func(err error)

type decoderState int

const (
	stateNoSync decoderState = iota
	stateSync
	stateEscaped
)

// Decoder turns an HDLC-lite byte stream into frames written to a FrameWriter.
// The two FCS bytes are held back and never reach the writer.
type Decoder struct {
	writer  FrameWriter
	handler FrameHandler
	state   decoderState
	fcs     uint16
	count   int
	delay   [2]byte
	err     error
}

func NewDecoder(writer FrameWriter, handler FrameHandler) *Decoder {
	return &Decoder{
		writer:  writer,
		handler: handler,
		state:   stateNoSync,
	}
}

// Reset drops any partial frame and waits for the next flag.
func (d *Decoder) Reset() {
	d.state = stateNoSync
	d.count = 0
	d.err = nil
	d.writer.Begin()
}

func (d *Decoder) Decode(p []byte) {
	for _, b := range p {
		d.decodeByte(b)
	}
}

// Write implements io.Writer. Frame errors go to the handler, never to the caller.
func (d *Decoder) Write(p []byte) (int, error) {
	d.Decode(p)
	return len(p), nil
}

func (d *Decoder) decodeByte(b byte) {
	switch d.state {
	case stateNoSync:
		if b == FlagSequence {
			d.state = stateSync
			d.startFrame()
		}

	case stateSync:
		switch b {
		case EscapeSequence:
			d.state = stateEscaped
		case FlagSequence:
			d.finishFrame()
		default:
			d.feed(b)
		}

	case stateEscaped:
		d.state = stateSync
		if b == FlagSequence {
			d.notify(ErrAborted)
			d.startFrame()
			return
		}
		d.feed(b ^ escapeXor)
	}
}

func (d *Decoder) startFrame() {
	d.fcs = fcsInit
	d.count = 0
	d.err = nil
	d.writer.Begin()
}

func (d *Decoder) feed(b byte) {
	d.fcs = updateFcs(d.fcs, b)
	if d.count >= len(d.delay) && d.err == nil {
		d.err = d.writer.FeedByte(d.delay[0])
	}
	d.delay[0], d.delay[1] = d.delay[1], b
	d.count++
}

func (d *Decoder) finishFrame() {
	switch {
	case d.count == 0:
		// back to back flags
	case d.err != nil:
		d.notify(d.err)
	case d.count < len(d.delay) || d.fcs != fcsGood:
		d.notify(ErrBadFCS)
	case d.count == len(d.delay):
		// nothing but a valid FCS
	default:
		d.writer.End()
		d.notify(nil)
	}
	d.startFrame()
}

func (d *Decoder) notify(err error) {
	if d.handler != nil {
		d.handler(err)
	}
}
