package link

import (
	"io"

	"github.com/guabee/ncpbuf/framebuf"
	"github.com/guabee/ncpbuf/hdlc"
	"github.com/guabee/ncpbuf/ncp/log"
	"github.com/pkg/errors"
)

type ReceiverStats struct {
	Received uint64 `json:"received"`
	Rejected uint64 `json:"rejected"`
	Dropped  uint64 `json:"dropped"`
}

// Receiver decodes an HDLC-lite stream into the inbound frame buffer.
type Receiver struct {
	buf     *framebuf.FrameBuffer
	decoder *hdlc.Decoder
	stats   ReceiverStats
	logger  *log.Entry
}

func NewReceiver(buf *framebuf.FrameBuffer) *Receiver {
	r := &Receiver{
		buf:    buf,
		logger: log.NewLoggerEntry("link.receiver"),
	}
	r.decoder = hdlc.NewDecoder(buf.In(), r.handleFrame)
	return r
}

func (r *Receiver) handleFrame(err error) {
	switch {
	case err == nil:
		r.stats.Received++
		r.logger.Debugf("received frame %d", r.buf.In().LastTag())
	case errors.Is(err, framebuf.ErrNoBufs):
		r.stats.Dropped++
		r.logger.Warnf("inbound buffer full, frame dropped")
	default:
		r.stats.Rejected++
		r.logger.Debugf("rejected frame: %s", err)
	}
}

func (r *Receiver) Write(p []byte) (int, error) {
	return r.decoder.Write(p)
}

// ReadFrom decodes rd until EOF.
func (r *Receiver) ReadFrom(rd io.Reader) (int64, error) {
	return io.Copy(r.decoder, rd)
}

func (r *Receiver) Stats() ReceiverStats {
	return r.stats
}
