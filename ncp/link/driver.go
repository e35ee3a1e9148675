// Package link moves frames between a frame buffer and the byte link to the
// host: a Driver drains outbound frames into a Sink, a Receiver decodes an
// HDLC-lite stream into an inbound buffer.
package link

import (
	"bytes"

	"github.com/guabee/ncpbuf/framebuf"
	"github.com/guabee/ncpbuf/ncp/log"
	"github.com/pkg/errors"
)

const logDataLimit = 32

// Sink delivers one frame at a time. frame is only valid during the call.
type Sink interface {
	SendFrame(frame []byte) error
	Close() error
}

type DriverStats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
	Bytes  uint64 `json:"bytes"`
}

// Driver sends the frames of a buffer to a sink. It tracks occupancy through
// the buffer callbacks, so Process is a no-op while the buffer is empty.
type Driver struct {
	buf    *framebuf.FrameBuffer
	sink   Sink
	active bool
	frame  bytes.Buffer
	stats  DriverStats
	logger *log.Entry
}

func NewDriver(buf *framebuf.FrameBuffer, sink Sink) *Driver {
	d := &Driver{
		buf:    buf,
		sink:   sink,
		active: !buf.IsEmpty(),
		logger: log.NewLoggerEntry("link.driver"),
	}
	buf.SetCallbacks(d.onEmpty, d.onNonEmpty)
	return d
}

func (d *Driver) onEmpty() {
	d.logger.Traceln("buffer empty")
	d.active = false
}

func (d *Driver) onNonEmpty() {
	d.logger.Traceln("buffer non-empty")
	d.active = true
}

// Active reports whether frames are waiting to be sent.
func (d *Driver) Active() bool {
	return d.active
}

func (d *Driver) Stats() DriverStats {
	return d.stats
}

// Process sends up to max frames, all of them when max <= 0. A frame the
// sink rejects stays at the front of the buffer and is retried next time.
func (d *Driver) Process(max int) (int, error) {
	sent := 0
	out := d.buf.Out()
	for d.active && (max <= 0 || sent < max) {
		if err := out.Begin(); err != nil {
			break
		}

		tag := out.Tag()
		d.frame.Reset()
		if _, err := d.frame.ReadFrom(out); err != nil {
			return sent, errors.Wrapf(err, "read frame %d", tag)
		}

		data := d.frame.Bytes()
		if err := d.sink.SendFrame(data); err != nil {
			d.stats.Failed++
			d.logger.Errorf("send frame %d (%d bytes) failed: %s", tag, len(data), err)
			return sent, errors.Wrapf(err, "send frame %d", tag)
		}
		d.logger.Debugf("sent frame %d len %d data %x", tag, len(data), truncate(data, logDataLimit))

		if err := out.Remove(); err != nil {
			return sent, errors.Wrapf(err, "remove frame %d", tag)
		}
		d.stats.Sent++
		d.stats.Bytes += uint64(len(data))
		sent++
	}
	return sent, nil
}

// Close closes the sink. Frames still in the buffer are left there.
func (d *Driver) Close() error {
	return d.sink.Close()
}

func truncate(data []byte, limit int) []byte {
	if len(data) > limit {
		return data[:limit]
	}
	return data
}
