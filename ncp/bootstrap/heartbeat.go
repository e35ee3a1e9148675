package bootstrap

import (
	"encoding/binary"

	"github.com/guabee/ncpbuf/framebuf"
)

const (
	frameHeader     byte = 0x80
	cmdPropValueIs  byte = 0x06
	propHeartbeat   byte = 0x70
	propStream      byte = 0x71
	valueLengthSize      = 2
)

// writePropertyFrame writes a property frame. The u16 length in front of the
// value is filled in once the value has been written. payload, when not nil,
// is attached as a message after the value.
func writePropertyFrame(in *framebuf.InFrame, priority framebuf.Priority, prop byte, value func(in *framebuf.InFrame) error, payload framebuf.Message) error {
	in.BeginWithPriority(priority)
	if err := in.FeedData([]byte{frameHeader, cmdPropValueIs, prop}); err != nil {
		return err
	}

	pos, err := in.Position()
	if err != nil {
		return err
	}
	if err := in.FeedData(make([]byte, valueLengthSize)); err != nil {
		return err
	}
	if err := value(in); err != nil {
		in.Begin()
		return err
	}

	var length [valueLengthSize]byte
	binary.BigEndian.PutUint16(length[:], uint16(in.Distance(pos)-valueLengthSize))
	if err := in.Overwrite(pos, length[:]); err != nil {
		in.Begin()
		return err
	}

	if payload != nil {
		if err := in.FeedMessage(payload); err != nil {
			return err
		}
	}
	in.End()
	return nil
}

type heartbeat struct {
	Seq       uint16
	Uptime    uint32
	FreeSpace uint16
	Sent      uint32
}

func (h heartbeat) write(in *framebuf.InFrame) error {
	var b [12]byte
	binary.BigEndian.PutUint16(b[0:], h.Seq)
	binary.BigEndian.PutUint32(b[2:], h.Uptime)
	binary.BigEndian.PutUint16(b[6:], h.FreeSpace)
	binary.BigEndian.PutUint32(b[8:], h.Sent)
	return in.FeedData(b[:])
}

func parseHeartbeat(frame []byte) (heartbeat, bool) {
	const size = 3 + valueLengthSize + 12
	if len(frame) < size || frame[2] != propHeartbeat {
		return heartbeat{}, false
	}
	if binary.BigEndian.Uint16(frame[3:]) != 12 {
		return heartbeat{}, false
	}
	b := frame[5:]
	return heartbeat{
		Seq:       binary.BigEndian.Uint16(b[0:]),
		Uptime:    binary.BigEndian.Uint32(b[2:]),
		FreeSpace: binary.BigEndian.Uint16(b[6:]),
		Sent:      binary.BigEndian.Uint32(b[8:]),
	}, true
}
