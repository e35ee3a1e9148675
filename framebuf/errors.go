package framebuf

import "github.com/pkg/errors"

var (
	// ErrNoBufs is returned when writing would overwrite unread frames. The
	// frame being written is discarded.
	ErrNoBufs = errors.New("no buffer space")
	// ErrNotFound is returned when there is no committed frame to read or remove.
	ErrNotFound = errors.New("no frame found")
	// ErrInvalidArgs is returned for a nil message, a stale write position or
	// an unsupported capacity.
	ErrInvalidArgs = errors.New("invalid arguments")
)

func assert(cond bool, msg string) {
	if !cond {
		panic("framebuf: " + msg)
	}
}
