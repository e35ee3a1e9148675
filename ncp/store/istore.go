package store

// FrameLoadHandler is called for every captured frame in sequence order.
// Returning an error stops the load and is returned from Load.
type FrameLoadHandler func(seq uint64, frame []byte) error

type IFrameStore interface {
	Open(path string) error
	Append(frame []byte) (uint64, error)
	Load(from uint64, handler FrameLoadHandler) error
	Count() uint64
	Clear() error
	Close() error
}
