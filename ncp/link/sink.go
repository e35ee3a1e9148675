package link

import (
	"io"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/guabee/ncpbuf/hdlc"
	"github.com/guabee/ncpbuf/ncp/config"
	"github.com/guabee/ncpbuf/ncp/store"
	"github.com/pkg/errors"
)

var ErrUnknownSink = errors.New("unknown sink")

// WriterSink encodes every frame with HDLC-lite and writes it to w, the way
// frames go out on a serial port.
type WriterSink struct {
	w       io.Writer
	encoded []byte
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) SendFrame(frame []byte) error {
	s.encoded = hdlc.AppendFrame(s.encoded[:0], frame)
	_, err := s.w.Write(s.encoded)
	return err
}

func (s *WriterSink) Close() error {
	if closer, ok := s.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// WebSocketSink sends every frame as one binary websocket message.
type WebSocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	return &WebSocketSink{conn: conn, writeTimeout: writeTimeout}
}

func DialWebSocketSink(url string, writeTimeout time.Duration) (*WebSocketSink, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewWebSocketSink(conn, writeTimeout), nil
}

func (s *WebSocketSink) deadline() time.Time {
	if s.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.writeTimeout)
}

func (s *WebSocketSink) SendFrame(frame []byte) error {
	_ = s.conn.SetWriteDeadline(s.deadline())
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s *WebSocketSink) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, s.deadline())
	return s.conn.Close()
}

// StoreSink captures frames into a frame store.
type StoreSink struct {
	store store.IFrameStore
}

func NewStoreSink(s store.IFrameStore) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) SendFrame(frame []byte) error {
	_, err := s.store.Append(frame)
	return err
}

func (s *StoreSink) Close() error {
	return s.store.Close()
}

// NewSink builds the sink named by kind from its options.
//
//	writer:    path (default: stdout)
//	websocket: url, writeTimeout
//	store:     path (default: capture)
//	discard:   -
func NewSink(kind string, opts config.OptionMap) (Sink, error) {
	switch kind {
	case config.LinkWriter:
		path := opts.GetString("path")
		if path == "" {
			return NewWriterSink(os.Stdout), nil
		}
		fd, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		return NewWriterSink(fd), nil

	case config.LinkWebSocket:
		url := opts.GetString("url")
		if url == "" {
			return nil, errors.Wrap(ErrUnknownSink, "websocket sink needs url")
		}
		return DialWebSocketSink(url, opts.GetDuration("writeTimeout"))

	case config.LinkStore:
		path := opts.GetString("path")
		if path == "" {
			path = "capture"
		}
		s := store.NewLevelStore()
		if err := s.Open(path); err != nil {
			return nil, err
		}
		return NewStoreSink(s), nil

	case config.LinkDiscard:
		return NewWriterSink(io.Discard), nil
	}
	return nil, errors.Wrapf(ErrUnknownSink, "%q", kind)
}
