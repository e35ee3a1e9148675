// Package bootstrap wires the frame buffers, the link and the periodic
// producers of an ncp daemon together. Every frame buffer call runs on the
// server event loop.
package bootstrap

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guabee/ncpbuf/framebuf"
	conf "github.com/guabee/ncpbuf/ncp/config"
	"github.com/guabee/ncpbuf/ncp/link"
	"github.com/guabee/ncpbuf/ncp/log"
	"github.com/guabee/ncpbuf/ncp/message"
	"github.com/guabee/ncpbuf/ncp/util"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

var ErrServerStopped = errors.New("server stopped")

const (
	retryInterval = 500 * time.Millisecond
	eventQueueLen = 64
)

type Status struct {
	Id          string             `json:"id"`
	Name        string             `json:"name"`
	Capacity    int                `json:"capacity"`
	FreeSpace   int                `json:"freeSpace"`
	IsEmpty     bool               `json:"isEmpty"`
	LastTag     framebuf.FrameTag  `json:"lastTag"`
	InboundFree int                `json:"inboundFree"`
	PoolInUse   int                `json:"poolInUse"`
	Heartbeats  uint16             `json:"heartbeats"`
	Driver      link.DriverStats   `json:"driver"`
	Receiver    link.ReceiverStats `json:"receiver"`
	Consumed    uint64             `json:"consumed"`
	Overflows   uint64             `json:"overflows"`
	QueuedHigh  uint64             `json:"queuedHigh"`
	QueuedLow   uint64             `json:"queuedLow"`
	Restarts    uint64             `json:"restarts"`
	LastExit    string             `json:"lastExit,omitempty"`
}

type Server struct {
	id        string
	config    conf.Config
	outbound  *framebuf.FrameBuffer
	inbound   *framebuf.FrameBuffer
	pool      *message.Pool
	driver    *link.Driver
	receiver  *link.Receiver
	crontab   *cron.Cron
	events    chan func()
	stopChan  chan struct{}
	loopDone  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	startTime time.Time
	seq       uint16
	consumed  uint64
	overflows uint64
	queued    [2]uint64
	state     conf.StateReaderWriter
	baseline  conf.State
	logger    *log.Entry
}

// NewServer builds a server sending outbound frames to sink. The event loop
// does not run until Start.
func NewServer(config conf.Config, sink link.Sink) (*Server, error) {
	outbound, err := framebuf.New(make([]byte, config.BufferSize), framebuf.WithName(config.Name+".out"))
	if err != nil {
		return nil, errors.Wrap(err, "outbound buffer")
	}
	inbound, err := framebuf.New(make([]byte, config.BufferSize), framebuf.WithName(config.Name+".in"))
	if err != nil {
		return nil, errors.Wrap(err, "inbound buffer")
	}

	id := uuid.NewString()
	s := &Server{
		id:       id,
		config:   config,
		outbound: outbound,
		inbound:  inbound,
		pool:     message.NewPool(config.MessagePoolSize, config.MessageSize),
		driver:   link.NewDriver(outbound, sink),
		receiver: link.NewReceiver(inbound),
		crontab:  cron.New(cron.WithSeconds()),
		events:   make(chan func(), eventQueueLen),
		stopChan: make(chan struct{}),
		loopDone: make(chan struct{}),
		state:    conf.StateReaderWriter{FileName: config.StateFile},
		logger:   log.NewLoggerEntry("bootstrap").WithField("id", id),
	}
	s.baseline = s.state.Read()

	outbound.SetFrameAddedCallback(func(tag framebuf.FrameTag, priority framebuf.Priority) {
		s.queued[priority]++
	})
	outbound.SetFrameRemovedCallback(func(tag framebuf.FrameTag, priority framebuf.Priority) {
		s.logger.Tracef("outbound %s priority frame %d removed", priority, tag)
	})
	inbound.SetFrameAddedCallback(func(tag framebuf.FrameTag, _ framebuf.Priority) {
		s.logger.Tracef("inbound frame %d added", tag)
	})

	if config.HeartbeatSpec != "" {
		_, err := s.crontab.AddFunc(config.HeartbeatSpec, func() {
			s.post(s.sendHeartbeat)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "heartbeat spec %q", config.HeartbeatSpec)
		}
	}
	return s, nil
}

// StartServer builds the configured sink and starts a server on it.
func StartServer(config conf.Config) (*Server, error) {
	sink, err := link.NewSink(config.Link, config.SinkOptions(config.Link))
	if err != nil {
		return nil, err
	}
	s, err := NewServer(config, sink)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	s.Start()

	if config.InputFile != "" {
		if err := s.Replay(config.InputFile); err != nil {
			s.logger.Errorf("replay %s failed: %s", config.InputFile, err)
		}
	}
	return s, nil
}

func (s *Server) Start() {
	s.startTime = time.Now()
	util.GoWithWaitGroup(&s.wg, s.loop)
	s.crontab.Start()
	s.logger.Infof("%s started, buffer %d bytes, link %s", s.config.Name, s.outbound.Capacity(), s.config.Link)
}

// Stop stops the producers and the event loop, closes the link and saves the
// counters.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		ctx := s.crontab.Stop()
		<-ctx.Done()
		close(s.stopChan)
		s.wg.Wait()

		if err := s.driver.Close(); err != nil {
			s.logger.Errorf("close link failed: %s", err)
		}
		s.state.Write(s.totals())
		s.logger.Infoln("stopped")
	})
}

func (s *Server) post(f func()) bool {
	select {
	case s.events <- f:
		return true
	case <-s.stopChan:
		return false
	}
}

// Do runs f on the event loop and waits for it.
func (s *Server) Do(f func()) error {
	done := make(chan struct{})
	if !s.post(func() {
		f()
		close(done)
	}) {
		return ErrServerStopped
	}
	select {
	case <-done:
		return nil
	case <-s.loopDone:
		select {
		case <-done:
			return nil
		default:
			return ErrServerStopped
		}
	}
}

func (s *Server) loop() {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	defer close(s.loopDone)

	for {
		select {
		case f := <-s.events:
			f()
		case <-ticker.C:
		case <-s.stopChan:
			return
		}
		s.process()
	}
}

func (s *Server) process() {
	if s.driver.Active() {
		if _, err := s.driver.Process(0); err != nil {
			s.logger.Debugf("link: %s", err)
		}
	}
	s.consumeInbound()
}

func (s *Server) consumeInbound() {
	out := s.inbound.Out()
	var frame []byte
	for out.Begin() == nil {
		length := int(out.Length())
		if cap(frame) < length {
			frame = make([]byte, length)
		}
		frame = frame[:out.ReadFrame(frame[:length])]
		if hb, ok := parseHeartbeat(frame); ok {
			s.logger.Debugf("inbound heartbeat seq %d uptime %d", hb.Seq, hb.Uptime)
		} else {
			s.logger.Debugf("inbound frame %d len %d", out.Tag(), len(frame))
		}
		_ = out.Remove()
		s.consumed++
	}
}

func (s *Server) sendHeartbeat() {
	hb := heartbeat{
		Seq:       s.seq,
		Uptime:    uint32(time.Since(s.startTime) / time.Second),
		FreeSpace: uint16(s.outbound.FreeSpace()),
		Sent:      uint32(s.driver.Stats().Sent),
	}
	if err := writePropertyFrame(s.outbound.In(), framebuf.PriorityHigh, propHeartbeat, hb.write, nil); err != nil {
		s.overflows++
		s.logger.Warnf("heartbeat %d dropped: %s", hb.Seq, err)
		return
	}
	s.seq++
}

// SendStream queues a low priority stream property frame. Its value is the
// u16 length of data, which follows as a pooled message.
func (s *Server) SendStream(data []byte) error {
	msg, err := s.pool.New(data)
	if err != nil {
		return err
	}

	var sendErr error
	err = s.Do(func() {
		sendErr = s.writeStream(msg)
	})
	if err != nil {
		msg.Free()
		return err
	}
	return sendErr
}

// writeStream queues msg as a stream frame. msg is freed when it could not be
// queued.
func (s *Server) writeStream(msg *message.Message) error {
	length := msg.Len()
	err := writePropertyFrame(s.outbound.In(), framebuf.PriorityLow, propStream, func(in *framebuf.InFrame) error {
		return in.FeedData([]byte{byte(length >> 8), byte(length)})
	}, msg)
	if err != nil {
		s.overflows++
		msg.Free()
	}
	return err
}

// Replay decodes an HDLC capture file into the inbound buffer.
func (s *Server) Replay(path string) error {
	fd, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer fd.Close()

	chunk := make([]byte, 256)
	for {
		n, readErr := fd.Read(chunk)
		if n > 0 {
			data := append([]byte{}, chunk[:n]...)
			if err := s.Do(func() {
				_, _ = s.receiver.Write(data)
				s.consumeInbound()
			}); err != nil {
				return err
			}
		}
		if readErr != nil {
			break
		}
	}
	s.logger.Infof("replayed %s: %+v", path, s.receiver.Stats())
	return nil
}

// Status returns a snapshot taken on the event loop.
func (s *Server) Status() Status {
	var status Status
	_ = s.Do(func() {
		status = Status{
			Id:          s.id,
			Name:        s.config.Name,
			Capacity:    s.outbound.Capacity(),
			FreeSpace:   s.outbound.FreeSpace(),
			IsEmpty:     s.outbound.IsEmpty(),
			LastTag:     s.outbound.In().LastTag(),
			InboundFree: s.inbound.FreeSpace(),
			PoolInUse:   s.pool.InUse(),
			Heartbeats:  s.seq,
			Driver:      s.driver.Stats(),
			Receiver:    s.receiver.Stats(),
			Consumed:    s.consumed,
			Overflows:   s.overflows,
			QueuedHigh:  s.queued[framebuf.PriorityHigh],
			QueuedLow:   s.queued[framebuf.PriorityLow],
			Restarts:    s.baseline.Restarts,
			LastExit:    s.baseline.LastExit,
		}
	})
	return status
}

func (s *Server) totals() conf.State {
	sent := s.driver.Stats()
	recv := s.receiver.Stats()
	return conf.State{
		FramesSent:     s.baseline.FramesSent + sent.Sent,
		FramesFailed:   s.baseline.FramesFailed + sent.Failed,
		FramesReceived: s.baseline.FramesReceived + recv.Received,
		FramesRejected: s.baseline.FramesRejected + recv.Rejected + recv.Dropped,
		Restarts:       s.baseline.Restarts,
		LastExit:       s.baseline.LastExit,
	}
}
