package framebuf

// InFrame is the write side of a FrameBuffer. It assembles one frame at a time.
//
//	writeStart      segHead          segTail
//	    |              |                |
//	----+--------------+----------------+-------
//	... | Segment 1    | Segment 2 ...  :
//	----+--------------+----------------+-------
//
// High priority frames are laid out the same way, walking the ring backward.
type InFrame struct {
	buf      *FrameBuffer
	dir      direction
	priority Priority
	segHead  int
	segTail  int
	pending  []Message
	lastTag  FrameTag
	// bumped for every frame opened, so positions die with their frame
	generation uint32
}

// WritePosition is a saved offset inside the open segment of the frame being
// written.
type WritePosition struct {
	position   int
	segHead    int
	generation uint32
	valid      bool
}

// Begin starts a new low priority frame, discarding any frame that was not
// ended.
func (w *InFrame) Begin() {
	w.BeginWithPriority(PriorityLow)
}

// BeginWithPriority starts a new frame of the given priority, discarding any
// frame that was not ended.
func (w *InFrame) BeginWithPriority(priority Priority) {
	w.discard()

	w.priority = priority.normalize()
	w.dir = direction(w.priority)
	w.generation++
	w.segHead = w.buf.writeStart[w.dir]
	w.segTail = w.segHead
}

// IsWriting reports whether a frame of the given priority is open.
func (w *InFrame) IsWriting(priority Priority) bool {
	return w.dir == direction(priority.normalize())
}

func (w *InFrame) FeedByte(b byte) error {
	w.open()
	if err := w.beginSegment(); err != nil {
		return err
	}
	return w.append(b)
}

// FeedData appends data to the frame. Empty data is a no-op.
func (w *InFrame) FeedData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	w.open()
	if err := w.beginSegment(); err != nil {
		return err
	}
	for _, b := range data {
		if err := w.append(b); err != nil {
			return err
		}
	}
	return nil
}

// FeedMessage attaches msg to the frame. The buffer owns msg once this returns
// nil: it is freed when its frame is removed or discarded.
func (w *InFrame) FeedMessage(msg Message) error {
	if msg == nil {
		return ErrInvalidArgs
	}
	w.open()
	if err := w.beginSegment(); err != nil {
		return err
	}
	w.pending = append(w.pending, msg)
	w.endSegment(headerMessageFlag)
	return nil
}

// End commits the frame. Nothing is committed if nothing was fed.
func (w *InFrame) End() {
	if w.dir == noDirection {
		return
	}

	buf := w.buf
	d := w.dir
	w.endSegment(headerNoFlag)
	if w.segHead == buf.writeStart[d] {
		w.discard()
		return
	}

	wasEmpty := buf.IsEmpty()
	tag := FrameTag(buf.writeStart[d])
	buf.writeStart[d] = w.segHead
	for _, msg := range w.pending {
		buf.queues[d].PushBack(msg)
	}
	w.pending = nil
	w.lastTag = tag
	w.dir = noDirection

	buf.notifier.frameAdded(tag, w.priority, wasEmpty)
}

// LastTag returns the tag of the last committed frame, or InvalidTag.
func (w *InFrame) LastTag() FrameTag {
	return w.lastTag
}

// Write implements io.Writer on top of FeedData.
func (w *InFrame) Write(p []byte) (int, error) {
	if err := w.FeedData(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteByte implements io.ByteWriter on top of FeedByte.
func (w *InFrame) WriteByte(c byte) error {
	return w.FeedByte(c)
}

// Position saves the current write offset. It opens a segment if needed.
func (w *InFrame) Position() (WritePosition, error) {
	w.open()
	if err := w.beginSegment(); err != nil {
		return WritePosition{}, err
	}
	return WritePosition{
		position:   w.segTail,
		segHead:    w.segHead,
		generation: w.generation,
		valid:      true,
	}, nil
}

// Overwrite replaces already written bytes starting at pos. It cannot write
// past the current end of the frame.
func (w *InFrame) Overwrite(pos WritePosition, data []byte) error {
	if !w.owns(pos) {
		return ErrInvalidArgs
	}
	r := &w.buf.ring
	segLen := r.distance(w.segHead, w.segTail, w.dir)
	offset := r.distance(w.segHead, pos.position, w.dir)
	if offset+len(data) > segLen {
		return ErrInvalidArgs
	}

	p := pos.position
	for _, b := range data {
		r.data[p] = b
		p = r.next(p, w.dir)
	}
	return nil
}

// Reset drops everything written after pos. Something must have been written
// after pos.
func (w *InFrame) Reset(pos WritePosition) error {
	if !w.owns(pos) || !w.before(pos) {
		return ErrInvalidArgs
	}
	w.segTail = pos.position
	return nil
}

// Distance returns the number of bytes written after pos, or 0 when pos is
// not valid for the current segment.
func (w *InFrame) Distance(pos WritePosition) int {
	if !w.owns(pos) || !w.before(pos) {
		return 0
	}
	return w.buf.ring.distance(pos.position, w.segTail, w.dir)
}

func (w *InFrame) owns(pos WritePosition) bool {
	return pos.valid &&
		pos.generation == w.generation &&
		w.dir != noDirection &&
		pos.segHead == w.segHead &&
		w.segHead != w.segTail
}

// before reports whether pos lies strictly inside the open segment.
func (w *InFrame) before(pos WritePosition) bool {
	r := &w.buf.ring
	return r.distance(w.segHead, pos.position, w.dir) < r.distance(w.segHead, w.segTail, w.dir)
}

// open starts a frame at the last used priority when feeding without Begin.
func (w *InFrame) open() {
	if w.dir == noDirection {
		w.BeginWithPriority(w.priority)
	}
}

func (w *InFrame) append(b byte) error {
	buf := w.buf
	r := &buf.ring
	tail := r.next(w.segTail, w.dir)
	if tail == buf.writeStart[w.dir.opposite()] {
		buf.logger.Debugf("no space for %s priority frame at %d (capacity %d)", w.priority, buf.writeStart[w.dir], r.capacity())
		w.discard()
		return ErrNoBufs
	}
	r.data[w.segTail] = b
	w.segTail = tail
	return nil
}

func (w *InFrame) beginSegment() error {
	if w.segHead != w.segTail {
		return nil
	}

	flags := headerNoFlag
	if w.buf.writeStart[w.dir] == w.segHead {
		flags |= headerNewFrameFlag
	}
	for i := 0; i < headerSize; i++ {
		if err := w.append(0); err != nil {
			return err
		}
	}
	w.buf.ring.writeHeader(w.segHead, flags, w.dir)
	return nil
}

func (w *InFrame) endSegment(flags uint16) {
	r := &w.buf.ring
	length := r.distance(w.segHead, w.segTail, w.dir)
	if length < headerSize {
		w.segTail = w.segHead
		return
	}

	header := r.readHeader(w.segHead, w.dir)
	header |= uint16(length-headerSize) & headerLengthMask
	header |= flags
	r.writeHeader(w.segHead, header, w.dir)
	w.segHead = w.segTail
}

// discard drops the open frame, if any, and frees its messages.
func (w *InFrame) discard() {
	if w.dir != noDirection {
		w.segHead = w.buf.writeStart[w.dir]
		w.segTail = w.segHead
		w.dir = noDirection
	}
	for i, msg := range w.pending {
		msg.Free()
		w.pending[i] = nil
	}
	w.pending = nil
	w.buf.updateStarts()
}
