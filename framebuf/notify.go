package framebuf

// FrameTag identifies a queued frame. Tags are unique among the frames
// currently held by a buffer.
type FrameTag int

const InvalidTag FrameTag = -1

// FrameCallback is told the tag and priority of a frame added or removed.
type FrameCallback func(tag FrameTag, priority Priority)

type notifier struct {
	onEmpty        func()
	onNonEmpty     func()
	onFrameAdded   FrameCallback
	onFrameRemoved FrameCallback
}

func (n *notifier) frameAdded(tag FrameTag, priority Priority, wasEmpty bool) {
	if n.onFrameAdded != nil {
		n.onFrameAdded(tag, priority)
	}
	if wasEmpty && n.onNonEmpty != nil {
		n.onNonEmpty()
	}
}

func (n *notifier) frameRemoved(tag FrameTag, priority Priority, nowEmpty bool) {
	if n.onFrameRemoved != nil {
		n.onFrameRemoved(tag, priority)
	}
	if nowEmpty && n.onEmpty != nil {
		n.onEmpty()
	}
}
