package phy

import "sync"

// Inbox queues frames arriving from a medium and feeds them into a Slot one
// at a time, the way a receive interrupt fills a hardware buffer. It
// implements the receive half of Transport.
type Inbox struct {
	slot Slot

	in      chan []byte
	drained chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewInbox starts an Inbox buffering up to queueLen frames ahead of its slot.
func NewInbox(queueLen int) *Inbox {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	ib := &Inbox{
		in:      make(chan []byte, queueLen),
		drained: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go ib.engine()
	return ib
}

// Offer queues a copy of frame. It returns false if the queue is full or the
// inbox is closed.
func (ib *Inbox) Offer(frame []byte) bool {
	select {
	case <-ib.done:
		return false
	default:
	}

	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case ib.in <- cp:
		return true
	default:
		return false
	}
}

// ReceiveFrame implements Transport.
func (ib *Inbox) ReceiveFrame(buf []byte) int {
	n := ib.slot.Take(buf)
	if n > 0 {
		select {
		case ib.drained <- struct{}{}:
		default:
		}
	}
	return n
}

// Close stops the engine. Frames still queued are discarded.
func (ib *Inbox) Close() {
	ib.once.Do(func() { close(ib.done) })
}

// Done is closed once the inbox is closed.
func (ib *Inbox) Done() <-chan struct{} {
	return ib.done
}

func (ib *Inbox) engine() {
	for {
		select {
		case frame := <-ib.in:
			for !ib.slot.Put(frame) {
				select {
				case <-ib.drained:
				case <-ib.done:
					return
				}
			}
		case <-ib.done:
			return
		}
	}
}
