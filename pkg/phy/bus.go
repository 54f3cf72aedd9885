package phy

import (
	"sync"

	"github.com/skycoin/skycoin/src/util/logging"
)

// DefaultQueueLen is the number of frames a port buffers ahead of its slot.
const DefaultQueueLen = 16

// Filter decides whether a frame transmitted by port from reaches port to.
// Returning false drops the frame for that receiver only.
type Filter func(from, to int, frame []byte) bool

// Bus is an in-memory broadcast medium. Every frame transmitted by one
// attached port is offered to all the others, the way a general-call write
// on an I2C bus reaches every listener.
type Bus struct {
	mu       sync.RWMutex
	ports    map[int]*Port
	nextID   int
	filter   Filter
	queueLen int
	log      *logging.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = log
	}
	return &Bus{
		ports:    make(map[int]*Port),
		queueLen: DefaultQueueLen,
		log:      logger,
	}
}

// Attach connects a new port to the bus and starts its receive engine.
func (b *Bus) Attach() *Port {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := &Port{
		Inbox: NewInbox(b.queueLen),
		bus:   b,
		id:    b.nextID,
	}
	b.nextID++
	b.ports[p.id] = p
	return p
}

// SetFilter installs f for all subsequent transmissions. A nil filter delivers everything.
func (b *Bus) SetFilter(f Filter) {
	b.mu.Lock()
	b.filter = f
	b.mu.Unlock()
}

// Close detaches and stops every port.
func (b *Bus) Close() error {
	b.mu.Lock()
	ports := b.ports
	b.ports = make(map[int]*Port)
	b.mu.Unlock()

	for _, p := range ports {
		p.Inbox.Close()
	}
	return nil
}

func (b *Bus) detach(p *Port) {
	b.mu.Lock()
	delete(b.ports, p.id)
	b.mu.Unlock()
}

func (b *Bus) transmit(from *Port, frame []byte) bool {
	if len(frame) == 0 || len(frame) > MaxFrameSize {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.ports[from.id]; !ok {
		return false
	}

	for id, p := range b.ports {
		if id == from.id {
			continue
		}
		if b.filter != nil && !b.filter(from.id, id, frame) {
			continue
		}
		if !p.Offer(frame) {
			b.log.Debugf("port %d: receive queue full, dropping %d-byte frame", id, len(frame))
		}
	}
	return true
}

// Port is one node's attachment to a Bus. It implements Transport.
type Port struct {
	*Inbox
	bus *Bus
	id  int
}

// ID returns the port's identifier on its bus.
func (p *Port) ID() int {
	return p.id
}

// TransmitFrame implements Transport.
func (p *Port) TransmitFrame(frame []byte) bool {
	return p.bus.transmit(p, frame)
}

// Close detaches the port from its bus.
func (p *Port) Close() error {
	p.bus.detach(p)
	p.Inbox.Close()
	return nil
}
