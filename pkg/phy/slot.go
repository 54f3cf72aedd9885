package phy

import "github.com/skycoin/busnet/internal/ioutil"

// Slot is a single-frame receive buffer shared by one producer (the receive
// engine) and one consumer (the poller). The ready flag hands ownership of
// the buffer back and forth: the producer only writes while it is clear and
// the consumer only reads while it is set.
type Slot struct {
	ready ioutil.AtomicBool
	n     int
	buf   [MaxFrameSize]byte
}

// Put copies frame into the slot. It returns false, leaving the slot
// untouched, if the previous frame has not been taken yet. Frames longer
// than MaxFrameSize are truncated.
func (s *Slot) Put(frame []byte) bool {
	if s.ready.Get() {
		return false
	}
	s.n = copy(s.buf[:], frame)
	s.ready.Set(true)
	return true
}

// Take copies the pending frame into buf and clears the slot.
// It returns 0 if the slot is empty.
func (s *Slot) Take(buf []byte) int {
	if !s.ready.Get() {
		return 0
	}
	n := copy(buf, s.buf[:s.n])
	s.ready.Set(false)
	return n
}

// Ready reports whether a frame is waiting.
func (s *Slot) Ready() bool {
	return s.ready.Get()
}
