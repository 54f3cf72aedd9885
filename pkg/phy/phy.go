// Package phy defines the physical transport contract of the bus and provides
// an in-memory shared medium for simulations and tests.
package phy

import "github.com/skycoin/skycoin/src/util/logging"

// MaxFrameSize is the largest frame, in bytes, the medium carries. It covers a
// fully stuffed link frame: a 30-byte interior that needs escaping everywhere
// plus both flag bytes.
const MaxFrameSize = 62

var log = logging.MustGetLogger("phy")

// Transport moves raw frames over the shared medium.
//
// TransmitFrame blocks until the whole frame has been put on the medium and
// reports whether it was accepted. ReceiveFrame never blocks: it copies a
// pending frame into buf and returns its length, or returns 0 when nothing is
// pending. Frames longer than buf are truncated.
type Transport interface {
	TransmitFrame(frame []byte) bool
	ReceiveFrame(buf []byte) int
}
