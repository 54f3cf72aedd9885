// Package dll implements the data-link layer: byte-stuffed framing,
// fragmentation of network packets into frames, and stop-and-wait ARQ with
// 1-bit sequence numbers.
package dll

import (
	"errors"
	"fmt"

	"github.com/skycoin/skycoin/src/util/logging"
)

// Addr is a hardware (physical) address on the bus.
type Addr uint8

// String implements fmt.Stringer.
func (a Addr) String() string {
	return fmt.Sprintf("0x%02X", uint8(a))
}

const (
	// BroadcastAddr reaches every node. Broadcast frames are never acknowledged.
	BroadcastAddr = Addr(0xFF)

	// MaxPacketSize is the largest packet Send accepts.
	MaxPacketSize = 128

	// MaxFragmentSize is the largest data field a single frame carries.
	MaxFragmentSize = 23
)

var (
	// ErrPacketTooBig is returned when a packet exceeds MaxPacketSize, or a
	// broadcast packet does not fit in a single fragment.
	ErrPacketTooBig = errors.New("packet too big")

	// ErrNodeUnreachable is returned when a frame could not be put on the
	// medium or was never acknowledged.
	ErrNodeUnreachable = errors.New("node unreachable")

	// ErrAckTimeout is returned when all retransmissions of a frame went
	// unacknowledged. It matches ErrNodeUnreachable under errors.Is.
	ErrAckTimeout = fmt.Errorf("%w: acknowledgement timed out", ErrNodeUnreachable)

	// ErrBufferInUse is returned by Buffer while a previous reservation is pending.
	ErrBufferInUse = errors.New("transmit buffer in use")

	// ErrAddressMismatch marks frames addressed to another node.
	ErrAddressMismatch = errors.New("frame addressed to another node")

	// ErrBadChecksum marks frames that failed checksum verification.
	ErrBadChecksum = errors.New("frame checksum mismatch")
)

var log = logging.MustGetLogger("dll")

// Result is the outcome of a send, in the terms peers report it.
type Result int

const (
	// TransmissionSuccess means every fragment was delivered (or broadcast).
	TransmissionSuccess Result = iota
	// NodeUnreachable means a fragment was refused by the medium or never acknowledged.
	NodeUnreachable
	// PacketTooBig means the packet was rejected before transmission.
	PacketTooBig
)

func (r Result) String() string {
	switch r {
	case TransmissionSuccess:
		return "transmission-success"
	case NodeUnreachable:
		return "node-unreachable"
	case PacketTooBig:
		return "packet-too-big"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ResultOf maps an error returned by Send to a Result.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return TransmissionSuccess
	case errors.Is(err, ErrPacketTooBig):
		return PacketTooBig
	default:
		return NodeUnreachable
	}
}
