package routing

import (
	"fmt"

	"github.com/skycoin/busnet/pkg/dll"
)

// Addr is a logical network address.
type Addr uint8

const (
	// MaxAddr is the highest logical address a node may hold.
	MaxAddr = Addr(15)

	// NumAddrs is the size of the logical address space.
	NumAddrs = int(MaxAddr) + 1
)

// Unresolved is the next hop reported for destinations with no known route.
const Unresolved = dll.BroadcastAddr

// Valid reports whether a is within the logical address space.
func (a Addr) Valid() bool {
	return a <= MaxAddr
}

func (a Addr) String() string {
	return fmt.Sprintf("%d", uint8(a))
}
