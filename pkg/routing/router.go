// Package routing keeps the link-state topology database of the network and
// derives a next-hop table from it.
package routing

import (
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/busnet/pkg/clock"
	"github.com/skycoin/busnet/pkg/dll"
)

var log = logging.MustGetLogger("routing")

// Defaults applied to zero Config fields.
const (
	DefaultLinkStateTTL     = 60 * time.Second
	DefaultNeighbourTTL     = 60 * time.Second
	DefaultAnnounceInterval = 10 * time.Second
)

// seqWindow is the largest forward distance accepted between two link-state
// sequence numbers.
const seqWindow = 128

const hopInfinity = 255

// Config configures a Router.
type Config struct {
	Address          Addr
	Clock            clock.Clock
	LinkStateTTL     time.Duration
	NeighbourTTL     time.Duration
	AnnounceInterval time.Duration
	Table            Table
	Logger           *logging.Logger
}

type linkState struct {
	seq       uint8
	ttl       int
	connected uint16
}

type neighbourLink struct {
	phys dll.Addr
	ttl  int
}

// Router tracks the link state of every node and the liveness of direct
// neighbours. It is not safe for concurrent use.
type Router struct {
	addr  Addr
	clock clock.Clock
	table Table
	log   *logging.Logger

	linkStateTTL int
	neighbourTTL int
	announceSecs int

	states     [NumAddrs]linkState
	neighbours [NumAddrs]neighbourLink

	changed  bool
	lastTick clock.Time
	counter  int
	ownSeq   uint8
}

// New creates a Router. A nil Table defaults to InMemoryTable and a nil Clock
// to a monotonic clock.
func New(conf Config) *Router {
	if conf.Clock == nil {
		conf.Clock = clock.NewMonotonic()
	}
	if conf.Table == nil {
		conf.Table = InMemoryTable()
	}
	if conf.Logger == nil {
		conf.Logger = log
	}

	r := &Router{
		addr:         conf.Address,
		clock:        conf.Clock,
		table:        conf.Table,
		log:          conf.Logger,
		linkStateTTL: seconds(conf.LinkStateTTL, DefaultLinkStateTTL),
		neighbourTTL: seconds(conf.NeighbourTTL, DefaultNeighbourTTL),
		announceSecs: seconds(conf.AnnounceInterval, DefaultAnnounceInterval),
	}
	r.lastTick = r.clock.Now()
	return r
}

func seconds(d, def time.Duration) int {
	if d <= 0 {
		d = def
	}
	if s := int(d / time.Second); s > 0 {
		return s
	}
	return 1
}

// Address returns the router's own logical address.
func (r *Router) Address() Addr {
	return r.addr
}

// Table returns the next-hop table the router writes to.
func (r *Router) Table() Table {
	return r.table
}

// Update ages link-state and neighbour records by the whole seconds elapsed
// since the previous call. Every announce interval it recomputes routes if the
// topology changed and returns true, signalling that the caller should ping
// its neighbours and advertise its own link state.
func (r *Router) Update() bool {
	elapsed := int(clock.DeltaSeconds(r.lastTick, r.clock.Now()))
	if elapsed <= 0 {
		return false
	}
	r.lastTick = clock.AddSeconds(r.lastTick, int32(elapsed))

	for a := range r.states {
		if Addr(a) == r.addr {
			continue
		}
		st := &r.states[a]
		if st.ttl > elapsed {
			st.ttl -= elapsed
		} else if st.ttl > 0 {
			*st = linkState{}
			r.changed = true
			r.log.Debugf("Link state of node %d expired", a)
		}
	}

	for a := range r.neighbours {
		nb := &r.neighbours[a]
		if nb.ttl > elapsed {
			nb.ttl -= elapsed
		} else if nb.ttl > 0 {
			nb.ttl = 0
			r.states[r.addr].connected &^= 1 << uint(a)
			r.changed = true
			r.log.Debugf("Neighbour %d (%s) expired", a, nb.phys)
		}
	}

	r.counter += elapsed
	if r.counter < r.announceSecs {
		return false
	}
	r.counter -= r.announceSecs

	if r.changed {
		r.Recalculate()
	}
	return true
}

// NotifyLinkState records a link-state advertisement from src. It returns
// false when the advertisement is rejected: src is out of range or our own
// address, or seq is not ahead of the stored sequence number.
func (r *Router) NotifyLinkState(src Addr, seq uint8, nodes []Addr) bool {
	if !src.Valid() || src == r.addr {
		return false
	}

	st := &r.states[src]
	if st.ttl != 0 && !seqAhead(st.seq, seq) {
		return false
	}

	st.ttl = r.linkStateTTL
	st.seq = seq

	var connected uint16
	for _, n := range nodes {
		if n.Valid() {
			connected |= 1 << uint(n)
		}
	}
	if connected != st.connected {
		st.connected = connected
		r.changed = true
	}
	return true
}

// seqAhead reports whether next is ahead of prev by a forward distance in
// [1, seqWindow], modulo 256.
func seqAhead(prev, next uint8) bool {
	diff := next - prev
	return diff != 0 && diff <= seqWindow
}

// NotifyPingResponse records that the node with logical address logical
// answered a ping from hardware address phys.
func (r *Router) NotifyPingResponse(phys dll.Addr, logical Addr) {
	if !logical.Valid() {
		return
	}

	nb := &r.neighbours[logical]
	if nb.ttl == 0 || nb.phys != phys {
		r.log.Debugf("Neighbour %d is at %s", logical, phys)
	}
	nb.ttl = r.neighbourTTL
	nb.phys = phys

	own := &r.states[r.addr]
	connected := own.connected | 1<<uint(logical)
	if connected != own.connected {
		own.connected = connected
		r.changed = true
	}
}

// AreNodesLinked reports whether a advertises a link to b. Expired records
// link nothing, except our own which never expires.
func (r *Router) AreNodesLinked(a, b Addr) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	st := r.states[a]
	if st.ttl == 0 && a != r.addr {
		return false
	}
	return st.connected&(1<<uint(b)) != 0
}

// IsDeviceOnline reports whether a live link-state record exists for a. Our
// own address is always online.
func (r *Router) IsDeviceOnline(a Addr) bool {
	if !a.Valid() {
		return false
	}
	if a == r.addr {
		return true
	}
	return r.states[a].ttl > 0
}

// IsNeighbour reports whether phys belongs to a live neighbour.
func (r *Router) IsNeighbour(phys dll.Addr) bool {
	for _, nb := range r.neighbours {
		if nb.ttl > 0 && nb.phys == phys {
			return true
		}
	}
	return false
}

// Neighbours returns the hardware addresses of all live neighbours, ordered
// by logical address.
func (r *Router) Neighbours() []dll.Addr {
	var out []dll.Addr
	for _, nb := range r.neighbours {
		if nb.ttl > 0 {
			out = append(out, nb.phys)
		}
	}
	return out
}

// LinkedNodes returns every address a advertises a link to.
func (r *Router) LinkedNodes(a Addr) []Addr {
	var out []Addr
	for b := Addr(0); b <= MaxAddr; b++ {
		if r.AreNodesLinked(a, b) {
			out = append(out, b)
		}
	}
	return out
}

// NextSeq returns the sequence number for our next link-state advertisement.
func (r *Router) NextSeq() uint8 {
	r.ownSeq++
	return r.ownSeq
}

// NextHop returns the hardware address to forward packets for dest to, or
// Unresolved.
func (r *Router) NextHop(dest Addr) dll.Addr {
	if !dest.Valid() {
		return Unresolved
	}
	hop, err := r.table.NextHop(dest)
	if err != nil {
		r.log.WithError(err).Warnf("Failed to read next hop for %d", dest)
		return Unresolved
	}
	return hop
}

type route struct {
	hops     uint8
	prev     Addr
	explored bool
}

// Recalculate runs a shortest-path search over the topology and rewrites the
// next-hop table.
func (r *Router) Recalculate() {
	var routes [NumAddrs]route
	for i := range routes {
		routes[i].hops = hopInfinity
	}
	routes[r.addr].hops = 0

	current := r.addr
	currentHops := 0
	for {
		routes[current].explored = true
		for n := Addr(0); n <= MaxAddr; n++ {
			if r.AreNodesLinked(current, n) && currentHops+1 < int(routes[n].hops) {
				routes[n].hops = uint8(currentHops + 1)
				routes[n].prev = current
			}
		}

		currentHops = hopInfinity
		for n := Addr(0); n <= MaxAddr; n++ {
			if !routes[n].explored && int(routes[n].hops) < currentHops {
				currentHops = int(routes[n].hops)
				current = n
			}
		}
		if currentHops == hopInfinity {
			break
		}
	}

	for dest := Addr(0); dest <= MaxAddr; dest++ {
		hop := Unresolved
		if dest != r.addr && routes[dest].explored {
			first := dest
			for routes[first].prev != r.addr {
				first = routes[first].prev
			}
			hop = r.neighbours[first].phys
		}
		if err := r.table.SetNextHop(dest, hop); err != nil {
			r.log.WithError(err).Warnf("Failed to store next hop for %d", dest)
		}
	}

	r.changed = false
	r.log.Debugf("Recalculated routes: %d reachable", r.table.Count())
}

// NodeState is the view of a single link-state record.
type NodeState struct {
	Address Addr   `json:"address"`
	Seq     uint8  `json:"seq"`
	TTL     int    `json:"ttl"`
	Online  bool   `json:"online"`
	Linked  []Addr `json:"linked"`
}

// Neighbour is the view of a single neighbour link.
type Neighbour struct {
	Address Addr     `json:"address"`
	Phys    dll.Addr `json:"phys"`
	TTL     int      `json:"ttl"`
}

// Route is a single next-hop table entry.
type Route struct {
	Dest    Addr     `json:"dest"`
	NextHop dll.Addr `json:"next_hop"`
}

// Snapshot is a point-in-time view of the router state.
type Snapshot struct {
	Address    Addr        `json:"address"`
	Changed    bool        `json:"changed"`
	Nodes      []NodeState `json:"nodes"`
	Neighbours []Neighbour `json:"neighbours"`
	Routes     []Route     `json:"routes"`
}

// Snapshot returns the current state of the router.
func (r *Router) Snapshot() Snapshot {
	s := Snapshot{
		Address:    r.addr,
		Changed:    r.changed,
		Nodes:      []NodeState{},
		Neighbours: []Neighbour{},
		Routes:     []Route{},
	}

	for a := Addr(0); a <= MaxAddr; a++ {
		if !r.IsDeviceOnline(a) {
			continue
		}
		s.Nodes = append(s.Nodes, NodeState{
			Address: a,
			Seq:     r.states[a].seq,
			TTL:     r.states[a].ttl,
			Online:  true,
			Linked:  r.LinkedNodes(a),
		})
	}

	for a, nb := range r.neighbours {
		if nb.ttl > 0 {
			s.Neighbours = append(s.Neighbours, Neighbour{Address: Addr(a), Phys: nb.phys, TTL: nb.ttl})
		}
	}

	err := r.table.Range(func(dest Addr, hop dll.Addr) bool {
		s.Routes = append(s.Routes, Route{Dest: dest, NextHop: hop})
		return true
	})
	if err != nil {
		r.log.WithError(err).Warn("Failed to read routing table")
	}
	return s
}
