package node

import (
	"net/rpc"
	"sync"
	"time"

	"github.com/skycoin/busnet/pkg/checksum"
	"github.com/skycoin/busnet/pkg/dll"
	"github.com/skycoin/busnet/pkg/network"
	"github.com/skycoin/busnet/pkg/routing"
)

// RPCClient represents a RPC Client implementation.
type RPCClient interface {
	Summary() (*Summary, error)
	Routes() ([]routing.Route, error)
	Nodes() ([]routing.NodeState, error)
	Announce() error
	Ping() error
	Send(dest routing.Addr, payload []byte) error
	Messages(drain bool) ([]Message, error)
}

// RPCClient provides methods to call an RPC Server.
// It implements RPCClient
type rpcClient struct {
	client *rpc.Client
	prefix string
}

// NewRPCClient creates a new RPCClient.
func NewRPCClient(rc *rpc.Client, prefix string) RPCClient {
	return &rpcClient{client: rc, prefix: prefix}
}

// Call calls the internal rpc.Client with the serviceMethod arg prefixed.
func (rc *rpcClient) Call(method string, args, reply interface{}) error {
	return rc.client.Call(rc.prefix+"."+method, args, reply)
}

// Summary calls Summary.
func (rc *rpcClient) Summary() (*Summary, error) {
	out := new(Summary)
	err := rc.Call("Summary", &struct{}{}, out)
	return out, err
}

// Routes calls Routes.
func (rc *rpcClient) Routes() ([]routing.Route, error) {
	routes := make([]routing.Route, 0)
	err := rc.Call("Routes", &struct{}{}, &routes)
	return routes, err
}

// Nodes calls Nodes.
func (rc *rpcClient) Nodes() ([]routing.NodeState, error) {
	nodes := make([]routing.NodeState, 0)
	err := rc.Call("Nodes", &struct{}{}, &nodes)
	return nodes, err
}

// Announce calls Announce.
func (rc *rpcClient) Announce() error {
	return rc.Call("Announce", &struct{}{}, &struct{}{})
}

// Ping calls Ping.
func (rc *rpcClient) Ping() error {
	return rc.Call("Ping", &struct{}{}, &struct{}{})
}

// Send calls Send.
func (rc *rpcClient) Send(dest routing.Addr, payload []byte) error {
	return rc.Call("Send", &SendIn{Dest: dest, Payload: payload}, &struct{}{})
}

// Messages calls Messages.
func (rc *rpcClient) Messages(drain bool) ([]Message, error) {
	msgs := make([]Message, 0)
	err := rc.Call("Messages", &MessagesIn{Clear: drain}, &msgs)
	return msgs, err
}

// mockRPCClient mocks RPCClient. Sent payloads are looped back as messages
// from the destination.
type mockRPCClient struct {
	mu       sync.RWMutex
	summary  Summary
	routes   []routing.Route
	nodes    []routing.NodeState
	messages []Message
}

// NewMockRPCClient creates a new mock RPCClient for a node with the given
// address whose neighbours are the given nodes.
func NewMockRPCClient(addr routing.Addr, neighbours ...routing.Addr) RPCClient {
	mc := &mockRPCClient{
		summary: Summary{
			Version:      Version,
			Address:      addr,
			Phys:         dll.Addr(0xA0 | uint8(addr)),
			ChecksumMode: checksum.EvenParity,
			Transport:    MemoryTransport,
			Online:       []routing.Addr{addr},
		},
	}
	for _, n := range neighbours {
		phys := dll.Addr(0xA0 | uint8(n))
		mc.summary.Online = append(mc.summary.Online, n)
		mc.summary.Neighbours = append(mc.summary.Neighbours, routing.Neighbour{Address: n, Phys: phys, TTL: 60})
		mc.routes = append(mc.routes, routing.Route{Dest: n, NextHop: phys})
		mc.nodes = append(mc.nodes, routing.NodeState{Address: n, Seq: 1, TTL: 60, Online: true, Linked: []routing.Addr{addr}})
	}
	mc.summary.RoutesCount = len(mc.routes)
	return mc
}

func (mc *mockRPCClient) Summary() (*Summary, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := mc.summary
	out.Pending = len(mc.messages)
	return &out, nil
}

func (mc *mockRPCClient) Routes() ([]routing.Route, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return append([]routing.Route(nil), mc.routes...), nil
}

func (mc *mockRPCClient) Nodes() ([]routing.NodeState, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return append([]routing.NodeState(nil), mc.nodes...), nil
}

func (*mockRPCClient) Announce() error { return nil }

func (*mockRPCClient) Ping() error { return nil }

func (mc *mockRPCClient) Send(dest routing.Addr, payload []byte) error {
	if !dest.Valid() {
		return ErrInvalidInput
	}
	if len(payload) > network.MaxPayloadSize {
		return network.ErrPayloadTooBig
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, r := range mc.routes {
		if r.Dest == dest {
			mc.messages = append(mc.messages, Message{Src: dest, Payload: payload, Received: time.Now()})
			return nil
		}
	}
	return network.ErrNoRoute
}

func (mc *mockRPCClient) Messages(drain bool) ([]Message, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := append([]Message(nil), mc.messages...)
	if drain {
		mc.messages = nil
	}
	return out, nil
}
