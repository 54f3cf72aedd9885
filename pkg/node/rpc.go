package node

import (
	"context"
	"errors"
	"time"

	"github.com/skycoin/busnet/pkg/network"
	"github.com/skycoin/busnet/pkg/routing"
)

const (
	// RPCPrefix is the prefix used with all RPC calls.
	RPCPrefix = "busnet-node"

	rpcTimeout = 10 * time.Second
)

// ErrInvalidInput occurs when an input is invalid.
var ErrInvalidInput = errors.New("invalid input")

// RPC defines RPC methods for Node.
type RPC struct {
	node *Node
}

// SendIn is the input of RPC.Send.
type SendIn struct {
	Dest    routing.Addr
	Payload []byte
}

// MessagesIn is the input of RPC.Messages.
type MessagesIn struct {
	Clear bool
}

func (r *RPC) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rpcTimeout)
}

/*
	<<< NODE SUMMARY >>>
*/

// Summary provides a summary of the Node.
func (r *RPC) Summary(_ *struct{}, out *Summary) error {
	*out = *r.node.Summary()
	return nil
}

/*
	<<< ROUTING >>>
*/

// Routes lists the resolved next hops.
func (r *RPC) Routes(_ *struct{}, out *[]routing.Route) error {
	*out = r.node.Snapshot().Routes
	return nil
}

// Nodes lists the link state known for every remote node.
func (r *RPC) Nodes(_ *struct{}, out *[]routing.NodeState) error {
	*out = r.node.Snapshot().Nodes
	return nil
}

// Announce sends this node's link state to its neighbours.
func (r *RPC) Announce(_ *struct{}, _ *struct{}) error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.node.Announce(ctx)
}

// Ping broadcasts a ping request.
func (r *RPC) Ping(_ *struct{}, _ *struct{}) error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.node.Ping(ctx)
}

/*
	<<< MESSAGES >>>
*/

// Send sends a data packet.
func (r *RPC) Send(in *SendIn, _ *struct{}) error {
	if in == nil || !in.Dest.Valid() {
		return ErrInvalidInput
	}
	if len(in.Payload) > network.MaxPayloadSize {
		return network.ErrPayloadTooBig
	}
	ctx, cancel := r.ctx()
	defer cancel()
	return r.node.Send(ctx, in.Dest, in.Payload)
}

// Messages lists received messages.
func (r *RPC) Messages(in *MessagesIn, out *[]Message) error {
	drain := in != nil && in.Clear
	*out = r.node.Messages(drain)
	return nil
}
