// Package network implements the network layer: logical addressing,
// checksummed packets, link-state flooding, neighbour discovery and
// hop-by-hop forwarding over the data-link layer.
package network

import (
	"context"
	"errors"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/busnet/internal/metrics"
	"github.com/skycoin/busnet/pkg/checksum"
	"github.com/skycoin/busnet/pkg/dll"
	"github.com/skycoin/busnet/pkg/routing"
)

var log = logging.MustGetLogger("network")

// DefaultChecksumMode is the checksum mode written on outgoing packets.
const DefaultChecksumMode = checksum.EvenParity

var (
	// ErrBufferOccupied is returned when the data buffer is already reserved.
	ErrBufferOccupied = errors.New("data buffer occupied")

	// ErrBufferNotReserved is returned by SendDataBuffer without a prior CreateDataBuffer.
	ErrBufferNotReserved = errors.New("data buffer not reserved")

	// ErrInvalidAddress is returned for destinations outside the logical address space.
	ErrInvalidAddress = errors.New("invalid network address")

	// ErrNoRoute is returned when no next hop is known for a destination.
	ErrNoRoute = errors.New("no route to destination")
)

// Link is the data-link service the layer sends and receives packets through.
type Link interface {
	SendPacket(ctx context.Context, dest dll.Addr, pkt []byte) error
	SetReceiver(r dll.Receiver)
}

// Receiver is handed the payload of every data packet addressed to this
// node. The payload is only valid for the duration of the call.
type Receiver interface {
	ReceiveData(ctx context.Context, src routing.Addr, payload []byte)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, src routing.Addr, payload []byte)

// ReceiveData implements Receiver.
func (f ReceiverFunc) ReceiveData(ctx context.Context, src routing.Addr, payload []byte) {
	f(ctx, src, payload)
}

// Config configures a Layer.
type Config struct {
	Address      routing.Addr
	ChecksumMode checksum.Mode
	Logger       *logging.Logger
	Metrics      metrics.Stack
}

// Layer is one node's network endpoint. It is not safe for concurrent use.
type Layer struct {
	conf    Config
	link    Link
	router  *routing.Router
	log     *logging.Logger
	metrics metrics.Stack
	recv    Receiver

	data        [MaxPacketSize]byte
	reserved    bool
	reservedLen int

	tx [MaxPacketSize]byte
}

// New creates a Layer over link and registers it as the link's receiver. A
// nil router is replaced by one with default settings.
func New(link Link, router *routing.Router, conf Config) (*Layer, error) {
	if !conf.Address.Valid() {
		return nil, ErrInvalidAddress
	}
	if router == nil {
		router = routing.New(routing.Config{Address: conf.Address, Logger: conf.Logger})
	}
	if router.Address() != conf.Address {
		return nil, errors.New("router address does not match layer address")
	}
	if !conf.ChecksumMode.Valid() {
		return nil, checksum.ErrUnknownMode
	}
	if conf.Logger == nil {
		conf.Logger = log
	}
	if conf.Metrics == nil {
		conf.Metrics = metrics.NewDummyStack()
	}

	l := &Layer{
		conf:    conf,
		link:    link,
		router:  router,
		log:     conf.Logger,
		metrics: conf.Metrics,
	}
	link.SetReceiver(l)
	return l, nil
}

// OwnAddress returns this node's logical address.
func (l *Layer) OwnAddress() routing.Addr {
	return l.conf.Address
}

// Router returns the routing engine backing the layer.
func (l *Layer) Router() *routing.Router {
	return l.router
}

// SetReceiver sets where data addressed to this node is delivered. A nil
// Receiver discards it.
func (l *Layer) SetReceiver(r Receiver) {
	l.recv = r
}

// IsDeviceOnline reports whether addr is currently known to be reachable.
func (l *Layer) IsDeviceOnline(addr routing.Addr) bool {
	return l.router.IsDeviceOnline(addr)
}

// DataBuffer returns the buffer SendDataPacket reads its payload from.
func (l *Layer) DataBuffer() []byte {
	return l.data[offPayload : offPayload+MaxPayloadSize]
}

// SendDataPacket sends the first length bytes of the data buffer to dest.
func (l *Layer) SendDataPacket(ctx context.Context, dest routing.Addr, length int) error {
	if length < 0 || length > MaxPayloadSize {
		return l.dropSend("too-big", ErrPayloadTooBig, dest)
	}
	if !dest.Valid() {
		return l.dropSend("address", ErrInvalidAddress, dest)
	}
	hop := l.router.NextHop(dest)
	if hop == routing.Unresolved {
		return l.dropSend("no-route", ErrNoRoute, dest)
	}

	n := encodeDataHeader(l.data[:], l.conf.ChecksumMode, l.conf.Address, dest, length)
	return l.send(ctx, DataPacket, hop, l.data[:n])
}

// CreateDataBuffer reserves the data buffer for a payload of n bytes.
func (l *Layer) CreateDataBuffer(n int) ([]byte, error) {
	if n < 0 || n > MaxPayloadSize {
		return nil, ErrPayloadTooBig
	}
	if l.reserved {
		return nil, ErrBufferOccupied
	}
	l.reserved = true
	l.reservedLen = n
	return l.DataBuffer()[:n], nil
}

// SendDataBuffer sends the reserved data buffer to dest and releases it.
func (l *Layer) SendDataBuffer(ctx context.Context, dest routing.Addr) error {
	if !l.reserved {
		return ErrBufferNotReserved
	}
	defer l.DiscardDataBuffer()
	return l.SendDataPacket(ctx, dest, l.reservedLen)
}

// DiscardDataBuffer releases the data buffer without sending.
func (l *Layer) DiscardDataBuffer() {
	l.reserved = false
	l.reservedLen = 0
}

// SendData copies payload into the data buffer and sends it to dest.
func (l *Layer) SendData(ctx context.Context, dest routing.Addr, payload []byte) error {
	buf, err := l.CreateDataBuffer(len(payload))
	if err != nil {
		return err
	}
	copy(buf, payload)
	return l.SendDataBuffer(ctx, dest)
}

// SendLinkStatePacket advertises this node's links to every live neighbour.
// It returns the last error seen; a failure towards one neighbour does not
// stop the others from being sent to.
func (l *Layer) SendLinkStatePacket(ctx context.Context) error {
	n, err := EncodeLinkState(l.tx[:], l.conf.ChecksumMode, l.conf.Address, l.router.NextSeq(), l.router.LinkedNodes(l.conf.Address))
	if err != nil {
		return err
	}
	return l.flood(ctx, l.tx[:n], routing.Unresolved)
}

// SendPingRequestPacket asks phys to identify itself. Use dll.BroadcastAddr
// to discover every node in range.
func (l *Layer) SendPingRequestPacket(ctx context.Context, phys dll.Addr) error {
	n, err := EncodePingRequest(l.tx[:], l.conf.ChecksumMode)
	if err != nil {
		return err
	}
	return l.send(ctx, PingRequestPacket, phys, l.tx[:n])
}

// SendPingResponsePacket tells phys our logical address.
func (l *Layer) SendPingResponsePacket(ctx context.Context, phys dll.Addr) error {
	n, err := EncodePingResponse(l.tx[:], l.conf.ChecksumMode, l.conf.Address)
	if err != nil {
		return err
	}
	return l.send(ctx, PingResponsePacket, phys, l.tx[:n])
}

// ReceivePacket implements dll.Receiver.
func (l *Layer) ReceivePacket(ctx context.Context, src dll.Addr, data []byte) {
	l.HandleReceivedPacket(ctx, src, data)
}

// HandleReceivedPacket processes a packet received from the neighbour at
// prevHop. Invalid packets are dropped.
func (l *Layer) HandleReceivedPacket(ctx context.Context, prevHop dll.Addr, raw []byte) {
	p, err := ParsePacket(raw)
	if err != nil {
		l.metrics.PacketDropped("invalid")
		l.log.Debugf("Dropping %d-byte packet from %s: %v", len(raw), prevHop, err)
		return
	}
	l.metrics.PacketReceived(p.Type.String())

	switch p.Type {
	case DataPacket:
		if !p.Src.Valid() {
			l.metrics.PacketDropped("address")
			l.log.Debugf("Dropping %s: source out of range", &p)
			return
		}
		if p.Dest != l.conf.Address {
			l.forward(ctx, &p, raw)
			return
		}
		if l.recv != nil {
			l.recv.ReceiveData(ctx, p.Src, p.Payload)
		}

	case LinkStatePacket:
		if !l.router.NotifyLinkState(p.Src, p.Seq, p.Nodes) {
			l.metrics.PacketDropped("stale")
			return
		}
		if err := l.flood(ctx, raw, prevHop); err != nil {
			l.log.WithError(err).Debugf("Failed to reflood %s", &p)
		}

	case PingRequestPacket:
		if err := l.SendPingResponsePacket(ctx, prevHop); err != nil {
			l.log.WithError(err).Debugf("Failed to answer ping from %s", prevHop)
		}

	case PingResponsePacket:
		l.router.NotifyPingResponse(prevHop, p.Src)
	}
}

func (l *Layer) forward(ctx context.Context, p *Packet, raw []byte) {
	hop := l.router.NextHop(p.Dest)
	if hop == routing.Unresolved {
		l.metrics.PacketDropped("no-route")
		l.log.Debugf("No route to forward %s", p)
		return
	}
	if err := l.send(ctx, DataPacket, hop, raw); err != nil {
		l.log.WithError(err).Debugf("Failed to forward %s via %s", p, hop)
	}
}

// flood sends pkt to every live neighbour except skip.
func (l *Layer) flood(ctx context.Context, pkt []byte, skip dll.Addr) error {
	var lastErr error
	for _, phys := range l.router.Neighbours() {
		if phys == skip {
			continue
		}
		if err := l.send(ctx, LinkStatePacket, phys, pkt); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (l *Layer) send(ctx context.Context, t PacketType, hop dll.Addr, pkt []byte) error {
	if err := l.link.SendPacket(ctx, hop, pkt); err != nil {
		l.metrics.PacketDropped(dll.ResultOf(err).String())
		l.log.Debugf("Sending %s packet to %s failed: %v", t, hop, err)
		return err
	}
	l.metrics.PacketSent(t.String())
	return nil
}

func (l *Layer) dropSend(reason string, err error, dest routing.Addr) error {
	l.metrics.PacketDropped(reason)
	l.log.Debugf("Not sending data packet to %d: %v", dest, err)
	return err
}

// Update ages routing state. On every announce tick it broadcasts a ping
// request and advertises our links.
func (l *Layer) Update(ctx context.Context) {
	if !l.router.Update() {
		return
	}
	if err := l.SendPingRequestPacket(ctx, dll.BroadcastAddr); err != nil {
		l.log.WithError(err).Debug("Failed to broadcast ping request")
	}
	if err := l.SendLinkStatePacket(ctx); err != nil {
		l.log.WithError(err).Debug("Failed to advertise link state")
	}
}
