// Package node wires the physical, link and network layers into one running
// bus node, and exposes it over RPC and HTTP.
package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/busnet/internal/metrics"
	"github.com/skycoin/busnet/pkg/checksum"
	"github.com/skycoin/busnet/pkg/dll"
	"github.com/skycoin/busnet/pkg/network"
	"github.com/skycoin/busnet/pkg/routing"
)

const (
	metricsService = "busnet"

	// MaxMessages is how many received messages a node keeps for Messages.
	MaxMessages = 64

	networkTick = time.Second
)

// ErrNodeClosed is returned by operations on a closed Node.
var ErrNodeClosed = errors.New("node closed")

// Message is a data packet delivered to this node.
type Message struct {
	Src      routing.Addr `json:"src"`
	Payload  []byte       `json:"payload"`
	Received time.Time    `json:"received"`
}

// Summary provides a summary of a Node.
type Summary struct {
	Version      string              `json:"version"`
	Address      routing.Addr        `json:"address"`
	Phys         dll.Addr            `json:"phys"`
	ChecksumMode checksum.Mode       `json:"checksum_mode"`
	Transport    string              `json:"transport"`
	Uptime       float64             `json:"uptime"`
	Online       []routing.Addr      `json:"online"`
	Neighbours   []routing.Neighbour `json:"neighbours"`
	RoutesCount  int                 `json:"routes_count"`
	Pending      int                 `json:"pending_messages"`
}

// Node is a single bus node: a transport, a data link, a router and a
// network layer driven by one poll loop. All layer calls are serialized.
type Node struct {
	config *Config
	Logger *logging.MasterLogger
	logger *logging.Logger

	mu     sync.Mutex
	tr     Transport
	link   *dll.Link
	router *routing.Router
	net    *network.Layer
	rt     routing.Table

	registry    *prometheus.Registry
	httpMetrics metrics.Recorder

	msgMu    sync.Mutex
	messages []Message
	msgCh    chan struct{}

	startedAt   time.Time
	rpcListener net.Listener
	httpServer  *http.Server
	closeOnce   sync.Once
	closed      chan struct{}
}

// NewNode constructs a Node over tr. A nil masterLogger is replaced by a new one.
func NewNode(config *Config, tr Transport, masterLogger *logging.MasterLogger) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if masterLogger == nil {
		masterLogger = logging.NewMasterLogger()
	}

	node := &Node{
		config:    config,
		Logger:    masterLogger,
		logger:    masterLogger.PackageLogger("busnet"),
		tr:        tr,
		registry:  prometheus.NewRegistry(),
		msgCh:     make(chan struct{}, 1),
		closed:    make(chan struct{}),
		startedAt: time.Now(),
	}

	if lvl, err := logging.LevelFromString(config.LogLevel); err == nil {
		node.Logger.SetLevel(lvl)
	}

	stack := metrics.NewPrometheusStack(node.registry, metricsService)
	node.httpMetrics = metrics.NewPrometheus(node.registry, metricsService+"_http")

	var err error
	node.rt, err = config.RoutingTable()
	if err != nil {
		return nil, err
	}

	node.link = dll.New(tr, dll.Config{
		Address:      dll.Addr(config.Node.Phys),
		ChecksumMode: config.Node.ChecksumMode,
		AckTimeout:   time.Duration(config.Link.AckTimeout),
		MaxRetries:   config.Link.MaxRetries,
		PollInterval: time.Duration(config.Link.PollInterval),
		Logger:       masterLogger.PackageLogger("dll"),
		Metrics:      stack,
	})

	node.router = routing.New(routing.Config{
		Address:          routing.Addr(config.Node.Address),
		LinkStateTTL:     time.Duration(config.Routing.LinkStateTTL),
		NeighbourTTL:     time.Duration(config.Routing.NeighbourTTL),
		AnnounceInterval: time.Duration(config.Routing.AnnounceInterval),
		Table:            node.rt,
		Logger:           masterLogger.PackageLogger("routing"),
	})

	node.net, err = network.New(node.link, node.router, network.Config{
		Address:      routing.Addr(config.Node.Address),
		ChecksumMode: config.Node.ChecksumMode,
		Logger:       masterLogger.PackageLogger("network"),
		Metrics:      stack,
	})
	if err != nil {
		node.rt.Close() // nolint: errcheck
		return nil, err
	}
	node.net.SetReceiver(network.ReceiverFunc(node.receive))

	return node, nil
}

// Start opens the configured RPC and HTTP interfaces, then runs the poll
// loop until ctx is done or the node is closed.
func (node *Node) Start(ctx context.Context) error {
	if addr := node.config.Interfaces.RPCAddress; addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		node.mu.Lock()
		node.rpcListener = l
		node.mu.Unlock()

		rpcSvr := rpc.NewServer()
		if err := rpcSvr.RegisterName(RPCPrefix, &RPC{node: node}); err != nil {
			return err
		}
		node.logger.Info("Starting RPC interface on ", l.Addr())
		go rpcSvr.Accept(l)
	}

	if addr := node.config.Interfaces.HTTPAddress; addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: node.HTTPHandler()}
		node.mu.Lock()
		node.httpServer = srv
		node.mu.Unlock()

		node.logger.Info("Serving HTTP API on ", l.Addr())
		go func() {
			if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
				node.logger.WithError(err).Error("HTTP API stopped")
			}
		}()
	}

	return node.Serve(ctx)
}

// Serve runs the poll loop: the data link is polled every poll interval and
// the network layer is updated every second.
func (node *Node) Serve(ctx context.Context) error {
	node.logger.Infof("Node %d (%s) is up", node.config.Node.Address, dll.Addr(node.config.Node.Phys))

	poll := time.NewTicker(time.Duration(node.config.Link.PollInterval))
	defer poll.Stop()
	tick := time.NewTicker(networkTick)
	defer tick.Stop()

	node.mu.Lock()
	node.net.Update(ctx)
	node.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-node.closed:
			return nil
		case <-poll.C:
			node.mu.Lock()
			node.link.Update(ctx)
			node.mu.Unlock()
		case <-tick.C:
			node.mu.Lock()
			node.net.Update(ctx)
			node.mu.Unlock()
		}
	}
}

func (node *Node) receive(_ context.Context, src routing.Addr, payload []byte) {
	node.logger.Infof("Received %d bytes from node %d", len(payload), src)

	node.msgMu.Lock()
	if len(node.messages) >= MaxMessages {
		node.messages = node.messages[1:]
	}
	node.messages = append(node.messages, Message{
		Src:      src,
		Payload:  append([]byte(nil), payload...),
		Received: time.Now(),
	})
	node.msgMu.Unlock()

	select {
	case node.msgCh <- struct{}{}:
	default:
	}
}

func (node *Node) isClosed() bool {
	select {
	case <-node.closed:
		return true
	default:
		return false
	}
}

// Send delivers payload to the node with logical address dest.
func (node *Node) Send(ctx context.Context, dest routing.Addr, payload []byte) error {
	if node.isClosed() {
		return ErrNodeClosed
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.net.SendData(ctx, dest, payload)
}

// Ping broadcasts a ping request to discover neighbours.
func (node *Node) Ping(ctx context.Context) error {
	if node.isClosed() {
		return ErrNodeClosed
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.net.SendPingRequestPacket(ctx, dll.BroadcastAddr)
}

// Announce advertises this node's links to its neighbours right away.
func (node *Node) Announce(ctx context.Context) error {
	if node.isClosed() {
		return ErrNodeClosed
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.net.SendLinkStatePacket(ctx)
}

// Recalculate recomputes routes from the current topology.
func (node *Node) Recalculate() {
	node.mu.Lock()
	node.router.Recalculate()
	node.mu.Unlock()
}

// Messages returns the messages received so far. If drain is set they are
// removed from the node.
func (node *Node) Messages(drain bool) []Message {
	node.msgMu.Lock()
	defer node.msgMu.Unlock()

	out := make([]Message, len(node.messages))
	copy(out, node.messages)
	if drain {
		node.messages = nil
	}
	return out
}

// WaitMessage blocks until a message is pending or ctx is done.
func (node *Node) WaitMessage(ctx context.Context) error {
	for {
		node.msgMu.Lock()
		n := len(node.messages)
		node.msgMu.Unlock()
		if n > 0 {
			return nil
		}

		select {
		case <-node.msgCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Snapshot returns the routing state of the node.
func (node *Node) Snapshot() routing.Snapshot {
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.router.Snapshot()
}

// Summary provides a summary of the Node.
func (node *Node) Summary() *Summary {
	snap := node.Snapshot()

	online := make([]routing.Addr, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.Online {
			online = append(online, n.Address)
		}
	}

	node.msgMu.Lock()
	pending := len(node.messages)
	node.msgMu.Unlock()

	return &Summary{
		Version:      node.config.Version,
		Address:      snap.Address,
		Phys:         dll.Addr(node.config.Node.Phys),
		ChecksumMode: node.config.Node.ChecksumMode,
		Transport:    node.config.Transport.Type,
		Uptime:       time.Since(node.startedAt).Seconds(),
		Online:       online,
		Neighbours:   snap.Neighbours,
		RoutesCount:  len(snap.Routes),
		Pending:      pending,
	}
}

// Registry returns the registry the node's metrics are recorded in.
func (node *Node) Registry() *prometheus.Registry {
	return node.registry
}

// Close stops the poll loop and interfaces and releases the transport and
// routing table.
func (node *Node) Close() (err error) {
	node.closeOnce.Do(func() {
		close(node.closed)

		node.mu.Lock()
		rpcL, httpSrv := node.rpcListener, node.httpServer
		node.mu.Unlock()

		if rpcL != nil {
			node.logger.Info("Stopping RPC interface")
			if rpcErr := rpcL.Close(); rpcErr != nil && err == nil {
				err = rpcErr
			}
		}

		if httpSrv != nil {
			node.logger.Info("Stopping HTTP API")
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(node.config.ShutdownTimeout))
			if httpErr := httpSrv.Shutdown(ctx); httpErr != nil && err == nil {
				err = httpErr
			}
			cancel()
		}

		node.mu.Lock()
		defer node.mu.Unlock()

		node.logger.Info("Closing transport")
		if trErr := node.tr.Close(); trErr != nil && err == nil {
			err = trErr
		}
		if rtErr := node.rt.Close(); rtErr != nil && err == nil {
			err = rtErr
		}
	})
	return err
}
