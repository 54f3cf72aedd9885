package node

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/busnet/internal/testhelpers"
	"github.com/skycoin/busnet/pkg/dll"
	"github.com/skycoin/busnet/pkg/network"
	"github.com/skycoin/busnet/pkg/phy"
	"github.com/skycoin/busnet/pkg/routing"
)

func TestMain(m *testing.M) {
	loggingLevel, ok := os.LookupEnv("TEST_LOGGING_LEVEL")
	if ok {
		lvl, err := logging.LevelFromString(loggingLevel)
		if err != nil {
			log.Fatal(err)
		}
		logging.SetLevel(lvl)
	} else {
		logging.Disable()
	}

	os.Exit(m.Run())
}

func physOf(addr routing.Addr) dll.Addr {
	return dll.Addr(0xA0 | uint8(addr))
}

func testConfig(addr routing.Addr) *Config {
	conf := DefaultConfig()
	conf.Node.Address = uint8(addr)
	conf.Node.Phys = uint8(physOf(addr))
	conf.Link.AckTimeout = Duration(100 * time.Millisecond)
	conf.Link.PollInterval = Duration(time.Millisecond)
	conf.Routing.AnnounceInterval = Duration(time.Second)
	conf.Transport.Type = MemoryTransport
	conf.Interfaces = InterfaceConfig{}
	conf.LogLevel = "error"
	return conf
}

type testNet struct {
	bus    *phy.Bus
	nodes  []*Node
	cancel context.CancelFunc
	errs   []chan error
}

// startChain starts one node per address on a shared bus where only
// adjacent nodes hear each other.
func startChain(t *testing.T, addrs ...routing.Addr) *testNet {
	bus := phy.NewBus(nil)
	bus.SetFilter(func(from, to int, _ []byte) bool {
		return from-to == 1 || to-from == 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	tn := &testNet{bus: bus, cancel: cancel}
	for _, addr := range addrs {
		conf := testConfig(addr)
		tr, err := conf.DialTransport(ctx, bus)
		require.NoError(t, err)

		n, err := NewNode(conf, tr, nil)
		require.NoError(t, err)

		errCh := make(chan error, 1)
		go func() { errCh <- n.Serve(ctx) }()

		tn.nodes = append(tn.nodes, n)
		tn.errs = append(tn.errs, errCh)
	}
	return tn
}

func (tn *testNet) stop(t *testing.T) {
	errs := make([]error, 0, 2*len(tn.nodes))
	for _, n := range tn.nodes {
		errs = append(errs, n.Close())
	}
	for _, errCh := range tn.errs {
		errs = append(errs, testhelpers.WithinTimeout(errCh))
	}
	tn.cancel()
	testhelpers.NoErrorN(t, errs...)
	require.NoError(t, tn.bus.Close())
}

// converge pings and announces from every node until from has a route to to.
func (tn *testNet) converge(t *testing.T, from *Node, to routing.Addr) {
	ctx := context.Background()
	testhelpers.WaitFor(t, 10*time.Second, 50*time.Millisecond, func() bool {
		for _, n := range tn.nodes {
			_ = n.Ping(ctx)     // nolint: errcheck
			_ = n.Announce(ctx) // nolint: errcheck
			n.Recalculate()
		}
		for _, r := range from.Snapshot().Routes {
			if r.Dest == to {
				return true
			}
		}
		return false
	}, "no route to %d", to)
}

func TestNewNodeRejectsBadConfig(t *testing.T) {
	conf := testConfig(1)
	conf.Node.Address = 16
	_, err := NewNode(conf, phy.NewBus(nil).Attach(), nil)
	assert.Error(t, err)
}

func TestNodeNeighbours(t *testing.T) {
	tn := startChain(t, 1, 2)
	defer tn.stop(t)

	a, b := tn.nodes[0], tn.nodes[1]
	tn.converge(t, a, 2)

	sum := a.Summary()
	assert.Equal(t, routing.Addr(1), sum.Address)
	assert.Equal(t, physOf(1), sum.Phys)
	assert.Equal(t, MemoryTransport, sum.Transport)
	require.Len(t, sum.Neighbours, 1)
	assert.Equal(t, routing.Addr(2), sum.Neighbours[0].Address)
	assert.Equal(t, physOf(2), sum.Neighbours[0].Phys)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := []byte("hello")
	require.NoError(t, a.Send(ctx, 2, payload))
	require.NoError(t, b.WaitMessage(ctx))

	msgs := b.Messages(true)
	require.Len(t, msgs, 1)
	assert.Equal(t, routing.Addr(1), msgs[0].Src)
	assert.Equal(t, payload, msgs[0].Payload)
	assert.Empty(t, b.Messages(false))
}

func TestNodeMultiHop(t *testing.T) {
	tn := startChain(t, 1, 2, 3)
	defer tn.stop(t)

	a, c := tn.nodes[0], tn.nodes[2]
	tn.converge(t, a, 3)
	tn.converge(t, c, 1)

	for _, r := range a.Snapshot().Routes {
		if r.Dest == 3 {
			assert.Equal(t, physOf(2), r.NextHop)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := make([]byte, network.MaxPayloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, a.Send(ctx, 3, payload))
	require.NoError(t, c.WaitMessage(ctx))

	msgs := c.Messages(true)
	require.Len(t, msgs, 1)
	assert.Equal(t, routing.Addr(1), msgs[0].Src)
	assert.Equal(t, payload, msgs[0].Payload)

	assert.Empty(t, tn.nodes[1].Messages(false))
}

func TestNodeSendErrors(t *testing.T) {
	tn := startChain(t, 1)
	defer tn.stop(t)

	n := tn.nodes[0]
	ctx := context.Background()

	assert.Equal(t, network.ErrNoRoute, n.Send(ctx, 5, []byte{1}))
	assert.Equal(t, network.ErrInvalidAddress, n.Send(ctx, 16, []byte{1}))
	assert.Equal(t, network.ErrPayloadTooBig, n.Send(ctx, 5, make([]byte, network.MaxPayloadSize+1)))
}

func TestNodeClosed(t *testing.T) {
	bus := phy.NewBus(nil)
	defer bus.Close() // nolint: errcheck

	n, err := NewNode(testConfig(1), bus.Attach(), nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- n.Serve(context.Background()) }()

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	require.NoError(t, testhelpers.WithinTimeout(errCh))

	ctx := context.Background()
	assert.Equal(t, ErrNodeClosed, n.Send(ctx, 2, nil))
	assert.Equal(t, ErrNodeClosed, n.Ping(ctx))
	assert.Equal(t, ErrNodeClosed, n.Announce(ctx))
}

func TestMessagesBounded(t *testing.T) {
	bus := phy.NewBus(nil)
	defer bus.Close() // nolint: errcheck

	n, err := NewNode(testConfig(1), bus.Attach(), nil)
	require.NoError(t, err)
	defer n.Close() // nolint: errcheck

	for i := 0; i < MaxMessages+3; i++ {
		n.receive(context.TODO(), 2, []byte{byte(i)})
	}
	msgs := n.Messages(false)
	require.Len(t, msgs, MaxMessages)
	assert.Equal(t, []byte{3}, msgs[0].Payload)
	assert.Equal(t, MaxMessages+2, int(msgs[len(msgs)-1].Payload[0]))
	assert.Equal(t, MaxMessages, n.Summary().Pending)
}
