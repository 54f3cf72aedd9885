package wsbus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/busnet/internal/netutil"
	"github.com/skycoin/busnet/pkg/checksum"
	"github.com/skycoin/busnet/pkg/dll"
	"github.com/skycoin/busnet/pkg/phy"
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

func startHub(t *testing.T) (*Hub, *httptest.Server, string) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + BusPath
	return hub, srv, url
}

func dialN(t *testing.T, hub *Hub, url string, n int) []*Client {
	clients := make([]*Client, n)
	for i := range clients {
		c, err := Dial(context.TODO(), ClientConfig{URL: url})
		require.NoError(t, err)
		clients[i] = c
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Peers()) < n {
		require.True(t, time.Now().Before(deadline), "peers did not register")
		time.Sleep(5 * time.Millisecond)
	}
	return clients
}

func receive(tr phy.Transport, timeout time.Duration) []byte {
	buf := make([]byte, phy.MaxFrameSize)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if n := tr.ReceiveFrame(buf); n > 0 {
			return buf[:n]
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func TestHubRelaysToOthers(t *testing.T) {
	hub, srv, url := startHub(t)
	defer srv.Close()
	defer func() { require.NoError(t, hub.Close()) }()

	clients := dialN(t, hub, url, 3)
	for _, c := range clients {
		defer c.Close() // nolint: errcheck
	}

	frame := []byte{dll.Flag, 0x01, 0x02, dll.Flag}
	require.True(t, clients[0].TransmitFrame(frame))

	assert.Equal(t, frame, receive(clients[1], time.Second))
	assert.Equal(t, frame, receive(clients[2], time.Second))
	assert.Nil(t, receive(clients[0], 50*time.Millisecond))
}

func TestClientRejectsBadFrames(t *testing.T) {
	hub, srv, url := startHub(t)
	defer srv.Close()
	defer func() { require.NoError(t, hub.Close()) }()

	clients := dialN(t, hub, url, 1)
	c := clients[0]

	assert.False(t, c.TransmitFrame(nil))
	assert.False(t, c.TransmitFrame(make([]byte, phy.MaxFrameSize+1)))

	require.NoError(t, c.Close())
	assert.False(t, c.TransmitFrame([]byte{1}))
}

func TestHubPeers(t *testing.T) {
	hub, srv, url := startHub(t)
	defer srv.Close()
	defer func() { require.NoError(t, hub.Close()) }()

	clients := dialN(t, hub, url, 2)
	for _, c := range clients {
		defer c.Close() // nolint: errcheck
	}

	resp, err := http.Get(srv.URL + PeersPath)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint: errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var peers []PeerInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&peers))
	require.Len(t, peers, 2)
	assert.NotEqual(t, peers[0].ID, peers[1].ID)
}

func TestDialRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + BusPath
	srv.Close()

	r := netutil.NewRetrier(10*time.Millisecond, 50*time.Millisecond, 2)
	_, err := Dial(context.TODO(), ClientConfig{URL: url, Retrier: r})
	require.Error(t, err)
	assert.Contains(t, err.Error(), netutil.ErrThresholdReached.Error())
}

func TestLinkOverHub(t *testing.T) {
	hub, srv, url := startHub(t)
	defer srv.Close()
	defer func() { require.NoError(t, hub.Close()) }()

	clients := dialN(t, hub, url, 2)
	for _, c := range clients {
		defer c.Close() // nolint: errcheck
	}

	conf := func(addr dll.Addr) dll.Config {
		return dll.Config{Address: addr, ChecksumMode: checksum.EvenParity, AckTimeout: 200 * time.Millisecond, MaxRetries: 5}
	}
	a := dll.New(clients[0], conf(0xA1))
	b := dll.New(clients[1], conf(0xA2))

	got := make(chan []byte, 1)
	b.SetReceiver(dll.ReceiverFunc(func(_ context.Context, _ dll.Addr, data []byte) {
		got <- append([]byte(nil), data...)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			b.Update(ctx)
			time.Sleep(time.Millisecond)
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	pkt := make([]byte, 100)
	for i := range pkt {
		pkt[i] = byte(0x70 + i)
	}
	require.NoError(t, a.SendPacket(ctx, 0xA2, pkt))

	select {
	case data := <-got:
		assert.Equal(t, pkt, data)
	case <-time.After(2 * time.Second):
		t.Fatal("packet not delivered")
	}
}
