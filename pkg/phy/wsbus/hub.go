// Package wsbus carries the shared bus medium over websockets, so that nodes
// running in separate processes or hosts can share one emulated bus. A Hub
// relays every frame one client transmits to all other clients.
package wsbus

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/busnet/internal/httputil"
	"github.com/skycoin/busnet/pkg/phy"
)

var log = logging.MustGetLogger("wsbus")

// Defaults for hub and client settings.
const (
	BusPath             = "/bus"
	PeersPath           = "/peers"
	DefaultWriteTimeout = time.Second
)

// PeerInfo describes a client connected to a Hub.
type PeerInfo struct {
	ID         uuid.UUID `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	Since      time.Time `json:"since"`
}

type peer struct {
	PeerInfo
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close() // nolint: errcheck
	})
}

// Hub is the websocket rendition of the bus medium.
type Hub struct {
	mu       sync.RWMutex
	peers    map[uuid.UUID]*peer
	queueLen int
	log      *logging.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a Hub with no peers.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = log
	}
	return &Hub{
		peers:    make(map[uuid.UUID]*peer),
		queueLen: phy.DefaultQueueLen,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  phy.MaxFrameSize * 4,
			WriteBufferSize: phy.MaxFrameSize * 4,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the hub's HTTP routes: the websocket endpoint at BusPath
// and a JSON list of peers at PeersPath.
func (h *Hub) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(BusPath, h.ServeHTTP)
	r.Get(PeersPath, func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, r, http.StatusOK, h.Peers())
	})
	return r
}

// ServeHTTP upgrades the request and relays frames for the new peer until
// its connection ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	p := &peer{
		PeerInfo: PeerInfo{ID: uuid.New(), RemoteAddr: r.RemoteAddr, Since: time.Now()},
		conn:     conn,
		send:     make(chan []byte, h.queueLen),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.peers[p.ID] = p
	h.mu.Unlock()
	h.log.Infof("Peer %s connected from %s", p.ID, p.RemoteAddr)

	go h.writeLoop(p)
	h.readLoop(p)

	h.mu.Lock()
	delete(h.peers, p.ID)
	h.mu.Unlock()
	p.close()
	h.log.Infof("Peer %s disconnected", p.ID)
}

func (h *Hub) readLoop(p *peer) {
	p.conn.SetReadLimit(phy.MaxFrameSize)
	for {
		mt, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.WithError(err).Warnf("Peer %s read failed", p.ID)
			}
			return
		}
		if mt != websocket.BinaryMessage || len(frame) == 0 {
			continue
		}
		h.relay(p, frame)
	}
}

func (h *Hub) relay(from *peer, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, p := range h.peers {
		if id == from.ID {
			continue
		}
		select {
		case p.send <- frame:
		default:
			h.log.Debugf("Peer %s: send queue full, dropping %d-byte frame", id, len(frame))
		}
	}
}

func (h *Hub) writeLoop(p *peer) {
	for {
		select {
		case frame := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout)) // nolint: errcheck
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				h.log.WithError(err).Debugf("Peer %s write failed", p.ID)
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// Peers lists the connected peers.
func (h *Hub) Peers() []PeerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]PeerInfo, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p.PeerInfo)
	}
	return out
}

// Close disconnects every peer.
func (h *Hub) Close() error {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[uuid.UUID]*peer)
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	return nil
}
