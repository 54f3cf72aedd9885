package wsbus

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/busnet/internal/netutil"
	"github.com/skycoin/busnet/pkg/phy"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	URL          string
	QueueLen     int
	WriteTimeout time.Duration
	Retrier      *netutil.Retrier
	Logger       *logging.Logger
}

// Client attaches a node to a Hub. It implements phy.Transport.
type Client struct {
	*phy.Inbox
	conn *websocket.Conn
	wmu  sync.Mutex
	conf ClientConfig
	log  *logging.Logger
}

// Dial connects to the hub at conf.URL, retrying with conf.Retrier if set.
func Dial(ctx context.Context, conf ClientConfig) (*Client, error) {
	if conf.WriteTimeout <= 0 {
		conf.WriteTimeout = DefaultWriteTimeout
	}
	if conf.Logger == nil {
		conf.Logger = log
	}

	var conn *websocket.Conn
	dial := func(ctx context.Context) error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, conf.URL, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	var err error
	if conf.Retrier != nil {
		err = conf.Retrier.Do(ctx, dial)
	} else {
		err = dial(ctx)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to bus hub %s", conf.URL)
	}

	c := &Client{
		Inbox: phy.NewInbox(conf.QueueLen),
		conn:  conn,
		conf:  conf,
		log:   conf.Logger,
	}
	go c.readLoop()
	return c, nil
}

// TransmitFrame implements phy.Transport.
func (c *Client) TransmitFrame(frame []byte) bool {
	if len(frame) == 0 || len(frame) > phy.MaxFrameSize {
		return false
	}
	select {
	case <-c.Done():
		return false
	default:
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.conf.WriteTimeout)) // nolint: errcheck
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.log.WithError(err).Debug("Failed to transmit frame")
		return false
	}
	return true
}

// Close disconnects from the hub.
func (c *Client) Close() error {
	c.Inbox.Close()

	c.wmu.Lock()
	c.conn.WriteControl(websocket.CloseMessage, // nolint: errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.conf.WriteTimeout))
	c.wmu.Unlock()

	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.Inbox.Close()

	c.conn.SetReadLimit(phy.MaxFrameSize)
	for {
		mt, frame, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.Done():
			default:
				c.log.WithError(err).Warn("Connection to bus hub lost")
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if !c.Offer(frame) {
			c.log.Debugf("Receive queue full, dropping %d-byte frame", len(frame))
		}
	}
}
