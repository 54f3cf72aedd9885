package node

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/skycoin/busnet/internal/netutil"
	"github.com/skycoin/busnet/internal/pathutil"
	"github.com/skycoin/busnet/pkg/checksum"
	"github.com/skycoin/busnet/pkg/dll"
	"github.com/skycoin/busnet/pkg/phy"
	"github.com/skycoin/busnet/pkg/phy/wsbus"
	"github.com/skycoin/busnet/pkg/routing"
)

// Version is the config format version written by DefaultConfig.
const Version = "1.0"

// Transport types.
const (
	MemoryTransport = "memory"
	WSBusTransport  = "wsbus"
)

// Routing table types.
const (
	MemoryTable = "memory"
	BoltDBTable = "boltdb"
)

// Config defines configuration parameters for Node.
type Config struct {
	Version string `json:"version" toml:"version"`

	Node struct {
		Address      uint8         `json:"address" toml:"address"`             // logical network address, 0..15
		Phys         uint8         `json:"phys" toml:"phys"`                   // hardware address on the bus
		ChecksumMode checksum.Mode `json:"checksum_mode" toml:"checksum_mode"` // none or even-parity
	} `json:"node" toml:"node"`

	Link struct {
		AckTimeout   Duration `json:"ack_timeout" toml:"ack_timeout"`
		MaxRetries   int      `json:"max_retries" toml:"max_retries"`
		PollInterval Duration `json:"poll_interval" toml:"poll_interval"`
	} `json:"link" toml:"link"`

	Routing struct {
		LinkStateTTL     Duration `json:"link_state_ttl" toml:"link_state_ttl"`
		NeighbourTTL     Duration `json:"neighbour_ttl" toml:"neighbour_ttl"`
		AnnounceInterval Duration `json:"announce_interval" toml:"announce_interval"`
		Table            struct {
			Type     string `json:"type" toml:"type"`
			Location string `json:"location" toml:"location"`
		} `json:"table" toml:"table"`
	} `json:"routing" toml:"routing"`

	Transport struct {
		Type          string   `json:"type" toml:"type"`
		HubURL        string   `json:"hub_url" toml:"hub_url"`
		DialBackoff   Duration `json:"dial_backoff" toml:"dial_backoff"`
		DialThreshold Duration `json:"dial_threshold" toml:"dial_threshold"`
	} `json:"transport" toml:"transport"`

	Interfaces InterfaceConfig `json:"interfaces" toml:"interfaces"`

	LogLevel        string   `json:"log_level" toml:"log_level"`
	ShutdownTimeout Duration `json:"shutdown_timeout" toml:"shutdown_timeout"` // time value, examples: 10s, 1m, etc
}

// InterfaceConfig defines listening interfaces for busnet-node.
type InterfaceConfig struct {
	RPCAddress  string `json:"rpc" toml:"rpc"`   // RPC address and port for command-line interface (leave blank to disable RPC interface).
	HTTPAddress string `json:"http" toml:"http"` // HTTP API address and port (leave blank to disable).
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	c := new(Config)
	c.Version = Version
	c.Node.Address = 1
	c.Node.Phys = 0xA1
	c.Node.ChecksumMode = checksum.EvenParity
	c.Link.AckTimeout = Duration(dll.DefaultAckTimeout)
	c.Link.MaxRetries = dll.DefaultMaxRetries
	c.Link.PollInterval = Duration(dll.DefaultPollInterval)
	c.Routing.LinkStateTTL = Duration(routing.DefaultLinkStateTTL)
	c.Routing.NeighbourTTL = Duration(routing.DefaultNeighbourTTL)
	c.Routing.AnnounceInterval = Duration(routing.DefaultAnnounceInterval)
	c.Routing.Table.Type = MemoryTable
	c.Transport.Type = WSBusTransport
	c.Transport.HubURL = "ws://localhost:7070" + wsbus.BusPath
	c.Transport.DialBackoff = Duration(100 * time.Millisecond)
	c.Transport.DialThreshold = Duration(10 * time.Second)
	c.Interfaces.RPCAddress = "localhost:3435"
	c.Interfaces.HTTPAddress = "localhost:8080"
	c.LogLevel = "info"
	c.ShutdownTimeout = Duration(10 * time.Second)
	return c
}

// ReadConfig reads the config at path, as TOML if it ends in .toml and as
// JSON otherwise. Fields missing from the file keep their defaults.
func ReadConfig(path string) (*Config, error) {
	f, err := os.Open(path) // nolint: gosec
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config")
	}
	defer f.Close() // nolint: errcheck

	return DecodeConfig(f, pathutil.IsTOML(path))
}

// DecodeConfig decodes a config from r on top of DefaultConfig and validates it.
func DecodeConfig(r io.Reader, isTOML bool) (*Config, error) {
	conf := DefaultConfig()
	if isTOML {
		if _, err := toml.NewDecoder(r).Decode(conf); err != nil {
			return nil, errors.Wrap(err, "failed to decode TOML config")
		}
	} else {
		if err := json.NewDecoder(r).Decode(conf); err != nil {
			return nil, errors.Wrap(err, "failed to decode JSON config")
		}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the config for values the stack cannot run with.
func (c *Config) Validate() error {
	if !routing.Addr(c.Node.Address).Valid() {
		return fmt.Errorf("node.address %d out of range 0..%d", c.Node.Address, routing.MaxAddr)
	}
	if dll.Addr(c.Node.Phys) == dll.BroadcastAddr {
		return errors.New("node.phys cannot be the broadcast address")
	}
	if !c.Node.ChecksumMode.Valid() {
		return errors.Wrap(checksum.ErrUnknownMode, "node.checksum_mode")
	}
	if c.Link.MaxRetries < 0 {
		return errors.New("link.max_retries cannot be negative")
	}
	switch c.Routing.Table.Type {
	case MemoryTable, "":
	case BoltDBTable:
		if c.Routing.Table.Location == "" {
			return errors.New("routing.table.location is required for boltdb tables")
		}
	default:
		return fmt.Errorf("unknown routing.table.type %q", c.Routing.Table.Type)
	}
	switch c.Transport.Type {
	case MemoryTransport:
	case WSBusTransport:
		if c.Transport.HubURL == "" {
			return errors.New("transport.hub_url is required for wsbus transports")
		}
	default:
		return fmt.Errorf("unknown transport.type %q", c.Transport.Type)
	}
	return nil
}

// RoutingTable returns configure routing.Table.
func (c *Config) RoutingTable() (routing.Table, error) {
	if c.Routing.Table.Type == BoltDBTable {
		path, err := pathutil.Expand(c.Routing.Table.Location)
		if err != nil {
			return nil, err
		}
		return routing.BoltDBTable(path)
	}

	return routing.InMemoryTable(), nil
}

// Transport is a bus attachment the node owns and closes.
type Transport interface {
	phy.Transport
	io.Closer
}

// DialTransport attaches to the configured medium. Memory transports attach
// to bus, which must be non-nil.
func (c *Config) DialTransport(ctx context.Context, bus *phy.Bus) (Transport, error) {
	switch c.Transport.Type {
	case MemoryTransport:
		if bus == nil {
			return nil, errors.New("memory transport needs an in-process bus")
		}
		return bus.Attach(), nil

	case WSBusTransport:
		r := netutil.NewRetrier(time.Duration(c.Transport.DialBackoff), time.Duration(c.Transport.DialThreshold), 2)
		return wsbus.Dial(ctx, wsbus.ClientConfig{URL: c.Transport.HubURL, Retrier: r})

	default:
		return nil, fmt.Errorf("unknown transport type %q", c.Transport.Type)
	}
}

// Duration wraps around time.Duration to allow parsing from and to JSON and TOML.
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements unmarshal from json
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// MarshalText implements encoding.TextMarshaler, used for TOML.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	tmp, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(tmp)
	return nil
}
