package node

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/busnet/internal/pathutil"
	"github.com/skycoin/busnet/pkg/checksum"
	"github.com/skycoin/busnet/pkg/dll"
	"github.com/skycoin/busnet/pkg/routing"
)

func TestDecodeConfigJSON(t *testing.T) {
	raw := `{
		"node": {"address": 7, "phys": 23, "checksum_mode": "none"},
		"link": {"ack_timeout": "20ms", "max_retries": 3},
		"routing": {"announce_interval": "5s"},
		"transport": {"type": "memory"}
	}`

	conf, err := DecodeConfig(strings.NewReader(raw), false)
	require.NoError(t, err)

	assert.Equal(t, uint8(7), conf.Node.Address)
	assert.Equal(t, uint8(23), conf.Node.Phys)
	assert.Equal(t, checksum.None, conf.Node.ChecksumMode)
	assert.Equal(t, Duration(20*time.Millisecond), conf.Link.AckTimeout)
	assert.Equal(t, 3, conf.Link.MaxRetries)
	assert.Equal(t, Duration(5*time.Second), conf.Routing.AnnounceInterval)
	assert.Equal(t, MemoryTransport, conf.Transport.Type)

	// untouched fields keep their defaults
	assert.Equal(t, Duration(dll.DefaultPollInterval), conf.Link.PollInterval)
	assert.Equal(t, Duration(routing.DefaultLinkStateTTL), conf.Routing.LinkStateTTL)
	assert.Equal(t, MemoryTable, conf.Routing.Table.Type)
}

func TestDecodeConfigTOML(t *testing.T) {
	raw := `
log_level = "debug"

[node]
address = 3
phys = 163
checksum_mode = "even-parity"

[link]
poll_interval = "2ms"

[routing.table]
type = "boltdb"
location = "/tmp/routes.db"
`
	conf, err := DecodeConfig(strings.NewReader(raw), true)
	require.NoError(t, err)

	assert.Equal(t, "debug", conf.LogLevel)
	assert.Equal(t, uint8(3), conf.Node.Address)
	assert.Equal(t, uint8(0xA3), conf.Node.Phys)
	assert.Equal(t, checksum.EvenParity, conf.Node.ChecksumMode)
	assert.Equal(t, Duration(2*time.Millisecond), conf.Link.PollInterval)
	assert.Equal(t, BoltDBTable, conf.Routing.Table.Type)
	assert.Equal(t, "/tmp/routes.db", conf.Routing.Table.Location)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"address out of range", func(c *Config) { c.Node.Address = 16 }},
		{"broadcast phys", func(c *Config) { c.Node.Phys = uint8(dll.BroadcastAddr) }},
		{"unknown checksum mode", func(c *Config) { c.Node.ChecksumMode = checksum.Mode(9) }},
		{"negative retries", func(c *Config) { c.Link.MaxRetries = -1 }},
		{"boltdb without location", func(c *Config) { c.Routing.Table.Type = BoltDBTable }},
		{"unknown table", func(c *Config) { c.Routing.Table.Type = "redis" }},
		{"wsbus without url", func(c *Config) { c.Transport.HubURL = "" }},
		{"unknown transport", func(c *Config) { c.Transport.Type = "serial" }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDecodeConfigRejectsBadMode(t *testing.T) {
	_, err := DecodeConfig(strings.NewReader(`{"node": {"checksum_mode": "crc"}}`), false)
	assert.Error(t, err)
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, Duration(90*time.Second), d)

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, Duration(time.Microsecond), d)

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	raw, err := json.Marshal(Duration(50 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"50ms"`, string(raw))
}

func TestWriteAndReadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "busnet-node-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	conf := DefaultConfig()
	conf.Node.Address = 9
	conf.Routing.Table.Type = BoltDBTable
	conf.Routing.Table.Location = filepath.Join(dir, "routes.db")

	for _, name := range []string{"busnet.json", "busnet.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, pathutil.WriteConfig(conf, path, false))

			got, err := ReadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, conf, got)
		})
	}
}

func TestRoutingTableFromConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "busnet-node-table")
	require.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	conf := DefaultConfig()
	conf.Routing.Table.Type = BoltDBTable
	conf.Routing.Table.Location = filepath.Join(dir, "routes.db")

	tbl, err := conf.RoutingTable()
	require.NoError(t, err)
	require.NoError(t, tbl.SetNextHop(4, 0x14))
	require.NoError(t, tbl.Close())

	tbl, err = conf.RoutingTable()
	require.NoError(t, err)
	defer tbl.Close() // nolint: errcheck
	hop, err := tbl.NextHop(4)
	require.NoError(t, err)
	assert.Equal(t, dll.Addr(0x14), hop)
}

func TestDialTransport(t *testing.T) {
	conf := DefaultConfig()
	conf.Transport.Type = MemoryTransport

	_, err := conf.DialTransport(context.TODO(), nil)
	assert.Error(t, err)
}
