package commands

import (
	"encoding/json"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/skycoin/busnet/internal/pathutil"
)

// Config configures busnet-hub.
type Config struct {
	HTTPAddr  string `json:"http_addr" toml:"http_addr"`   // websocket and peers endpoint
	MockNodes int    `json:"mock_nodes" toml:"mock_nodes"` // simulated nodes to attach on start
	LogLevel  string `json:"log_level" toml:"log_level"`
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{
		HTTPAddr: ":7070",
		LogLevel: "info",
	}
}

// Parse fills c from the JSON or TOML file at path.
func (c *Config) Parse(path string) error {
	f, err := os.Open(path) // nolint: gosec
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	if pathutil.IsTOML(path) {
		_, err = toml.NewDecoder(f).Decode(c)
	} else {
		err = json.NewDecoder(f).Decode(c)
	}
	return errors.Wrapf(err, "failed to decode %s", path)
}
