package commands

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/busnet/internal/pathutil"
)

func TestConfigParse(t *testing.T) {
	dir, err := ioutil.TempDir("", "busnet-hub")
	require.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	want := DefaultConfig()
	want.MockNodes = 4

	for _, name := range []string{"hub.json", "hub.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, pathutil.WriteConfig(want, path, false))

			got := DefaultConfig()
			require.NoError(t, got.Parse(path))
			assert.Equal(t, want, got)
		})
	}

	got := DefaultConfig()
	assert.Error(t, got.Parse(filepath.Join(dir, "missing.json")))
}
