package routing

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/busnet/pkg/dll"
)

func TableSuite(t *testing.T, tbl Table) {
	t.Helper()

	hop, err := tbl.NextHop(3)
	require.NoError(t, err)
	assert.Equal(t, Unresolved, hop)
	assert.Equal(t, 0, tbl.Count())

	require.NoError(t, tbl.SetNextHop(3, 0x12))
	require.NoError(t, tbl.SetNextHop(5, 0x15))
	assert.Equal(t, 2, tbl.Count())

	hop, err = tbl.NextHop(3)
	require.NoError(t, err)
	assert.Equal(t, dll.Addr(0x12), hop)

	require.NoError(t, tbl.SetNextHop(3, 0x14))
	hop, err = tbl.NextHop(3)
	require.NoError(t, err)
	assert.Equal(t, dll.Addr(0x14), hop)
	assert.Equal(t, 2, tbl.Count())

	var dests []Addr
	require.NoError(t, tbl.Range(func(dest Addr, _ dll.Addr) bool {
		dests = append(dests, dest)
		return true
	}))
	assert.Equal(t, []Addr{3, 5}, dests)

	dests = nil
	require.NoError(t, tbl.Range(func(dest Addr, _ dll.Addr) bool {
		dests = append(dests, dest)
		return false
	}))
	assert.Len(t, dests, 1)

	require.NoError(t, tbl.SetNextHop(3, Unresolved))
	require.NoError(t, tbl.SetNextHop(5, Unresolved))
	assert.Equal(t, 0, tbl.Count())
}

func TestInMemoryTable(t *testing.T) {
	TableSuite(t, InMemoryTable())
}

func TestBoltDBTable(t *testing.T) {
	dir, err := ioutil.TempDir("", "busnet-routes")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, os.RemoveAll(dir))
	}()

	path := filepath.Join(dir, "routes.db")
	tbl, err := BoltDBTable(path)
	require.NoError(t, err)

	TableSuite(t, tbl)

	require.NoError(t, tbl.SetNextHop(7, 0x17))
	require.NoError(t, tbl.Close())

	tbl, err = BoltDBTable(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, tbl.Close())
	}()

	hop, err := tbl.NextHop(7)
	require.NoError(t, err)
	assert.Equal(t, dll.Addr(0x17), hop)
}
