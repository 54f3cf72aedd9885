package node

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/busnet/pkg/routing"
)

func TestHTTPAPI(t *testing.T) {
	n, closeNode := newTestNode(t, 6)
	defer closeNode()

	srv := httptest.NewServer(n.HTTPHandler())
	defer srv.Close()

	get := func(t *testing.T, path string, v interface{}) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint: errcheck
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}

	post := func(t *testing.T, path, body string) (int, map[string]interface{}) {
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		defer resp.Body.Close() // nolint: errcheck
		var out map[string]interface{}
		raw, err := ioutil.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = json.Unmarshal(raw, &out) // nolint: errcheck
		return resp.StatusCode, out
	}

	t.Run("status", func(t *testing.T) {
		var sum Summary
		get(t, "/api/status", &sum)
		assert.Equal(t, routing.Addr(6), sum.Address)
		assert.Equal(t, MemoryTransport, sum.Transport)
	})

	t.Run("routes and nodes", func(t *testing.T) {
		var routes []routing.Route
		get(t, "/api/routes", &routes)
		assert.Empty(t, routes)

		var nodes []routing.NodeState
		get(t, "/api/nodes", &nodes)
		require.Len(t, nodes, 1)
		assert.Equal(t, routing.Addr(6), nodes[0].Address)
	})

	t.Run("send", func(t *testing.T) {
		code, out := post(t, "/api/send", `{"dest": 2, "payload": "aGk="}`)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "no route to destination", out["error"])

		code, _ = post(t, "/api/send", `{"dest": 20}`)
		assert.Equal(t, http.StatusBadRequest, code)

		code, _ = post(t, "/api/send", `{"dest": 2, "bogus": true}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("ping and announce", func(t *testing.T) {
		code, _ := post(t, "/api/ping", "")
		assert.Equal(t, http.StatusOK, code)
		code, _ = post(t, "/api/announce", "")
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("messages", func(t *testing.T) {
		n.receive(context.TODO(), 1, []byte("hi"))

		var msgs []Message
		get(t, "/api/messages?drain=true", &msgs)
		require.Len(t, msgs, 1)
		assert.Equal(t, routing.Addr(1), msgs[0].Src)
		assert.Equal(t, []byte("hi"), msgs[0].Payload)

		get(t, "/api/messages", &msgs)
		assert.Empty(t, msgs)

		resp, err := http.Get(srv.URL + "/api/messages?drain=maybe")
		require.NoError(t, err)
		resp.Body.Close() // nolint: errcheck
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close() // nolint: errcheck
		raw, err := ioutil.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "busnet_http_request_total")
		assert.Contains(t, string(raw), "busnet_frames_sent_total")
	})
}
