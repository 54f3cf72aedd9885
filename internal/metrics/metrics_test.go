package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, l := range m.GetLabel() {
				name += "/" + l.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				out[name] = c.GetValue()
			}
		}
	}
	return out
}

func TestPrometheusStack(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusStack(reg, "busnet")

	m.FrameSent()
	m.FrameSent()
	m.FrameReceived()
	m.FrameDropped("checksum")
	m.Retransmission()
	m.PacketSent("data")
	m.PacketReceived("link-state")
	m.PacketDropped("invalid")

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["busnet_frames_sent_total"])
	assert.Equal(t, 1.0, got["busnet_frames_received_total"])
	assert.Equal(t, 1.0, got["busnet_frames_dropped_total/checksum"])
	assert.Equal(t, 1.0, got["busnet_retransmissions_total"])
	assert.Equal(t, 1.0, got["busnet_packets_sent_total/data"])
	assert.Equal(t, 1.0, got["busnet_packets_received_total/link-state"])
	assert.Equal(t, 1.0, got["busnet_packets_dropped_total/invalid"])
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheus(reg, "api")

	h := Handler(rec, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "fail") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/ok", "/fail", "/ok"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := gather(t, reg)
	assert.Equal(t, 3.0, got["api_request_total"])
	assert.Equal(t, 1.0, got["api_errors_total"])
}

func TestDummy(t *testing.T) {
	NewDummyStack().FrameDropped("x")
	NewDummy().Record(0, true)
}
