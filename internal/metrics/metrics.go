// Package metrics records stack and HTTP API metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records request metrics.
type Recorder interface {
	Record(resTime time.Duration, hasErr bool)
}

// Stack records per-layer protocol events.
type Stack interface {
	FrameSent()
	FrameReceived()
	FrameDropped(reason string)
	Retransmission()
	PacketSent(kind string)
	PacketReceived(kind string)
	PacketDropped(reason string)
}

type dummy struct{}

// NewDummy constructs a new dummy metrics recorder.
func NewDummy() Recorder {
	return dummy{}
}

// NewDummyStack constructs a Stack recorder that discards everything.
func NewDummyStack() Stack {
	return dummy{}
}

func (dummy) Record(time.Duration, bool) {}
func (dummy) FrameSent()                 {}
func (dummy) FrameReceived()             {}
func (dummy) FrameDropped(string)        {}
func (dummy) Retransmission()            {}
func (dummy) PacketSent(string)          {}
func (dummy) PacketReceived(string)      {}
func (dummy) PacketDropped(string)       {}

type prom struct {
	reqCount prometheus.Counter
	errCount prometheus.Counter
	resTime  prometheus.Summary
}

// NewPrometheus constructs a new Prometheus request recorder registered with reg.
func NewPrometheus(reg prometheus.Registerer, service string) Recorder {
	m := &prom{
		reqCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_request_total",
			Help: "The total number of processed requests",
		}),
		errCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_errors_total",
			Help: "The total number of 500 responses",
		}),
		resTime: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: service + "_response_time",
			Help: "Response times",
		}),
	}
	reg.MustRegister(m.reqCount, m.errCount, m.resTime)
	return m
}

func (m *prom) Record(resTime time.Duration, hasErr bool) {
	m.reqCount.Inc()
	m.resTime.Observe(resTime.Seconds())
	if hasErr {
		m.errCount.Inc()
	}
}

type promStack struct {
	framesSent      prometheus.Counter
	framesReceived  prometheus.Counter
	framesDropped   *prometheus.CounterVec
	retransmissions prometheus.Counter
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec
}

// NewPrometheusStack constructs a Stack recorder registered with reg.
func NewPrometheusStack(reg prometheus.Registerer, service string) Stack {
	m := &promStack{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_frames_sent_total",
			Help: "Link frames put on the bus, retransmissions and acknowledgements included",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_frames_received_total",
			Help: "Link frames accepted by this node",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_frames_dropped_total",
			Help: "Link frames discarded, by reason",
		}, []string{"reason"}),
		retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_retransmissions_total",
			Help: "Data frames sent again after an acknowledgement timeout",
		}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_packets_sent_total",
			Help: "Network packets handed to the link layer, by type",
		}, []string{"type"}),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_packets_received_total",
			Help: "Valid network packets received, by type",
		}, []string{"type"}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_packets_dropped_total",
			Help: "Network packets discarded, by reason",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.framesSent, m.framesReceived, m.framesDropped, m.retransmissions,
		m.packetsSent, m.packetsReceived, m.packetsDropped,
	)
	return m
}

func (m *promStack) FrameSent()                 { m.framesSent.Inc() }
func (m *promStack) FrameReceived()             { m.framesReceived.Inc() }
func (m *promStack) FrameDropped(reason string) { m.framesDropped.WithLabelValues(reason).Inc() }
func (m *promStack) Retransmission()            { m.retransmissions.Inc() }
func (m *promStack) PacketSent(kind string)     { m.packetsSent.WithLabelValues(kind).Inc() }
func (m *promStack) PacketReceived(kind string) { m.packetsReceived.WithLabelValues(kind).Inc() }
func (m *promStack) PacketDropped(reason string) {
	m.packetsDropped.WithLabelValues(reason).Inc()
}

// Handler provides metrics middleware.
func Handler(m Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if m == nil {
			next.ServeHTTP(w, req)
			return
		}

		wrapW := &wrapResponseWriter{ResponseWriter: w}
		startTime := time.Now()
		next.ServeHTTP(wrapW, req)
		m.Record(time.Since(startTime), wrapW.statusCode == http.StatusInternalServerError)
	})
}

type wrapResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrapResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
