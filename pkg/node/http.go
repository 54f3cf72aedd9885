package node

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skycoin/busnet/internal/httputil"
	"github.com/skycoin/busnet/internal/metrics"
	"github.com/skycoin/busnet/pkg/network"
	"github.com/skycoin/busnet/pkg/routing"
)

// SendRequest is the body of POST /api/send.
type SendRequest struct {
	Dest    routing.Addr `json:"dest"`
	Payload []byte       `json:"payload"`
}

// HTTPHandler serves the node's JSON API under /api and its metrics under /metrics.
func (node *Node) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(time.Second * 30))
	r.Use(middleware.Logger)
	r.Route("/api", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return metrics.Handler(node.httpMetrics, next)
		})
		r.Get("/status", node.getStatus())
		r.Get("/routes", node.getRoutes())
		r.Get("/nodes", node.getNodes())
		r.Get("/messages", node.getMessages())
		r.Post("/send", node.postSend())
		r.Post("/ping", node.postPing())
		r.Post("/announce", node.postAnnounce())
	})
	r.Handle("/metrics", promhttp.HandlerFor(node.registry, promhttp.HandlerOpts{}))
	return r
}

func (node *Node) getStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, r, http.StatusOK, node.Summary())
	}
}

func (node *Node) getRoutes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, r, http.StatusOK, node.Snapshot().Routes)
	}
}

func (node *Node) getNodes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, r, http.StatusOK, node.Snapshot().Nodes)
	}
}

// messages are returned in arrival order; ?drain=true drains them.
func (node *Node) getMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drain, err := httputil.BoolFromQuery(r, "drain", false)
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, node.Messages(drain))
	}
}

func (node *Node) postSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, err)
			return
		}
		if !req.Dest.Valid() {
			httputil.WriteJSON(w, r, http.StatusBadRequest, network.ErrInvalidAddress)
			return
		}
		if len(req.Payload) > network.MaxPayloadSize {
			httputil.WriteJSON(w, r, http.StatusBadRequest, network.ErrPayloadTooBig)
			return
		}
		node.withStack(w, r, func(ctx context.Context) error {
			return node.Send(ctx, req.Dest, req.Payload)
		})
	}
}

func (node *Node) postPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		node.withStack(w, r, node.Ping)
	}
}

func (node *Node) postAnnounce() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		node.withStack(w, r, node.Announce)
	}
}

// withStack runs f with the request context and writes its outcome.
func (node *Node) withStack(w http.ResponseWriter, r *http.Request, f func(ctx context.Context) error) {
	switch err := f(r.Context()); err {
	case nil:
		httputil.WriteJSON(w, r, http.StatusOK, true)
	case network.ErrNoRoute:
		httputil.WriteJSON(w, r, http.StatusNotFound, err)
	case ErrNodeClosed:
		httputil.WriteJSON(w, r, http.StatusServiceUnavailable, err)
	default:
		httputil.WriteJSON(w, r, http.StatusBadGateway, err)
	}
}
