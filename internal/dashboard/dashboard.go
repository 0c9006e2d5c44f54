// Package dashboard serves the detector's observability surface: current
// state as JSON, a WebSocket event stream, Prometheus metrics and the
// health endpoints.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emberhill/turnsense/internal/eventlog"
	"github.com/emberhill/turnsense/internal/health"
	"github.com/emberhill/turnsense/pkg/turn"
)

// writeTimeout bounds a single WebSocket frame write.
const writeTimeout = 5 * time.Second

// State is the snapshot returned by GET /state.
type State struct {
	Recording             bool             `json:"recording"`
	Level                 float32          `json:"level"`
	BufferDurationSeconds float64          `json:"buffer_duration_seconds"`
	LastResult            *turn.Result     `json:"last_result,omitempty"`
	Events                []eventlog.Entry `json:"events"`
}

// StateFunc supplies the live portion of a [State] snapshot; the server
// fills in Events from the log.
type StateFunc func() State

// Server exposes the detector over HTTP.
type Server struct {
	state  StateFunc
	hub    *Hub
	log    *eventlog.Log
	health *health.Handler
}

// New creates a dashboard server. health may be nil to skip the probe
// endpoints.
func New(state StateFunc, hub *Hub, log *eventlog.Log, h *health.Handler) *Server {
	return &Server{state: state, hub: hub, log: log, health: h}
}

// Handler returns the dashboard routes:
//
//	GET /state   — JSON state snapshot including recent events
//	GET /events  — WebSocket stream of state-change events
//	GET /metrics — Prometheus metrics
//	GET /healthz, GET /readyz — probes (when a health handler was given)
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return mux
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.state()
	st.Events = s.log.Entries()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server shutting down")

	// CloseRead discards client frames and cancels the context when the
	// client goes away; /events is write-only.
	ctx := conn.CloseRead(r.Context())

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
