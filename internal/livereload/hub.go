package livereload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/msageha/sitepipe/internal/events"
)

// Stream event names understood by the browser client.
const (
	streamReload = "reload"
	streamCSS    = "css"
)

const keepAliveInterval = 15 * time.Second

// Hub streams bus events to connected preview clients as Server-Sent
// Events.
type Hub struct {
	bus     *events.Bus
	logger  *slog.Logger
	gauge   prometheus.Gauge
	clients atomic.Int64
	done    chan struct{}
}

func newHub(bus *events.Bus, logger *slog.Logger, gauge prometheus.Gauge) *Hub {
	return &Hub{bus: bus, logger: logger, gauge: gauge, done: make(chan struct{})}
}

// Clients returns the number of connected streams.
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

// close ends every open stream.
func (h *Hub) close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

type streamMessage struct {
	Path string `json:"path,omitempty"`
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan events.Event, 16)
	forward := func(e events.Event) {
		select {
		case ch <- e:
		default:
		}
	}
	unsubReload := h.bus.Subscribe(events.EventReload, forward)
	defer unsubReload()
	unsubCSS := h.bus.Subscribe(events.EventInjectCSS, forward)
	defer unsubCSS()

	h.clients.Add(1)
	h.gauge.Inc()
	defer func() {
		h.clients.Add(-1)
		h.gauge.Dec()
	}()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 1000\n: connected\n\n")
	flusher.Flush()

	h.logger.Debug("live-reload client connected", "remote_addr", r.RemoteAddr)
	defer h.logger.Debug("live-reload client disconnected", "remote_addr", r.RemoteAddr)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e := <-ch:
			name := streamReload
			if e.Type == events.EventInjectCSS {
				name = streamCSS
			}
			data, _ := json.Marshal(streamMessage{Path: e.Path})
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
