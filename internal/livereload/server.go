// Package livereload serves the output directory for local preview and
// pushes reload notifications to connected browsers.
package livereload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msageha/sitepipe/internal/events"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/telemetry"
	"github.com/msageha/sitepipe/templates"
)

// StreamPath is the Server-Sent Events endpoint.
const StreamPath = "/__sitepipe/livereload"

// Options configures a Server.
type Options struct {
	// Dir is the directory served at /.
	Dir  string
	Addr string
	CORS bool
	Bus  *events.Bus
	// Registry receives the clients gauge and is exposed at /metrics.
	// A private registry is created when nil.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// OptionsFromConfig maps the server section of the configuration.
func OptionsFromConfig(cfg model.Config, bus *events.Bus, reg *prometheus.Registry, logger *slog.Logger) Options {
	return Options{
		Dir:      cfg.DistPath(""),
		Addr:     net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		CORS:     cfg.Server.CORS,
		Bus:      bus,
		Registry: reg,
		Logger:   logger,
	}
}

// Server is the preview HTTP server with its live-reload stream.
type Server struct {
	opts    Options
	hub     *Hub
	handler http.Handler
	started time.Time

	mu    sync.Mutex
	srv   *http.Server
	ln    net.Listener
	errCh chan error
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = telemetry.Discard()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus(0)
	}
	gauge := promauto.With(opts.Registry).NewGauge(prometheus.GaugeOpts{
		Name: "sitepipe_livereload_clients",
		Help: "Connected live-reload clients.",
	})

	s := &Server{opts: opts, hub: newHub(opts.Bus, opts.Logger, gauge), started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(s.started).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	mux.Handle(StreamPath, s.hub)
	mux.HandleFunc(ClientScriptPath, serveClientScript)
	mux.Handle("/", newStaticHandler(opts.Dir))

	middlewares := []Middleware{Recovery(opts.Logger), Logging(opts.Logger)}
	if opts.CORS {
		middlewares = append(middlewares, CORS())
	}
	s.handler = Chain(middlewares...)(mux)
	return s
}

// Handler returns the full routing tree. Tests mount it on httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the live-reload stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listen address and serves in the background. A port
// that is already taken is reported here, before Start returns.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv.RegisterOnShutdown(s.hub.close)
	s.errCh = make(chan error, 1)

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Error("preview server stopped", "error", err)
			s.errCh <- err
		}
		close(s.errCh)
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// URL returns the preview URL, or "" before Start.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr + "/"
}

// Done is closed when the server stops serving. It yields the serve error,
// if any. Nil before Start.
func (s *Server) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCh
}

// Shutdown stops accepting connections, ends live-reload streams and waits
// for in-flight requests until ctx expires. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown preview server: %w", err)
	}
	return nil
}

func serveClientScript(w http.ResponseWriter, _ *http.Request) {
	js, err := templates.FS.ReadFile(templates.LiveReloadScript)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(js)
}
