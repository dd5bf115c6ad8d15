package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/msageha/sitepipe/internal/assets"
	"github.com/msageha/sitepipe/internal/events"
	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/livereload"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
	"github.com/msageha/sitepipe/internal/telemetry"
	"github.com/msageha/sitepipe/internal/workflow"
)

const (
	lockFile        = "build.lock"
	defaultShutdown = 5 * time.Second
)

// app holds the persistent flags and process environment shared by every
// command.
type app struct {
	dir        string
	configPath string
	logLevel   string

	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	// compiler replaces the sass CLI in tests.
	compiler assets.StyleCompiler
}

// session is everything one workflow run needs.
type session struct {
	cfg      model.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	bus      *events.Bus
	runner   *task.Runner
	env      task.Env
}

// loadConfig reads the project configuration and fixes the build mode from
// the environment.
func (a *app) loadConfig() (model.Config, error) {
	dir := a.dir
	if dir == "" {
		dir = "."
	}
	cfg, err := model.LoadConfig(dir, a.configPath)
	if err != nil {
		return model.Config{}, err
	}
	cfg.Mode = model.ParseMode(a.getenv(model.ModeEnvVar))
	return cfg, nil
}

func (a *app) newSession() (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if v := a.getenv("LOG_LEVEL"); v != "" {
		level = v
	}
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger := telemetry.NewLogger(a.stderr, level, cfg.Logging.Format)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bus := events.NewBus(0)

	return &session{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		bus:      bus,
		runner:   task.NewRunner(logger, task.NewMetrics(reg)),
		env:      task.Env{Mode: cfg.Mode, Logger: logger, Bus: bus},
	}, nil
}

func (s *session) close() {
	s.bus.Close()
}

// lock takes the project build lock. The returned func releases it.
func (s *session) lock() (func(), error) {
	fl := fsutil.NewFileLock(s.cfg.StatePath(filepath.Join(model.StateDir, lockFile)))
	if err := fl.TryLock(); err != nil {
		return nil, err
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("release build lock", "error", err)
		}
	}, nil
}

func (a *app) options(s *session) workflow.Options {
	opts := workflow.Options{Compiler: a.compiler}
	if s != nil {
		opts.Server = livereload.NewServer(livereload.OptionsFromConfig(s.cfg, s.bus, s.registry, s.logger))
	}
	return opts
}

// runWorkflow builds and runs a terminating workflow under the build lock.
func (a *app) runWorkflow(ctx context.Context, name string) error {
	s, err := a.newSession()
	if err != nil {
		return err
	}
	defer s.close()

	root, err := workflow.ByName(name, s.cfg, a.options(nil))
	if err != nil {
		return err
	}
	if name != workflow.NameTest {
		unlock, err := s.lock()
		if err != nil {
			return err
		}
		defer unlock()
	}
	return s.runner.Run(ctx, root, s.env)
}

// runDev builds a development output, serves it and keeps it current
// until ctx is cancelled.
func (a *app) runDev(ctx context.Context) error {
	s, err := a.newSession()
	if err != nil {
		return err
	}
	defer s.close()

	opts := a.options(s)
	root, err := workflow.Dev(s.cfg, opts)
	if err != nil {
		return err
	}
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.runner.Run(ctx, root, s.env); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdown)
		defer cancel()
		_ = opts.Server.Shutdown(shutdownCtx)
		return err
	}
	fmt.Fprintf(a.stdout, "serving %s at %s\n", s.cfg.RelDist(""), opts.Server.URL())
	return workflow.Foreground(ctx, s.cfg, s.runner, s.env, opts)
}
