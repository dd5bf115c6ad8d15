package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msageha/sitepipe/internal/assets"
	"github.com/msageha/sitepipe/internal/livereload"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
	"github.com/msageha/sitepipe/internal/telemetry"
	"github.com/msageha/sitepipe/internal/watch"
)

// Watchers returns the dev-mode rebuild rules: style sources recompile the
// stylesheet, HTML sources are recompiled and the preview reloaded.
func Watchers(cfg model.Config, runner *task.Runner, env task.Env, opts Options) []*watch.Watcher {
	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond

	rules := []struct {
		pattern string
		task    *task.Task
	}{
		{cfg.RelSrc(cfg.Paths.StylesGlob), assets.CompileStyles(cfg, opts.Compiler)},
		{cfg.RelSrc(cfg.Paths.HTMLGlob), task.Sequence("pages",
			assets.CompileHTML(cfg),
			livereload.ReloadClients(),
		)},
	}

	watchers := make([]*watch.Watcher, 0, len(rules))
	for _, r := range rules {
		t := r.task
		watchers = append(watchers, watch.New(cfg.Root, r.pattern, func(ctx context.Context) error {
			return runner.RunTask(ctx, t, env)
		}, watch.WithDebounce(debounce), watch.WithLogger(env.Logger)))
	}
	return watchers
}

// Foreground keeps the dev session alive: it runs the watchers until ctx is
// cancelled (normally by SIGINT) or the preview server fails, then shuts the
// server down.
func Foreground(ctx context.Context, cfg model.Config, runner *task.Runner, env task.Env, opts Options) error {
	if opts.Server == nil {
		return errors.New("foreground phase needs a preview server")
	}

	if env.Logger == nil {
		env.Logger = telemetry.Discard()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchers := Watchers(cfg, runner, env, opts)
	started := make([]*watch.Watcher, 0, len(watchers))
	var startErr error
	for _, w := range watchers {
		if err := w.Start(ctx); err != nil {
			startErr = fmt.Errorf("start watcher: %w", err)
			break
		}
		started = append(started, w)
	}

	var serveErr error
	if startErr == nil {
		env.Logger.Info("watching for changes", "styles", cfg.RelSrc(cfg.Paths.StylesGlob), "html", cfg.RelSrc(cfg.Paths.HTMLGlob))
		select {
		case <-ctx.Done():
		case err, ok := <-opts.Server.Done():
			if ok && err != nil {
				serveErr = fmt.Errorf("preview server: %w", err)
			}
		}
	}

	cancel()
	for _, w := range started {
		w.Wait()
	}

	timeout := time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	shutdownErr := opts.Server.Shutdown(shutdownCtx)

	env.Logger.Info("dev session stopped")
	return errors.Join(startErr, serveErr, shutdownErr)
}
