package livereload

import (
	"context"

	"github.com/msageha/sitepipe/internal/events"
	"github.com/msageha/sitepipe/internal/task"
)

// Task names used in logs and metrics.
const (
	NameServe         = "serve"
	NameReloadClients = "reloadClients"
)

// Serve binds srv and returns once it is accepting connections. Serving
// continues after the task finishes; the caller owns shutdown.
func Serve(srv *Server) *task.Task {
	return task.Leaf(NameServe, nil, func(_ context.Context, env task.Env) error {
		if err := srv.Start(); err != nil {
			return err
		}
		env.Logger.Info("preview server listening", "url", srv.URL())
		return nil
	})
}

// ReloadClients asks every connected preview client to refresh. It never
// fails: with nobody listening the notification is simply dropped.
func ReloadClients() *task.Task {
	return task.Leaf(NameReloadClients, nil, func(_ context.Context, env task.Env) error {
		env.Bus.Publish(events.Event{Type: events.EventReload, Task: NameReloadClients})
		return nil
	})
}
