package assets

import (
	"context"
	"fmt"
	"os"

	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

// Clean removes the output directory recursively.
func Clean(cfg model.Config) *task.Task {
	dist := cfg.DistPath("")
	return task.Leaf(NameClean, []string{cfg.RelDist("")}, func(_ context.Context, env task.Env) error {
		if err := os.RemoveAll(dist); err != nil {
			return fmt.Errorf("remove %s: %w", dist, err)
		}
		env.Logger.Debug("output removed", "path", dist)
		return nil
	})
}
