package assets

import (
	"context"
	"fmt"

	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

// CopyAssets copies fonts, icons and images byte for byte into the output
// directory, keeping their paths relative to the source root.
func CopyAssets(cfg model.Config) *task.Task {
	srcRoot := cfg.SrcPath("")
	patterns := cfg.Paths.Assets

	var writes []string
	if files, err := fsutil.Expand(srcRoot, patterns...); err == nil {
		for _, rel := range files {
			writes = append(writes, cfg.RelDist(rel))
		}
	}

	return task.Leaf(NameCopyAssets, writes, func(ctx context.Context, env task.Env) error {
		files, err := fsutil.Expand(srcRoot, patterns...)
		if err != nil {
			return err
		}
		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fsutil.CopyFile(cfg.SrcPath(rel), cfg.DistPath(rel)); err != nil {
				return fmt.Errorf("copy %s: %w", rel, err)
			}
		}
		env.Logger.Debug("assets copied", "count", len(files))
		return nil
	})
}
