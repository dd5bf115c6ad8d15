// Package workflow assembles the leaf tasks into the named workflows the
// CLI runs.
package workflow

import (
	"fmt"
	"sort"

	"github.com/msageha/sitepipe/internal/assets"
	"github.com/msageha/sitepipe/internal/deploy"
	"github.com/msageha/sitepipe/internal/lint"
	"github.com/msageha/sitepipe/internal/livereload"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

// Workflow names accepted by ByName.
const (
	NameBuild  = "build"
	NameTest   = "test"
	NameDeploy = "deployWorkflow"
	NameDev    = "devWorkflow"
)

// Options supplies the collaborators that are swapped out in tests.
type Options struct {
	// Compiler compiles the entry stylesheet; nil uses the sass CLI.
	Compiler assets.StyleCompiler
	// Publisher uploads the output; nil publishes per the deploy config.
	Publisher *deploy.Publisher
	// Server is the preview server started by the dev workflow.
	Server *livereload.Server
}

// Build produces the complete output directory.
func Build(cfg model.Config, opts Options) *task.Task {
	return task.Sequence(NameBuild,
		assets.Clean(cfg),
		task.Parallel("buildAssets",
			assets.CompileStyles(cfg, opts.Compiler),
			assets.CompileHTML(cfg),
			assets.CopyAssets(cfg),
			assets.OptimizeImages(cfg),
		),
		assets.BuildSprite(cfg),
	)
}

// Test lints the style sources.
func Test(cfg model.Config) (*task.Task, error) {
	lintStyles, err := lint.LintStyles(cfg)
	if err != nil {
		return nil, err
	}
	return task.Parallel(NameTest, lintStyles), nil
}

// Deploy builds and then publishes the output.
func Deploy(cfg model.Config, opts Options) *task.Task {
	return task.Sequence(NameDeploy,
		Build(cfg, opts),
		deploy.Deploy(cfg, opts.Publisher),
	)
}

// Dev builds a development output and starts the preview server. The
// watchers that keep it current run afterwards in Foreground.
func Dev(cfg model.Config, opts Options) (*task.Task, error) {
	if opts.Server == nil {
		return nil, fmt.Errorf("%s needs a preview server", NameDev)
	}
	return task.Sequence(NameDev,
		assets.Clean(cfg),
		task.Parallel("devAssets",
			assets.CompileStyles(cfg, opts.Compiler),
			assets.CompileHTML(cfg),
			assets.BuildSprite(cfg),
			assets.CopyAssets(cfg),
		),
		livereload.Serve(opts.Server),
	), nil
}

var builders = map[string]func(model.Config, Options) (*task.Task, error){
	NameBuild: func(cfg model.Config, opts Options) (*task.Task, error) { return Build(cfg, opts), nil },
	NameTest:  func(cfg model.Config, _ Options) (*task.Task, error) { return Test(cfg) },
	NameDeploy: func(cfg model.Config, opts Options) (*task.Task, error) {
		return Deploy(cfg, opts), nil
	},
	NameDev: Dev,
}

// ByName builds the workflow called name.
func ByName(name string, cfg model.Config, opts Options) (*task.Task, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q (want one of %v)", name, Names())
	}
	return build(cfg, opts)
}

// Names lists every workflow ByName knows, sorted.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
