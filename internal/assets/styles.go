package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"strings"
	"unicode"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/msageha/sitepipe/internal/events"
	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

// StyleCompiler turns the entry stylesheet (nested syntax with imports)
// into plain CSS.
type StyleCompiler interface {
	Compile(ctx context.Context, entry string, opts CompileOptions) ([]byte, error)
}

type CompileOptions struct {
	LoadPaths []string
	// SourceMap asks for an inline source map with embedded sources at the
	// end of the CSS. PostProcessCSS chains it into the final map so that
	// entries point at the original partials.
	SourceMap bool
}

// SassCLI compiles with an external Sass executable (dart-sass).
type SassCLI struct {
	Command string
}

func (s SassCLI) Compile(ctx context.Context, entry string, opts CompileOptions) ([]byte, error) {
	command := s.Command
	if command == "" {
		command = "sass"
	}
	args := []string{"--style=expanded"}
	if opts.SourceMap {
		args = append(args, "--embed-source-map", "--embed-sources")
	} else {
		args = append(args, "--no-source-map")
	}
	for _, lp := range opts.LoadPaths {
		args = append(args, "--load-path="+lp)
	}
	args = append(args, entry)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %s", command, msg)
		}
		return nil, fmt.Errorf("run %s: %w", command, err)
	}
	return stdout.Bytes(), nil
}

// StyleOutput is the result of post-processing compiled CSS.
type StyleOutput struct {
	CSS []byte
	// Map is nil unless source maps were requested.
	Map []byte
}

// PostProcessCSS adds vendor prefixes required by targets and minifies css.
// sourceName is recorded in diagnostics and in the source map; mapName,
// when non-empty, requests an external source map referenced from the CSS.
// An inline source map already present in css is folded into that map.
func PostProcessCSS(css []byte, sourceName string, targets []string, mapName string) (StyleOutput, error) {
	engines, err := parseTargets(targets)
	if err != nil {
		return StyleOutput{}, err
	}

	opts := api.TransformOptions{
		Loader:            api.LoaderCSS,
		Sourcefile:        sourceName,
		Engines:           engines,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		LogLevel:          api.LogLevelSilent,
	}
	if mapName != "" {
		opts.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(string(css), opts)
	if len(result.Errors) > 0 {
		return StyleOutput{}, formatMessages(result.Errors)
	}

	out := StyleOutput{CSS: result.Code}
	if mapName != "" {
		out.Map = result.Map
		out.CSS = append(bytes.TrimRight(out.CSS, "\n"), []byte("\n/*# sourceMappingURL="+mapName+" */\n")...)
	}
	return out, nil
}

// CompileStyles compiles paths.styles_entry to paths.css_out. Source maps are
// written next to the CSS only in dev mode. On success connected preview
// clients are told to swap the stylesheet.
func CompileStyles(cfg model.Config, compiler StyleCompiler) *task.Task {
	if compiler == nil {
		compiler = SassCLI{Command: cfg.Styles.SassCommand}
	}
	entry := cfg.SrcPath(cfg.Paths.StylesEntry)
	cssOut := cfg.Paths.CSSOut
	mapOut := cssOut + ".map"

	var loadPaths []string
	for _, lp := range cfg.Styles.LoadPaths {
		loadPaths = append(loadPaths, cfg.StatePath(lp))
	}

	writes := []string{cfg.RelDist(cssOut), cfg.RelDist(mapOut)}

	return task.Leaf(NameCompileStyles, writes, func(ctx context.Context, env task.Env) error {
		sourceMaps := env.Mode.SourceMaps()
		compiled, err := compiler.Compile(ctx, entry, CompileOptions{LoadPaths: loadPaths, SourceMap: sourceMaps})
		if err != nil {
			return fmt.Errorf("compile %s: %w", cfg.RelSrc(cfg.Paths.StylesEntry), err)
		}

		mapName := ""
		if sourceMaps {
			mapName = path.Base(mapOut)
		}
		sourceName := strings.TrimSuffix(path.Base(cfg.Paths.StylesEntry), path.Ext(cfg.Paths.StylesEntry)) + ".css"

		out, err := PostProcessCSS(compiled, sourceName, cfg.Styles.Targets, mapName)
		if err != nil {
			return fmt.Errorf("process %s: %w", cfg.RelSrc(cfg.Paths.StylesEntry), err)
		}

		if err := fsutil.WriteFileAtomic(cfg.DistPath(cssOut), out.CSS, 0644); err != nil {
			return fmt.Errorf("write %s: %w", cssOut, err)
		}
		if out.Map != nil {
			if err := fsutil.WriteFileAtomic(cfg.DistPath(mapOut), out.Map, 0644); err != nil {
				return fmt.Errorf("write %s: %w", mapOut, err)
			}
		} else if err := os.Remove(cfg.DistPath(mapOut)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale %s: %w", mapOut, err)
		}

		env.Logger.Debug("stylesheet written", "path", cssOut, "bytes", len(out.CSS), "source_map", out.Map != nil)
		env.Bus.Publish(events.Event{Type: events.EventInjectCSS, Path: cssOut, Task: NameCompileStyles})
		return nil
	})
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// parseTargets turns entries like "safari11" or "ios12.2" into engines.
func parseTargets(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		t = strings.ToLower(strings.TrimSpace(t))
		i := strings.IndexFunc(t, unicode.IsDigit)
		if i <= 0 {
			return nil, fmt.Errorf("invalid style target %q", t)
		}
		name, ok := engineNames[t[:i]]
		if !ok {
			return nil, fmt.Errorf("unknown style target engine %q", t[:i])
		}
		engines = append(engines, api.Engine{Name: name, Version: t[i:]})
	}
	return engines, nil
}

func formatMessages(msgs []api.Message) error {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column+1, m.Text))
		} else {
			lines = append(lines, m.Text)
		}
	}
	return errors.New(strings.Join(lines, "\n"))
}
