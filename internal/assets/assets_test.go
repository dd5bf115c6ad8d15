package assets

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/sitepipe/internal/events"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

// partialCompiler stands in for Sass: it inlines `@import 'name';` lines
// from `_name.scss` partials next to the entry. When a source map is
// requested it appends an inline map attributing the first line to the
// first partial, the way Sass embeds one.
type partialCompiler struct {
	err error
}

func (c partialCompiler) Compile(_ context.Context, entry string, opts CompileOptions) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	src, err := os.ReadFile(entry)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	var sources, contents []string
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "@import") {
			name := strings.Trim(strings.TrimSuffix(strings.TrimPrefix(line, "@import"), ";"), " '\"")
			partial, err := os.ReadFile(filepath.Join(filepath.Dir(entry), "_"+name+".scss"))
			if err != nil {
				return nil, fmt.Errorf("%s:1: can't find stylesheet to import", entry)
			}
			sources = append(sources, "_"+name+".scss")
			contents = append(contents, string(partial))
			out.Write(partial)
			out.WriteByte('\n')
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if opts.SourceMap && len(sources) > 0 {
		sourceMap, err := json.Marshal(map[string]any{
			"version":        3,
			"sources":        sources,
			"sourcesContent": contents,
			"names":          []string{},
			"mappings":       "AAAA",
		})
		if err != nil {
			return nil, err
		}
		out.WriteString("/*# sourceMappingURL=data:application/json;base64," + base64.StdEncoding.EncodeToString(sourceMap) + " */\n")
	}
	return out.Bytes(), nil
}

func newProject(t *testing.T) model.Config {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Root = t.TempDir()
	return cfg
}

func put(t *testing.T, cfg model.Config, rel string, content []byte) {
	t.Helper()
	p := filepath.Join(cfg.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, content, 0644))
}

func read(t *testing.T, cfg model.Config, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(cfg.Root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func exists(cfg model.Config, rel string) bool {
	_, err := os.Stat(filepath.Join(cfg.Root, filepath.FromSlash(rel)))
	return err == nil
}

func run(t *testing.T, tk *task.Task, env task.Env) error {
	t.Helper()
	return task.NewRunner(nil, nil).Run(context.Background(), tk, env)
}

func TestClean(t *testing.T) {
	cfg := newProject(t)
	put(t, cfg, "dist/css/main.min.css", []byte("x"))

	tk := Clean(cfg)
	assert.Equal(t, []string{"dist"}, tk.Writes())
	require.NoError(t, run(t, tk, task.Env{}))
	assert.False(t, exists(cfg, "dist"))

	// cleaning a missing directory succeeds
	require.NoError(t, run(t, Clean(cfg), task.Env{}))
}

func TestCopyAssets(t *testing.T) {
	cfg := newProject(t)
	font := []byte{0x77, 0x4f, 0x46, 0x32, 0x00, 0xff}
	put(t, cfg, "src/fonts/open.woff2", font)
	put(t, cfg, "src/fonts/open.ttf", []byte("skip"))
	put(t, cfg, "src/favicon.ico", []byte("ico"))
	put(t, cfg, "src/img/icons/logo.svg", []byte("<svg/>"))
	put(t, cfg, "src/img/photo.jpg", []byte("jpg"))

	tk := CopyAssets(cfg)
	assert.Equal(t, []string{
		"dist/favicon.ico",
		"dist/fonts/open.woff2",
		"dist/img/icons/logo.svg",
		"dist/img/photo.jpg",
	}, tk.Writes())

	require.NoError(t, run(t, tk, task.Env{}))
	assert.Equal(t, string(font), read(t, cfg, "dist/fonts/open.woff2"))
	assert.Equal(t, "ico", read(t, cfg, "dist/favicon.ico"))
	assert.Equal(t, "<svg/>", read(t, cfg, "dist/img/icons/logo.svg"))
	assert.False(t, exists(cfg, "dist/fonts/open.ttf"))
}

func TestCompileHTML(t *testing.T) {
	cfg := newProject(t)
	put(t, cfg, "src/index.html", []byte("<!DOCTYPE html>\n<html>\n  <body>\n    <p>   Hello    world   </p>\n  </body>\n</html>\n"))
	put(t, cfg, "src/partials/nav.html", []byte("<nav></nav>"))

	tk := CompileHTML(cfg)
	assert.Equal(t, []string{"dist/index.html"}, tk.Writes())
	require.NoError(t, run(t, tk, task.Env{}))

	out := read(t, cfg, "dist/index.html")
	assert.NotContains(t, out, "\n  ")
	assert.Contains(t, out, "Hello world")
	assert.Contains(t, out, "</html>")
	assert.False(t, exists(cfg, "dist/partials/nav.html"), "only top-level pages are compiled")
}

func stylesProject(t *testing.T) model.Config {
	cfg := newProject(t)
	put(t, cfg, "src/styles/main.scss", []byte("@import 'base';\n"))
	put(t, cfg, "src/styles/_base.scss", []byte("body {\n  color: red;\n}\n"))
	return cfg
}

func TestCompileStyles_Production(t *testing.T) {
	cfg := stylesProject(t)
	put(t, cfg, "dist/css/main.min.css.map", []byte("stale"))

	tk := CompileStyles(cfg, partialCompiler{})
	assert.Equal(t, []string{"dist/css/main.min.css", "dist/css/main.min.css.map"}, tk.Writes())
	require.NoError(t, run(t, tk, task.Env{Mode: model.ModeProduction}))

	css := read(t, cfg, "dist/css/main.min.css")
	assert.Contains(t, css, "body{color:red}")
	assert.NotContains(t, css, "sourceMappingURL")
	assert.False(t, exists(cfg, "dist/css/main.min.css.map"), "production must not leave a source map")
}

func TestCompileStyles_DevEmitsSourceMap(t *testing.T) {
	cfg := stylesProject(t)

	require.NoError(t, run(t, CompileStyles(cfg, partialCompiler{}), task.Env{Mode: model.ModeDev}))

	css := read(t, cfg, "dist/css/main.min.css")
	assert.Contains(t, css, "body{color:red}")
	assert.Contains(t, css, "/*# sourceMappingURL=main.min.css.map */")

	sourceMap := read(t, cfg, "dist/css/main.min.css.map")
	assert.Contains(t, sourceMap, `"mappings"`)
	assert.Contains(t, sourceMap, "_base.scss", "map points back at the partial")
	assert.Contains(t, sourceMap, "color: red;", "partial source is embedded")
}

func TestSassCLI_SourceMapFlags(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	// stands in for sass and prints the arguments it received
	script := filepath.Join(t.TempDir(), "sass")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\"\n"), 0755))
	sass := SassCLI{Command: script}

	out, err := sass.Compile(context.Background(), "main.scss", CompileOptions{LoadPaths: []string{"vendor"}, SourceMap: true})
	require.NoError(t, err)
	assert.Equal(t, "--style=expanded --embed-source-map --embed-sources --load-path=vendor main.scss\n", string(out))

	out, err = sass.Compile(context.Background(), "main.scss", CompileOptions{})
	require.NoError(t, err)
	assert.Equal(t, "--style=expanded --no-source-map main.scss\n", string(out))
}

func TestCompileStyles_PublishesInjectEvent(t *testing.T) {
	cfg := stylesProject(t)
	bus := events.NewBus(4)
	defer bus.Close()

	got := make(chan events.Event, 1)
	unsub := bus.Subscribe(events.EventInjectCSS, func(e events.Event) { got <- e })
	defer unsub()

	require.NoError(t, run(t, CompileStyles(cfg, partialCompiler{}), task.Env{Bus: bus}))

	select {
	case e := <-got:
		assert.Equal(t, "css/main.min.css", e.Path)
	case <-time.After(time.Second):
		t.Fatal("no inject_css event")
	}
}

func TestCompileStyles_CompilerFailure(t *testing.T) {
	cfg := stylesProject(t)
	compileErr := errors.New("src/styles/_base.scss:3: expected \"}\"")

	err := run(t, CompileStyles(cfg, partialCompiler{err: compileErr}), task.Env{})
	require.Error(t, err)
	assert.ErrorIs(t, err, compileErr)
	assert.Equal(t, NameCompileStyles, task.FailedTask(err))
	assert.Contains(t, err.Error(), "src/styles/main.scss")
	assert.False(t, exists(cfg, "dist/css/main.min.css"))
}

func TestPostProcessCSS_VendorPrefixes(t *testing.T) {
	out, err := PostProcessCSS([]byte(".btn { user-select: none; }"), "main.css", []string{"safari11"}, "")
	require.NoError(t, err)
	assert.Contains(t, string(out.CSS), "-webkit-user-select:none")
	assert.Contains(t, string(out.CSS), "user-select:none")
	assert.Nil(t, out.Map)
}

func TestParseTargets(t *testing.T) {
	engines, err := parseTargets([]string{"chrome58", "iOS12.2"})
	require.NoError(t, err)
	require.Len(t, engines, 2)
	assert.Equal(t, "58", engines[0].Version)
	assert.Equal(t, "12.2", engines[1].Version)

	_, err = parseTargets([]string{"netscape4"})
	assert.Error(t, err)
	_, err = parseTargets([]string{"safari"})
	assert.Error(t, err)
}

func encodePNG(t *testing.T, level png.CompressionLevel) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, (&png.Encoder{CompressionLevel: level}).Encode(&buf, img))
	return buf.Bytes()
}

func TestOptimizeImages_RecompressesInPlace(t *testing.T) {
	cfg := newProject(t)
	original := encodePNG(t, png.NoCompression)
	put(t, cfg, "src/img/red.png", original)
	put(t, cfg, "src/img/icon.svg", []byte("<svg xmlns=\"http://www.w3.org/2000/svg\">\n  <!-- comment -->\n  <rect width=\"10\" height=\"10\"/>\n</svg>\n"))

	tk := OptimizeImages(cfg)
	assert.Equal(t, []string{"src/img/icon.svg", "src/img/red.png"}, tk.Writes())
	require.NoError(t, run(t, tk, task.Env{}))

	optimized := read(t, cfg, "src/img/red.png")
	assert.Less(t, len(optimized), len(original))
	_, err := png.Decode(strings.NewReader(optimized))
	assert.NoError(t, err, "output must still be a valid PNG")

	assert.NotContains(t, read(t, cfg, "src/img/icon.svg"), "comment")
	assert.True(t, exists(cfg, ".sitepipe/images.yaml"))
}

func TestOptimizeImages_SecondRunIsStable(t *testing.T) {
	cfg := newProject(t)
	put(t, cfg, "src/img/red.png", encodePNG(t, png.NoCompression))

	require.NoError(t, run(t, OptimizeImages(cfg), task.Env{}))
	first := read(t, cfg, "src/img/red.png")
	require.NoError(t, run(t, OptimizeImages(cfg), task.Env{}))
	assert.Equal(t, first, read(t, cfg, "src/img/red.png"))
}

func TestOptimizeImages_DecodeFailure(t *testing.T) {
	cfg := newProject(t)
	put(t, cfg, "src/img/broken.png", []byte("not a png"))

	err := run(t, OptimizeImages(cfg), task.Env{})
	require.Error(t, err)
	assert.Equal(t, NameOptimizeImages, task.FailedTask(err))
	assert.Contains(t, err.Error(), "decode img/broken.png")
}

func TestImageOptimizer_KeepsLargerResults(t *testing.T) {
	best := encodePNG(t, png.BestCompression)
	out, err := NewImageOptimizer(80).Optimize("a.png", best)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), len(best))

	other := []byte("plain bytes")
	out, err = NewImageOptimizer(80).Optimize("a.gif", other)
	require.NoError(t, err)
	assert.Equal(t, other, out)
}

func TestBuildSprite(t *testing.T) {
	cfg := newProject(t)
	put(t, cfg, "src/img/search.svg", []byte(`<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><circle cx="10" cy="10" r="7"/></svg>`))
	put(t, cfg, "src/img/close.svg", []byte(`<svg viewBox="0 0 16 16" width="16"><path d="M0 0L16 16"/></svg>`))
	put(t, cfg, "src/img/nested/skip.svg", []byte(`<svg><g/></svg>`))

	tk := BuildSprite(cfg)
	assert.Equal(t, []string{"dist/img/sprite.svg"}, tk.Writes())
	require.NoError(t, run(t, tk, task.Env{}))

	sprite := read(t, cfg, "dist/img/sprite.svg")
	assert.Equal(t,
		`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">`+
			`<symbol id="close" viewBox="0 0 16 16"><path d="M0 0L16 16"/></symbol>`+
			`<symbol id="search" viewBox="0 0 24 24"><circle cx="10" cy="10" r="7"/></symbol>`+
			`</svg>`,
		sprite)
}

func TestBuildSprite_NoSVG(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.MkdirAll(cfg.SrcPath("img"), 0755))

	err := run(t, BuildSprite(cfg), task.Env{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSVG)
}

func TestParseSymbol(t *testing.T) {
	sym, err := ParseSymbol("dot", []byte(`<svg viewBox="0 0 1 1"/>`))
	require.NoError(t, err)
	assert.Equal(t, "0 0 1 1", sym.ViewBox)
	assert.Empty(t, sym.Inner)

	_, err = ParseSymbol("bad", []byte(`<html></html>`))
	assert.Error(t, err)

	_, err = ParseSymbol("empty", []byte(``))
	assert.Error(t, err)
}
