package assets

import (
	"context"
	"fmt"
	"os"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

const mimeHTML = "text/html"

// newHTMLMinifier collapses whitespace while keeping the document structure
// intact: document and end tags, attribute quotes and default values stay.
func newHTMLMinifier() *minify.M {
	m := minify.New()
	m.Add(mimeHTML, &html.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})
	return m
}

// MinifyHTML collapses whitespace in an HTML document.
func MinifyHTML(src []byte) ([]byte, error) {
	return newHTMLMinifier().Bytes(mimeHTML, src)
}

// CompileHTML minifies every page matching paths.html_glob into the output
// directory.
func CompileHTML(cfg model.Config) *task.Task {
	srcRoot := cfg.SrcPath("")
	pattern := cfg.Paths.HTMLGlob

	var writes []string
	if files, err := fsutil.Expand(srcRoot, pattern); err == nil {
		for _, rel := range files {
			writes = append(writes, cfg.RelDist(rel))
		}
	}

	return task.Leaf(NameCompileHTML, writes, func(ctx context.Context, env task.Env) error {
		files, err := fsutil.Expand(srcRoot, pattern)
		if err != nil {
			return err
		}
		m := newHTMLMinifier()
		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(cfg.SrcPath(rel))
			if err != nil {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			out, err := m.Bytes(mimeHTML, src)
			if err != nil {
				return fmt.Errorf("minify %s: %w", rel, err)
			}
			if err := fsutil.WriteFileAtomic(cfg.DistPath(rel), out, 0644); err != nil {
				return fmt.Errorf("write %s: %w", rel, err)
			}
		}
		env.Logger.Debug("pages minified", "count", len(files))
		return nil
	})
}
