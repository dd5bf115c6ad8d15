package assets

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

// ErrNoSVG is returned by BuildSprite when the sprite glob matches nothing.
var ErrNoSVG = errors.New("no SVG files to combine")

// SpriteSymbol is one icon inside a sprite.
type SpriteSymbol struct {
	ID      string
	ViewBox string
	Inner   []byte
}

// ParseSymbol extracts the root <svg> viewBox and inner markup of an SVG
// document. id becomes the symbol identifier.
func ParseSymbol(id string, doc []byte) (SpriteSymbol, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return SpriteSymbol{}, errors.New("no <svg> root element")
		}
		if err != nil {
			return SpriteSymbol{}, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return SpriteSymbol{}, fmt.Errorf("root element is <%s>, want <svg>", start.Name.Local)
		}

		sym := SpriteSymbol{ID: id}
		for _, a := range start.Attr {
			if a.Name.Local == "viewBox" {
				sym.ViewBox = a.Value
			}
		}
		innerStart := dec.InputOffset()
		innerEnd := bytes.LastIndex(doc, []byte("</svg>"))
		if innerEnd < int(innerStart) {
			// self-closing root
			return sym, nil
		}
		sym.Inner = bytes.TrimSpace(doc[innerStart:innerEnd])
		return sym, nil
	}
}

// RenderSprite combines symbols into one SVG document in the given order.
func RenderSprite(symbols []SpriteSymbol) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">`)
	for _, s := range symbols {
		buf.WriteString(`<symbol id="`)
		xml.EscapeText(&buf, []byte(s.ID))
		buf.WriteString(`"`)
		if s.ViewBox != "" {
			buf.WriteString(` viewBox="`)
			xml.EscapeText(&buf, []byte(s.ViewBox))
			buf.WriteString(`"`)
		}
		buf.WriteString(`>`)
		buf.Write(s.Inner)
		buf.WriteString(`</symbol>`)
	}
	buf.WriteString(`</svg>`)
	return buf.Bytes()
}

// BuildSprite combines the top-level SVG icons into paths.sprite_out. Each
// icon becomes a <symbol> named after its file.
func BuildSprite(cfg model.Config) *task.Task {
	srcRoot := cfg.SrcPath("")
	pattern := cfg.Paths.SpriteGlob
	out := cfg.Paths.SpriteOut

	return task.Leaf(NameBuildSprite, []string{cfg.RelDist(out)}, func(ctx context.Context, env task.Env) error {
		files, err := fsutil.Expand(srcRoot, pattern)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("%w: %s", ErrNoSVG, cfg.RelSrc(pattern))
		}

		symbols := make([]SpriteSymbol, 0, len(files))
		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			// a previous sprite inside the source tree is output, not input
			if path.Base(rel) == path.Base(out) {
				continue
			}
			doc, err := os.ReadFile(cfg.SrcPath(rel))
			if err != nil {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			id := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
			sym, err := ParseSymbol(id, doc)
			if err != nil {
				return fmt.Errorf("parse %s: %w", rel, err)
			}
			symbols = append(symbols, sym)
		}
		if len(symbols) == 0 {
			return fmt.Errorf("%w: %s", ErrNoSVG, cfg.RelSrc(pattern))
		}

		if err := fsutil.WriteFileAtomic(cfg.DistPath(out), RenderSprite(symbols), 0644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		env.Logger.Debug("sprite written", "path", out, "symbols", len(symbols))
		return nil
	})
}
