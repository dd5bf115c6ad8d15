package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

const mimeSVG = "image/svg+xml"

// imageCache remembers the digest of every file this task produced, so an
// already optimized image is not recompressed on the next build.
type imageCache struct {
	Optimized map[string]string `yaml:"optimized"`
}

func loadImageCache(p string) (*imageCache, error) {
	c := &imageCache{Optimized: map[string]string{}}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read image cache: %w", err)
	}
	if err := yamlv3.Unmarshal(data, c); err != nil {
		// a corrupt cache only costs one extra optimization pass
		return &imageCache{Optimized: map[string]string{}}, nil
	}
	if c.Optimized == nil {
		c.Optimized = map[string]string{}
	}
	return c, nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ImageOptimizer recompresses a single image. It returns the input
// unchanged when it cannot do better.
type ImageOptimizer struct {
	JPEGQuality int
	svg         *minify.M
}

func NewImageOptimizer(jpegQuality int) *ImageOptimizer {
	m := minify.New()
	m.Add(mimeSVG, &svg.Minifier{})
	return &ImageOptimizer{JPEGQuality: jpegQuality, svg: m}
}

// Optimize dispatches on the file extension of name.
func (o *ImageOptimizer) Optimize(name string, src []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		out, err = o.png(src)
	case ".jpg", ".jpeg":
		out, err = o.jpeg(src)
	case ".svg":
		out, err = o.svg.Bytes(mimeSVG, src)
	default:
		return src, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if len(out) >= len(src) {
		return src, nil
	}
	return out, nil
}

func (o *ImageOptimizer) png(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *ImageOptimizer) jpeg(src []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OptimizeImages recompresses source images in place. A file is rewritten
// only when the result is smaller, and files whose digest matches the cache
// are skipped.
func OptimizeImages(cfg model.Config) *task.Task {
	srcRoot := cfg.SrcPath("")
	pattern := cfg.Paths.Images
	cachePath := cfg.StatePath(cfg.Images.CacheFile)

	var writes []string
	if files, err := fsutil.Expand(srcRoot, pattern); err == nil {
		for _, rel := range files {
			writes = append(writes, cfg.RelSrc(rel))
		}
	}

	return task.Leaf(NameOptimizeImages, writes, func(ctx context.Context, env task.Env) error {
		files, err := fsutil.Expand(srcRoot, pattern)
		if err != nil {
			return err
		}
		cache, err := loadImageCache(cachePath)
		if err != nil {
			return err
		}

		opt := NewImageOptimizer(cfg.Images.JPEGQuality)
		seen := make(map[string]string, len(files))
		var saved, rewritten int
		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := cfg.SrcPath(rel)
			src, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			sum := digest(src)
			if cache.Optimized[rel] == sum {
				seen[rel] = sum
				continue
			}

			out, err := opt.Optimize(rel, src)
			if err != nil {
				return err
			}
			if len(out) < len(src) {
				info, err := os.Stat(p)
				if err != nil {
					return fmt.Errorf("stat %s: %w", rel, err)
				}
				if err := fsutil.WriteFileAtomic(p, out, info.Mode().Perm()); err != nil {
					return fmt.Errorf("write %s: %w", rel, err)
				}
				saved += len(src) - len(out)
				rewritten++
			}
			seen[rel] = digest(out)
		}

		cache.Optimized = seen
		if err := fsutil.WriteYAMLAtomic(cachePath, cache); err != nil {
			return fmt.Errorf("write image cache: %w", err)
		}
		env.Logger.Debug("images optimized", "count", len(files), "rewritten", rewritten, "bytes_saved", saved)
		return nil
	})
}
