// Package setup scaffolds a new sitepipe project.
package setup

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/templates"
)

const starterHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>%s</title>
  <link rel="stylesheet" href="css/main.min.css">
</head>
<body>
  <h1>%s</h1>
  <svg width="16" height="16"><use href="img/sprite.svg#icon"></use></svg>
</body>
</html>
`

const starterStyles = `@import "blocks/page";
`

// starterIcon gives buildSprite something to combine on the first build.
const starterIcon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16">
  <circle cx="8" cy="8" r="7"/>
</svg>
`

const starterPartial = `body {
  margin: 0;
  font-family: sans-serif;
}
`

// Run writes sitepipe.yaml and a starter source tree into projectDir.
// projectName overrides the directory basename. Existing source files are
// left alone; an existing configuration is an error.
func Run(projectDir, projectName string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	cfgPath := filepath.Join(absDir, model.DefaultConfigName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	if projectName == "" {
		projectName = filepath.Base(absDir)
	}
	data, err := generateConfig(projectName)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}

	cfg := model.DefaultConfig()
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse generated config: %w", err)
	}
	cfg.Root = absDir

	dirs := []string{"styles/blocks", "img", "fonts"}
	for _, d := range dirs {
		if err := os.MkdirAll(cfg.SrcPath(d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	starters := map[string][]byte{
		"index.html":              []byte(fmt.Sprintf(starterHTML, projectName, projectName)),
		cfg.Paths.StylesEntry:     []byte(starterStyles),
		"styles/blocks/page.scss": []byte(starterPartial),
		"img/icon.svg":            []byte(starterIcon),
	}
	for rel, content := range starters {
		if err := writeIfMissing(cfg.SrcPath(rel), content); err != nil {
			return err
		}
	}

	if err := fsutil.WriteFileAtomic(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", model.DefaultConfigName, err)
	}
	return nil
}

// generateConfig fills project.name into the embedded template. The yaml
// is edited as a node tree so the template's comments survive.
func generateConfig(projectName string) ([]byte, error) {
	data, err := fs.ReadFile(templates.FS, templates.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	name := lookup(&doc, "project", "name")
	if name == nil {
		return nil, errors.New("config template has no project.name")
	}
	name.Value = projectName
	name.Style = yamlv3.DoubleQuotedStyle

	var buf bytes.Buffer
	enc := yamlv3.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// lookup walks mapping keys from the document root.
func lookup(n *yamlv3.Node, keys ...string) *yamlv3.Node {
	if n.Kind == yamlv3.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for _, key := range keys {
		if n.Kind != yamlv3.MappingNode {
			return nil
		}
		var next *yamlv3.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == key {
				next = n.Content[i+1]
				break
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}

func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := fsutil.WriteFileAtomic(path, content, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
