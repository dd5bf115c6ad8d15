package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultConfigName is the project configuration file looked up in the root.
const DefaultConfigName = "sitepipe.yaml"

// StateDir holds sitepipe's own bookkeeping (lock, image cache).
const StateDir = ".sitepipe"

// DefaultConfig returns the layout sitepipe assumes when no configuration
// file exists: sources in src/, output in dist/.
func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Src:         "src",
			Dist:        "dist",
			StylesEntry: "styles/main.scss",
			StylesGlob:  "styles/**/*.scss",
			HTMLGlob:    "*.html",
			Assets: []string{
				"fonts/*.{woff2,woff}",
				"*.ico",
				"img/**/*.{jpg,png,svg}",
			},
			Images:     "img/**/*.{png,jpg,svg}",
			SpriteGlob: "img/*.svg",
			CSSOut:     "css/main.min.css",
			SpriteOut:  "img/sprite.svg",
		},
		Styles: StylesConfig{
			SassCommand: "sass",
			Targets:     []string{"chrome58", "edge16", "firefox57", "safari11"},
		},
		Images: ImagesConfig{
			JPEGQuality: 80,
			CacheFile:   filepath.Join(StateDir, "images.yaml"),
		},
		Server: ServerConfig{
			Host:               "localhost",
			Port:               3000,
			CORS:               true,
			ShutdownTimeoutSec: 5,
		},
		Watch: WatchConfig{
			DebounceMs: 100,
		},
		Deploy: DeployConfig{
			Remote:     "origin",
			Branch:     "gh-pages",
			Message:    "Update",
			UserName:   "sitepipe",
			UserEmail:  "sitepipe@localhost",
			GitCommand: "git",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads configPath (relative paths resolve against root) over the
// defaults. A missing file is not an error.
func LoadConfig(root, configPath string) (Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("resolve project dir: %w", err)
	}

	cfg := DefaultConfig()
	if configPath == "" {
		configPath = DefaultConfigName
	}
	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(absRoot, configPath)
	}

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read %s: %w", filepath.Base(configPath), err)
	default:
		if err := yamlv3.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", filepath.Base(configPath), err)
		}
	}

	cfg.Root = absRoot
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(absRoot)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every workflow depends on.
func (c Config) Validate() error {
	var errs []error
	if c.Paths.Src == "" {
		errs = append(errs, errors.New("paths.src must not be empty"))
	}
	if c.Paths.Dist == "" {
		errs = append(errs, errors.New("paths.dist must not be empty"))
	}
	if filepath.Clean(c.Paths.Src) == filepath.Clean(c.Paths.Dist) {
		errs = append(errs, errors.New("paths.src and paths.dist must differ"))
	}
	if c.Paths.StylesEntry == "" {
		errs = append(errs, errors.New("paths.styles_entry must not be empty"))
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("images.jpeg_quality must be 1-100, got %d", c.Images.JPEGQuality))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Deploy.Branch == "" {
		errs = append(errs, errors.New("deploy.branch must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SrcPath joins rel (slash separated) onto the absolute source directory.
func (c Config) SrcPath(rel string) string {
	return filepath.Join(c.Root, c.Paths.Src, filepath.FromSlash(rel))
}

// DistPath joins rel (slash separated) onto the absolute output directory.
func (c Config) DistPath(rel string) string {
	return filepath.Join(c.Root, c.Paths.Dist, filepath.FromSlash(rel))
}

// StatePath resolves rel inside the project root.
func (c Config) StatePath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

// RelDist returns the project-relative, slash separated form of an output
// path under dist. Used for write-set declarations.
func (c Config) RelDist(rel string) string {
	return filepath.ToSlash(filepath.Join(c.Paths.Dist, filepath.FromSlash(rel)))
}

// RelSrc is RelDist for the source tree.
func (c Config) RelSrc(rel string) string {
	return filepath.ToSlash(filepath.Join(c.Paths.Src, filepath.FromSlash(rel)))
}
