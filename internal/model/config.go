// Package model defines sitepipe's project configuration and build mode.
package model

type Config struct {
	Project ProjectConfig `yaml:"project"`
	Paths   PathsConfig   `yaml:"paths"`
	Styles  StylesConfig  `yaml:"styles"`
	Images  ImagesConfig  `yaml:"images"`
	Lint    LintConfig    `yaml:"lint"`
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
	Deploy  DeployConfig  `yaml:"deploy"`
	Logging LoggingConfig `yaml:"logging"`

	// Root is the absolute project directory. Not read from yaml.
	Root string `yaml:"-"`
	// Mode is fixed once at startup from the environment.
	Mode Mode `yaml:"-"`
}

type ProjectConfig struct {
	Name string `yaml:"name"`
}

// PathsConfig holds the input and output layout. Globs are relative to Src
// unless noted otherwise; outputs are relative to Dist.
type PathsConfig struct {
	Src  string `yaml:"src"`
	Dist string `yaml:"dist"`

	StylesEntry string   `yaml:"styles_entry"`
	StylesGlob  string   `yaml:"styles_glob"`
	HTMLGlob    string   `yaml:"html_glob"`
	Assets      []string `yaml:"assets"`
	Images      string   `yaml:"images"`
	SpriteGlob  string   `yaml:"sprite_glob"`

	CSSOut    string `yaml:"css_out"`
	SpriteOut string `yaml:"sprite_out"`
}

type StylesConfig struct {
	// SassCommand is the executable used to compile the entry stylesheet.
	SassCommand string   `yaml:"sass_command"`
	LoadPaths   []string `yaml:"load_paths,omitempty"`
	// Targets are engine versions used for vendor prefixing, e.g. "safari11".
	Targets []string `yaml:"targets"`
}

type ImagesConfig struct {
	JPEGQuality int    `yaml:"jpeg_quality"`
	CacheFile   string `yaml:"cache_file"`
}

type LintConfig struct {
	Rules []string `yaml:"rules,omitempty"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	CORS bool   `yaml:"cors"`
	// ShutdownTimeoutSec bounds graceful shutdown of the preview server.
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type DeployConfig struct {
	Remote     string `yaml:"remote"`
	Branch     string `yaml:"branch"`
	Message    string `yaml:"message"`
	UserName   string `yaml:"user_name"`
	UserEmail  string `yaml:"user_email"`
	GitCommand string `yaml:"git_command"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
