// Package templates embeds the default project configuration and the
// live-reload browser client.
package templates

import "embed"

// File names inside FS.
const (
	ConfigFile       = "sitepipe.yaml"
	LiveReloadScript = "livereload.js"
)

//go:embed sitepipe.yaml livereload.js
var FS embed.FS
