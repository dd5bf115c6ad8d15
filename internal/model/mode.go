package model

import "strings"

// ModeEnvVar selects the build mode. Only "dev" enables development output.
const ModeEnvVar = "SITEPIPE_ENV"

type Mode string

const (
	ModeDev        Mode = "dev"
	ModeProduction Mode = "production"
)

// ParseMode maps an environment value to a Mode. Anything other than "dev"
// (including the empty string) is production.
func ParseMode(s string) Mode {
	if strings.TrimSpace(s) == string(ModeDev) {
		return ModeDev
	}
	return ModeProduction
}

// SourceMaps reports whether style compilation emits source maps.
func (m Mode) SourceMaps() bool {
	return m == ModeDev
}

func (m Mode) String() string {
	if m == "" {
		return string(ModeProduction)
	}
	return string(m)
}
