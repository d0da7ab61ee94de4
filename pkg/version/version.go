// Package version provides version information for postmind.
//
// The version is embedded from version.txt at compile time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var versionFile string

// Version is the current version of postmind.
var Version = strings.TrimSpace(versionFile)

// Full returns a full version string with the program name.
func Full() string {
	return "postmind version " + Version
}
