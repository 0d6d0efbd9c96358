// Package version holds build information.
package version

// Version is set at build time with -ldflags "-X github.com/mandalnilabja/chatgate/internal/version.Version=...".
var Version = "dev"
