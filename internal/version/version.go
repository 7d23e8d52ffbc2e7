// Package version holds build metadata for keygate.
package version

// Injected at build time via -ldflags "-X".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String returns formatted version information.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + BuildDate + ")"
}
