// Package version reports the build version of the mcpfunnel binaries.
package version

import "runtime/debug"

var version = "dev"

// Version returns the module version recorded in build info for released
// builds, otherwise the value injected with
// -ldflags "-X github.com/vinodismyname/mcpfunnel/pkg/version.version=...".
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		return info.Main.Version
	}
	return version
}

// GoVersion returns the toolchain that built the binary, or "unknown".
func GoVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}
