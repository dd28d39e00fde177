// Package buildinfo exposes the version stamped at build time.
package buildinfo

// Overridden by the linker on release builds:
//
//	go build -ldflags "-X tapbot/internal/buildinfo.version=v1.2.0"
var version = "dev"

func Version() string {
	return version
}
