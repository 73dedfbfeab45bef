// Package version reports the build of the dirtytables binary.
//
// Version, commit and build time are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/dirtytables/version.Version=1.2.0" ./cmd/dirtytables
//
// Unset values fall back to the VCS stamp embedded by the Go toolchain.
package version
