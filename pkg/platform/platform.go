// Package platform identifies the running OS/architecture and scores
// OCI manifest-list entries against it so oci.Client can pick the
// right image for the machine it's running on.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform represents a target OS/Architecture combination.
type Platform struct {
	OS   string `json:"os" yaml:"os"`
	Arch string `json:"arch" yaml:"arch"`
}

// String returns a string representation of the platform (e.g., "linux-amd64").
func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.OS, p.Arch)
}

// Current returns the platform Go itself is running on.
func Current() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// normalizeOS converts OS names to standard forms.
func normalizeOS(os string) string {
	switch strings.ToLower(os) {
	case "macos", "osx", "mac":
		return "darwin"
	case "win", "win32", "win64":
		return "windows"
	default:
		return strings.ToLower(os)
	}
}

// normalizeArch converts architecture names to standard forms.
func normalizeArch(arch string) string {
	switch strings.ToLower(arch) {
	case "x86_64", "x64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	case "i386", "i686", "x86", "386":
		return "386"
	case "armv7", "armv7l", "arm":
		return "arm"
	default:
		return strings.ToLower(arch)
	}
}

// Score rates how well a candidate os/arch/variant entry (as reported
// by an OCI manifest index) matches this platform. Zero means no
// match; higher is a better match, with a candidate that carries no
// variant ranking above one that does, so ties resolve toward the
// plain descriptor.
func (p Platform) Score(os, arch, variant string) int {
	if normalizeOS(os) != p.OS || normalizeArch(arch) != p.Arch {
		return 0
	}
	if variant == "" {
		return 2
	}
	return 1
}
