package svcinit

import "github.com/axondata/go-svcinit/internal/unix"

// Version is the current version of the go-svcinit library
const Version = "0.1.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Descriptor is the descriptor format understood by the loader
	Descriptor string
	// Namespaces indicates whether the launcher can isolate resources on
	// this platform
	Namespaces bool
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:    Version,
		Descriptor: "yaml/v1",
		Namespaces: unix.NamespacesSupported,
	}
}
