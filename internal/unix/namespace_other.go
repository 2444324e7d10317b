//go:build !linux

package unix

// NamespacesSupported reports whether CloneFlags has any effect.
const NamespacesSupported = false

// CloneFlags always returns 0 on platforms without namespaces.
func CloneFlags(Kind) uintptr {
	return 0
}
