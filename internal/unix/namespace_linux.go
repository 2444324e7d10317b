//go:build linux

package unix

import sysunix "golang.org/x/sys/unix"

// NamespacesSupported reports whether CloneFlags has any effect.
const NamespacesSupported = true

// CloneFlags returns the clone(2) flags that create a fresh namespace for
// every kind in k.
func CloneFlags(k Kind) uintptr {
	var flags uintptr
	if k&KindMount != 0 {
		flags |= sysunix.CLONE_NEWNS
	}
	if k&KindNetwork != 0 {
		flags |= sysunix.CLONE_NEWNET
	}
	if k&KindIPC != 0 {
		flags |= sysunix.CLONE_NEWIPC
	}
	if k&KindUTS != 0 {
		flags |= sysunix.CLONE_NEWUTS
	}
	if k&KindPID != 0 {
		flags |= sysunix.CLONE_NEWPID
	}
	return flags
}
