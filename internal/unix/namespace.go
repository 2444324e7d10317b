// Package unix provides platform-specific Unix constants and the mapping
// from resource scheme names to namespace kinds.
package unix

import (
	"sort"
	"strings"
)

// Kind is a bit set of isolatable resource kinds.
type Kind uint8

const (
	// KindMount is the filesystem mount table
	KindMount Kind = 1 << iota
	// KindNetwork is the network stack
	KindNetwork
	// KindIPC is System V IPC and POSIX message queues
	KindIPC
	// KindUTS is the hostname and domain name
	KindUTS
	// KindPID is the process id space
	KindPID

	// KindAll is every kind the supervisor knows how to isolate
	KindAll = KindMount | KindNetwork | KindIPC | KindUTS | KindPID
)

var kindNames = []struct {
	kind Kind
	name string
}{
	{KindMount, "mount"},
	{KindNetwork, "network"},
	{KindIPC, "ipc"},
	{KindUTS, "uts"},
	{KindPID, "pid"},
}

// String returns the kinds joined with "|", or "none".
func (k Kind) String() string {
	if k == 0 {
		return "none"
	}
	var parts []string
	for _, kn := range kindNames {
		if k&kn.kind != 0 {
			parts = append(parts, kn.name)
		}
	}
	return strings.Join(parts, "|")
}

var schemes = map[string]Kind{
	"file":     KindMount,
	"mnt":      KindMount,
	"net":      KindNetwork,
	"tcp":      KindNetwork,
	"udp":      KindNetwork,
	"ip":       KindNetwork,
	"icmp":     KindNetwork,
	"netcfg":   KindNetwork,
	"ipc":      KindIPC,
	"chan":     KindIPC,
	"shm":      KindIPC,
	"pipe":     KindIPC,
	"sys":      KindUTS,
	"uts":      KindUTS,
	"hostname": KindUTS,
	"proc":     KindPID,
	"pid":      KindPID,
}

// SchemeKind returns the kind a scheme name belongs to. A trailing ':' is
// accepted, so "file:" and "file" are the same scheme.
func SchemeKind(scheme string) (Kind, bool) {
	k, ok := schemes[strings.TrimSuffix(strings.TrimSpace(scheme), ":")]
	return k, ok
}

// Schemes returns every known scheme name in sorted order.
func Schemes() []string {
	out := make([]string, 0, len(schemes))
	for s := range schemes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Isolate converts an allow-list of schemes into the set of kinds to
// isolate. A nil list isolates nothing. Otherwise every kind without an
// allowed scheme is isolated, so an empty list isolates everything.
// Unknown schemes grant nothing and are returned for logging.
func Isolate(allow []string) (isolate Kind, unknown []string) {
	if allow == nil {
		return 0, nil
	}
	granted := Kind(0)
	for _, s := range allow {
		k, ok := SchemeKind(s)
		if !ok {
			unknown = append(unknown, s)
			continue
		}
		granted |= k
	}
	return KindAll &^ granted, unknown
}
