package svcinit

import (
	"time"

	"github.com/axondata/go-svcinit/internal/depgraph"
)

// Index is a handle to a service stored in a Registry.
type Index = depgraph.Index

// Reserved method names
const (
	// MethodStart is the only method the supervisor calls on its own
	MethodStart = "start"

	// MethodStop is reserved for administrative use through CallMethod
	MethodStop = "stop"

	// MethodRestart is reserved for administrative use through CallMethod
	MethodRestart = "restart"
)

// Supervisor defaults
const (
	// DefaultConcurrency is the default number of services started at once
	// within one dependency group
	DefaultConcurrency = 10

	// DefaultStartTimeout is the default deadline for a single start attempt
	DefaultStartTimeout = 30 * time.Second

	// DefaultShardCount is the default shard count of the registry maps
	DefaultShardCount = 16

	// DefaultWatchDebounce is the default debounce time for descriptor
	// directory watching
	DefaultWatchDebounce = 25 * time.Millisecond

	// DefaultServiceDir is the boot directory used when none is configured
	DefaultServiceDir = "/etc/svcinit.d"

	// DefaultLogLevel is the log level used when none is configured
	DefaultLogLevel = "info"
)

// File modes
const (
	// DirMode is the default mode for created directories
	DirMode = 0o755

	// FileMode is the default mode for created files
	FileMode = 0o644
)

// Operation identifies the step of a launch that failed
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpLoad reads and parses a descriptor file
	OpLoad
	// OpOpen opens the executable in the supervisor's namespace
	OpOpen
	// OpSpawn creates the child and replaces its image
	OpSpawn
	// OpWait waits for the method's process to exit
	OpWait
	// OpStart runs the start method of a service
	OpStart
	// OpCall runs an arbitrary method on administrative request
	OpCall
)

// Operation string constants
const (
	opUnknownStr = "unknown"
	opLoadStr    = "load"
	opOpenStr    = "open"
	opSpawnStr   = "spawn"
	opWaitStr    = "wait"
	opStartStr   = "start"
	opCallStr    = "call"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpLoad:
		return opLoadStr
	case OpOpen:
		return opOpenStr
	case OpSpawn:
		return opSpawnStr
	case OpWait:
		return opWaitStr
	case OpStart:
		return opStartStr
	case OpCall:
		return opCallStr
	default:
		return opUnknownStr
	}
}
