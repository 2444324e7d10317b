package svcinit

import (
	"log/slog"
	"time"
)

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLauncher sets the Launcher used to run methods
func WithLauncher(l Launcher) RegistryOption {
	return func(r *Registry) {
		r.launcher = l
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithConcurrency sets the maximum number of services started at once
// within one dependency group
func WithConcurrency(n int) RegistryOption {
	return func(r *Registry) {
		r.concurrency = n
	}
}

// WithStartTimeout sets the deadline of a start attempt whose service and
// method configure none
func WithStartTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.startTimeout = d
	}
}

// WithStateFile writes a snapshot to f after every state change
func WithStateFile(f *StateFile) RegistryOption {
	return func(r *Registry) {
		r.stateFile = f
	}
}

// WithShardCount sets the shard count of the redirect map and state table
func WithShardCount(n int) RegistryOption {
	return func(r *Registry) {
		r.shards = n
	}
}
