package svcinit

import (
	"errors"
	"fmt"
)

// Common errors returned or logged by the supervisor
var (
	// ErrMissingMethod indicates a service has no method with the requested name
	ErrMissingMethod = errors.New("svcinit: missing method")

	// ErrMissingDependency indicates a dependency names no known service or capability
	ErrMissingDependency = errors.New("svcinit: missing dependency")

	// ErrCredential indicates a user or group name could not be resolved
	ErrCredential = errors.New("svcinit: credential resolution")

	// ErrConfigParse indicates a descriptor or config file could not be parsed
	ErrConfigParse = errors.New("svcinit: config parse")

	// ErrTimeout indicates a start attempt exceeded its deadline
	ErrTimeout = errors.New("svcinit: timeout")

	// ErrUnknownService indicates a name or Index not present in the registry
	ErrUnknownService = errors.New("svcinit: unknown service")

	// ErrDependencyNotOnline indicates a service was skipped because a
	// dependency did not come online
	ErrDependencyNotOnline = errors.New("svcinit: dependency not online")

	// ErrUnsupported indicates the operation is not available on this platform
	ErrUnsupported = errors.New("svcinit: unsupported on this platform")

	// ErrEmptyCommand indicates a method with no argv
	ErrEmptyCommand = errors.New("svcinit: empty command")
)

// LaunchError represents a failure to run a service method
type LaunchError struct {
	// Op is the launch step that failed
	Op Operation
	// Service is the service name
	Service string
	// Path is the executable involved, if any
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *LaunchError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("svcinit %s %s: %v", e.Op, e.Service, e.Err)
	}
	return fmt.Sprintf("svcinit %s %s %q: %v", e.Op, e.Service, e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ConfigError represents a descriptor or configuration file that could not
// be loaded
type ConfigError struct {
	// Path is the file that failed
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrConfigParse, e.Path, e.Err)
}

// Unwrap exposes both ErrConfigParse and the underlying error
func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfigParse, e.Err}
}

// MultiError aggregates multiple errors from bulk operations
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred; first: %v", len(m.Errors), m.Errors[0])
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap returns the accumulated errors so errors.Is and errors.As see them
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
