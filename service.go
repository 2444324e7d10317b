package svcinit

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
	"time"
)

// Method is one named command of a service. Empty override fields fall back
// to the service-level defaults.
type Method struct {
	// Cmd is the argv of the process, argv[0] being the executable
	Cmd []string `yaml:"cmd"`
	// Env replaces the service-level environment when non-nil
	Env map[string]string `yaml:"env,omitempty"`
	// Cwd overrides the service-level working directory
	Cwd string `yaml:"cwd,omitempty"`
	// User overrides the service-level user
	User string `yaml:"user,omitempty"`
	// Group overrides the service-level group
	Group string `yaml:"group,omitempty"`
	// Namespace overrides the service-level scheme allow-list when non-nil
	Namespace Schemes `yaml:"namespace,omitempty"`
	// Timeout overrides the service-level start deadline
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Service is a declarative service descriptor. A Service handed to a
// Registry is copied and never changes afterwards.
type Service struct {
	// Name is derived from the descriptor file name
	Name string `yaml:"-"`
	// Dependencies names services or capabilities that must be online first
	Dependencies []string `yaml:"dependencies,omitempty"`
	// Provides lists capability tags other services may depend on
	Provides []string `yaml:"provides,omitempty"`
	// Methods maps method names to commands; "start" is required to start
	Methods map[string]*Method `yaml:"methods"`

	// Env is the default environment of every method
	Env map[string]string `yaml:"env,omitempty"`
	// ClearEnv starts methods from an empty environment; defaults to true
	ClearEnv *bool `yaml:"clear_env,omitempty"`
	// Cwd is the default working directory of every method
	Cwd string `yaml:"cwd,omitempty"`
	// User is the default user of every method
	User string `yaml:"user,omitempty"`
	// Group is the default group of every method
	Group string `yaml:"group,omitempty"`
	// Namespace is the default scheme allow-list; nil inherits every
	// resource, an empty list isolates every resource
	Namespace Schemes `yaml:"namespace,omitempty"`
	// Timeout is the default start deadline
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Schemes is a resource allow-list. Nil and empty differ: nil inherits
// every resource, empty isolates every resource.
type Schemes []string

// IsZero reports whether s is nil, so an empty list survives encoding
func (s Schemes) IsZero() bool {
	return s == nil
}

// LaunchRequest is everything a Launcher needs to run one method.
type LaunchRequest struct {
	// Service and Method identify the request in errors and logs
	Service string
	Method  string
	// Args is the full argv; Args[0] names the executable
	Args []string
	// Env is the complete child environment as KEY=VALUE pairs
	Env []string
	// Dir is the working directory, empty to inherit
	Dir string
	// Credential is the identity to switch to, nil to inherit
	Credential *Credential
	// Namespace is the scheme allow-list, nil to inherit every resource
	Namespace []string
	// Timeout is the deadline of the whole run, zero for none
	Timeout time.Duration
}

// clearEnv reports whether methods start from an empty environment.
func (s *Service) clearEnv() bool {
	return s.ClearEnv == nil || *s.ClearEnv
}

// SubstituteEnv replaces every argv token whose trimmed form begins with
// '$' by the current value of the named variable, or "" when unset. It is
// applied once, at load time.
func (s *Service) SubstituteEnv() {
	for _, m := range s.Methods {
		if m != nil {
			m.substituteEnv()
		}
	}
}

func (m *Method) substituteEnv() {
	for i, arg := range m.Cmd {
		trimmed := strings.TrimSpace(arg)
		if name, ok := strings.CutPrefix(trimmed, "$"); ok {
			m.Cmd[i] = os.Getenv(name)
		}
	}
}

// Validate checks that every method has a command.
func (s *Service) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("service name not specified")
	}
	for name, m := range s.Methods {
		if m == nil || len(m.Cmd) == 0 {
			return fmt.Errorf("method %q: %w", name, ErrEmptyCommand)
		}
	}
	return nil
}

// Clone returns a deep copy of the service.
func (s *Service) Clone() *Service {
	if s == nil {
		return nil
	}
	c := *s
	c.Dependencies = slices.Clone(s.Dependencies)
	c.Provides = slices.Clone(s.Provides)
	c.Env = maps.Clone(s.Env)
	c.Namespace = slices.Clone(s.Namespace)
	if s.ClearEnv != nil {
		v := *s.ClearEnv
		c.ClearEnv = &v
	}
	if s.Methods != nil {
		c.Methods = make(map[string]*Method, len(s.Methods))
		for name, m := range s.Methods {
			c.Methods[name] = m.clone()
		}
	}
	return &c
}

func (m *Method) clone() *Method {
	if m == nil {
		return nil
	}
	c := *m
	c.Cmd = slices.Clone(m.Cmd)
	c.Env = maps.Clone(m.Env)
	c.Namespace = slices.Clone(m.Namespace)
	return &c
}

// Method returns the named method.
func (s *Service) Method(name string) (*Method, bool) {
	m, ok := s.Methods[name]
	return m, ok && m != nil
}

// Request merges the named method with the service defaults field by field
// and resolves user and group names. Names that cannot be resolved are
// logged and the process keeps the supervisor's identity.
func (s *Service) Request(name string, logger *slog.Logger) (*LaunchRequest, error) {
	m, ok := s.Method(name)
	if !ok {
		return nil, fmt.Errorf("%w %q on service %q", ErrMissingMethod, name, s.Name)
	}
	if len(m.Cmd) == 0 {
		return nil, &LaunchError{Op: OpSpawn, Service: s.Name, Err: ErrEmptyCommand}
	}
	if logger == nil {
		logger = slog.Default()
	}

	req := &LaunchRequest{
		Service: s.Name,
		Method:  name,
		Args:    slices.Clone(m.Cmd),
		Dir:     cmp.Or(m.Cwd, s.Cwd),
		Timeout: cmp.Or(m.Timeout, s.Timeout),
	}

	vars := s.Env
	if m.Env != nil {
		vars = m.Env
	}
	req.Env = buildEnv(vars, s.clearEnv())

	switch {
	case m.Namespace != nil:
		req.Namespace = slices.Clone(m.Namespace)
	case s.Namespace != nil:
		req.Namespace = slices.Clone(s.Namespace)
	}

	userName := cmp.Or(m.User, s.User)
	groupName := cmp.Or(m.Group, s.Group)
	req.Credential = resolveCredential(userName, groupName, logger.With("service", s.Name, "method", name))

	return req, nil
}

// WaitMethod runs the named method and waits for its process to exit. A
// configured timeout kills the process and returns an error wrapping
// ErrTimeout.
func (s *Service) WaitMethod(ctx context.Context, name string, launcher Launcher, logger *slog.Logger) error {
	req, err := s.Request(name, logger)
	if err != nil {
		return err
	}
	return runRequest(ctx, launcher, req, logger, nil)
}

// runRequest spawns req and waits for it under req.Timeout. onSpawn, when
// set, sees the process before the wait starts.
func runRequest(ctx context.Context, launcher Launcher, req *LaunchRequest, logger *slog.Logger, onSpawn func(Process)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	logger.Info("running method", "service", req.Service, "method", req.Method, "cmd", req.Args)

	proc, err := launcher.Spawn(ctx, req)
	if err != nil {
		return err
	}
	if onSpawn != nil {
		onSpawn(proc)
	}
	return proc.Wait(ctx)
}

// buildEnv materialises vars into KEY=VALUE pairs, sorted by key. Unless
// clearEnv is set the supervisor's own environment comes first and is
// overridden by vars.
func buildEnv(vars map[string]string, clearEnv bool) []string {
	merged := make(map[string]string, len(vars))
	if !clearEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				merged[k] = v
			}
		}
	}
	for k, v := range vars {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
