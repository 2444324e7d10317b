package svcinit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// ServiceBuilder provides a fluent interface for creating service
// descriptors in code or as descriptor files.
type ServiceBuilder struct {
	svc *Service
}

// NewServiceBuilder creates a ServiceBuilder for a service called name
func NewServiceBuilder(name string) *ServiceBuilder {
	return &ServiceBuilder{
		svc: &Service{
			Name:    name,
			Methods: make(map[string]*Method),
		},
	}
}

// WithDependencies appends service names or capability tags to depend on
func (b *ServiceBuilder) WithDependencies(deps ...string) *ServiceBuilder {
	b.svc.Dependencies = append(b.svc.Dependencies, deps...)
	return b
}

// WithProvides appends capability tags
func (b *ServiceBuilder) WithProvides(tags ...string) *ServiceBuilder {
	b.svc.Provides = append(b.svc.Provides, tags...)
	return b
}

// WithStart sets the command of the start method
func (b *ServiceBuilder) WithStart(cmd ...string) *ServiceBuilder {
	return b.WithMethod(MethodStart, cmd...)
}

// WithMethod sets the command of a method, creating it if needed
func (b *ServiceBuilder) WithMethod(name string, cmd ...string) *ServiceBuilder {
	return b.WithMethodConfig(name, func(m *Method) {
		m.Cmd = cmd
	})
}

// WithMethodConfig configures per-method overrides
func (b *ServiceBuilder) WithMethodConfig(name string, fn func(*Method)) *ServiceBuilder {
	m, ok := b.svc.Methods[name]
	if !ok || m == nil {
		m = &Method{}
		b.svc.Methods[name] = m
	}
	fn(m)
	return b
}

// WithEnv adds a service-level environment variable
func (b *ServiceBuilder) WithEnv(key, value string) *ServiceBuilder {
	if b.svc.Env == nil {
		b.svc.Env = make(map[string]string)
	}
	b.svc.Env[key] = value
	return b
}

// WithClearEnv sets whether methods start from an empty environment
func (b *ServiceBuilder) WithClearEnv(clearEnv bool) *ServiceBuilder {
	b.svc.ClearEnv = &clearEnv
	return b
}

// WithCwd sets the service-level working directory
func (b *ServiceBuilder) WithCwd(cwd string) *ServiceBuilder {
	b.svc.Cwd = cwd
	return b
}

// WithUser sets the service-level user
func (b *ServiceBuilder) WithUser(user string) *ServiceBuilder {
	b.svc.User = user
	return b
}

// WithGroup sets the service-level group
func (b *ServiceBuilder) WithGroup(group string) *ServiceBuilder {
	b.svc.Group = group
	return b
}

// WithNamespace sets the scheme allow-list. Calling it with no schemes
// isolates every resource.
func (b *ServiceBuilder) WithNamespace(schemes ...string) *ServiceBuilder {
	b.svc.Namespace = append([]string{}, schemes...)
	return b
}

// WithTimeout sets the service-level start deadline
func (b *ServiceBuilder) WithTimeout(d time.Duration) *ServiceBuilder {
	b.svc.Timeout = d
	return b
}

// Build validates the descriptor, substitutes argv variables and returns
// a copy, so the builder can keep being used.
func (b *ServiceBuilder) Build() (*Service, error) {
	if err := b.svc.Validate(); err != nil {
		return nil, err
	}
	svc := b.svc.Clone()
	svc.SubstituteEnv()
	return svc, nil
}

// WriteFile writes the descriptor to dir/<name>.yaml atomically. Argv
// variables are kept unsubstituted so they resolve when the file is
// loaded.
func (b *ServiceBuilder) WriteFile(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("descriptor directory not specified")
	}
	if err := b.svc.Validate(); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(b.svc)
	if err != nil {
		return "", fmt.Errorf("encoding descriptor: %w", err)
	}

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return "", fmt.Errorf("creating descriptor directory: %w", err)
	}
	path := filepath.Join(dir, b.svc.Name+".yaml")
	if err := renameio.WriteFile(path, data, FileMode); err != nil {
		return "", fmt.Errorf("writing descriptor %s: %w", path, err)
	}
	return path, nil
}
