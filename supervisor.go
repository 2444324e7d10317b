package svcinit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"vawter.tech/stopper"
)

// SupervisorOption configures a Supervisor
type SupervisorOption func(*Supervisor)

// WithNotifier sets the function called once the boot batch has been
// started, e.g. a systemd readiness notification
func WithNotifier(fn func() error) SupervisorOption {
	return func(s *Supervisor) {
		s.notify = fn
	}
}

// WithRegistryOptions passes extra options to the Registry the Supervisor
// creates. They are applied after the options derived from Config.
func WithRegistryOptions(opts ...RegistryOption) SupervisorOption {
	return func(s *Supervisor) {
		s.registryOpts = append(s.registryOpts, opts...)
	}
}

// Supervisor boots the services described by a Config.
type Supervisor struct {
	cfg      *Config
	logger   *slog.Logger
	loader   *Loader
	registry *Registry

	notify       func() error
	registryOpts []RegistryOption

	// seen holds the service names loaded from each boot dir
	seen map[string][]string
}

// NewSupervisor creates a Supervisor for cfg. A nil cfg means
// DefaultConfig.
func NewSupervisor(cfg *Config, logger *slog.Logger, opts ...SupervisorOption) *Supervisor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		loader: NewLoader(logger),
		seen:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	ropts := []RegistryOption{
		WithLogger(logger),
		WithConcurrency(cfg.Concurrency),
	}
	if cfg.StartTimeout > 0 {
		ropts = append(ropts, WithStartTimeout(cfg.StartTimeout))
	}
	if cfg.StateFile != "" {
		ropts = append(ropts, WithStateFile(NewStateFile(cfg.StateFile)))
	}
	s.registry = NewRegistry(append(ropts, s.registryOpts...)...)
	return s
}

// Registry returns the registry holding every loaded service.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Boot exports the configured environment, loads every boot dir as one
// batch, registers the chain loads, starts everything and finally calls
// the notifier. Chain loads run once every boot group has finished. Start
// failures, including those of chain-loaded directories, are returned but
// do not prevent the notification.
func (s *Supervisor) Boot(ctx context.Context) error {
	if err := s.exportEnv(); err != nil {
		return err
	}

	var batch []*Service
	for _, dir := range s.cfg.Dirs {
		services, err := s.loader.LoadDir(dir)
		if err != nil {
			s.logger.Error("boot directory skipped", "dir", dir, "err", err)
			continue
		}
		for _, svc := range services {
			s.seen[dir] = append(s.seen[dir], svc.Name)
		}
		batch = append(batch, services...)
	}

	for _, ch := range s.cfg.Chain {
		s.registry.OnProvide(ch.Provides, s.chainLoad(ch))
	}

	s.registry.PushServices(batch)
	startErr := s.registry.StartServices(ctx)
	if startErr != nil {
		s.logger.Error("boot finished with errors", "err", startErr)
	} else {
		s.logger.Info("boot finished", "services", s.registry.Len())
	}

	if s.notify != nil {
		if err := s.notify(); err != nil {
			s.logger.Warn("readiness notification failed", "err", err)
		}
	}
	return startErr
}

// Run boots and then, if configured, watches the boot dirs for new
// descriptors until ctx ends. Boot errors are logged, not returned.
func (s *Supervisor) Run(ctx context.Context) error {
	_ = s.Boot(ctx)

	if !s.cfg.Watch {
		<-ctx.Done()
		return nil
	}

	sctx := stopper.WithContext(ctx)
	for _, dir := range s.cfg.Dirs {
		events, cleanup, err := s.loader.Watch(ctx, dir, s.seen[dir])
		if err != nil {
			s.logger.Error("directory not watched", "dir", dir, "err", err)
			continue
		}
		sctx.Defer(func() { _ = cleanup() })
		sctx.Go(func(sctx *stopper.Context) error {
			for {
				select {
				case <-sctx.Stopping():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if ev.Err != nil {
						s.logger.Warn("watch error", "dir", dir, "err", ev.Err)
						continue
					}
					s.startNew(ctx, ev.Services)
				}
			}
		})
	}

	<-ctx.Done()
	sctx.Stop(time.Second)
	if err := sctx.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startNew pushes and starts services found after boot.
func (s *Supervisor) startNew(ctx context.Context, services []*Service) {
	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = svc.Name
	}
	s.logger.Info("new services found", "services", names)

	indices := s.registry.PushServices(services)
	if err := s.registry.StartBatch(ctx, indices); err != nil {
		s.logger.Error("new services started with errors", "err", err)
	}
}

// chainLoad returns the hook that loads and starts ch.Dir.
func (s *Supervisor) chainLoad(ch ChainLoad) ProvideHook {
	return func(ctx context.Context, tag string) error {
		s.logger.Info("chain loading", "provides", tag, "dir", ch.Dir)
		services, err := s.loader.LoadDir(ch.Dir)
		if err != nil {
			return fmt.Errorf("chain load %s: %w", ch.Dir, err)
		}
		indices := s.registry.PushServices(services)
		return s.registry.StartBatch(ctx, indices)
	}
}

// exportEnv sets the configured variables in sorted key order.
func (s *Supervisor) exportEnv() error {
	keys := make([]string, 0, len(s.cfg.Env))
	for k := range s.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := os.Setenv(k, s.cfg.Env[k]); err != nil {
			return fmt.Errorf("exporting %s: %w", k, err)
		}
	}
	return nil
}
