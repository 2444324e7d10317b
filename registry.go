package svcinit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/axondata/go-svcinit/internal/depgraph"
	"github.com/axondata/go-svcinit/internal/striped"
)

// record is the runtime state kept for every stored service.
type record struct {
	State     State
	Since     time.Time
	Attempt   string
	PID       int
	LastError string
}

// ServiceStatus is a point-in-time view of one service.
type ServiceStatus struct {
	Name      string    `yaml:"name"`
	Provides  []string  `yaml:"provides,omitempty"`
	State     State     `yaml:"state"`
	Since     time.Time `yaml:"since"`
	Attempt   string    `yaml:"attempt,omitempty"`
	PID       int       `yaml:"pid,omitempty"`
	LastError string    `yaml:"last_error,omitempty"`
}

// ProvideHook is called when a service whose name or provided tag equals
// tag comes online. It runs outside every registry lock and may push and
// start more services.
type ProvideHook func(ctx context.Context, tag string) error

// Registry owns the dependency graph of all loaded services, the map from
// names and capability tags to graph nodes, and the runtime state of every
// node.
//
// The topology sits behind one RWMutex: pushes take it for writing,
// resolution and lookups for reading. Names and states live in striped maps,
// so starting different services never contends on a global lock.
type Registry struct {
	mu    sync.RWMutex
	graph *depgraph.Graph[*Service]

	redirect *striped.Map[string, Index]
	states   *striped.Map[Index, record]

	hooksMu sync.Mutex
	hooks   map[string][]ProvideHook

	starts singleflight.Group

	launcher     Launcher
	logger       *slog.Logger
	concurrency  int
	startTimeout time.Duration
	stateFile    *StateFile
	shards       int
}

// NewRegistry creates an empty Registry. Without WithLauncher methods run
// through an ExecLauncher.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		graph:        depgraph.New[*Service](),
		hooks:        make(map[string][]ProvideHook),
		concurrency:  DefaultConcurrency,
		startTimeout: DefaultStartTimeout,
		shards:       DefaultShardCount,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.launcher == nil {
		r.launcher = NewExecLauncher(r.logger)
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}

	r.redirect = striped.New[string, Index](r.shards)
	r.states = striped.New[Index, record](r.shards)
	return r
}

// PushServices stores a copy of every service of batch, registers each
// name and provided tag, and then links every dependency of the batch.
// Dependencies are resolved only after the whole batch is registered, so
// services in one batch may depend on each other in any order. A
// dependency that names nothing known at that point is logged and dropped
// for good. Nil entries are skipped; the Indexes of the stored services are
// returned in batch order.
func (r *Registry) PushServices(batch []*Service) []Index {
	now := time.Now()

	r.mu.Lock()
	r.graph.Reserve(len(batch))

	indices := make([]Index, 0, len(batch))
	stored := make([]*Service, 0, len(batch))
	for _, s := range batch {
		if s == nil {
			continue
		}
		c := s.Clone()
		idx := r.graph.Insert(c)
		r.states.Store(idx, record{State: StateOffline, Since: now})
		r.register(c.Name, idx)
		for _, tag := range c.Provides {
			r.register(tag, idx)
		}
		indices = append(indices, idx)
		stored = append(stored, c)
	}

	for k, parent := range indices {
		svc := stored[k]
		for _, dep := range svc.Dependencies {
			child, ok := r.redirect.Load(dep)
			if !ok {
				r.logger.Warn("dependency dropped", "service", svc.Name, "dependency", dep, "err", ErrMissingDependency)
				continue
			}
			if err := r.graph.Dependency(parent, child); err != nil {
				r.logger.Warn("dependency dropped", "service", svc.Name, "dependency", dep, "err", err)
			}
		}
	}
	r.mu.Unlock()

	r.logger.Debug("services pushed", "count", len(indices))
	r.persist()
	return indices
}

// register points key at idx. A later registration of the same key wins.
func (r *Registry) register(key string, idx Index) {
	if key == "" {
		return
	}
	if prev, ok := r.redirect.Store(key, idx); ok && prev != idx {
		r.logger.Debug("redirect replaced", "key", key, "previous", prev.String(), "index", idx.String())
	}
}

// Lookup returns the Index a service name or capability tag points at.
func (r *Registry) Lookup(name string) (Index, bool) {
	return r.redirect.Load(name)
}

// Service returns the stored descriptor at i. The returned Service is
// shared and must not be modified.
func (r *Registry) Service(i Index) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Get(i)
}

// State returns the runtime state of the service at i.
func (r *Registry) State(i Index) (State, bool) {
	rec, ok := r.states.Load(i)
	return rec.State, ok
}

// Len returns the number of stored services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Len()
}

// OnProvide registers hook to run the next time a service named tag, or
// providing tag, comes online. Each registered hook runs at most once.
func (r *Registry) OnProvide(tag string, hook ProvideHook) {
	r.hooksMu.Lock()
	r.hooks[tag] = append(r.hooks[tag], hook)
	r.hooksMu.Unlock()
}

// StartService runs the start method of the service at i and waits for it
// to exit. It is idempotent: an online service is not started again, and
// concurrent calls for the same service share one launch. On failure the
// error is returned and the state is left unchanged. Provide hooks fired
// by the start run before StartService returns; their errors are logged.
//
// The shared launch is detached from the caller's cancellation and bounded
// only by the start deadline, so one canceled caller never fails the
// others. A caller whose ctx ends first returns ctx.Err() while the launch
// carries on.
func (r *Registry) StartService(ctx context.Context, i Index) error {
	started, err := r.startOnce(ctx, i)
	if err != nil {
		return err
	}
	if started {
		_ = r.fireHooks(ctx, i)
	}
	return nil
}

// startOnce starts i through the singleflight group and reports whether
// this launch brought it online.
func (r *Registry) startOnce(ctx context.Context, i Index) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	detached := context.WithoutCancel(ctx)
	ch := r.starts.DoChan(i.String(), func() (any, error) {
		return r.start(detached, i)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		started, _ := res.Val.(bool)
		return started, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (r *Registry) start(ctx context.Context, i Index) (bool, error) {
	svc, ok := r.Service(i)
	if !ok {
		return false, fmt.Errorf("%w: index %s", ErrUnknownService, i)
	}
	if st, _ := r.State(i); st.IsOnline() {
		return false, nil
	}

	logger := r.logger.With("service", svc.Name)

	req, err := svc.Request(MethodStart, logger)
	if err != nil {
		r.states.Update(i, func(rec record, _ bool) record {
			rec.LastError = err.Error()
			return rec
		})
		return false, err
	}
	if req.Timeout == 0 {
		req.Timeout = r.startTimeout
	}

	attempt := uuid.NewString()
	r.states.Update(i, func(rec record, _ bool) record {
		rec.Attempt = attempt
		rec.PID = 0
		rec.LastError = ""
		return rec
	})

	err = runRequest(ctx, r.launcher, req, logger, func(p Process) {
		r.states.Update(i, func(rec record, _ bool) record {
			rec.PID = p.Pid()
			return rec
		})
	})
	if err != nil {
		r.states.Update(i, func(rec record, _ bool) record {
			rec.LastError = err.Error()
			return rec
		})
		logger.Error("start failed", "attempt", attempt, "err", err)
		r.persist()
		return false, err
	}

	r.setState(i, StateOnline)
	logger.Info("service online", "attempt", attempt)
	r.persist()
	return true, nil
}

func (r *Registry) setState(i Index, st State) {
	now := time.Now()
	r.states.Update(i, func(rec record, _ bool) record {
		if rec.State != st {
			rec.State = st
			rec.Since = now
		}
		return rec
	})
}

// fireHooks takes every hook registered for the name and tags of the
// service at i, runs them in registration order and returns their errors.
func (r *Registry) fireHooks(ctx context.Context, i Index) []error {
	svc, ok := r.Service(i)
	if !ok {
		return nil
	}

	type firing struct {
		tag   string
		hooks []ProvideHook
	}
	var fire []firing

	r.hooksMu.Lock()
	for _, tag := range append([]string{svc.Name}, svc.Provides...) {
		if hooks := r.hooks[tag]; len(hooks) > 0 {
			fire = append(fire, firing{tag: tag, hooks: hooks})
			delete(r.hooks, tag)
		}
	}
	r.hooksMu.Unlock()

	var errs []error
	for _, f := range fire {
		for _, hook := range f.hooks {
			r.logger.Debug("running provide hook", "tag", f.tag, "service", svc.Name)
			if err := hook(ctx, f.tag); err != nil {
				r.logger.Error("provide hook failed", "tag", f.tag, "service", svc.Name, "err", err)
				errs = append(errs, fmt.Errorf("provide hook %q: %w", f.tag, err))
			}
		}
	}
	return errs
}

// StartServices starts every stored service in dependency order. Groups
// run one after another; members of a group start concurrently. A failed
// start marks the service failed, and services depending on anything that
// is not online are skipped and left offline. Failures never stop the
// remaining groups and are returned together as a *MultiError. When the
// graph has a cycle everything outside it is still started and the
// *depgraph.CycleError is part of the result.
//
// Provide hooks of services brought online by the pass run after its last
// group, so a chain-loaded batch sees every service of this pass that
// could start. Hook errors are part of the result.
func (r *Registry) StartServices(ctx context.Context) error {
	return r.startGroups(ctx, nil)
}

// StartBatch is StartServices restricted to indices, typically those
// returned by one PushServices call. Dependencies outside indices must
// already be online.
func (r *Registry) StartBatch(ctx context.Context, indices []Index) error {
	only := make(map[Index]struct{}, len(indices))
	for _, idx := range indices {
		only[idx] = struct{}{}
	}
	return r.startGroups(ctx, only)
}

func (r *Registry) startGroups(ctx context.Context, only map[Index]struct{}) error {
	selected := func(idx Index) bool {
		if only == nil {
			return true
		}
		_, ok := only[idx]
		return ok
	}

	r.mu.RLock()
	groups, resolveErr := r.graph.GroupedResolve()
	deps := make(map[Index][]Index)
	for _, group := range groups {
		for _, idx := range group {
			if selected(idx) {
				deps[idx] = r.graph.Dependencies(idx)
			}
		}
	}
	r.mu.RUnlock()

	merr := &MultiError{}
	var mu sync.Mutex
	var online []Index

	for n, group := range groups {
		if err := ctx.Err(); err != nil {
			merr.Add(err)
			break
		}

		var eg errgroup.Group
		eg.SetLimit(r.concurrency)
		for _, idx := range group {
			if !selected(idx) {
				continue
			}
			eg.Go(func() error {
				started, err := r.startMember(ctx, idx, deps[idx])
				mu.Lock()
				if err != nil {
					merr.Add(err)
				}
				if started {
					online = append(online, idx)
				}
				mu.Unlock()
				return nil
			})
		}
		_ = eg.Wait()
		r.logger.Debug("group started", "group", n, "size", len(group))
	}

	var ce *depgraph.CycleError
	if errors.As(resolveErr, &ce) {
		for _, idx := range ce.Unresolved {
			if selected(idx) {
				r.logger.Error("services left unstarted", "count", len(ce.Unresolved), "err", ce)
				merr.Add(ce)
				break
			}
		}
	}

	for _, idx := range online {
		for _, err := range r.fireHooks(ctx, idx) {
			merr.Add(err)
		}
	}

	return merr.Err()
}

// startMember starts one group member once all of its dependencies are
// online, marking it failed if the attempt fails. It reports whether this
// call brought the member online.
func (r *Registry) startMember(ctx context.Context, idx Index, deps []Index) (bool, error) {
	if st, _ := r.State(idx); st.IsOnline() {
		return false, nil
	}
	name := r.name(idx)

	for _, dep := range deps {
		if st, _ := r.State(dep); !st.IsOnline() {
			err := fmt.Errorf("%w: %s needs %s (%s)", ErrDependencyNotOnline, name, r.name(dep), st)
			r.logger.Warn("service skipped", "service", name, "dependency", r.name(dep), "err", err)
			return false, err
		}
	}

	started, err := r.startOnce(ctx, idx)
	if err != nil {
		// the detached launch may still finish
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return false, err
		}
		r.setState(idx, StateFailed)
		r.persist()
		return false, err
	}
	return started, nil
}

func (r *Registry) name(i Index) string {
	if svc, ok := r.Service(i); ok {
		return svc.Name
	}
	return i.String()
}

// CallMethod runs an arbitrary method of the named service, such as "stop"
// or "restart", and waits for it. It never changes the runtime state.
func (r *Registry) CallMethod(ctx context.Context, name, method string) error {
	idx, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	svc, ok := r.Service(idx)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, name)
	}

	logger := r.logger.With("service", svc.Name)
	req, err := svc.Request(method, logger)
	if err != nil {
		return err
	}
	if req.Timeout == 0 {
		req.Timeout = r.startTimeout
	}
	if err := runRequest(ctx, r.launcher, req, logger, nil); err != nil {
		return &LaunchError{Op: OpCall, Service: svc.Name, Err: err}
	}
	return nil
}

// Snapshot returns the status of every stored service sorted by name.
func (r *Registry) Snapshot() []ServiceStatus {
	r.mu.RLock()
	indices := r.graph.Indices()
	out := make([]ServiceStatus, 0, len(indices))
	for _, idx := range indices {
		svc, _ := r.graph.Get(idx)
		rec, _ := r.states.Load(idx)
		out = append(out, ServiceStatus{
			Name:      svc.Name,
			Provides:  append([]string(nil), svc.Provides...),
			State:     rec.State,
			Since:     rec.Since,
			Attempt:   rec.Attempt,
			PID:       rec.PID,
			LastError: rec.LastError,
		})
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Name < out[b].Name
	})
	return out
}

func (r *Registry) persist() {
	if r.stateFile == nil {
		return
	}
	if err := r.stateFile.WriteFrom(r.Snapshot); err != nil {
		r.logger.Warn("state file not written", "path", r.stateFile.Path(), "err", err)
	}
}
